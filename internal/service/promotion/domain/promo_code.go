package domain

import (
	"time"

	audit "nexus-ledger/internal/service/audit/domain"

	"github.com/pkg/errors"
)

// Status 优惠码状态
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// PromoCode 优惠码台账行。TotalQuantity 为 0 表示不限量，此时仍然统计预占与核销数量。
type PromoCode struct {
	ID               uint64    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	TotalQuantity    int64     `json:"totalQuantity"`
	ReservedQuantity int64     `json:"reservedQuantity"`
	UsedQuantity     int64     `json:"usedQuantity"`
	ValidFrom        time.Time `json:"validFrom"`
	ValidTo          time.Time `json:"validTo"`
	Status           Status    `json:"status"`
	// Condition 可选的 CEL 表达式，例如 `amount >= 100.0 && item_count >= 2`
	Condition string    `json:"condition,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Unlimited 是否不限量
func (p *PromoCode) Unlimited() bool {
	return p.TotalQuantity == 0
}

// CheckAvailable 校验状态、有效期与剩余名额
func (p *PromoCode) CheckAvailable(now time.Time) error {
	if p.Status != StatusActive {
		return errors.WithMessagef(ErrCodeUnavailable, "promo %s is %s", p.Code, p.Status)
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return errors.WithMessagef(ErrCodeUnavailable, "promo %s not yet valid", p.Code)
	}
	if !p.ValidTo.IsZero() && !now.Before(p.ValidTo) {
		return errors.WithMessagef(ErrCodeUnavailable, "promo %s expired", p.Code)
	}
	if !p.Unlimited() && p.ReservedQuantity+p.UsedQuantity >= p.TotalQuantity {
		return errors.WithMessagef(ErrCodeExhausted, "promo %s", p.Code)
	}
	return nil
}

// IsAvailable 当前是否还能预占
func (p *PromoCode) IsAvailable(now time.Time) bool {
	return p.CheckAvailable(now) == nil
}

// Reserve 为未支付订单预占 qty 个名额
func (p *PromoCode) Reserve(qty int64, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := p.CheckAvailable(now); err != nil {
		return err
	}
	if !p.Unlimited() && p.ReservedQuantity+p.UsedQuantity+qty > p.TotalQuantity {
		return errors.WithMessagef(ErrCodeExhausted, "promo %s: requested %d", p.Code, qty)
	}
	p.ReservedQuantity += qty
	p.Version++
	return nil
}

// Release 释放预占，下限为 0
func (p *PromoCode) Release(qty int64) (clamped bool, err error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	clamped = qty > p.ReservedQuantity
	p.ReservedQuantity = floorZero(p.ReservedQuantity - qty)
	p.Version++
	return clamped, nil
}

// Redeem 履约时核销。预占覆盖不到的部分仍受总量限制。
func (p *PromoCode) Redeem(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	covered := qty
	if p.ReservedQuantity < covered {
		covered = p.ReservedQuantity
	}
	if !p.Unlimited() && p.ReservedQuantity+p.UsedQuantity+(qty-covered) > p.TotalQuantity {
		return errors.WithMessagef(ErrCodeExhausted, "promo %s: redeem %d", p.Code, qty)
	}
	p.UsedQuantity += qty
	p.ReservedQuantity = floorZero(p.ReservedQuantity - qty)
	p.Version++
	return nil
}

// CheckInvariants 限量时 预占+已用 不超过总量
func (p *PromoCode) CheckInvariants() error {
	switch {
	case p.ReservedQuantity < 0 || p.UsedQuantity < 0:
		return errors.Errorf("promo %d: negative counters reserved=%d used=%d", p.ID, p.ReservedQuantity, p.UsedQuantity)
	case !p.Unlimited() && p.ReservedQuantity+p.UsedQuantity > p.TotalQuantity:
		return errors.Errorf("promo %d: reserved %d + used %d exceeds total %d", p.ID, p.ReservedQuantity, p.UsedQuantity, p.TotalQuantity)
	}
	return nil
}

// Snapshot 审计快照，Available 恒为 0
func (p *PromoCode) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Total:    p.TotalQuantity,
		Reserved: p.ReservedQuantity,
		Consumed: p.UsedQuantity,
	}
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
