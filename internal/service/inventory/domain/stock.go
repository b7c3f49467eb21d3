// internal/service/inventory/domain/stock.go
package domain

import (
	"time"

	audit "nexus-ledger/internal/service/audit/domain"

	"github.com/pkg/errors"
)

// StockRecord 是库存台账的一行，也是加锁的最小单位。
//
// Stock 为在库数量，Deduct 会把售出的件数从中扣除；SoldQuantity 为累计售出；
// AvailableQuantity 是独立于实物数量的可售上限。剩余可售 = min(Stock, Available) − Reserved。
type StockRecord struct {
	ID                uint64
	SKU               string
	Name              string
	Stock             int64
	ReservedQuantity  int64
	SoldQuantity      int64
	AvailableQuantity int64
	SafetyStock       int64
	Active            bool
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Remaining 剩余可售数量，不会小于 0
func (s *StockRecord) Remaining() int64 {
	sellable := s.Stock
	if s.AvailableQuantity < sellable {
		sellable = s.AvailableQuantity
	}
	if r := sellable - s.ReservedQuantity; r > 0 {
		return r
	}
	return 0
}

// Reserve 为未支付订单预占 qty 件
func (s *StockRecord) Reserve(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !s.Active {
		return errors.WithMessagef(ErrInsufficientStock, "stock %d is inactive", s.ID)
	}
	if qty > s.Remaining() {
		return errors.WithMessagef(ErrInsufficientStock, "stock %d: requested %d, remaining %d", s.ID, qty, s.Remaining())
	}
	s.ReservedQuantity += qty
	s.Version++
	return nil
}

// Release 释放预占，下限为 0。释放量超过当前预占时返回 clamped=true。
func (s *StockRecord) Release(qty int64) (clamped bool, err error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	clamped = qty > s.ReservedQuantity
	s.ReservedQuantity = floorZero(s.ReservedQuantity - qty)
	s.Version++
	return clamped, nil
}

// Deduct 在履约时把 qty 件转为售出，不可逆。
// 已有预占覆盖不到的部分必须落在剩余可售数量之内。
func (s *StockRecord) Deduct(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if s.Stock < qty {
		return errors.WithMessagef(ErrInsufficientStock, "stock %d: deduct %d, on hand %d", s.ID, qty, s.Stock)
	}
	covered := qty
	if s.ReservedQuantity < covered {
		covered = s.ReservedQuantity
	}
	if uncovered := qty - covered; uncovered > s.Remaining() {
		return errors.WithMessagef(ErrInsufficientStock, "stock %d: unreserved %d exceeds remaining %d", s.ID, uncovered, s.Remaining())
	}

	s.SoldQuantity += qty
	s.ReservedQuantity = floorZero(s.ReservedQuantity - qty)
	s.Stock -= qty
	s.AvailableQuantity = floorZero(s.AvailableQuantity - qty)
	s.Version++
	return nil
}

// Adjust 管理端补货或盘点修正。预占量不参与校验，调整可以让在库数量低于预占。
func (s *StockRecord) Adjust(stockDelta, availableDelta int64) error {
	if stockDelta == 0 && availableDelta == 0 {
		return errors.WithMessage(ErrInvalidAdjustment, "empty adjustment")
	}
	stock := s.Stock + stockDelta
	available := s.AvailableQuantity + availableDelta
	switch {
	case stock < 0:
		return errors.WithMessagef(ErrInvalidAdjustment, "stock would become %d", stock)
	case available < 0:
		return errors.WithMessagef(ErrInvalidAdjustment, "available would become %d", available)
	case available > stock:
		return errors.WithMessagef(ErrInvalidAdjustment, "available %d would exceed stock %d", available, stock)
	}
	s.Stock = stock
	s.AvailableQuantity = available
	s.Version++
	return nil
}

// IsLow 在库扣除预占后低于安全库存
func (s *StockRecord) IsLow() bool {
	return s.SafetyStock > 0 && s.Stock-s.ReservedQuantity < s.SafetyStock
}

// CheckInvariants 校验每次变更后都必须成立的约束。
// 不校验 reserved + sold <= stock：扣减会把售出量从 stock 中移走，stock 只表示在库数量。
func (s *StockRecord) CheckInvariants() error {
	switch {
	case s.Stock < 0:
		return errors.Errorf("stock %d: negative stock %d", s.ID, s.Stock)
	case s.ReservedQuantity < 0:
		return errors.Errorf("stock %d: negative reserved %d", s.ID, s.ReservedQuantity)
	case s.SoldQuantity < 0:
		return errors.Errorf("stock %d: negative sold %d", s.ID, s.SoldQuantity)
	case s.AvailableQuantity < 0 || s.AvailableQuantity > s.Stock:
		return errors.Errorf("stock %d: available %d outside [0, %d]", s.ID, s.AvailableQuantity, s.Stock)
	}
	return nil
}

// Snapshot 审计快照
func (s *StockRecord) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Total:     s.Stock,
		Available: s.AvailableQuantity,
		Reserved:  s.ReservedQuantity,
		Consumed:  s.SoldQuantity,
	}
}

// LowStockSignal 低库存告警
type LowStockSignal struct {
	StockID     uint64    `json:"stockId"`
	SKU         string    `json:"sku"`
	Stock       int64     `json:"stock"`
	Reserved    int64     `json:"reserved"`
	SafetyStock int64     `json:"safetyStock"`
	Remaining   int64     `json:"remaining"`
	At          time.Time `json:"at"`
}

// LowStockSignal 生成当前状态的告警
func (s *StockRecord) LowStockSignal(at time.Time) LowStockSignal {
	return LowStockSignal{
		StockID:     s.ID,
		SKU:         s.SKU,
		Stock:       s.Stock,
		Reserved:    s.ReservedQuantity,
		SafetyStock: s.SafetyStock,
		Remaining:   s.Remaining(),
		At:          at,
	}
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
