// internal/service/order/domain/order.go
package domain

import (
	"time"

	invdomain "nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTransition 状态机不允许的流转，或订单状态已被并发修改
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder 订单内容不合法
	ErrInvalidOrder = errors.New("invalid order")
)

// OrderLine 订单行
type OrderLine struct {
	ProductID string          `json:"productId"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order 是订单聚合的根实体
type Order struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"userId"`
	Status         State                  `json:"status"`
	Reservation    ReservationState       `json:"reservation"`
	PromoCode      string                 `json:"promoCode,omitempty"`
	PromoCodeID    uint64                 `json:"promoCodeId,omitempty"`
	Amount         decimal.Decimal        `json:"amount"`
	ReleasePending bool                   `json:"releasePending"`
	PaymentDueAt   time.Time              `json:"paymentDueAt,omitempty"`
	PaidAt         time.Time              `json:"paidAt,omitempty"`
	CancelReason   string                 `json:"cancelReason,omitempty"`
	Lines          []OrderLine            `json:"lines"`
	Allocations    []invdomain.Allocation `json:"allocations"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// NewOrder 创建草稿订单
func NewOrder(id, userID string, lines []OrderLine, promoCode string, now time.Time) (*Order, error) {
	if id == "" || userID == "" || len(lines) == 0 {
		return nil, errors.WithMessage(ErrInvalidOrder, "cannot create order with empty required fields")
	}
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, errors.WithMessagef(ErrInvalidOrder, "invalid line %+v", l)
		}
	}
	o := &Order{
		ID:          id,
		UserID:      userID,
		Status:      StateDraft,
		Reservation: ReservationNone,
		PromoCode:   promoCode,
		Lines:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.Amount = o.LinesTotal()
	return o, nil
}

// LinesTotal 按订单行重新计算金额
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// ItemCount 订单商品总件数
func (o *Order) ItemCount() int64 {
	var n int64
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// ProductIDs 订单涉及的商品
func (o *Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// TransitionTo 执行状态流转，只负责状态本身，不负责台账
func (o *Order) TransitionTo(next State, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return errors.WithMessagef(ErrInvalidTransition, "order %s: %s -> %s", o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// HoldsReservation 当前是否持有需要释放的预占
func (o *Order) HoldsReservation() bool {
	return o.Reservation == ReservationHeld
}

// Paid 是否已支付过。已支付的订单不会因支付超时被取消。
func (o *Order) Paid() bool {
	return !o.PaidAt.IsZero()
}

// Expired 待支付订单是否已超过支付期限
func (o *Order) Expired(now time.Time) bool {
	return !o.PaymentDueAt.IsZero() && now.After(o.PaymentDueAt)
}
