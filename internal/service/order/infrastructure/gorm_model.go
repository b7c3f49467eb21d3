package infrastructure

import (
	"time"

	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderModel 对应 orders 表
type OrderModel struct {
	ID             string                  `gorm:"type:varchar(36);primaryKey"`
	UserID         string                  `gorm:"type:varchar(64);index"`
	Status         domain.State            `gorm:"type:varchar(32);not null;index:idx_orders_due,priority:1"`
	Reservation    domain.ReservationState `gorm:"type:varchar(16);not null"`
	PromoCode      string                  `gorm:"type:varchar(64)"`
	PromoCodeID    uint64
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ReleasePending bool            `gorm:"not null;default:false;index"`
	PaymentDueAt   *time.Time      `gorm:"index:idx_orders_due,priority:2"`
	PaidAt         *time.Time
	CancelReason   string          `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines       []OrderLineModel       `gorm:"foreignKey:OrderID"`
	Allocations []OrderAllocationModel `gorm:"foreignKey:OrderID"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel 对应 order_lines 表
type OrderLineModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"type:varchar(36);index"`
	ProductID string          `gorm:"type:varchar(64)"`
	Quantity  int64           `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderLineModel) TableName() string {
	return "order_lines"
}

// OrderAllocationModel 对应 order_allocations 表，记录订单占用了哪些库存行
type OrderAllocationModel struct {
	ID       uint   `gorm:"primaryKey"`
	OrderID  string `gorm:"type:varchar(36);index"`
	StockID  uint64 `gorm:"index"`
	Quantity int64  `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderAllocationModel) TableName() string {
	return "order_allocations"
}

// AutoMigrate 创建订单相关的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &OrderLineModel{}, &OrderAllocationModel{})
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:             m.ID,
		UserID:         m.UserID,
		Status:         m.Status,
		Reservation:    m.Reservation,
		PromoCode:      m.PromoCode,
		PromoCodeID:    m.PromoCodeID,
		Amount:         m.Amount,
		ReleasePending: m.ReleasePending,
		CancelReason:   m.CancelReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.PaymentDueAt != nil {
		o.PaymentDueAt = *m.PaymentDueAt
	}
	if m.PaidAt != nil {
		o.PaidAt = *m.PaidAt
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	for _, a := range m.Allocations {
		o.Allocations = append(o.Allocations, invdomain.Allocation{StockID: a.StockID, Quantity: a.Quantity})
	}
	return o
}

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:             o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		Reservation:    o.Reservation,
		PromoCode:      o.PromoCode,
		PromoCodeID:    o.PromoCodeID,
		Amount:         o.Amount,
		ReleasePending: o.ReleasePending,
		PaymentDueAt:   dueAt(o),
		PaidAt:         paidAt(o),
		CancelReason:   o.CancelReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	m.Lines = lineModels(o)
	m.Allocations = allocationModels(o)
	return m
}

func dueAt(o *domain.Order) *time.Time {
	if o.PaymentDueAt.IsZero() {
		return nil
	}
	t := o.PaymentDueAt
	return &t
}

func paidAt(o *domain.Order) *time.Time {
	if o.PaidAt.IsZero() {
		return nil
	}
	t := o.PaidAt
	return &t
}

func lineModels(o *domain.Order) []OrderLineModel {
	out := make([]OrderLineModel, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, OrderLineModel{OrderID: o.ID, ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return out
}

func allocationModels(o *domain.Order) []OrderAllocationModel {
	out := make([]OrderAllocationModel, 0, len(o.Allocations))
	for _, a := range o.Allocations {
		out = append(out, OrderAllocationModel{OrderID: o.ID, StockID: a.StockID, Quantity: a.Quantity})
	}
	return out
}
