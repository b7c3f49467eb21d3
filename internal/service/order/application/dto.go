// internal/service/order/application/dto.go
package application

import "github.com/shopspring/decimal"

// LineRequest 下单请求中的一行
type LineRequest struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CheckoutRequest 是下单与创建草稿用例的输入数据
type CheckoutRequest struct {
	UserID    string        `json:"userId" validate:"required,max=64"`
	Lines     []LineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
	PromoCode string        `json:"promoCode,omitempty" validate:"omitempty,max=64"`
}

// RepriceRequest 管理端在支付前改价，不影响台账
type RepriceRequest struct {
	Prices map[string]decimal.Decimal `json:"prices" validate:"required,min=1"`
	Actor  string                     `json:"actor" validate:"required,max=64"`
	Reason string                     `json:"reason" validate:"max=255"`
}
