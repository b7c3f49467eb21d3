package domain

import "github.com/pkg/errors"

var (
	// ErrCodeExhausted 限量优惠码已没有剩余名额
	ErrCodeExhausted = errors.New("promo code exhausted")
	// ErrCodeUnavailable 优惠码已停用、不在有效期内，或订单不满足使用条件
	ErrCodeUnavailable = errors.New("promo code unavailable")
	// ErrPromoNotFound 优惠码不存在
	ErrPromoNotFound = errors.New("promo code not found")
	// ErrInvalidQuantity 数量必须为正数
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidCondition 使用条件表达式无法编译或结果不是布尔值
	ErrInvalidCondition = errors.New("invalid promo condition")
)
