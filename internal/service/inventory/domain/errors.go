// internal/service/inventory/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrInsufficientStock 剩余可售数量不足，或库存行已停用。面向用户的业务错误，不自动重试。
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidAdjustment 管理端调整会破坏库存不变量
	ErrInvalidAdjustment = errors.New("invalid stock adjustment")
	// ErrStockNotFound 库存行不存在
	ErrStockNotFound = errors.New("stock record not found")
	// ErrInvalidQuantity 数量必须为正数
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrNoBinding 商品没有绑定任何库存行
	ErrNoBinding = errors.New("product has no stock binding")
)
