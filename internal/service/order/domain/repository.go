// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// OrderStore 事务内的订单写操作。它位于领域层，但由基础设施层实现。
type OrderStore interface {
	// Lock 加排他锁读取订单
	Lock(ctx context.Context, id string) (*Order, error)

	// Insert 写入新订单及其订单行、分配
	Insert(ctx context.Context, o *Order) error

	// UpdateState 条件更新：只有库中的状态与 ReleasePending 仍等于期望值时才写入。
	// 返回 false 表示订单已被并发修改，调用方必须放弃本次流转。
	UpdateState(ctx context.Context, o *Order, expected State, expectedReleasePending bool) (bool, error)

	// ReplaceLines 覆盖订单行与金额（改价）
	ReplaceLines(ctx context.Context, o *Order) error

	// ReplaceAllocations 覆盖库存分配（提交草稿、重新提交）
	ReplaceAllocations(ctx context.Context, o *Order) error
}

// OrderReader 不加锁的查询，清扫器用它扫描候选订单
type OrderReader interface {
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindExpired 返回支付期限早于 now、从未支付且仍持有预占的 PENDING_PAYMENT / NEED_RESUBMIT 订单 ID
	FindExpired(ctx context.Context, now time.Time, limit int) ([]string, error)

	// FindReleasePending 返回已取消但释放尚未完成的订单 ID
	FindReleasePending(ctx context.Context, limit int) ([]string, error)
}
