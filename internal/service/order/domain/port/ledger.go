package port

import (
	"context"

	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/domain"
	promodomain "nexus-ledger/internal/service/promotion/domain"
)

// Tx 一个外层事务内可用的全部台账句柄。
// 订单行、库存行、优惠码行的锁都在同一个事务中获取，任一步失败整体回滚。
type Tx interface {
	Orders() domain.OrderStore
	Stock() invdomain.Tx
	Promo() promodomain.Tx
}

// UnitOfWork 开启外层事务
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
}

// AllocationResolver 把订单行映射到具体的库存行（分配策略）
type AllocationResolver interface {
	Resolve(ctx context.Context, productID string, qty int64) ([]invdomain.Allocation, error)
}
