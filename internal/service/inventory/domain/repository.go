// internal/service/inventory/domain/repository.go
package domain

import (
	"context"

	audit "nexus-ledger/internal/service/audit/domain"
)

// Tx 是一个已开启事务内的库存台账句柄。
// LockStock 在读取前对行加排他锁，读-改-写必须在同一个 Tx 内完成。
type Tx interface {
	LockStock(ctx context.Context, id uint64) (*StockRecord, error)
	SaveStock(ctx context.Context, rec *StockRecord) error
	audit.Appender
}

// UnitOfWork 开启事务并在其中执行 fn；fn 返回错误时整体回滚
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
}

// StockReader 不加锁的只读查询，用于展示
type StockReader interface {
	Get(ctx context.Context, id uint64) (*StockRecord, error)
	List(ctx context.Context, page, pageSize int) ([]StockRecord, int64, error)
}

// BindingRepository 读取商品与库存行的绑定关系
type BindingRepository interface {
	FindByProduct(ctx context.Context, productID string) ([]Binding, error)
}

// SnapshotCache 库存快照缓存，只用于读，写入按版本号防止旧值覆盖新值
type SnapshotCache interface {
	Get(ctx context.Context, id uint64) (*StockRecord, bool, error)
	Put(ctx context.Context, rec *StockRecord) error
}

// LowStockNotifier 低库存告警的投递目标
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, signal LowStockSignal) error
}
