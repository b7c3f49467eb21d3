package infrastructure

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/database"
	auditinfra "nexus-ledger/internal/service/audit/infrastructure"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStockTx 在一个已开启的 GORM 事务上实现 domain.Tx
type gormStockTx struct {
	tx *gorm.DB
	*auditinfra.GormStore
}

// NewStockTx 把一个已开启的事务包装为库存台账句柄，
// 订单协调器用它把多个台账的变更放进同一个外层事务。
func NewStockTx(tx *gorm.DB) domain.Tx {
	return &gormStockTx{tx: tx, GormStore: auditinfra.NewGormStore(tx)}
}

// LockStock 使用 SELECT ... FOR UPDATE 读取并锁定库存行
func (t *gormStockTx) LockStock(ctx context.Context, id uint64) (*domain.StockRecord, error) {
	var m StockRecordModel
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithMessagef(domain.ErrStockNotFound, "stock %d", id)
		}
		return nil, errors.Wrapf(database.TranslateError(err), "lock stock %d", id)
	}
	return toDomainStock(&m), nil
}

// SaveStock 写回数量字段。调用方必须已经通过 LockStock 持有该行的锁。
func (t *gormStockTx) SaveStock(ctx context.Context, rec *domain.StockRecord) error {
	res := t.tx.WithContext(ctx).Model(&StockRecordModel{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"stock":              rec.Stock,
			"reserved_quantity":  rec.ReservedQuantity,
			"sold_quantity":      rec.SoldQuantity,
			"available_quantity": rec.AvailableQuantity,
			"version":            rec.Version,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return errors.Wrapf(database.TranslateError(res.Error), "save stock %d", rec.ID)
	}
	if res.RowsAffected != 1 {
		return errors.WithMessagef(domain.ErrStockNotFound, "save stock %d", rec.ID)
	}
	return nil
}

// GormUnitOfWork 为独立调用的引擎操作开启事务
type GormUnitOfWork struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormUnitOfWork 创建工作单元
func NewGormUnitOfWork(db *gorm.DB, lockTimeout time.Duration) *GormUnitOfWork {
	return &GormUnitOfWork{db: db, lockTimeout: lockTimeout}
}

// Do 实现 domain.UnitOfWork
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(tx domain.Tx) error) error {
	return database.Transaction(ctx, u.db, u.lockTimeout, func(tx *gorm.DB) error {
		return fn(NewStockTx(tx))
	})
}
