package infrastructure

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/database"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	invinfra "nexus-ledger/internal/service/inventory/infrastructure"
	"nexus-ledger/internal/service/order/domain"
	"nexus-ledger/internal/service/order/domain/port"
	promodomain "nexus-ledger/internal/service/promotion/domain"
	promoinfra "nexus-ledger/internal/service/promotion/infrastructure"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderReader 不加锁的订单查询
type GormOrderReader struct {
	db *gorm.DB
}

// NewGormOrderReader 创建查询仓储
func NewGormOrderReader(db *gorm.DB) *GormOrderReader {
	return &GormOrderReader{db: db}
}

// FindByID 读取订单及其订单行、分配
func (r *GormOrderReader) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Preload("Allocations").Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithMessagef(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return toDomainOrder(&m), nil
}

// FindExpired 实现 domain.OrderReader
func (r *GormOrderReader) FindExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("status IN ?", []domain.State{domain.StatePendingPayment, domain.StateNeedResubmit}).
		Where("reservation = ?", domain.ReservationHeld).
		Where("paid_at IS NULL").
		Where("payment_due_at IS NOT NULL AND payment_due_at < ?", now).
		Order("payment_due_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "find expired orders")
	}
	return ids, nil
}

// FindReleasePending 实现 domain.OrderReader
func (r *GormOrderReader) FindReleasePending(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("status = ? AND release_pending = ?", domain.StateCancelled, true).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "find release-pending orders")
	}
	return ids, nil
}

// gormOrderStore 在已开启的事务上实现 domain.OrderStore
type gormOrderStore struct {
	tx *gorm.DB
}

// Lock SELECT ... FOR UPDATE 锁定订单行，再读取订单行与分配
func (s *gormOrderStore) Lock(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := s.tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithMessagef(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, errors.Wrapf(database.TranslateError(err), "lock order %s", id)
	}
	if err := s.tx.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&m.Lines).Error; err != nil {
		return nil, errors.Wrapf(err, "load lines of order %s", id)
	}
	if err := s.tx.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&m.Allocations).Error; err != nil {
		return nil, errors.Wrapf(err, "load allocations of order %s", id)
	}
	return toDomainOrder(&m), nil
}

// Insert 写入订单，GORM 会一并写入关联的订单行与分配
func (s *gormOrderStore) Insert(ctx context.Context, o *domain.Order) error {
	if err := s.tx.WithContext(ctx).Create(toOrderModel(o)).Error; err != nil {
		return errors.Wrapf(database.TranslateError(err), "insert order %s", o.ID)
	}
	return nil
}

// UpdateState 条件更新，见 domain.OrderStore
func (s *gormOrderStore) UpdateState(ctx context.Context, o *domain.Order, expected domain.State, expectedReleasePending bool) (bool, error) {
	res := s.tx.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ? AND release_pending = ?", o.ID, expected, expectedReleasePending).
		Updates(map[string]interface{}{
			"status":          o.Status,
			"reservation":     o.Reservation,
			"release_pending": o.ReleasePending,
			"promo_code_id":   o.PromoCodeID,
			"amount":          o.Amount,
			"payment_due_at":  dueAt(o),
			"paid_at":         paidAt(o),
			"cancel_reason":   o.CancelReason,
			"updated_at":      o.UpdatedAt,
		})
	if res.Error != nil {
		return false, errors.Wrapf(database.TranslateError(res.Error), "update order %s", o.ID)
	}
	return res.RowsAffected == 1, nil
}

// ReplaceLines 覆盖订单行
func (s *gormOrderStore) ReplaceLines(ctx context.Context, o *domain.Order) error {
	db := s.tx.WithContext(ctx)
	if err := db.Where("order_id = ?", o.ID).Delete(&OrderLineModel{}).Error; err != nil {
		return errors.Wrapf(err, "delete lines of order %s", o.ID)
	}
	lines := lineModels(o)
	if len(lines) == 0 {
		return nil
	}
	return errors.Wrapf(db.Create(&lines).Error, "insert lines of order %s", o.ID)
}

// ReplaceAllocations 覆盖库存分配
func (s *gormOrderStore) ReplaceAllocations(ctx context.Context, o *domain.Order) error {
	db := s.tx.WithContext(ctx)
	if err := db.Where("order_id = ?", o.ID).Delete(&OrderAllocationModel{}).Error; err != nil {
		return errors.Wrapf(err, "delete allocations of order %s", o.ID)
	}
	allocs := allocationModels(o)
	if len(allocs) == 0 {
		return nil
	}
	return errors.Wrapf(db.Create(&allocs).Error, "insert allocations of order %s", o.ID)
}

// ledgerTx 一个外层事务上的全部台账句柄
type ledgerTx struct {
	orders *gormOrderStore
	stock  invdomain.Tx
	promo  promodomain.Tx
}

func (t *ledgerTx) Orders() domain.OrderStore { return t.orders }
func (t *ledgerTx) Stock() invdomain.Tx       { return t.stock }
func (t *ledgerTx) Promo() promodomain.Tx     { return t.promo }

// GormUnitOfWork 订单、库存、优惠码共享同一个数据库事务
type GormUnitOfWork struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormUnitOfWork 创建工作单元
func NewGormUnitOfWork(db *gorm.DB, lockTimeout time.Duration) *GormUnitOfWork {
	return &GormUnitOfWork{db: db, lockTimeout: lockTimeout}
}

// Do 实现 port.UnitOfWork
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(tx port.Tx) error) error {
	return database.Transaction(ctx, u.db, u.lockTimeout, func(tx *gorm.DB) error {
		return fn(&ledgerTx{
			orders: &gormOrderStore{tx: tx},
			stock:  invinfra.NewStockTx(tx),
			promo:  promoinfra.NewPromoTx(tx),
		})
	})
}
