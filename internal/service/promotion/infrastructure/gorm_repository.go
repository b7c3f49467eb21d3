package infrastructure

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/database"
	auditinfra "nexus-ledger/internal/service/audit/infrastructure"
	"nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPromoRepository 优惠码只读查询的 GORM 实现
type GormPromoRepository struct {
	db *gorm.DB
}

// NewGormPromoRepository 创建一个新的 GORM 仓储实例
func NewGormPromoRepository(db *gorm.DB) *GormPromoRepository {
	return &GormPromoRepository{db: db}
}

// Get 按 ID 读取
func (r *GormPromoRepository) Get(ctx context.Context, id uint64) (*domain.PromoCode, error) {
	var m PromoCodeModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPromoNotFound
		}
		return nil, errors.Wrapf(err, "get promo %d", id)
	}
	return toDomainPromo(&m), nil
}

// FindByCode 按优惠码查找
func (r *GormPromoRepository) FindByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var m PromoCodeModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithMessagef(domain.ErrPromoNotFound, "code %s", code)
		}
		return nil, errors.Wrapf(err, "find promo %s", code)
	}
	return toDomainPromo(&m), nil
}

// List 分页列出优惠码
func (r *GormPromoRepository) List(ctx context.Context, page, pageSize int) ([]domain.PromoCode, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&PromoCodeModel{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count promos")
	}
	var models []PromoCodeModel
	err := r.db.WithContext(ctx).Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list promos")
	}
	out := make([]domain.PromoCode, 0, len(models))
	for i := range models {
		out = append(out, *toDomainPromo(&models[i]))
	}
	return out, total, nil
}

// Create 管理端建档
func (r *GormPromoRepository) Create(ctx context.Context, p *domain.PromoCode) error {
	m := toPromoModel(p)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "create promo")
	}
	p.ID = uint64(m.ID)
	return nil
}

// gormPromoTx 在一个已开启的事务上实现 domain.Tx
type gormPromoTx struct {
	tx *gorm.DB
	*auditinfra.GormStore
}

// NewPromoTx 把已开启的事务包装为优惠码台账句柄
func NewPromoTx(tx *gorm.DB) domain.Tx {
	return &gormPromoTx{tx: tx, GormStore: auditinfra.NewGormStore(tx)}
}

// LockPromo SELECT ... FOR UPDATE
func (t *gormPromoTx) LockPromo(ctx context.Context, id uint64) (*domain.PromoCode, error) {
	var m PromoCodeModel
	err := t.tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithMessagef(domain.ErrPromoNotFound, "promo %d", id)
		}
		return nil, errors.Wrapf(database.TranslateError(err), "lock promo %d", id)
	}
	return toDomainPromo(&m), nil
}

// SavePromo 写回计数字段，调用方必须已持有行锁
func (t *gormPromoTx) SavePromo(ctx context.Context, p *domain.PromoCode) error {
	res := t.tx.WithContext(ctx).Model(&PromoCodeModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"reserved_quantity": p.ReservedQuantity,
			"used_quantity":     p.UsedQuantity,
			"version":           p.Version,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return errors.Wrapf(database.TranslateError(res.Error), "save promo %d", p.ID)
	}
	if res.RowsAffected != 1 {
		return errors.WithMessagef(domain.ErrPromoNotFound, "save promo %d", p.ID)
	}
	return nil
}

// GormUnitOfWork 为独立调用开启事务
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
		return fn(NewPromoTx(tx))
	})
}
