package infrastructure

import (
	"context"

	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormStockRepository 实现只读查询与绑定关系读取
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository 创建一个新的 GORM 仓储实例
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// Get 按 ID 读取，不加锁
func (r *GormStockRepository) Get(ctx context.Context, id uint64) (*domain.StockRecord, error) {
	var m StockRecordModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStockNotFound
		}
		return nil, errors.Wrapf(err, "get stock %d", id)
	}
	return toDomainStock(&m), nil
}

// List 分页列出库存行
func (r *GormStockRepository) List(ctx context.Context, page, pageSize int) ([]domain.StockRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&StockRecordModel{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count stocks")
	}
	var models []StockRecordModel
	err := r.db.WithContext(ctx).Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list stocks")
	}
	out := make([]domain.StockRecord, 0, len(models))
	for i := range models {
		out = append(out, *toDomainStock(&models[i]))
	}
	return out, total, nil
}

// Create 管理端建档，数量字段按传入值写入
func (r *GormStockRepository) Create(ctx context.Context, rec *domain.StockRecord) error {
	m := ToStockModel(rec)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "create stock")
	}
	rec.ID = uint64(m.ID)
	return nil
}

// FindByProduct 读取商品的全部绑定，按优先级降序
func (r *GormStockRepository) FindByProduct(ctx context.Context, productID string) ([]domain.Binding, error) {
	var models []BindingModel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("priority DESC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find bindings for product %s", productID)
	}
	out := make([]domain.Binding, 0, len(models))
	for i := range models {
		out = append(out, toDomainBinding(&models[i]))
	}
	return out, nil
}

// CreateBinding 管理端维护绑定关系
func (r *GormStockRepository) CreateBinding(ctx context.Context, b *domain.Binding) error {
	m := &BindingModel{ProductID: b.ProductID, StockID: uint(b.StockID), Mode: b.Mode, Priority: b.Priority}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "create binding")
	}
	b.ID = uint64(m.ID)
	return nil
}
