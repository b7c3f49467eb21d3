package infrastructure

import (
	"nexus-ledger/internal/service/inventory/domain"

	"gorm.io/gorm"
)

// StockRecordModel 对应数据库中的 stock_records 表
type StockRecordModel struct {
	gorm.Model
	SKU               string `gorm:"type:varchar(64);uniqueIndex"`
	Name              string `gorm:"type:varchar(255)"`
	Stock             int64  `gorm:"not null;default:0"`
	ReservedQuantity  int64  `gorm:"not null;default:0"`
	SoldQuantity      int64  `gorm:"not null;default:0"`
	AvailableQuantity int64  `gorm:"not null;default:0"`
	SafetyStock       int64  `gorm:"not null;default:0"`
	Active            bool   `gorm:"not null"`
	Version           int64  `gorm:"not null;default:0"`
}

// TableName 指定 GORM 应该使用的表名
func (StockRecordModel) TableName() string {
	return "stock_records"
}

// BindingModel 对应 product_stock_bindings 表
type BindingModel struct {
	gorm.Model
	ProductID string             `gorm:"type:varchar(64);index"`
	StockID   uint               `gorm:"index"`
	Mode      domain.BindingMode `gorm:"type:varchar(16)"`
	Priority  int
}

// TableName 指定 GORM 应该使用的表名
func (BindingModel) TableName() string {
	return "product_stock_bindings"
}

// AutoMigrate 创建库存相关的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&StockRecordModel{}, &BindingModel{})
}

func toDomainStock(m *StockRecordModel) *domain.StockRecord {
	return &domain.StockRecord{
		ID:                uint64(m.ID),
		SKU:               m.SKU,
		Name:              m.Name,
		Stock:             m.Stock,
		ReservedQuantity:  m.ReservedQuantity,
		SoldQuantity:      m.SoldQuantity,
		AvailableQuantity: m.AvailableQuantity,
		SafetyStock:       m.SafetyStock,
		Active:            m.Active,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ToStockModel 把领域对象转换为数据库模型（管理端建档与测试使用）
func ToStockModel(s *domain.StockRecord) *StockRecordModel {
	m := &StockRecordModel{
		SKU:               s.SKU,
		Name:              s.Name,
		Stock:             s.Stock,
		ReservedQuantity:  s.ReservedQuantity,
		SoldQuantity:      s.SoldQuantity,
		AvailableQuantity: s.AvailableQuantity,
		SafetyStock:       s.SafetyStock,
		Active:            s.Active,
		Version:           s.Version,
	}
	m.ID = uint(s.ID)
	return m
}

func toDomainBinding(m *BindingModel) domain.Binding {
	return domain.Binding{
		ID:        uint64(m.ID),
		ProductID: m.ProductID,
		StockID:   uint64(m.StockID),
		Mode:      m.Mode,
		Priority:  m.Priority,
	}
}
