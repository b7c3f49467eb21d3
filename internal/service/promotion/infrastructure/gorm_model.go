package infrastructure

import (
	"time"

	"nexus-ledger/internal/service/promotion/domain"

	"gorm.io/gorm"
)

// PromoCodeModel 对应数据库中的 promo_codes 表
type PromoCodeModel struct {
	gorm.Model
	Code             string        `gorm:"type:varchar(64);uniqueIndex"`
	Name             string        `gorm:"type:varchar(255)"`
	TotalQuantity    int64         `gorm:"not null;default:0"`
	ReservedQuantity int64         `gorm:"not null;default:0"`
	UsedQuantity     int64         `gorm:"not null;default:0"`
	ValidFrom        *time.Time    // 为空表示不限开始时间
	ValidTo          *time.Time    // 为空表示永不过期
	Status           domain.Status `gorm:"type:varchar(16);not null"`
	Condition        string        `gorm:"column:condition_expr;type:text"`
	Version          int64         `gorm:"not null;default:0"`
}

// TableName 指定 GORM 应该使用的表名
func (PromoCodeModel) TableName() string {
	return "promo_codes"
}

// AutoMigrate 创建优惠码表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PromoCodeModel{})
}

func toDomainPromo(m *PromoCodeModel) *domain.PromoCode {
	p := &domain.PromoCode{
		ID:               uint64(m.ID),
		Code:             m.Code,
		Name:             m.Name,
		TotalQuantity:    m.TotalQuantity,
		ReservedQuantity: m.ReservedQuantity,
		UsedQuantity:     m.UsedQuantity,
		Status:           m.Status,
		Condition:        m.Condition,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.ValidFrom != nil {
		p.ValidFrom = *m.ValidFrom
	}
	if m.ValidTo != nil {
		p.ValidTo = *m.ValidTo
	}
	return p
}

func toPromoModel(p *domain.PromoCode) *PromoCodeModel {
	m := &PromoCodeModel{
		Code:             p.Code,
		Name:             p.Name,
		TotalQuantity:    p.TotalQuantity,
		ReservedQuantity: p.ReservedQuantity,
		UsedQuantity:     p.UsedQuantity,
		Status:           p.Status,
		Condition:        p.Condition,
		Version:          p.Version,
	}
	if !p.ValidFrom.IsZero() {
		from := p.ValidFrom
		m.ValidFrom = &from
	}
	if !p.ValidTo.IsZero() {
		to := p.ValidTo
		m.ValidTo = &to
	}
	m.ID = uint(p.ID)
	return m
}
