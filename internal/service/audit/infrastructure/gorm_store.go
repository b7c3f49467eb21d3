// internal/service/audit/infrastructure/gorm_store.go
package infrastructure

import (
	"context"
	"time"

	"nexus-ledger/internal/service/audit/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AuditEntryModel 对应 ledger_audit_entries 表，只追加
type AuditEntryModel struct {
	ID            uint64            `gorm:"primaryKey;autoIncrement"`
	LedgerType    domain.LedgerType `gorm:"type:varchar(16);index:idx_audit_ledger,priority:1"`
	LedgerID      uint64            `gorm:"index:idx_audit_ledger,priority:2"`
	Kind          domain.Kind       `gorm:"type:varchar(16)"`
	QuantityDelta int64
	Before        domain.Snapshot `gorm:"column:before_snapshot;serializer:json;type:text"`
	After         domain.Snapshot `gorm:"column:after_snapshot;serializer:json;type:text"`
	OrderRef      string          `gorm:"type:varchar(64);index"`
	Actor         string          `gorm:"type:varchar(64)"`
	Reason        string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time       `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (AuditEntryModel) TableName() string {
	return "ledger_audit_entries"
}

// GormStore 审计记录的 GORM 实现。台账的 Tx 内嵌一个绑定到同一事务的 GormStore，写入与变更一起提交。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建一个新的审计仓储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 创建审计表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AuditEntryModel{})
}

// Append 追加一条审计记录，并回填 ID 与时间
func (s *GormStore) Append(ctx context.Context, entry *domain.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m := toModel(entry)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "audit: append entry")
	}
	entry.ID = m.ID
	return nil
}

// List 分页查询审计记录，按 ID 倒序
func (s *GormStore) List(ctx context.Context, f domain.Filter) ([]domain.Entry, int64, error) {
	f = f.Normalize()

	var total int64
	err := s.db.WithContext(ctx).Model(&AuditEntryModel{}).Scopes(filterScope(f)).Count(&total).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "audit: count entries")
	}

	var models []AuditEntryModel
	err = s.db.WithContext(ctx).Scopes(filterScope(f)).Order("id DESC").Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "audit: list entries")
	}
	entries := make([]domain.Entry, 0, len(models))
	for i := range models {
		entries = append(entries, toDomain(&models[i]))
	}
	return entries, total, nil
}

// SumReservedDelta 汇总某个台账行所有审计记录对预占量的影响。
// 快照以 JSON 文本存储，因此在应用侧求和。
func (s *GormStore) SumReservedDelta(ctx context.Context, ledgerType domain.LedgerType, ledgerID uint64) (int64, error) {
	var sum int64
	var batch []AuditEntryModel
	err := s.db.WithContext(ctx).
		Select("id", "before_snapshot", "after_snapshot").
		Where("ledger_type = ? AND ledger_id = ?", ledgerType, ledgerID).
		FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				sum += batch[i].After.Reserved - batch[i].Before.Reserved
			}
			return nil
		}).Error
	if err != nil {
		return 0, errors.Wrap(err, "audit: sum reserved delta")
	}
	return sum, nil
}

func filterScope(f domain.Filter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.LedgerType != "" {
			q = q.Where("ledger_type = ?", f.LedgerType)
		}
		if f.LedgerID != 0 {
			q = q.Where("ledger_id = ?", f.LedgerID)
		}
		if f.OrderRef != "" {
			q = q.Where("order_ref = ?", f.OrderRef)
		}
		if !f.From.IsZero() {
			q = q.Where("created_at >= ?", f.From)
		}
		if !f.To.IsZero() {
			q = q.Where("created_at < ?", f.To)
		}
		return q
	}
}

func toModel(e *domain.Entry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:            e.ID,
		LedgerType:    e.LedgerType,
		LedgerID:      e.LedgerID,
		Kind:          e.Kind,
		QuantityDelta: e.QuantityDelta,
		Before:        e.Before,
		After:         e.After,
		OrderRef:      e.OrderRef,
		Actor:         e.Actor,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}

func toDomain(m *AuditEntryModel) domain.Entry {
	return domain.Entry{
		ID:            m.ID,
		LedgerType:    m.LedgerType,
		LedgerID:      m.LedgerID,
		Kind:          m.Kind,
		QuantityDelta: m.QuantityDelta,
		Before:        m.Before,
		After:         m.After,
		OrderRef:      m.OrderRef,
		Actor:         m.Actor,
		Reason:        m.Reason,
		CreatedAt:     m.CreatedAt,
	}
}
