package domain

import (
	"context"

	audit "nexus-ledger/internal/service/audit/domain"
)

// Tx 已开启事务内的优惠码台账句柄，LockPromo 加排他锁读取
type Tx interface {
	LockPromo(ctx context.Context, id uint64) (*PromoCode, error)
	SavePromo(ctx context.Context, p *PromoCode) error
	audit.Appender
}

// UnitOfWork 开启事务并在其中执行 fn
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
}

// Repository 优惠码的只读查询
type Repository interface {
	Get(ctx context.Context, id uint64) (*PromoCode, error)
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	List(ctx context.Context, page, pageSize int) ([]PromoCode, int64, error)
}

// Fact 是规则引擎评估时使用的事实数据
type Fact struct {
	UserID     string   `json:"user_id"`
	Amount     float64  `json:"amount"`
	ItemCount  int64    `json:"item_count"`
	ProductIDs []string `json:"product_ids"`
}

// RuleEngine 评估优惠码的使用条件
type RuleEngine interface {
	Evaluate(ruleDefinition string, fact Fact) (bool, error)
}
