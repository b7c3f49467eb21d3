// internal/service/audit/domain/entry.go
package domain

import (
	"context"
	"strconv"
	"time"
)

// LedgerType 标识审计记录所属的台账
type LedgerType string

const (
	LedgerStock LedgerType = "stock"
	LedgerPromo LedgerType = "promo"
)

// Kind 台账变更的类型
type Kind string

const (
	KindReserve Kind = "reserve"
	KindRelease Kind = "release"
	KindDeduct  Kind = "deduct"
	KindAdjust  Kind = "adjust"
)

// Snapshot 是台账行在变更前后的数量快照。
// 库存台账：Total=在库数量，Available=可售上限，Reserved=预占，Consumed=累计售出；
// 优惠码台账：Total=总量（0 为不限量），Available 恒为 0，Reserved=预占，Consumed=已核销。
type Snapshot struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Consumed  int64 `json:"consumed"`
}

// Entry 一条只追加的审计记录，与它描述的变更在同一个事务中写入
type Entry struct {
	ID            uint64     `json:"id"`
	LedgerType    LedgerType `json:"ledgerType"`
	LedgerID      uint64     `json:"ledgerId"`
	Kind          Kind       `json:"kind"`
	QuantityDelta int64      `json:"quantityDelta"`
	Before        Snapshot   `json:"before"`
	After         Snapshot   `json:"after"`
	OrderRef      string     `json:"orderRef,omitempty"`
	Actor         string     `json:"actor"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Filter 审计查询条件，零值字段不参与过滤
type Filter struct {
	LedgerType LedgerType
	LedgerID   uint64
	OrderRef   string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// Normalize 补齐分页参数
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 500 {
		f.PageSize = 50
	}
	return f
}

// Appender 在当前事务中追加审计记录
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
}

// Repository 审计记录的只读查询
type Repository interface {
	List(ctx context.Context, f Filter) ([]Entry, int64, error)
	SumReservedDelta(ctx context.Context, ledgerType LedgerType, ledgerID uint64) (int64, error)
}

type actorKey struct{}

type actorInfo struct {
	actor  string
	reason string
}

// SystemActor 未指定操作人时写入审计记录的默认值
const SystemActor = "system"

// WithActor 把操作人与原因放入 ctx，台账引擎写审计记录时读取
func WithActor(ctx context.Context, actor, reason string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorInfo{actor: actor, reason: reason})
}

// ActorFromContext 读取操作人与原因
func ActorFromContext(ctx context.Context) (actor, reason string) {
	if info, ok := ctx.Value(actorKey{}).(actorInfo); ok {
		actor, reason = info.actor, info.reason
	}
	if actor == "" {
		actor = SystemActor
	}
	return actor, reason
}

// WithClampedRelease 在原因中追加被截断释放的请求量，审计记录的 QuantityDelta 只记实际生效的部分
func WithClampedRelease(ctx context.Context, requested int64) context.Context {
	actor, reason := ActorFromContext(ctx)
	note := "release clamped, requested " + strconv.FormatInt(requested, 10)
	if reason != "" {
		note = reason + "; " + note
	}
	return WithActor(ctx, actor, note)
}
