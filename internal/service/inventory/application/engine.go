package application

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/metrics"
	auditapp "nexus-ledger/internal/service/audit/application"
	audit "nexus-ledger/internal/service/audit/domain"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const ledgerLabel = string(audit.LedgerStock)

// Mutation 是一次已写入事务、尚未提交的台账变更。
// 事务提交后交给 Publish 执行缓存刷新、事件投递等后续动作。
type Mutation struct {
	Record  *domain.StockRecord
	Entry   audit.Entry
	Clamped bool
}

// StockEngine 库存台账的唯一写入方。
// 每个操作都有两种形式：独立开启事务的版本，以及接收外部 domain.Tx 的 ...Tx 版本，
// 后者让订单协调器把多个台账的变更放进同一个事务。
type StockEngine struct {
	uow        domain.UnitOfWork
	dispatcher *auditapp.Dispatcher
	cache      domain.SnapshotCache
	notifiers  []domain.LowStockNotifier
	tracer     trace.Tracer
	now        func() time.Time
}

// EngineOption 可选依赖
type EngineOption func(*StockEngine)

// WithSnapshotCache 提交后刷新 Redis 快照
func WithSnapshotCache(c domain.SnapshotCache) EngineOption {
	return func(e *StockEngine) { e.cache = c }
}

// WithLowStockNotifier 追加一个低库存告警目标
func WithLowStockNotifier(n domain.LowStockNotifier) EngineOption {
	return func(e *StockEngine) {
		if n != nil {
			e.notifiers = append(e.notifiers, n)
		}
	}
}

// NewStockEngine 创建库存引擎
func NewStockEngine(uow domain.UnitOfWork, dispatcher *auditapp.Dispatcher, tracer trace.Tracer, opts ...EngineOption) *StockEngine {
	e := &StockEngine{
		uow:        uow,
		dispatcher: dispatcher,
		tracer:     tracer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve 为订单预占库存
func (e *StockEngine) Reserve(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.StockRecord, error) {
	return e.run(ctx, "reserve", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.ReserveTx(ctx, tx, id, qty, orderRef)
	})
}

// ReserveTx 在调用方的事务中预占
func (e *StockEngine) ReserveTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	rec, err := tx.LockStock(ctx, id)
	if err != nil {
		return nil, err
	}
	before := rec.Snapshot()
	if err := rec.Reserve(qty); err != nil {
		return nil, err
	}
	return e.commit(ctx, tx, rec, audit.KindReserve, qty, before, orderRef)
}

// ReleaseReserve 释放预占。库存行不存在时视为已释放，返回 nil, nil。
func (e *StockEngine) ReleaseReserve(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.StockRecord, error) {
	return e.run(ctx, "release", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.ReleaseReserveTx(ctx, tx, id, qty, orderRef)
	})
}

// ReleaseReserveTx 在调用方的事务中释放预占。
// 释放量超过当前预占时截断为 0 并记录日志，重复释放不会让预占变为负数。
func (e *StockEngine) ReleaseReserveTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	rec, err := tx.LockStock(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			logger.Ctx(ctx).Warn().Uint64("stock_id", id).Str("order_ref", orderRef).
				Msg("release skipped: stock record not found")
			return nil, nil
		}
		return nil, err
	}
	before := rec.Snapshot()
	clamped, err := rec.Release(qty)
	if err != nil {
		return nil, err
	}
	if clamped {
		logger.Ctx(ctx).Warn().
			Uint64("stock_id", id).
			Str("order_ref", orderRef).
			Int64("requested", qty).
			Int64("reserved_before", before.Reserved).
			Msg("release exceeds current reservation, clamped at zero")
	}
	delta := -qty
	if clamped {
		delta = rec.ReservedQuantity - before.Reserved
		ctx = audit.WithClampedRelease(ctx, qty)
	}
	mut, err := e.commit(ctx, tx, rec, audit.KindRelease, delta, before, orderRef)
	if err != nil {
		return nil, err
	}
	mut.Clamped = clamped
	return mut, nil
}

// Deduct 履约扣减，不可逆
func (e *StockEngine) Deduct(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.StockRecord, error) {
	return e.run(ctx, "deduct", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.DeductTx(ctx, tx, id, qty, orderRef)
	})
}

// DeductTx 在调用方的事务中扣减
func (e *StockEngine) DeductTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	rec, err := tx.LockStock(ctx, id)
	if err != nil {
		return nil, err
	}
	before := rec.Snapshot()
	if err := rec.Deduct(qty); err != nil {
		return nil, err
	}
	return e.commit(ctx, tx, rec, audit.KindDeduct, -qty, before, orderRef)
}

// AdjustByDelta 管理端补货或盘点修正，不走订单链路
func (e *StockEngine) AdjustByDelta(ctx context.Context, id uint64, stockDelta, availableDelta int64, actor, reason string) (*domain.StockRecord, error) {
	ctx = audit.WithActor(ctx, actor, reason)
	return e.run(ctx, "adjust", id, "", func(tx domain.Tx) (*Mutation, error) {
		rec, err := tx.LockStock(ctx, id)
		if err != nil {
			return nil, err
		}
		before := rec.Snapshot()
		if err := rec.Adjust(stockDelta, availableDelta); err != nil {
			return nil, err
		}
		return e.commit(ctx, tx, rec, audit.KindAdjust, stockDelta, before, "")
	})
}

// Publish 在事务提交之后执行：投递审计事件、刷新快照缓存、发送低库存告警。
// 这些动作失败只记录日志，不影响已提交的变更。
func (e *StockEngine) Publish(ctx context.Context, muts ...*Mutation) {
	entries := make([]audit.Entry, 0, len(muts))
	for _, m := range muts {
		if m == nil {
			continue
		}
		entries = append(entries, m.Entry)
		if m.Clamped {
			metrics.ReleaseClamped.WithLabelValues(ledgerLabel).Inc()
		}
		e.refreshCache(ctx, m.Record)
		e.signalLowStock(ctx, m.Record)
	}
	e.dispatcher.Dispatch(ctx, entries...)
}

// run 为独立调用开启事务、记录指标并在提交后执行 Publish
func (e *StockEngine) run(ctx context.Context, op string, id uint64, orderRef string, fn func(tx domain.Tx) (*Mutation, error)) (*domain.StockRecord, error) {
	ctx, span := e.tracer.Start(ctx, "StockEngine."+op)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("stock.id", int64(id)),
		attribute.String("order.ref", orderRef),
	)

	started := time.Now()
	var mut *Mutation
	err := e.uow.Do(ctx, func(tx domain.Tx) error {
		var err error
		mut, err = fn(tx)
		return err
	})
	metrics.ObserveLedgerOp(ledgerLabel, op, ResultOf(err), started)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if mut == nil {
		return nil, nil
	}
	e.Publish(ctx, mut)
	return mut.Record, nil
}

func (e *StockEngine) commit(ctx context.Context, tx domain.Tx, rec *domain.StockRecord, kind audit.Kind, delta int64, before audit.Snapshot, orderRef string) (*Mutation, error) {
	if err := rec.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := tx.SaveStock(ctx, rec); err != nil {
		return nil, err
	}
	actor, reason := audit.ActorFromContext(ctx)
	entry := audit.Entry{
		LedgerType:    audit.LedgerStock,
		LedgerID:      rec.ID,
		Kind:          kind,
		QuantityDelta: delta,
		Before:        before,
		After:         rec.Snapshot(),
		OrderRef:      orderRef,
		Actor:         actor,
		Reason:        reason,
		CreatedAt:     e.now().UTC(),
	}
	if err := tx.Append(ctx, &entry); err != nil {
		return nil, err
	}
	return &Mutation{Record: rec, Entry: entry}, nil
}

func (e *StockEngine) refreshCache(ctx context.Context, rec *domain.StockRecord) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(ctx, rec); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Uint64("stock_id", rec.ID).Msg("failed to refresh stock snapshot")
	}
}

func (e *StockEngine) signalLowStock(ctx context.Context, rec *domain.StockRecord) {
	if !rec.IsLow() {
		return
	}
	metrics.LowStockSignals.Inc()
	signal := rec.LowStockSignal(e.now().UTC())
	logger.Ctx(ctx).Info().
		Uint64("stock_id", rec.ID).
		Str("sku", rec.SKU).
		Int64("remaining", signal.Remaining).
		Int64("safety_stock", rec.SafetyStock).
		Msg("stock below safety threshold")
	for _, n := range e.notifiers {
		if err := n.NotifyLowStock(ctx, signal); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("stock_id", rec.ID).Msg("failed to deliver low stock signal")
		}
	}
}

// ResultOf 把错误归类为指标中的结果标签
func ResultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case database.IsLockTimeout(err):
		return metrics.ResultError
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidAdjustment),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrStockNotFound):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
