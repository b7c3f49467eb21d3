package application

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/metrics"
	auditapp "nexus-ledger/internal/service/audit/application"
	audit "nexus-ledger/internal/service/audit/domain"
	"nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const ledgerLabel = string(audit.LedgerPromo)

// Mutation 已写入事务、尚未提交的优惠码变更
type Mutation struct {
	Promo   *domain.PromoCode
	Entry   audit.Entry
	Clamped bool
}

// PromoEngine 优惠码台账的唯一写入方，形态与库存引擎一致
type PromoEngine struct {
	uow        domain.UnitOfWork
	repo       domain.Repository
	rules      domain.RuleEngine
	dispatcher *auditapp.Dispatcher
	tracer     trace.Tracer
	now        func() time.Time
}

// NewPromoEngine rules 为 nil 时忽略优惠码上的使用条件
func NewPromoEngine(uow domain.UnitOfWork, repo domain.Repository, rules domain.RuleEngine,
	dispatcher *auditapp.Dispatcher, tracer trace.Tracer) *PromoEngine {
	return &PromoEngine{
		uow:        uow,
		repo:       repo,
		rules:      rules,
		dispatcher: dispatcher,
		tracer:     tracer,
		now:        time.Now,
	}
}

// FindByCode 结算时按优惠码查找
func (e *PromoEngine) FindByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	ctx, span := e.tracer.Start(ctx, "PromoEngine.FindByCode")
	defer span.End()
	span.SetAttributes(attribute.String("promo.code", code))

	p, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

// List 分页列出优惠码
func (e *PromoEngine) List(ctx context.Context, page, pageSize int) ([]domain.PromoCode, int64, error) {
	ctx, span := e.tracer.Start(ctx, "PromoEngine.List")
	defer span.End()
	return e.repo.List(ctx, page, pageSize)
}

// EvaluateCondition 校验订单是否满足优惠码的使用条件，不满足返回 ErrCodeUnavailable
func (e *PromoEngine) EvaluateCondition(ctx context.Context, p *domain.PromoCode, fact domain.Fact) error {
	if e.rules == nil || p.Condition == "" {
		return nil
	}
	_, span := e.tracer.Start(ctx, "PromoEngine.EvaluateCondition")
	defer span.End()
	span.SetAttributes(attribute.String("promo.code", p.Code), attribute.String("promo.condition", p.Condition))

	ok, err := e.rules.Evaluate(p.Condition, fact)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		return errors.WithMessagef(domain.ErrCodeUnavailable, "order does not meet the condition of promo %s", p.Code)
	}
	return nil
}

// Reserve 为订单预占一个或多个名额
func (e *PromoEngine) Reserve(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.PromoCode, error) {
	return e.run(ctx, "reserve", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.ReserveTx(ctx, tx, id, qty, orderRef)
	})
}

// ReserveTx 在调用方的事务中预占
func (e *PromoEngine) ReserveTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	p, err := tx.LockPromo(ctx, id)
	if err != nil {
		return nil, err
	}
	before := p.Snapshot()
	if err := p.Reserve(qty, e.now()); err != nil {
		return nil, err
	}
	return e.commit(ctx, tx, p, audit.KindReserve, qty, before, orderRef)
}

// ReleaseReserve 释放预占，优惠码不存在时为空操作
func (e *PromoEngine) ReleaseReserve(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.PromoCode, error) {
	return e.run(ctx, "release", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.ReleaseReserveTx(ctx, tx, id, qty, orderRef)
	})
}

// ReleaseReserveTx 在调用方的事务中释放预占，下限为 0
func (e *PromoEngine) ReleaseReserveTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	p, err := tx.LockPromo(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPromoNotFound) {
			logger.Ctx(ctx).Warn().Uint64("promo_id", id).Str("order_ref", orderRef).
				Msg("release skipped: promo code not found")
			return nil, nil
		}
		return nil, err
	}
	before := p.Snapshot()
	clamped, err := p.Release(qty)
	if err != nil {
		return nil, err
	}
	if clamped {
		logger.Ctx(ctx).Warn().
			Uint64("promo_id", id).
			Str("order_ref", orderRef).
			Int64("requested", qty).
			Int64("reserved_before", before.Reserved).
			Msg("promo release exceeds current reservation, clamped at zero")
	}
	delta := -qty
	if clamped {
		delta = p.ReservedQuantity - before.Reserved
		ctx = audit.WithClampedRelease(ctx, qty)
	}
	mut, err := e.commit(ctx, tx, p, audit.KindRelease, delta, before, orderRef)
	if err != nil {
		return nil, err
	}
	mut.Clamped = clamped
	return mut, nil
}

// Redeem 履约时核销
func (e *PromoEngine) Redeem(ctx context.Context, id uint64, qty int64, orderRef string) (*domain.PromoCode, error) {
	return e.run(ctx, "redeem", id, orderRef, func(tx domain.Tx) (*Mutation, error) {
		return e.RedeemTx(ctx, tx, id, qty, orderRef)
	})
}

// RedeemTx 在调用方的事务中核销
func (e *PromoEngine) RedeemTx(ctx context.Context, tx domain.Tx, id uint64, qty int64, orderRef string) (*Mutation, error) {
	p, err := tx.LockPromo(ctx, id)
	if err != nil {
		return nil, err
	}
	before := p.Snapshot()
	if err := p.Redeem(qty); err != nil {
		return nil, err
	}
	return e.commit(ctx, tx, p, audit.KindDeduct, -qty, before, orderRef)
}

// Publish 事务提交后投递审计事件
func (e *PromoEngine) Publish(ctx context.Context, muts ...*Mutation) {
	entries := make([]audit.Entry, 0, len(muts))
	for _, m := range muts {
		if m == nil {
			continue
		}
		if m.Clamped {
			metrics.ReleaseClamped.WithLabelValues(ledgerLabel).Inc()
		}
		entries = append(entries, m.Entry)
	}
	e.dispatcher.Dispatch(ctx, entries...)
}

func (e *PromoEngine) run(ctx context.Context, op string, id uint64, orderRef string, fn func(tx domain.Tx) (*Mutation, error)) (*domain.PromoCode, error) {
	ctx, span := e.tracer.Start(ctx, "PromoEngine."+op)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("promo.id", int64(id)),
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
	return mut.Promo, nil
}

func (e *PromoEngine) commit(ctx context.Context, tx domain.Tx, p *domain.PromoCode, kind audit.Kind, delta int64, before audit.Snapshot, orderRef string) (*Mutation, error) {
	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := tx.SavePromo(ctx, p); err != nil {
		return nil, err
	}
	actor, reason := audit.ActorFromContext(ctx)
	entry := audit.Entry{
		LedgerType:    audit.LedgerPromo,
		LedgerID:      p.ID,
		Kind:          kind,
		QuantityDelta: delta,
		Before:        before,
		After:         p.Snapshot(),
		OrderRef:      orderRef,
		Actor:         actor,
		Reason:        reason,
		CreatedAt:     e.now().UTC(),
	}
	if err := tx.Append(ctx, &entry); err != nil {
		return nil, err
	}
	return &Mutation{Promo: p, Entry: entry}, nil
}

// ResultOf 把错误归类为指标中的结果标签
func ResultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case database.IsLockTimeout(err):
		return metrics.ResultError
	case errors.Is(err, domain.ErrCodeExhausted),
		errors.Is(err, domain.ErrCodeUnavailable),
		errors.Is(err, domain.ErrPromoNotFound),
		errors.Is(err, domain.ErrInvalidQuantity):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
