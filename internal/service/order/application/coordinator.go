// internal/service/order/application/coordinator.go
package application

import (
	"context"
	"slices"
	"time"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/metrics"
	audit "nexus-ledger/internal/service/audit/domain"
	invapp "nexus-ledger/internal/service/inventory/application"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/domain"
	"nexus-ledger/internal/service/order/domain/port"
	promoapp "nexus-ledger/internal/service/promotion/application"
	promodomain "nexus-ledger/internal/service/promotion/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// promoSlotsPerOrder 每个订单占用一个优惠码名额
	promoSlotsPerOrder = 1
	// SweeperActor 清扫器写入审计记录时使用的操作人
	SweeperActor = "expiry-sweeper"
)

// errNotClaimable 订单已不满足清扫条件，由调用方转换为 false
var errNotClaimable = errors.New("order not claimable")

// effects 收集一个事务内产生的台账变更，提交后统一发布
type effects struct {
	stock []*invapp.Mutation
	promo []*promoapp.Mutation
}

// Coordinator 把订单状态流转映射为台账调用，并负责补偿释放
type Coordinator struct {
	uow        port.UnitOfWork
	orders     domain.OrderReader
	stock      *invapp.StockEngine
	promo      *promoapp.PromoEngine
	resolver   port.AllocationResolver
	tracer     trace.Tracer
	validate   *validator.Validate
	paymentTTL time.Duration

	now   func() time.Time
	newID func() string
}

// NewCoordinator 创建订单协调器
func NewCoordinator(uow port.UnitOfWork, orders domain.OrderReader, stock *invapp.StockEngine, promo *promoapp.PromoEngine,
	resolver port.AllocationResolver, tracer trace.Tracer, paymentTTL time.Duration) *Coordinator {
	return &Coordinator{
		uow:        uow,
		orders:     orders,
		stock:      stock,
		promo:      promo,
		resolver:   resolver,
		tracer:     tracer,
		validate:   validator.New(),
		paymentTTL: paymentTTL,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Get 查询订单
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Get")
	defer span.End()
	return c.orders.FindByID(ctx, id)
}

// Checkout 下单：在一个事务中写入订单，并按库存行 ID 升序预占库存，最后预占优惠码。
// 任一预占失败整个事务回滚，不会留下部分预占。
func (c *Coordinator) Checkout(ctx context.Context, req *CheckoutRequest) (*domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Checkout")
	defer span.End()

	o, err := c.newOrder(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("user.id", o.UserID))
	ctx = audit.WithActor(ctx, o.UserID, "checkout")

	if err := c.prepare(ctx, o); err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := c.now()
	if err := o.TransitionTo(domain.StatePendingPayment, now); err != nil {
		return nil, err
	}
	o.PaymentDueAt = now.Add(c.paymentTTL)

	var fx effects
	err = c.uow.Do(ctx, func(tx port.Tx) error {
		fx = effects{}
		if err := c.reserveAll(ctx, tx, o, &fx); err != nil {
			return err
		}
		return tx.Orders().Insert(ctx, o)
	})
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", o.ID).Msg("checkout rejected, all reservations rolled back")
		return nil, err
	}

	c.publish(ctx, &fx)
	metrics.OrderTransitions.WithLabelValues(string(domain.StateDraft), string(domain.StatePendingPayment)).Inc()
	logger.Ctx(ctx).Info().
		Str("order_id", o.ID).
		Str("amount", o.Amount.String()).
		Time("payment_due_at", o.PaymentDueAt).
		Msg("order placed, stock reserved")
	return o, nil
}

// CreateDraft 保存草稿，不影响台账
func (c *Coordinator) CreateDraft(ctx context.Context, req *CheckoutRequest) (*domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.CreateDraft")
	defer span.End()

	o, err := c.newOrder(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	err = c.uow.Do(ctx, func(tx port.Tx) error {
		return tx.Orders().Insert(ctx, o)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// Submit 提交草稿，预占逻辑与 Checkout 相同
func (c *Coordinator) Submit(ctx context.Context, id string) (*domain.Order, error) {
	draft, err := c.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != domain.StateDraft {
		return nil, errors.WithMessagef(domain.ErrInvalidTransition, "order %s is %s, not a draft", id, draft.Status)
	}
	ctx = audit.WithActor(ctx, draft.UserID, "submit")
	if err := c.prepare(ctx, draft); err != nil {
		return nil, err
	}
	return c.transition(ctx, "Submit", id, domain.StatePendingPayment, func(tx port.Tx, o *domain.Order, fx *effects) error {
		o.Allocations = draft.Allocations
		o.PromoCodeID = draft.PromoCodeID
		o.PaymentDueAt = c.now().Add(c.paymentTTL)
		if err := c.reserveAll(ctx, tx, o, fx); err != nil {
			return err
		}
		return tx.Orders().ReplaceAllocations(ctx, o)
	})
}

// Cancel 取消订单并释放全部预占。已取消的订单再次取消直接成功。
// 释放事务因锁超时等非业务原因失败时，仍然把订单标记为已取消并留下 ReleasePending，由清扫器补做释放。
func (c *Coordinator) Cancel(ctx context.Context, id, actor, reason string) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))
	ctx = audit.WithActor(ctx, actor, reason)

	var (
		fx   effects
		from domain.State
	)
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		fx = effects{}
		o, err := tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == domain.StateCancelled {
			return errNotClaimable
		}
		from = o.Status
		if err := o.TransitionTo(domain.StateCancelled, c.now()); err != nil {
			return err
		}
		o.CancelReason = reason
		if err := c.releaseAll(ctx, tx, o, &fx); err != nil {
			return err
		}
		return c.claim(ctx, tx, o, from, false)
	})
	switch {
	case err == nil:
		c.publish(ctx, &fx)
		metrics.OrderTransitions.WithLabelValues(string(from), string(domain.StateCancelled)).Inc()
		logger.Ctx(ctx).Info().Str("order_id", id).Str("from", string(from)).Str("reason", reason).Msg("order cancelled, reservations released")
		return nil
	case errors.Is(err, errNotClaimable):
		return nil
	case isBusinessError(err):
		span.RecordError(err)
		return err
	}

	span.RecordError(err)
	logger.Ctx(ctx).Warn().Err(err).Str("order_id", id).Msg("release failed, deferring to expiry sweeper")
	if ferr := c.markReleasePending(ctx, id, reason); ferr != nil {
		logger.Ctx(ctx).Error().Err(ferr).Str("order_id", id).Msg("failed to mark order release pending")
		return errors.Wrapf(err, "cancel order %s", id)
	}
	return nil
}

// markReleasePending 只做状态流转，不碰台账
func (c *Coordinator) markReleasePending(ctx context.Context, id, reason string) error {
	var from domain.State
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		o, err := tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == domain.StateCancelled {
			return errNotClaimable
		}
		from = o.Status
		if err := o.TransitionTo(domain.StateCancelled, c.now()); err != nil {
			return err
		}
		o.CancelReason = reason
		o.ReleasePending = o.HoldsReservation()
		return c.claim(ctx, tx, o, from, false)
	})
	if errors.Is(err, errNotClaimable) {
		return nil
	}
	if err == nil {
		metrics.OrderTransitions.WithLabelValues(string(from), string(domain.StateCancelled)).Inc()
	}
	return err
}

// MarkPaid 支付成功，不影响台账。只接受待支付订单，已支付的订单不会重复记账。
func (c *Coordinator) MarkPaid(ctx context.Context, id string) (*domain.Order, error) {
	return c.transitionFrom(ctx, "MarkPaid", id, []domain.State{domain.StatePendingPayment}, domain.StatePaid,
		func(_ port.Tx, o *domain.Order, _ *effects) error {
			if o.Paid() {
				return errors.WithMessagef(domain.ErrInvalidTransition, "order %s already paid", id)
			}
			o.PaidAt = c.now()
			return nil
		})
}

// Ship 发货：扣减全部库存分配并核销优惠码，预占随之转为售出
func (c *Coordinator) Ship(ctx context.Context, id string) (*domain.Order, error) {
	return c.transition(ctx, "Ship", id, domain.StateShipped, func(tx port.Tx, o *domain.Order, fx *effects) error {
		return c.deductAll(ctx, tx, o, fx)
	})
}

// Complete 确认收货
func (c *Coordinator) Complete(ctx context.Context, id string) (*domain.Order, error) {
	return c.transition(ctx, "Complete", id, domain.StateCompleted, nil)
}

// RequestResubmit 要求用户重新提交。预占保留；未支付的订单重新计时，超时后由清扫器释放，
// 已支付的订单没有期限，只能重新提交或取消。
func (c *Coordinator) RequestResubmit(ctx context.Context, id, reason string) (*domain.Order, error) {
	return c.transition(ctx, "RequestResubmit", id, domain.StateNeedResubmit, func(_ port.Tx, o *domain.Order, _ *effects) error {
		switch {
		case o.Paid():
			o.PaymentDueAt = time.Time{}
		case o.HoldsReservation():
			o.PaymentDueAt = c.now().Add(c.paymentTTL)
		}
		o.CancelReason = reason
		return nil
	})
}

// Resubmit 用户重新提交。已支付的订单回到 PAID；已释放或从未预占的订单重新预占；
// 已扣减的订单不能回到待支付。
func (c *Coordinator) Resubmit(ctx context.Context, id string) (*domain.Order, error) {
	current, err := c.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.StateNeedResubmit {
		return nil, errors.WithMessagef(domain.ErrInvalidTransition, "order %s is %s", id, current.Status)
	}
	if current.Reservation == domain.ReservationConsumed {
		return nil, errors.WithMessagef(domain.ErrInvalidTransition, "order %s already shipped", id)
	}
	ctx = audit.WithActor(ctx, current.UserID, "resubmit")
	if current.Paid() {
		return c.transitionFrom(ctx, "Resubmit", id, []domain.State{domain.StateNeedResubmit}, domain.StatePaid,
			func(_ port.Tx, o *domain.Order, _ *effects) error {
				if !o.Paid() || !o.HoldsReservation() {
					return errors.WithMessagef(domain.ErrInvalidTransition, "order %s reservation changed concurrently", id)
				}
				o.CancelReason = ""
				return nil
			})
	}
	needsReserve := !current.HoldsReservation()
	if needsReserve {
		current.Allocations = nil
		if err := c.prepare(ctx, current); err != nil {
			return nil, err
		}
	}
	return c.transition(ctx, "Resubmit", id, domain.StatePendingPayment, func(tx port.Tx, o *domain.Order, fx *effects) error {
		if o.Paid() {
			return errors.WithMessagef(domain.ErrInvalidTransition, "order %s paid concurrently", id)
		}
		o.PaymentDueAt = c.now().Add(c.paymentTTL)
		o.CancelReason = ""
		if !needsReserve {
			return nil
		}
		if o.HoldsReservation() || o.Reservation == domain.ReservationConsumed {
			return errors.WithMessagef(domain.ErrInvalidTransition, "order %s reservation changed concurrently", id)
		}
		o.Allocations = current.Allocations
		o.PromoCodeID = current.PromoCodeID
		if err := c.reserveAll(ctx, tx, o, fx); err != nil {
			return err
		}
		return tx.Orders().ReplaceAllocations(ctx, o)
	})
}

// Reprice 支付前改价，只修改订单行单价与金额
func (c *Coordinator) Reprice(ctx context.Context, id string, req *RepriceRequest) (*domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Reprice")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	if err := c.validate.Struct(req); err != nil {
		return nil, errors.WithMessage(domain.ErrInvalidOrder, err.Error())
	}
	var o *domain.Order
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		var err error
		o, err = tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.StateDraft, domain.StatePendingPayment, domain.StateNeedResubmit:
		default:
			return errors.WithMessagef(domain.ErrInvalidTransition, "order %s is %s, price is frozen", id, o.Status)
		}
		if o.Paid() {
			return errors.WithMessagef(domain.ErrInvalidTransition, "order %s already paid, price is frozen", id)
		}
		if err := applyPrices(o, req.Prices); err != nil {
			return err
		}
		o.UpdatedAt = c.now()
		if err := tx.Orders().ReplaceLines(ctx, o); err != nil {
			return err
		}
		return c.claim(ctx, tx, o, o.Status, o.ReleasePending)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", id).Str("actor", req.Actor).Str("reason", req.Reason).
		Str("amount", o.Amount.String()).Msg("order repriced")
	return o, nil
}

// ExpireOrder 清扫器调用：超过支付期限、从未支付且仍持有预占的订单转为已取消并释放。
// 订单已被用户取消、已支付或期限已被延长时返回 false。
func (c *Coordinator) ExpireOrder(ctx context.Context, id string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.ExpireOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))
	ctx = audit.WithActor(ctx, SweeperActor, "payment timeout")

	var (
		fx   effects
		from domain.State
	)
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		fx = effects{}
		o, err := tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		now := c.now()
		if (o.Status != domain.StatePendingPayment && o.Status != domain.StateNeedResubmit) ||
			o.Paid() || !o.HoldsReservation() || !o.Expired(now) {
			return errNotClaimable
		}
		from = o.Status
		if err := o.TransitionTo(domain.StateCancelled, now); err != nil {
			return err
		}
		o.CancelReason = "payment timeout"
		if err := c.releaseAll(ctx, tx, o, &fx); err != nil {
			return err
		}
		return c.claim(ctx, tx, o, from, false)
	})
	if errors.Is(err, errNotClaimable) || errors.Is(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	c.publish(ctx, &fx)
	metrics.OrderTransitions.WithLabelValues(string(from), string(domain.StateCancelled)).Inc()
	return true, nil
}

// FinishRelease 清扫器调用：补做取消时未完成的释放
func (c *Coordinator) FinishRelease(ctx context.Context, id string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.FinishRelease")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))
	ctx = audit.WithActor(ctx, SweeperActor, "deferred release")

	var fx effects
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		fx = effects{}
		o, err := tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != domain.StateCancelled || !o.ReleasePending {
			return errNotClaimable
		}
		if err := c.releaseAll(ctx, tx, o, &fx); err != nil {
			return err
		}
		o.ReleasePending = false
		o.UpdatedAt = c.now()
		return c.claim(ctx, tx, o, domain.StateCancelled, true)
	})
	if errors.Is(err, errNotClaimable) || errors.Is(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	c.publish(ctx, &fx)
	return true, nil
}

// transition 锁定订单、执行状态流转与台账动作，以条件更新提交
func (c *Coordinator) transition(ctx context.Context, op, id string, to domain.State,
	apply func(tx port.Tx, o *domain.Order, fx *effects) error) (*domain.Order, error) {
	return c.transitionFrom(ctx, op, id, nil, to, apply)
}

// transitionFrom 同 transition，allowed 非空时只接受其中的起始状态
func (c *Coordinator) transitionFrom(ctx context.Context, op, id string, allowed []domain.State, to domain.State,
	apply func(tx port.Tx, o *domain.Order, fx *effects) error) (*domain.Order, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator."+op)
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.to", string(to)))

	var (
		o    *domain.Order
		from domain.State
		fx   effects
	)
	err := c.uow.Do(ctx, func(tx port.Tx) error {
		fx = effects{}
		var err error
		o, err = tx.Orders().Lock(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		pending := o.ReleasePending
		if len(allowed) > 0 && !slices.Contains(allowed, from) {
			return errors.WithMessagef(domain.ErrInvalidTransition, "order %s: %s -> %s", id, from, to)
		}
		if err := o.TransitionTo(to, c.now()); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(tx, o, &fx); err != nil {
				return err
			}
		}
		return c.claim(ctx, tx, o, from, pending)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.publish(ctx, &fx)
	metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	logger.Ctx(ctx).Info().Str("order_id", id).Str("from", string(from)).Str("to", string(to)).Msg("order transitioned")
	return o, nil
}

// claim 条件更新订单，状态已被并发修改时放弃
func (c *Coordinator) claim(ctx context.Context, tx port.Tx, o *domain.Order, expected domain.State, expectedPending bool) error {
	ok, err := tx.Orders().UpdateState(ctx, o, expected, expectedPending)
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithMessagef(domain.ErrInvalidTransition, "order %s changed concurrently", o.ID)
	}
	return nil
}

func (c *Coordinator) reserveAll(ctx context.Context, tx port.Tx, o *domain.Order, fx *effects) error {
	for _, a := range invdomain.MergeAllocations(o.Allocations) {
		mut, err := c.stock.ReserveTx(ctx, tx.Stock(), a.StockID, a.Quantity, o.ID)
		if err != nil {
			return err
		}
		fx.stock = append(fx.stock, mut)
	}
	if o.PromoCodeID != 0 {
		mut, err := c.promo.ReserveTx(ctx, tx.Promo(), o.PromoCodeID, promoSlotsPerOrder, o.ID)
		if err != nil {
			return err
		}
		fx.promo = append(fx.promo, mut)
	}
	o.Reservation = domain.ReservationHeld
	return nil
}

// releaseAll 只释放仍持有的预占；库存行或优惠码已被删除时跳过
func (c *Coordinator) releaseAll(ctx context.Context, tx port.Tx, o *domain.Order, fx *effects) error {
	if !o.HoldsReservation() {
		return nil
	}
	for _, a := range invdomain.MergeAllocations(o.Allocations) {
		mut, err := c.stock.ReleaseReserveTx(ctx, tx.Stock(), a.StockID, a.Quantity, o.ID)
		if err != nil {
			return err
		}
		fx.stock = append(fx.stock, mut)
	}
	if o.PromoCodeID != 0 {
		mut, err := c.promo.ReleaseReserveTx(ctx, tx.Promo(), o.PromoCodeID, promoSlotsPerOrder, o.ID)
		if err != nil {
			return err
		}
		fx.promo = append(fx.promo, mut)
	}
	o.Reservation = domain.ReservationReleased
	return nil
}

func (c *Coordinator) deductAll(ctx context.Context, tx port.Tx, o *domain.Order, fx *effects) error {
	for _, a := range invdomain.MergeAllocations(o.Allocations) {
		mut, err := c.stock.DeductTx(ctx, tx.Stock(), a.StockID, a.Quantity, o.ID)
		if err != nil {
			return err
		}
		fx.stock = append(fx.stock, mut)
	}
	if o.PromoCodeID != 0 {
		mut, err := c.promo.RedeemTx(ctx, tx.Promo(), o.PromoCodeID, promoSlotsPerOrder, o.ID)
		if err != nil {
			return err
		}
		fx.promo = append(fx.promo, mut)
	}
	o.Reservation = domain.ReservationConsumed
	return nil
}

func (c *Coordinator) publish(ctx context.Context, fx *effects) {
	c.stock.Publish(ctx, fx.stock...)
	c.promo.Publish(ctx, fx.promo...)
}

func (c *Coordinator) newOrder(req *CheckoutRequest) (*domain.Order, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, errors.WithMessage(domain.ErrInvalidOrder, err.Error())
	}
	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return domain.NewOrder(c.newID(), req.UserID, lines, req.PromoCode, c.now())
}

// prepare 在事务外完成分配解析与优惠码条件校验，事务内只做加锁与变更
func (c *Coordinator) prepare(ctx context.Context, o *domain.Order) error {
	if len(o.Allocations) == 0 {
		var allocs []invdomain.Allocation
		for _, l := range o.Lines {
			resolved, err := c.resolver.Resolve(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			allocs = append(allocs, resolved...)
		}
		o.Allocations = invdomain.MergeAllocations(allocs)
	}

	o.PromoCodeID = 0
	if o.PromoCode == "" {
		return nil
	}
	p, err := c.promo.FindByCode(ctx, o.PromoCode)
	if err != nil {
		return err
	}
	amount, _ := o.Amount.Float64()
	fact := promodomain.Fact{
		UserID:     o.UserID,
		Amount:     amount,
		ItemCount:  o.ItemCount(),
		ProductIDs: o.ProductIDs(),
	}
	if err := c.promo.EvaluateCondition(ctx, p, fact); err != nil {
		return err
	}
	o.PromoCodeID = p.ID
	return nil
}

func applyPrices(o *domain.Order, prices map[string]decimal.Decimal) error {
	for productID, price := range prices {
		if price.IsNegative() {
			return errors.WithMessagef(domain.ErrInvalidOrder, "negative price for %s", productID)
		}
		found := false
		for i := range o.Lines {
			if o.Lines[i].ProductID == productID {
				o.Lines[i].UnitPrice = price
				found = true
			}
		}
		if !found {
			return errors.WithMessagef(domain.ErrInvalidOrder, "order %s has no line for product %s", o.ID, productID)
		}
	}
	o.Amount = o.LinesTotal()
	return nil
}

// isBusinessError 业务拒绝不需要补偿重试
func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrInvalidOrder)
}
