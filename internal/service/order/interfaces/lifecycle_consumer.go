// internal/service/order/interfaces/lifecycle_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/mq"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain"
	promodomain "nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// OrderService 是接口层依赖的订单用例，由 application.Coordinator 实现
type OrderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	Checkout(ctx context.Context, req *application.CheckoutRequest) (*domain.Order, error)
	CreateDraft(ctx context.Context, req *application.CheckoutRequest) (*domain.Order, error)
	Submit(ctx context.Context, id string) (*domain.Order, error)
	Cancel(ctx context.Context, id, actor, reason string) error
	MarkPaid(ctx context.Context, id string) (*domain.Order, error)
	Ship(ctx context.Context, id string) (*domain.Order, error)
	Complete(ctx context.Context, id string) (*domain.Order, error)
	RequestResubmit(ctx context.Context, id, reason string) (*domain.Order, error)
	Resubmit(ctx context.Context, id string) (*domain.Order, error)
	Reprice(ctx context.Context, id string, req *application.RepriceRequest) (*domain.Order, error)
	ExpireOrder(ctx context.Context, id string) (bool, error)
}

// MessageReader 是 kafka.Reader 的最小抽象
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// errMalformedCommand 消息无法解析或命令未知，重试也不会成功
var errMalformedCommand = errors.New("malformed lifecycle command")

// LifecycleConsumer 消费 order-lifecycle 主题，把支付、物流等上游系统的命令转成订单状态流转。
// 业务拒绝（重复投递导致的非法流转等）只记录日志；无法解析的消息和系统错误转发到死信主题。
type LifecycleConsumer struct {
	reader   MessageReader
	orders   OrderService
	failures *mq.FailureHandler
	tracer   trace.Tracer

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewLifecycleConsumer 创建消费者
func NewLifecycleConsumer(reader MessageReader, orders OrderService, failures *mq.FailureHandler, tracer trace.Tracer) *LifecycleConsumer {
	return &LifecycleConsumer{
		reader:   reader,
		orders:   orders,
		failures: failures,
		tracer:   tracer,
		stop:     make(chan struct{}),
	}
}

// Start 实现 bootstrap.Worker，阻塞到 ctx 结束或 Stop
func (c *LifecycleConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Ctx(ctx).Info().Msg("order lifecycle consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("order lifecycle consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch lifecycle message, retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if err := c.Handle(ctx, msg); err != nil {
			c.failures.Handle(ctx, msg, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit lifecycle message")
		}
	}
}

// Stop 实现 bootstrap.Worker
func (c *LifecycleConsumer) Stop(ctx context.Context) error {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
	logger.Ctx(ctx).Info().Msg("order lifecycle consumer stopped")
	return c.reader.Close()
}

// Handle 处理一条消息。返回的错误表示应转发到死信主题。
func (c *LifecycleConsumer) Handle(parent context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "LifecycleConsumer.Handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var cmd domain.LifecycleCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		span.RecordError(err)
		return errors.Wrap(errMalformedCommand, err.Error())
	}
	if cmd.OrderID == "" {
		return errors.WithMessage(errMalformedCommand, "missing orderId")
	}

	err := c.dispatch(ctx, &cmd)
	switch {
	case err == nil:
		logger.Ctx(ctx).Info().Str("order_id", cmd.OrderID).Str("command", string(cmd.Command)).Msg("lifecycle command applied")
		return nil
	case errors.Is(err, errMalformedCommand):
		span.RecordError(err)
		return err
	case isRejection(err):
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Str("command", string(cmd.Command)).
			Msg("lifecycle command rejected")
		return nil
	default:
		span.RecordError(err)
		return err
	}
}

func (c *LifecycleConsumer) dispatch(ctx context.Context, cmd *domain.LifecycleCommand) error {
	var err error
	switch cmd.Command {
	case domain.CommandSubmit:
		_, err = c.orders.Submit(ctx, cmd.OrderID)
	case domain.CommandCancel:
		actor := cmd.Actor
		if actor == "" {
			actor = "lifecycle-consumer"
		}
		err = c.orders.Cancel(ctx, cmd.OrderID, actor, cmd.Reason)
	case domain.CommandPay:
		_, err = c.orders.MarkPaid(ctx, cmd.OrderID)
	case domain.CommandShip:
		_, err = c.orders.Ship(ctx, cmd.OrderID)
	case domain.CommandComplete:
		_, err = c.orders.Complete(ctx, cmd.OrderID)
	case domain.CommandRequestResubmit:
		_, err = c.orders.RequestResubmit(ctx, cmd.OrderID, cmd.Reason)
	case domain.CommandResubmit:
		_, err = c.orders.Resubmit(ctx, cmd.OrderID)
	case domain.CommandExpire:
		_, err = c.orders.ExpireOrder(ctx, cmd.OrderID)
	default:
		err = errors.WithMessagef(errMalformedCommand, "unknown command %q", cmd.Command)
	}
	return err
}

// isRejection 业务规则拒绝，重放同一条消息也不会成功
func isRejection(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidTransition,
		domain.ErrOrderNotFound,
		domain.ErrInvalidOrder,
		invdomain.ErrInsufficientStock,
		invdomain.ErrStockNotFound,
		invdomain.ErrNoBinding,
		promodomain.ErrCodeExhausted,
		promodomain.ErrCodeUnavailable,
		promodomain.ErrPromoNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
