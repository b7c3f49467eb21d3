// internal/service/order/application/sweeper.go
package application

import (
	"context"
	"sync"
	"time"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/metrics"
	"nexus-ledger/internal/service/order/domain"
	"nexus-ledger/internal/service/order/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SweepResult 一次扫描的结果，测试与运维通过 Results 订阅
type SweepResult struct {
	StartedAt time.Time
	Expired   int // 超时释放的订单数
	Finished  int // 补做释放的订单数
	Failed    int
	Skipped   bool // 未拿到集群锁
	Err       error
}

// orderExpirer 是清扫器依赖的协调器能力
type orderExpirer interface {
	ExpireOrder(ctx context.Context, id string) (bool, error)
	FinishRelease(ctx context.Context, id string) (bool, error)
}

// Sweeper 周期性释放超时未支付订单的预占，并补做取消时失败的释放
type Sweeper struct {
	orders    domain.OrderReader
	expirer   orderExpirer
	lock      port.SweepLock
	tracer    trace.Tracer
	interval  time.Duration
	batchSize int
	now       func() time.Time

	results chan SweepResult
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	started bool
	closed  bool // results 已关闭
}

// NewSweeper 创建清扫器。lock 为 nil 时不做集群互斥。
func NewSweeper(orders domain.OrderReader, coordinator *Coordinator, lock port.SweepLock, tracer trace.Tracer,
	interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		orders:    orders,
		expirer:   coordinator,
		lock:      lock,
		tracer:    tracer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		results:   make(chan SweepResult, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Results 每次扫描结束后投递一条结果，消费不及时的结果会被丢弃。清扫器停止后关闭。
func (s *Sweeper) Results() <-chan SweepResult {
	return s.results
}

// Start 实现 bootstrap.Worker，立即扫描一次，之后按周期扫描，阻塞到 ctx 结束或 Stop。
// 每个清扫器只能启动一次。
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("sweeper already started")
	}
	s.started = true
	s.mu.Unlock()
	defer close(s.done)
	defer s.closeResults()

	select {
	case <-s.stop:
		return nil
	default:
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("expiry sweeper started")
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop 实现 bootstrap.Worker，等待正在进行的扫描结束。未启动时直接关闭 Results。
func (s *Sweeper) Stop(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		s.closeResults()
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) closeResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
}

// RunOnce 执行一次扫描
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	ctx, span := s.tracer.Start(ctx, "Sweeper.RunOnce")
	defer span.End()

	res := SweepResult{StartedAt: s.now()}
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.expired", res.Expired),
			attribute.Int("sweep.finished", res.Finished),
			attribute.Int("sweep.failed", res.Failed),
			attribute.Bool("sweep.skipped", res.Skipped),
		)
		s.record(ctx, res)
	}()

	if s.lock != nil {
		release, ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			span.RecordError(err)
			res.Err = err
			return res
		}
		if !ok {
			res.Skipped = true
			return res
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to release sweeper lock")
			}
		}()
	}

	expired, err := s.orders.FindExpired(ctx, res.StartedAt, s.batchSize)
	if err != nil {
		span.RecordError(err)
		res.Err = err
		return res
	}
	for _, id := range expired {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.expirer.ExpireOrder(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			logger.Ctx(ctx).Error().Err(err).Str("order_id", id).Msg("failed to expire order, will retry next run")
		case ok:
			res.Expired++
			metrics.SweeperReleasedOrders.WithLabelValues("expired").Inc()
		}
	}

	pending, err := s.orders.FindReleasePending(ctx, s.batchSize)
	if err != nil {
		span.RecordError(err)
		res.Err = err
		return res
	}
	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.expirer.FinishRelease(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			logger.Ctx(ctx).Error().Err(err).Str("order_id", id).Msg("deferred release failed, will retry next run")
		case ok:
			res.Finished++
			metrics.SweeperReleasedOrders.WithLabelValues("release_pending").Inc()
		}
	}
	return res
}

func (s *Sweeper) record(ctx context.Context, res SweepResult) {
	result := metrics.ResultOK
	switch {
	case res.Skipped:
		result = "skipped"
	case res.Err != nil || res.Failed > 0:
		result = metrics.ResultError
	}
	metrics.SweeperRuns.WithLabelValues(result).Inc()

	if res.Expired+res.Finished+res.Failed > 0 || res.Err != nil {
		logger.Ctx(ctx).Info().
			Int("expired", res.Expired).
			Int("finished", res.Finished).
			Int("failed", res.Failed).
			AnErr("error", res.Err).
			Dur("took", s.now().Sub(res.StartedAt)).
			Msg("expiry sweep finished")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.results <- res:
	default:
	}
}
