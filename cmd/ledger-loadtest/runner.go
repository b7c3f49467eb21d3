package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"nexus-ledger/internal/pkg/httpclient"
	auditapp "nexus-ledger/internal/service/audit/application"
	orderapp "nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type loadConfig struct {
	Target      string
	ProductID   string
	StockID     uint64
	PromoCode   string
	Requests    int
	Concurrency int
	Quantity    int64
	CancelRatio float64
}

// report 压测结果。Rejected 为 409（库存或优惠码不足），Busy 为 503（锁超时）。
type report struct {
	Created   int64
	Cancelled int64
	Rejected  int64
	Busy      int64
	Failed    int64
	Elapsed   time.Duration
	Reconcile *auditapp.ReconcileResult
}

func (r *report) log(l *zerolog.Logger) {
	ev := l.Info().
		Int64("created", r.Created).
		Int64("cancelled", r.Cancelled).
		Int64("rejected", r.Rejected).
		Int64("busy", r.Busy).
		Int64("failed", r.Failed).
		Dur("elapsed", r.Elapsed)
	if r.Reconcile != nil {
		ev = ev.Int64("audit_reserved", r.Reconcile.AuditReservedSum).
			Int64("current_reserved", r.Reconcile.CurrentReserved).
			Bool("consistent", r.Reconcile.Consistent)
	}
	ev.Msg("load test finished")
}

type runner struct {
	client *httpclient.Client
	cfg    loadConfig
	// 测试中替换为确定的取值
	cancelRoll func() float64
}

func newRunner(client *httpclient.Client, cfg loadConfig) *runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	return &runner{client: client, cfg: cfg, cancelRoll: rand.Float64}
}

// Run 发出全部请求，单个请求失败只计数，不会中止压测
func (r *runner) Run(ctx context.Context) (*report, error) {
	var (
		rep                                          report
		created, cancelled, rejected, busy, failures atomic.Int64
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := 0; i < r.cfg.Requests; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := r.checkout(gctx)
			switch httpclient.StatusCode(err) {
			case 0:
				if err != nil {
					failures.Add(1)
					return nil
				}
			case http.StatusConflict:
				rejected.Add(1)
				return nil
			case http.StatusServiceUnavailable:
				busy.Add(1)
				return nil
			default:
				failures.Add(1)
				return nil
			}
			created.Add(1)
			if r.cancelRoll() < r.cfg.CancelRatio {
				if err := r.cancel(gctx, o.ID); err != nil {
					failures.Add(1)
					return nil
				}
				cancelled.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep.Created, rep.Cancelled = created.Load(), cancelled.Load()
	rep.Rejected, rep.Busy, rep.Failed = rejected.Load(), busy.Load(), failures.Load()
	rep.Elapsed = time.Since(start)

	if r.cfg.StockID != 0 {
		var res auditapp.ReconcileResult
		url := fmt.Sprintf("%s/stocks/%d/reconcile", r.cfg.Target, r.cfg.StockID)
		if err := r.client.GetJSON(ctx, url, &res); err != nil {
			return nil, err
		}
		rep.Reconcile = &res
	}
	return &rep, nil
}

func (r *runner) checkout(ctx context.Context) (*domain.Order, error) {
	req := orderapp.CheckoutRequest{
		UserID:    "load-" + uuid.NewString()[:8],
		PromoCode: r.cfg.PromoCode,
		Lines: []orderapp.LineRequest{{
			ProductID: r.cfg.ProductID,
			Quantity:  r.cfg.Quantity,
			UnitPrice: decimal.NewFromInt(1),
		}},
	}
	var o domain.Order
	if err := r.client.PostJSON(ctx, r.cfg.Target+"/orders", req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *runner) cancel(ctx context.Context, id string) error {
	body := map[string]string{"actor": serviceName, "reason": "load test cancel"}
	return r.client.PostJSON(ctx, r.cfg.Target+"/orders/"+id+"/cancel", body, nil)
}
