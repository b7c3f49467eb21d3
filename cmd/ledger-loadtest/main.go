// cmd/ledger-loadtest/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus-ledger/internal/pkg/httpclient"
	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/tracing"

	"go.opentelemetry.io/otel"
)

const serviceName = "ledger-loadtest"

// main 秒杀压测：并发对同一商品下单，按比例取消，最后核对库存台账与审计是否一致
func main() {
	var cfg loadConfig
	flag.StringVar(&cfg.Target, "target", "http://localhost:8090", "ledger-service base url")
	flag.StringVar(&cfg.ProductID, "product", "", "product id to order")
	flag.Uint64Var(&cfg.StockID, "stock", 0, "stock record id to reconcile after the run (0 skips)")
	flag.StringVar(&cfg.PromoCode, "promo", "", "optional promo code")
	flag.IntVar(&cfg.Requests, "n", 200, "number of checkouts")
	flag.IntVar(&cfg.Concurrency, "c", 50, "concurrent workers")
	flag.Int64Var(&cfg.Quantity, "qty", 1, "quantity per order")
	flag.Float64Var(&cfg.CancelRatio, "cancel", 0.2, "share of created orders cancelled right away")
	jaeger := flag.String("jaeger", os.Getenv("JAEGER_ENDPOINT"), "jaeger collector endpoint")
	flag.Parse()

	logger.Init(serviceName, "info", "console")
	log := logger.Logger()
	if cfg.ProductID == "" {
		log.Fatal().Msg("-product is required")
	}
	if *jaeger != "" {
		tp, err := tracing.InitTracerProvider(serviceName, *jaeger, 1)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracer provider")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := newRunner(httpclient.NewClient(otel.Tracer(serviceName)), cfg)
	report, err := r.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load test aborted")
	}
	report.log(log)
	if report.Reconcile != nil && !report.Reconcile.Consistent {
		os.Exit(1)
	}
}
