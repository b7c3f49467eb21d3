package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/pkg/httpclient"
	invinterfaces "nexus-ledger/internal/service/inventory/interfaces"
	orderinterfaces "nexus-ledger/internal/service/order/interfaces"
	"nexus-ledger/internal/wiring"

	"go.opentelemetry.io/otel/trace/noop"
)

// newLedgerServer 用真实的台账组件与 HTTP 接口启动一个测试服务
func newLedgerServer(t *testing.T, stock int64) (*httptest.Server, uint64) {
	t.Helper()
	cfg := bootstrap.DefaultConfig()
	cfg.Infra.Database.DSN = "file:" + t.Name() + "?mode=memory&cache=shared&_busy_timeout=5000"
	cfg.Infra.Database.LogLevel = "silent"
	cfg.App.FeatureFlags.EnableLiveFeed = false

	l, err := wiring.Build(cfg, "loadtest-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	seeded, err := wiring.Seed(context.Background(), l.DB, &wiring.SeedData{
		Stocks: []wiring.SeedStock{{SKU: "FLASH", Stock: stock, Products: []wiring.SeedBinding{{ProductID: "flash-item"}}}},
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	invinterfaces.NewInventoryHandler(l.Stock, l.StockQuery, l.Reconciler, l.AuditQuery, nil).RegisterRoutes(mux)
	orderinterfaces.NewOrderHandler(l.Coordinator).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, seeded.Stocks["FLASH"]
}

func TestRunner_FlashSaleNeverOversells(t *testing.T) {
	srv, stockID := newLedgerServer(t, 10)
	r := newRunner(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), loadConfig{
		Target:      srv.URL,
		ProductID:   "flash-item",
		StockID:     stockID,
		Requests:    30,
		Concurrency: 8,
		Quantity:    1,
	})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Created != 10 || rep.Rejected != 20 || rep.Failed != 0 {
		t.Fatalf("expected 10 created and 20 rejected, got %+v", rep)
	}
	if rep.Reconcile == nil || !rep.Reconcile.Consistent || rep.Reconcile.CurrentReserved != 10 {
		t.Fatalf("unexpected reconcile result %+v", rep.Reconcile)
	}
}

func TestRunner_CancelReleases(t *testing.T) {
	srv, stockID := newLedgerServer(t, 5)
	r := newRunner(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), loadConfig{
		Target:      srv.URL,
		ProductID:   "flash-item",
		StockID:     stockID,
		Requests:    5,
		Concurrency: 1,
		CancelRatio: 0.5,
	})
	r.cancelRoll = func() float64 { return 0 }

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Created != 5 || rep.Cancelled != 5 {
		t.Fatalf("expected every order created and cancelled, got %+v", rep)
	}
	if rep.Reconcile == nil || rep.Reconcile.CurrentReserved != 0 || !rep.Reconcile.Consistent {
		t.Fatalf("cancelled orders must release their reservation, got %+v", rep.Reconcile)
	}
}
