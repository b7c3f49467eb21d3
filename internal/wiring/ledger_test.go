package wiring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/pkg/database"
	orderapp "nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
)

func testConfig(t *testing.T) *bootstrap.Config {
	t.Helper()
	cfg := bootstrap.DefaultConfig()
	cfg.Infra.Database.DSN = "file:" + t.Name() + "?mode=memory&cache=shared&_busy_timeout=5000"
	cfg.Infra.Database.LogLevel = "silent"
	return cfg
}

func buildLedger(t *testing.T, cfg *bootstrap.Config) *Ledger {
	t.Helper()
	l, err := Build(cfg, "wiring-test")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

const seedYAML = `
stocks:
  - sku: SKU-RED
    name: red mug
    stock: 5
    safetyStock: 1
    products:
      - productId: mug-red
promos:
  - code: BIG
    total: 2
    condition: "amount >= 20.0"
`

func TestLoadSeedAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(data.Stocks) != 1 || len(data.Stocks[0].Products) != 1 || data.Promos[0].Total != 2 {
		t.Fatalf("unexpected seed data: %+v", data)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("stocks:\n  - name: no sku\n"), 0o600)
	if _, err := LoadSeed(bad); err == nil {
		t.Fatal("seed without sku must fail validation")
	}

	db, err := database.OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	res, err := Seed(context.Background(), db, data, time.Now())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Stocks["SKU-RED"] == 0 || res.Promos["BIG"] == 0 {
		t.Fatalf("missing ids: %+v", res)
	}
}

func TestBuild_CheckoutThroughWiredEngines(t *testing.T) {
	cfg := testConfig(t)
	l := buildLedger(t, cfg)
	if l.Hub == nil || l.Redis != nil {
		t.Fatalf("default config enables the feed and no redis, got hub=%v redis=%v", l.Hub, l.Redis)
	}

	data := &SeedData{
		Stocks: []SeedStock{{SKU: "SKU-1", Stock: 3, Products: []SeedBinding{{ProductID: "p1"}}}},
		Promos: []SeedPromo{{Code: "BIG", Total: 1, Condition: "amount >= 20.0"}},
	}
	ctx := context.Background()
	seeded, err := Seed(ctx, l.DB, data, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	line := []orderapp.LineRequest{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(5)}}
	// 条件开关打开时 CEL 条件生效：金额 10 不满足 amount >= 20
	if _, err := l.Coordinator.Checkout(ctx, &orderapp.CheckoutRequest{UserID: "u", Lines: line, PromoCode: "BIG"}); err == nil {
		t.Fatal("promo condition must reject a small order")
	}
	o, err := l.Coordinator.Checkout(ctx, &orderapp.CheckoutRequest{UserID: "u", Lines: line})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if o.Status != domain.StatePendingPayment {
		t.Fatalf("unexpected status %s", o.Status)
	}

	rec, err := l.StockQuery.Get(ctx, seeded.Stocks["SKU-1"])
	if err != nil || rec.ReservedQuantity != 2 {
		t.Fatalf("expected reserved 2, got %+v, %v", rec, err)
	}
	res, err := l.Reconciler.Reconcile(ctx, seeded.Stocks["SKU-1"])
	if err != nil || !res.Consistent {
		t.Fatalf("reconcile: %+v, %v", res, err)
	}
}

func TestBuild_ConditionsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.FeatureFlags.EnablePromoConditions = false
	cfg.App.FeatureFlags.EnableLiveFeed = false
	l := buildLedger(t, cfg)
	if l.Hub != nil {
		t.Fatal("feed disabled")
	}
	ctx := context.Background()
	if _, err := Seed(ctx, l.DB, &SeedData{
		Stocks: []SeedStock{{SKU: "SKU-1", Stock: 3, Products: []SeedBinding{{ProductID: "p1"}}}},
		Promos: []SeedPromo{{Code: "BIG", Total: 1, Condition: "amount >= 20.0"}},
	}, time.Now()); err != nil {
		t.Fatal(err)
	}
	line := []orderapp.LineRequest{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}
	if _, err := l.Coordinator.Checkout(ctx, &orderapp.CheckoutRequest{UserID: "u", Lines: line, PromoCode: "BIG"}); err != nil {
		t.Fatalf("conditions are ignored when disabled: %v", err)
	}
}

func TestLedger_SweepLockBackends(t *testing.T) {
	cfg := testConfig(t)
	l := buildLedger(t, cfg)
	lock, err := l.SweepLock()
	if err != nil || lock != nil {
		t.Fatalf("none backend: %v, %v", lock, err)
	}

	cfg.Sweeper.LockBackend = "redis"
	if _, err := l.SweepLock(); err == nil {
		t.Fatal("redis backend without redis must fail")
	}

	mr := miniredis.RunT(t)
	rcfg := testConfig(t)
	rcfg.Infra.Database.DSN = "file:" + t.Name() + "-redis?mode=memory&cache=shared&_busy_timeout=5000"
	rcfg.Infra.Redis.Addrs = mr.Addr()
	rcfg.Sweeper.LockBackend = "redis"
	rl := buildLedger(t, rcfg)
	sweeper, err := rl.Sweeper("wiring-test")
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	if res := sweeper.RunOnce(context.Background()); res.Err != nil || res.Skipped {
		t.Fatalf("sweep with redis lock: %+v", res)
	}
}
