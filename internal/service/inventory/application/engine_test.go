package application

import (
	"context"
	"strings"
	"sync"
	"testing"

	"nexus-ledger/internal/pkg/database"
	auditapp "nexus-ledger/internal/service/audit/application"
	audit "nexus-ledger/internal/service/audit/domain"
	auditinfra "nexus-ledger/internal/service/audit/infrastructure"
	"nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/inventory/infrastructure"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	engine *StockEngine
	repo   *infrastructure.GormStockRepository
	audit  *auditinfra.GormStore
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	db, err := database.OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		t.Fatalf("migrate stock: %v", err)
	}
	if err := auditinfra.AutoMigrate(db); err != nil {
		t.Fatalf("migrate audit: %v", err)
	}
	tracer := noop.NewTracerProvider().Tracer("test")
	return &fixture{
		db:     db,
		engine: NewStockEngine(infrastructure.NewGormUnitOfWork(db, 0), auditapp.NewDispatcher(), tracer, opts...),
		repo:   infrastructure.NewGormStockRepository(db),
		audit:  auditinfra.NewGormStore(db),
	}
}

func (f *fixture) seed(t *testing.T, rec domain.StockRecord) uint64 {
	t.Helper()
	rec.Active = true
	if err := f.repo.Create(context.Background(), &rec); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return rec.ID
}

func (f *fixture) load(t *testing.T, id uint64) *domain.StockRecord {
	t.Helper()
	rec, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get stock %d: %v", id, err)
	}
	return rec
}

func TestReserve_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.StockRecord{SKU: "SKU-1", Stock: 10, AvailableQuantity: 10})

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Reserve(context.Background(), id, 1, "ORD")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || rejected != 40 {
		t.Fatalf("expected 10 successes and 40 rejections, got %d/%d", ok, rejected)
	}
	if rec := f.load(t, id); rec.ReservedQuantity != 10 {
		t.Fatalf("expected reserved 10, got %d", rec.ReservedQuantity)
	}
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.StockRecord{SKU: "SKU-2", Stock: 10, AvailableQuantity: 10, ReservedQuantity: 2})

	if _, err := f.engine.Reserve(ctx, id, 3, "ORD1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := f.engine.ReleaseReserve(ctx, id, 3, "ORD1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if rec := f.load(t, id); rec.ReservedQuantity != 2 {
		t.Fatalf("expected reserved back to 2, got %d", rec.ReservedQuantity)
	}

	// 重复释放截断为 0，不会变成负数
	for i := 0; i < 2; i++ {
		if _, err := f.engine.ReleaseReserve(ctx, id, 3, "ORD1"); err != nil {
			t.Fatalf("duplicate release: %v", err)
		}
	}
	rec := f.load(t, id)
	if rec.ReservedQuantity != 0 {
		t.Fatalf("expected reserved clamped at 0, got %d", rec.ReservedQuantity)
	}
	if err := rec.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseReserve_ClampedAuditRecordsAppliedDelta(t *testing.T) {
	f := newFixture(t)
	ctx := audit.WithActor(context.Background(), "ops", "manual release")
	id := f.seed(t, domain.StockRecord{SKU: "SKU-CLAMP", Stock: 10, AvailableQuantity: 10, ReservedQuantity: 2})

	for i := 0; i < 2; i++ {
		if _, err := f.engine.ReleaseReserve(ctx, id, 5, "ORD"); err != nil {
			t.Fatalf("release #%d: %v", i, err)
		}
	}
	items, _, err := f.audit.List(ctx, audit.Filter{LedgerType: audit.LedgerStock, LedgerID: id})
	if err != nil || len(items) != 2 {
		t.Fatalf("expected two release entries, got %d, %v", len(items), err)
	}
	var sum int64
	for _, e := range items {
		sum += e.QuantityDelta
		if e.QuantityDelta != e.After.Reserved-e.Before.Reserved {
			t.Fatalf("delta %d does not match the reserved change %d -> %d", e.QuantityDelta, e.Before.Reserved, e.After.Reserved)
		}
		if !strings.HasPrefix(e.Reason, "manual release;") || !strings.Contains(e.Reason, "requested 5") {
			t.Fatalf("clamped release must keep the requested quantity in the reason, got %q", e.Reason)
		}
	}
	if sum != -2 {
		t.Fatalf("summed release deltas must equal the reserved change, got %d", sum)
	}
}

func TestReleaseReserve_MissingRowIsNoop(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.ReleaseReserve(context.Background(), 999, 1, "ORD")
	if err != nil || rec != nil {
		t.Fatalf("expected silent no-op, got %+v, %v", rec, err)
	}
}

func TestReserve_MissingRowFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reserve(context.Background(), 999, 1, "ORD")
	if !errors.Is(err, domain.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestDeduct_Finality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.StockRecord{SKU: "SKU-3", Stock: 5, AvailableQuantity: 5})

	if _, err := f.engine.Reserve(ctx, id, 5, "ORD2"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	rec, err := f.engine.Deduct(ctx, id, 5, "ORD2")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if rec.Stock != 0 || rec.SoldQuantity != 5 || rec.ReservedQuantity != 0 || rec.AvailableQuantity != 0 {
		t.Fatalf("unexpected state after deduct: %+v", rec)
	}
	if _, err := f.engine.Deduct(ctx, id, 1, "ORD2"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := f.load(t, id); got.SoldQuantity != 5 || got.Version != rec.Version {
		t.Fatalf("failed deduct must not mutate: %+v", got)
	}
}

func TestAdjustByDelta_Rejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.StockRecord{SKU: "SKU-4", Stock: 10, AvailableQuantity: 10})

	_, err := f.engine.AdjustByDelta(ctx, id, -100, 0, "admin", "stocktake")
	if !errors.Is(err, domain.ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment, got %v", err)
	}
	if rec := f.load(t, id); rec.Stock != 10 || rec.AvailableQuantity != 10 || rec.Version != 0 {
		t.Fatalf("rejected adjustment must leave record unchanged: %+v", rec)
	}
	_, total, err := f.audit.List(ctx, audit.Filter{LedgerType: audit.LedgerStock, LedgerID: id})
	if err != nil || total != 0 {
		t.Fatalf("rejected adjustment must not be audited, total=%d err=%v", total, err)
	}

	rec, err := f.engine.AdjustByDelta(ctx, id, 5, 5, "admin", "restock")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if rec.Stock != 15 || rec.AvailableQuantity != 15 {
		t.Fatalf("unexpected state after restock: %+v", rec)
	}
	items, _, err := f.audit.List(ctx, audit.Filter{LedgerType: audit.LedgerStock, LedgerID: id})
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one audit entry, got %d, %v", len(items), err)
	}
	if items[0].Actor != "admin" || items[0].Reason != "restock" || items[0].Kind != audit.KindAdjust {
		t.Fatalf("unexpected audit entry: %+v", items[0])
	}
}

func TestAudit_CompletenessAndReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seed(t, domain.StockRecord{SKU: "SKU-5", Stock: 20, AvailableQuantity: 20})

	steps := []func() (*domain.StockRecord, error){
		func() (*domain.StockRecord, error) { return f.engine.Reserve(ctx, id, 4, "A") },
		func() (*domain.StockRecord, error) { return f.engine.Reserve(ctx, id, 3, "B") },
		func() (*domain.StockRecord, error) { return f.engine.ReleaseReserve(ctx, id, 3, "B") },
		func() (*domain.StockRecord, error) { return f.engine.Deduct(ctx, id, 4, "A") },
		func() (*domain.StockRecord, error) { return f.engine.Reserve(ctx, id, 2, "C") },
		func() (*domain.StockRecord, error) { return f.engine.ReleaseReserve(ctx, id, 5, "C") },
		func() (*domain.StockRecord, error) { return f.engine.AdjustByDelta(ctx, id, 2, 0, "admin", "found") },
	}
	var after []audit.Snapshot
	for i, step := range steps {
		rec, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		after = append(after, rec.Snapshot())
	}

	items, total, err := f.audit.List(ctx, audit.Filter{LedgerType: audit.LedgerStock, LedgerID: id})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if int(total) != len(steps) {
		t.Fatalf("expected %d audit entries, got %d", len(steps), total)
	}
	// List 按 ID 倒序返回
	for i, e := range items {
		want := after[len(after)-1-i]
		if e.After != want {
			t.Fatalf("entry %d after snapshot %+v, ledger observed %+v", e.ID, e.After, want)
		}
		if i+1 < len(items) && items[i+1].After != e.Before {
			t.Fatalf("entry %d before snapshot does not chain to previous entry", e.ID)
		}
	}

	sum, err := f.audit.SumReservedDelta(ctx, audit.LedgerStock, id)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if rec := f.load(t, id); sum != rec.ReservedQuantity {
		t.Fatalf("audit reserved sum %d != ledger reserved %d", sum, rec.ReservedQuantity)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []domain.LowStockSignal
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, s domain.LowStockSignal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, s)
	return nil
}

type memoryCache struct {
	mu   sync.Mutex
	recs map[uint64]domain.StockRecord
}

func (c *memoryCache) Get(_ context.Context, id uint64) (*domain.StockRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.recs[id]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *memoryCache) Put(_ context.Context, rec *domain.StockRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.recs[rec.ID]; ok && cur.Version >= rec.Version {
		return nil
	}
	c.recs[rec.ID] = *rec
	return nil
}

func TestPublish_LowStockAndCacheRefresh(t *testing.T) {
	notifier := &recordingNotifier{}
	cache := &memoryCache{recs: map[uint64]domain.StockRecord{}}
	f := newFixture(t, WithLowStockNotifier(notifier), WithSnapshotCache(cache))
	ctx := context.Background()
	id := f.seed(t, domain.StockRecord{SKU: "SKU-6", Stock: 10, AvailableQuantity: 10, SafetyStock: 5})

	if _, err := f.engine.Reserve(ctx, id, 4, "A"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(notifier.signals) != 0 {
		t.Fatalf("no signal expected above threshold, got %+v", notifier.signals)
	}
	if _, err := f.engine.Reserve(ctx, id, 2, "B"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(notifier.signals) != 1 || notifier.signals[0].StockID != id || notifier.signals[0].Remaining != 4 {
		t.Fatalf("expected one low stock signal, got %+v", notifier.signals)
	}

	query := NewStockQueryService(f.repo, cache, noop.NewTracerProvider().Tracer("test"))
	rec, err := query.Get(ctx, id)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.ReservedQuantity != 6 || rec.Version != 2 {
		t.Fatalf("cache should hold the latest snapshot, got %+v", rec)
	}
}
