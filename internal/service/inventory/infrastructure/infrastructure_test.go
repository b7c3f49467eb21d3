package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/redis"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

func newSnapshotCache(t *testing.T) (*RedisSnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	cache, err := NewRedisSnapshotCache(client, time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache, mr
}

func TestRedisSnapshotCache_VersionGuard(t *testing.T) {
	ctx := context.Background()
	cache, mr := newSnapshotCache(t)

	if _, hit, err := cache.Get(ctx, 7); err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}

	if err := cache.Put(ctx, &domain.StockRecord{ID: 7, Stock: 10, ReservedQuantity: 3, Version: 5}); err != nil {
		t.Fatalf("put v5: %v", err)
	}
	// 乱序到达的旧版本不能覆盖新版本
	if err := cache.Put(ctx, &domain.StockRecord{ID: 7, Stock: 10, ReservedQuantity: 1, Version: 4}); err != nil {
		t.Fatalf("put v4: %v", err)
	}
	rec, hit, err := cache.Get(ctx, 7)
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if rec.Version != 5 || rec.ReservedQuantity != 3 {
		t.Fatalf("stale snapshot overwrote newer one: %+v", rec)
	}

	if err := cache.Put(ctx, &domain.StockRecord{ID: 7, Stock: 10, ReservedQuantity: 4, Version: 6}); err != nil {
		t.Fatalf("put v6: %v", err)
	}
	if rec, _, _ := cache.Get(ctx, 7); rec.Version != 6 {
		t.Fatalf("expected version 6, got %+v", rec)
	}
	if ttl := mr.TTL(snapshotKey(7)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl to be set, got %v", ttl)
	}
}

func TestStockTx_LockSaveAndNotFound(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewGormStockRepository(db)
	rec := &domain.StockRecord{SKU: "SKU-TX", Stock: 8, AvailableQuantity: 8, Active: true}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	uow := NewGormUnitOfWork(db, 0)
	err = uow.Do(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockStock(ctx, rec.ID)
		if err != nil {
			return err
		}
		locked.ReservedQuantity = 2
		locked.Version++
		return tx.SaveStock(ctx, locked)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, err := repo.Get(ctx, rec.ID)
	if err != nil || got.ReservedQuantity != 2 || got.Version != 1 {
		t.Fatalf("unexpected state %+v, %v", got, err)
	}

	err = uow.Do(ctx, func(tx domain.Tx) error {
		_, err := tx.LockStock(ctx, 12345)
		return err
	})
	if !errors.Is(err, domain.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestFindByProduct_OrdersByPriority(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewGormStockRepository(db)
	for _, b := range []domain.Binding{
		{ProductID: "P1", StockID: 1, Mode: domain.BindingRandom, Priority: 1},
		{ProductID: "P1", StockID: 2, Mode: domain.BindingFixed, Priority: 9},
		{ProductID: "P2", StockID: 3, Mode: domain.BindingFixed, Priority: 5},
	} {
		b := b
		if err := repo.CreateBinding(ctx, &b); err != nil {
			t.Fatalf("create binding: %v", err)
		}
	}
	got, err := repo.FindByProduct(ctx, "P1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got[0].StockID != 2 || got[1].StockID != 1 {
		t.Fatalf("unexpected bindings: %+v", got)
	}
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type recordingHub struct {
	topics []string
}

func (h *recordingHub) Broadcast(topic string, _ interface{}) {
	h.topics = append(h.topics, topic)
}

func TestLowStockNotifiers(t *testing.T) {
	ctx := context.Background()
	signal := domain.LowStockSignal{StockID: 42, SKU: "SKU-42", Stock: 3, SafetyStock: 5, Remaining: 3}

	w := &recordingWriter{}
	if err := NewKafkaLowStockNotifier(w).NotifyLowStock(ctx, signal); err != nil {
		t.Fatalf("kafka notify: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "42" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	var decoded domain.LowStockSignal
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil || decoded.SKU != "SKU-42" {
		t.Fatalf("unexpected payload %s, %v", w.msgs[0].Value, err)
	}

	hub := &recordingHub{}
	if err := NewFeedLowStockNotifier(hub).NotifyLowStock(ctx, signal); err != nil {
		t.Fatalf("feed notify: %v", err)
	}
	if len(hub.topics) != 1 || hub.topics[0] != FeedTopicLowStock {
		t.Fatalf("unexpected broadcasts: %v", hub.topics)
	}
}
