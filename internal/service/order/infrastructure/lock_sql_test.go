package infrastructure

import (
	"context"
	"strings"
	"testing"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/database/databasetest"
)

// 只有订单主行需要加锁，订单行与分配在锁内读取
func TestOrderLock_SelectsForUpdate(t *testing.T) {
	for _, dialect := range []string{database.DialectMySQL, database.DialectPostgres} {
		t.Run(dialect, func(t *testing.T) {
			db, rec := databasetest.DryRun(t, dialect)
			store := &gormOrderStore{tx: db}
			if _, err := store.Lock(context.Background(), "o-1"); err != nil {
				t.Fatalf("lock order: %v", err)
			}
			queries := rec.Queries()
			if len(queries) != 3 {
				t.Fatalf("expected order, lines and allocations queries, got %q", queries)
			}
			if q := strings.TrimSpace(queries[0]); !strings.Contains(q, "orders") || !strings.HasSuffix(q, "FOR UPDATE") {
				t.Fatalf("order row must be selected FOR UPDATE, got %q", q)
			}
			for _, q := range queries[1:] {
				if strings.Contains(q, "FOR UPDATE") {
					t.Fatalf("child rows are read under the order lock, got %q", q)
				}
			}
		})
	}
}
