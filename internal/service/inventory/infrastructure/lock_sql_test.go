package infrastructure

import (
	"context"
	"strings"
	"testing"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/database/databasetest"
)

// 库存行的串行化依赖 SELECT ... FOR UPDATE，SQLite 测试库无法覆盖，这里直接检查生成的语句
func TestLockStock_SelectsForUpdate(t *testing.T) {
	for _, dialect := range []string{database.DialectMySQL, database.DialectPostgres} {
		t.Run(dialect, func(t *testing.T) {
			db, rec := databasetest.DryRun(t, dialect)
			if _, err := NewStockTx(db).LockStock(context.Background(), 42); err != nil {
				t.Fatalf("lock stock: %v", err)
			}
			queries := rec.Queries()
			if len(queries) == 0 {
				t.Fatal("no query generated")
			}
			q := queries[0]
			if !strings.Contains(q, "stock_records") || !strings.HasSuffix(strings.TrimSpace(q), "FOR UPDATE") {
				t.Fatalf("lock query must select the stock row FOR UPDATE, got %q", q)
			}
		})
	}
}
