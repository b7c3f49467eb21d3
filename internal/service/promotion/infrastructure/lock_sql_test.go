package infrastructure

import (
	"context"
	"strings"
	"testing"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/database/databasetest"
)

func TestLockPromo_SelectsForUpdate(t *testing.T) {
	for _, dialect := range []string{database.DialectMySQL, database.DialectPostgres} {
		t.Run(dialect, func(t *testing.T) {
			db, rec := databasetest.DryRun(t, dialect)
			if _, err := NewPromoTx(db).LockPromo(context.Background(), 7); err != nil {
				t.Fatalf("lock promo: %v", err)
			}
			queries := rec.Queries()
			if len(queries) != 1 {
				t.Fatalf("expected one query, got %q", queries)
			}
			if q := strings.TrimSpace(queries[0]); !strings.Contains(q, "promo_codes") || !strings.HasSuffix(q, "FOR UPDATE") {
				t.Fatalf("lock query must select the promo row FOR UPDATE, got %q", q)
			}
		})
	}
}
