// Package databasetest 数据库相关的测试辅助
package databasetest

import (
	"os"
	"strings"
	"sync"
	"testing"

	"nexus-ledger/internal/pkg/database"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Recorder 记录 DryRun 连接生成的查询语句
type Recorder struct {
	mu      sync.Mutex
	queries []string
}

// Queries 按生成顺序返回记录的语句
func (r *Recorder) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

// DryRun 打开一个只生成 SQL、不连接数据库的 GORM 实例。
// SQLite 方言会丢弃 FOR UPDATE，检查加锁语句需要使用 mysql 或 postgres。
func DryRun(t *testing.T, dialect string) (*gorm.DB, *Recorder) {
	t.Helper()
	var dialector gorm.Dialector
	switch dialect {
	case database.DialectMySQL:
		dialector = mysql.New(mysql.Config{
			DSN:                       "ledger:ledger@tcp(127.0.0.1:3306)/ledger?parseTime=true",
			SkipInitializeWithVersion: true,
		})
	case database.DialectPostgres:
		dialector = postgres.New(postgres.Config{DSN: "host=127.0.0.1 user=ledger dbname=ledger sslmode=disable"})
	default:
		t.Fatalf("dry run: unsupported dialect %q", dialect)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("dry run %s: %v", dialect, err)
	}

	rec := &Recorder{}
	err = db.Callback().Query().After("gorm:query").Register("databasetest:record", func(tx *gorm.DB) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.queries = append(rec.queries, tx.Statement.SQL.String())
	})
	if err != nil {
		t.Fatalf("register recorder: %v", err)
	}
	return db, rec
}

// Integration 打开 LEDGER_TEST_DIALECT / LEDGER_TEST_DSN 指定的真实数据库，使用多连接的连接池。
// 未设置 INTEGRATION_TESTS 时跳过测试。
func Integration(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 and LEDGER_TEST_DIALECT/LEDGER_TEST_DSN to run integration tests")
	}
	dialect, dsn := os.Getenv("LEDGER_TEST_DIALECT"), os.Getenv("LEDGER_TEST_DSN")
	if dialect != database.DialectMySQL && dialect != database.DialectPostgres {
		t.Skipf("LEDGER_TEST_DIALECT must be mysql or postgres, got %q", dialect)
	}
	db, err := database.Open(database.Config{
		Dialect:      dialect,
		DSN:          dsn,
		MaxOpenConns: 20,
		MaxIdleConns: 20,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open %s: %v", dialect, err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
