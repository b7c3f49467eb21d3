// internal/pkg/database/tx.go
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Transaction 在一个数据库事务中执行 fn。
// lockTimeout > 0 时先设置本事务的行锁等待上限；fn 返回错误或 panic 时整个事务回滚。
// 锁等待超时、死锁等错误会被翻译为 ErrLockTimeout。
func Transaction(ctx context.Context, db *gorm.DB, lockTimeout time.Duration, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, lockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
	return TranslateError(err)
}

func applyLockTimeout(tx *gorm.DB, lockTimeout time.Duration) error {
	if lockTimeout <= 0 {
		return nil
	}
	switch tx.Dialector.Name() {
	case DialectMySQL:
		// innodb_lock_wait_timeout 只支持整秒，且作用于会话；每个事务都会重新设置
		secs := int(lockTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		return tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)).Error
	case DialectPostgres:
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())).Error
	default:
		// SQLite 通过 DSN 中的 _busy_timeout 控制
		return nil
	}
}
