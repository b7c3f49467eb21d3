// internal/pkg/database/errors.go
package database

import (
	stderrors "errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrLockTimeout 表示等待行锁超时或被选为死锁牺牲者，调用方可以重试
var ErrLockTimeout = errors.New("lock wait timeout")

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	pgLockNotAvailable   = "55P03"
	pgDeadlockDetected   = "40P01"
)

// IsLockTimeout 判断底层驱动错误是否为锁等待超时/死锁
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrLockTimeout) {
		return true
	}

	var mysqlErr *mysqlDriver.MySQLError
	if stderrors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlLockWaitTimeout || mysqlErr.Number == mysqlDeadlock
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected
	}

	var liteErr sqlite3.Error
	if stderrors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// TranslateError 把驱动层的锁超时错误统一为 ErrLockTimeout，其余错误原样返回
func TranslateError(err error) error {
	if err == nil || stderrors.Is(err, ErrLockTimeout) {
		return err
	}
	if IsLockTimeout(err) {
		return errors.WithMessage(ErrLockTimeout, err.Error())
	}
	return err
}
