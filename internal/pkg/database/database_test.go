package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

func TestIsLockTimeout(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql lock wait", &mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, true},
		{"mysql deadlock wrapped", fmt.Errorf("save: %w", &mysqlDriver.MySQLError{Number: 1213}), true},
		{"mysql duplicate key", &mysqlDriver.MySQLError{Number: 1062}, false},
		{"postgres lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLockTimeout(tc.err); got != tc.want {
				t.Fatalf("IsLockTimeout(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTranslateError(t *testing.T) {
	err := TranslateError(&mysqlDriver.MySQLError{Number: 1205})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	other := errors.New("other")
	if TranslateError(other) != other {
		t.Fatalf("non lock errors must be returned unchanged")
	}
}

type row struct {
	ID    uint `gorm:"primaryKey"`
	Value int
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, err := OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sentinel := errors.New("abort")
	err = Transaction(context.Background(), db, time.Second, func(tx *gorm.DB) error {
		if err := tx.Create(&row{Value: 1}).Error; err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var count int64
	db.Model(&row{}).Count(&count)
	if count != 0 {
		t.Fatalf("rows after rollback = %d, want 0", count)
	}

	err = Transaction(context.Background(), db, time.Second, func(tx *gorm.DB) error {
		return tx.Create(&row{Value: 2}).Error
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	db.Model(&row{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows after commit = %d, want 1", count)
	}
}
