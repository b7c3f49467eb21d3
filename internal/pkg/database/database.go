// internal/pkg/database/database.go
package database

import (
	stdlog "log"
	"strings"
	"time"

	"nexus-ledger/internal/pkg/logger"

	"github.com/pkg/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 支持的方言
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Config 数据库连接配置
type Config struct {
	Dialect         string        `yaml:"dialect" validate:"required,oneof=mysql postgres sqlite"`
	DSN             string        `yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
	// LockTimeout 单个事务等待行锁的上限，超时返回 ErrLockTimeout
	LockTimeout   time.Duration `yaml:"lockTimeout"`
	SlowThreshold time.Duration `yaml:"slowThreshold"`
	LogLevel      string        `yaml:"logLevel"`
}

// Open 建立连接、配置连接池并安装 otelgorm 插件
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Dialect) {
	case DialectMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("database: unsupported dialect %q", cfg.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(cfg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "database: open %s", cfg.Dialect)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database: get sql.DB")
	}
	if db.Dialector.Name() == DialectSQLite {
		// SQLite 只有一个写者，单连接让事务串行执行；内存库在连接关闭时会丢失，因此不设置连接寿命
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		if cfg.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		}
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		logger.Logger().Warn().Err(err).Msg("db connected but failed to install otelgorm plugin")
	}

	logger.Logger().Info().Str("dialect", cfg.Dialect).Msg("connected to database")
	return db, nil
}

// OpenSQLiteMemory 打开一个命名的内存库，供测试与本地开发使用
func OpenSQLiteMemory(name string) (*gorm.DB, error) {
	return Open(Config{
		Dialect:  DialectSQLite,
		DSN:      "file:" + name + "?mode=memory&cache=shared&_busy_timeout=5000",
		LogLevel: "silent",
	})
}

func newGormLogger(cfg Config) gormlogger.Interface {
	level := gormlogger.Warn
	switch strings.ToLower(cfg.LogLevel) {
	case "silent":
		level = gormlogger.Silent
	case "error":
		level = gormlogger.Error
	case "info":
		level = gormlogger.Info
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return gormlogger.New(stdlog.New(logger.Logger(), "", 0), gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
