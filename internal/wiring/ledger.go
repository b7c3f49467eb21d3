// Package wiring 组装台账服务与清扫器共用的组件
package wiring

import (
	"context"

	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/mq"
	"nexus-ledger/internal/pkg/redis"
	"nexus-ledger/internal/pkg/wsfeed"
	auditapp "nexus-ledger/internal/service/audit/application"
	auditinfra "nexus-ledger/internal/service/audit/infrastructure"
	invapp "nexus-ledger/internal/service/inventory/application"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	invinfra "nexus-ledger/internal/service/inventory/infrastructure"
	orderapp "nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain/port"
	orderinfra "nexus-ledger/internal/service/order/infrastructure"
	promoapp "nexus-ledger/internal/service/promotion/application"
	promodomain "nexus-ledger/internal/service/promotion/domain"
	promoinfra "nexus-ledger/internal/service/promotion/infrastructure"
	"nexus-ledger/internal/service/promotion/infrastructure/rule"
	"nexus-ledger/internal/zookeeper"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const sweeperLockResource = "ledger-sweeper"

// Ledger 一个进程内的全部台账组件
type Ledger struct {
	DB    *gorm.DB
	Redis *redis.Client // 未配置时为 nil
	Hub   *wsfeed.Hub   // 关闭实时面板时为 nil

	Stock       *invapp.StockEngine
	StockQuery  *invapp.StockQueryService
	Reconciler  *invapp.Reconciler
	Promo       *promoapp.PromoEngine
	AuditQuery  *auditapp.QueryService
	Orders      *orderinfra.GormOrderReader
	Coordinator *orderapp.Coordinator

	cfg     *bootstrap.Config
	closers []func(ctx context.Context) error
}

// Build 按配置组装组件。失败时已创建的连接会被关闭。
func Build(cfg *bootstrap.Config, serviceName string) (l *Ledger, err error) {
	l = &Ledger{cfg: cfg}
	defer func() {
		if err != nil {
			_ = l.Close(context.Background())
		}
	}()
	tracer := otel.Tracer(serviceName)

	l.DB, err = database.Open(cfg.Infra.Database)
	if err != nil {
		return nil, err
	}
	l.onClose(func(context.Context) error {
		sqlDB, err := l.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if cfg.App.Env == "dev" {
		if err := Migrate(l.DB); err != nil {
			return nil, err
		}
	}

	if cfg.App.FeatureFlags.EnableLiveFeed {
		l.Hub = wsfeed.NewHub()
	}

	// 审计投递：Kafka 与实时面板都是提交后的副作用
	var sinks []auditapp.Sink
	brokers := cfg.Infra.Kafka.Brokers
	if len(brokers) > 0 {
		w := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.LedgerTopic)
		l.onClose(func(context.Context) error { return w.Close() })
		sinks = append(sinks, auditinfra.NewKafkaSink(w))
	}
	if l.Hub != nil {
		sinks = append(sinks, auditinfra.NewFeedSink(l.Hub))
	}
	dispatcher := auditapp.NewDispatcher(sinks...)

	var (
		opts  []invapp.EngineOption
		cache invdomain.SnapshotCache
	)
	if cfg.Infra.Redis.Addrs != "" {
		l.Redis, err = redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return nil, err
		}
		l.onClose(func(context.Context) error { return l.Redis.Close() })
		rc, err := invinfra.NewRedisSnapshotCache(l.Redis, cfg.Ledger.SnapshotTTL)
		if err != nil {
			return nil, err
		}
		cache = rc
		opts = append(opts, invapp.WithSnapshotCache(rc))
	}
	if cfg.Ledger.LowStock {
		if len(brokers) > 0 {
			w := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.LowStockTopic)
			l.onClose(func(context.Context) error { return w.Close() })
			opts = append(opts, invapp.WithLowStockNotifier(invinfra.NewKafkaLowStockNotifier(w)))
		}
		if l.Hub != nil {
			opts = append(opts, invapp.WithLowStockNotifier(invinfra.NewFeedLowStockNotifier(l.Hub)))
		}
	}

	lockTimeout := cfg.Infra.Database.LockTimeout
	stockRepo := invinfra.NewGormStockRepository(l.DB)
	l.Stock = invapp.NewStockEngine(invinfra.NewGormUnitOfWork(l.DB, lockTimeout), dispatcher, tracer, opts...)
	l.StockQuery = invapp.NewStockQueryService(stockRepo, cache, tracer)
	l.AuditQuery = auditapp.NewQueryService(auditinfra.NewGormStore(l.DB), tracer)
	l.Reconciler = invapp.NewReconciler(stockRepo, l.AuditQuery)

	var rules promodomain.RuleEngine
	if cfg.App.FeatureFlags.EnablePromoConditions {
		cel, err := rule.NewCELRuleEngine()
		if err != nil {
			return nil, err
		}
		rules = cel
	}
	promoRepo := promoinfra.NewGormPromoRepository(l.DB)
	l.Promo = promoapp.NewPromoEngine(promoinfra.NewGormUnitOfWork(l.DB, lockTimeout), promoRepo, rules, dispatcher, tracer)

	l.Orders = orderinfra.NewGormOrderReader(l.DB)
	l.Coordinator = orderapp.NewCoordinator(orderinfra.NewGormUnitOfWork(l.DB, lockTimeout), l.Orders,
		l.Stock, l.Promo, invapp.NewBindingResolver(stockRepo, tracer), tracer, cfg.Ledger.PaymentTTL)
	return l, nil
}

// Migrate 创建全部台账表
func Migrate(db *gorm.DB) error {
	for _, migrate := range []func(*gorm.DB) error{
		invinfra.AutoMigrate,
		promoinfra.AutoMigrate,
		auditinfra.AutoMigrate,
		orderinfra.AutoMigrate,
	} {
		if err := migrate(db); err != nil {
			return errors.Wrap(err, "auto migrate")
		}
	}
	return nil
}

// SweepLock 按 sweeper.lockBackend 创建集群互斥，none 时返回 nil
func (l *Ledger) SweepLock() (port.SweepLock, error) {
	switch l.cfg.Sweeper.LockBackend {
	case "redis":
		if l.Redis == nil {
			return nil, errors.New("sweeper lock backend redis requires infra.redis.addrs")
		}
		return orderinfra.NewRedisSweepLock(l.Redis, l.cfg.Sweeper.LockKey, l.cfg.Sweeper.LockTTL), nil
	case "zookeeper":
		zk := l.cfg.Infra.ZooKeeper
		conn, err := zookeeper.Connect(zk.Servers, zk.SessionTimeout)
		if err != nil {
			return nil, err
		}
		l.onClose(func(context.Context) error {
			conn.Close()
			return nil
		})
		lock, err := orderinfra.NewZKSweepLock(conn, sweeperLockResource)
		if err != nil {
			return nil, err
		}
		return lock, nil
	default:
		logger.Logger().Warn().Msg("sweeper lock disabled, run a single sweeper instance")
		return nil, nil
	}
}

// Sweeper 创建清扫器
func (l *Ledger) Sweeper(serviceName string) (*orderapp.Sweeper, error) {
	lock, err := l.SweepLock()
	if err != nil {
		return nil, err
	}
	return orderapp.NewSweeper(l.Orders, l.Coordinator, lock, otel.Tracer(serviceName),
		l.cfg.Sweeper.Interval, l.cfg.Sweeper.BatchSize), nil
}

// HubWorker 把实时面板的事件循环包装为 bootstrap.Worker
func (l *Ledger) HubWorker() bootstrap.Worker {
	return hubWorker{hub: l.Hub}
}

type hubWorker struct {
	hub *wsfeed.Hub
}

func (w hubWorker) Start(ctx context.Context) error {
	w.hub.Run(ctx)
	return nil
}

func (w hubWorker) Stop(context.Context) error { return nil }

func (l *Ledger) onClose(fn func(ctx context.Context) error) {
	l.closers = append(l.closers, fn)
}

// Close 按创建的逆序释放连接
func (l *Ledger) Close(ctx context.Context) error {
	var first error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}
