// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 服务的全部配置。加载顺序：默认值 → YAML 文件 → 环境变量 → Nacos 远程配置。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Infra   InfraConfig   `yaml:"infra"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Sweeper SweeperConfig `yaml:"sweeper"`
}

type AppConfig struct {
	Env          string   `yaml:"env" validate:"oneof=dev test prod"`
	Port         int      `yaml:"port" validate:"gte=0,lte=65535"`
	LogLevel     string   `yaml:"logLevel"`
	LogFormat    string   `yaml:"logFormat" validate:"omitempty,oneof=json console"`
	CORSOrigins  []string `yaml:"corsOrigins"`
	FeatureFlags struct {
		EnablePromoConditions bool `yaml:"enablePromoConditions"`
		EnableLiveFeed        bool `yaml:"enableLiveFeed"`
	} `yaml:"featureFlags"`
}

type InfraConfig struct {
	Database database.Config `yaml:"database"`
	Redis    struct {
		Addrs    string `yaml:"addrs"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		LedgerTopic    string   `yaml:"ledgerTopic"`
		LowStockTopic  string   `yaml:"lowStockTopic"`
		LifecycleTopic string   `yaml:"lifecycleTopic"`
		LifecycleDLT   string   `yaml:"lifecycleDlt"`
		GroupID        string   `yaml:"groupId"`
	} `yaml:"kafka"`
	Jaeger struct {
		Endpoint    string  `yaml:"endpoint"`
		SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
	} `yaml:"jaeger"`
	Nacos struct {
		Enabled     bool   `yaml:"enabled"`
		ServerAddrs string `yaml:"serverAddrs" validate:"required_if=Enabled true"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
		DataID      string `yaml:"dataId"`
	} `yaml:"nacos"`
	ZooKeeper struct {
		Servers        []string      `yaml:"servers"`
		SessionTimeout time.Duration `yaml:"sessionTimeout"`
	} `yaml:"zookeeper"`
}

type LedgerConfig struct {
	// PaymentTTL 下单后等待支付的时长，超时由清扫器释放预占
	PaymentTTL  time.Duration `yaml:"paymentTtl" validate:"gt=0"`
	SnapshotTTL time.Duration `yaml:"snapshotTtl"`
	LowStock    bool          `yaml:"lowStockSignals"`
}

type SweeperConfig struct {
	// Embedded 为 true 时清扫器随 ledger-service 进程运行
	Embedded  bool          `yaml:"embedded"`
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	BatchSize int           `yaml:"batchSize" validate:"gt=0"`
	// LockBackend 集群互斥方式：none、redis 或 zookeeper
	LockBackend string        `yaml:"lockBackend" validate:"oneof=none redis zookeeper"`
	LockKey     string        `yaml:"lockKey"`
	LockTTL     time.Duration `yaml:"lockTtl"`
}

var (
	current  atomic.Pointer[Config]
	validate = validator.New()
)

// DefaultConfig 返回可直接用于本地开发的默认配置（SQLite + 无外部依赖）
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Env = "dev"
	cfg.App.Port = 0 // 0 表示使用各服务的默认端口
	cfg.App.LogLevel = "info"
	cfg.App.LogFormat = "json"
	cfg.App.CORSOrigins = []string{"*"}
	cfg.App.FeatureFlags.EnablePromoConditions = true
	cfg.App.FeatureFlags.EnableLiveFeed = true

	cfg.Infra.Database = database.Config{
		Dialect:      database.DialectSQLite,
		DSN:          "file:nexus-ledger?mode=memory&cache=shared&_busy_timeout=5000",
		MaxOpenConns: 50,
		MaxIdleConns: 25,
		LockTimeout:  3 * time.Second,
	}
	cfg.Infra.Kafka.LedgerTopic = "ledger-events"
	cfg.Infra.Kafka.LowStockTopic = "low-stock-signals"
	cfg.Infra.Kafka.LifecycleTopic = "order-lifecycle"
	cfg.Infra.Kafka.LifecycleDLT = "order-lifecycle-dlt"
	cfg.Infra.Kafka.GroupID = "nexus-ledger"
	cfg.Infra.Jaeger.SampleRatio = 1
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Nacos.DataID = "nexus-ledger.yaml"
	cfg.Infra.ZooKeeper.SessionTimeout = 10 * time.Second

	cfg.Ledger.PaymentTTL = 30 * time.Minute
	cfg.Ledger.SnapshotTTL = 10 * time.Minute
	cfg.Ledger.LowStock = true

	cfg.Sweeper.Embedded = true
	cfg.Sweeper.Interval = 30 * time.Second
	cfg.Sweeper.BatchSize = 100
	cfg.Sweeper.LockBackend = "none"
	cfg.Sweeper.LockKey = "nexus-ledger:sweeper"
	cfg.Sweeper.LockTTL = time.Minute
	return cfg
}

// LoadConfig 加载配置文件并应用环境变量覆盖。path 为空时读取 CONFIG_FILE，
// 文件不存在时只使用默认值与环境变量。
func LoadConfig(path string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	if path == "" {
		path = getEnv("CONFIG_FILE", "configs/config.yaml")
	}

	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %s", path)
		}
	case os.IsNotExist(err):
		logger.Logger().Warn().Str("path", path).Msg("config file not found, using defaults and environment")
	default:
		return nil, errors.Wrapf(err, "config: read %s", path)
	}

	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeYAML 把一段 YAML（例如 Nacos 下发的内容）覆盖到 base 的副本上并校验
func MergeYAML(base *Config, content string) (*Config, error) {
	merged := *base
	if err := yaml.Unmarshal([]byte(content), &merged); err != nil {
		return nil, errors.Wrap(err, "config: parse remote yaml")
	}
	if err := Validate(&merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate 校验配置
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "config: validation failed")
	}
	return nil
}

// SetCurrentConfig 替换当前生效的配置
func SetCurrentConfig(cfg *Config) {
	current.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置，未加载时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnv("LOG_FORMAT", cfg.App.LogFormat)
	if v, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		cfg.App.Port = v
	}

	cfg.Infra.Database.Dialect = getEnv("DB_DIALECT", cfg.Infra.Database.Dialect)
	cfg.Infra.Database.DSN = getEnv("DB_DSN", cfg.Infra.Database.DSN)
	if v, err := time.ParseDuration(getEnv("DB_LOCK_TIMEOUT", "")); err == nil {
		cfg.Infra.Database.LockTimeout = v
	}

	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	if v := getEnv("NACOS_SERVER_ADDRS", ""); v != "" {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = v
	}
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if v := getEnv("ZK_SERVERS", ""); v != "" {
		cfg.Infra.ZooKeeper.Servers = strings.Split(v, ",")
	}

	if v, err := time.ParseDuration(getEnv("PAYMENT_TTL", "")); err == nil {
		cfg.Ledger.PaymentTTL = v
	}
	if v, err := time.ParseDuration(getEnv("SWEEPER_INTERVAL", "")); err == nil {
		cfg.Sweeper.Interval = v
	}
	cfg.Sweeper.LockBackend = getEnv("SWEEPER_LOCK_BACKEND", cfg.Sweeper.LockBackend)
	if v, err := strconv.ParseBool(getEnv("SWEEPER_EMBEDDED", "")); err == nil {
		cfg.Sweeper.Embedded = v
	}
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
