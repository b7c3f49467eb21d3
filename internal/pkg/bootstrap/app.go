// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/nacos"
	"nexus-ledger/internal/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Worker 是随服务一起启动的后台任务（Kafka 消费者、清扫器、WebSocket Hub 等）。
// Start 阻塞到 ctx 结束或发生致命错误；Stop 在关停阶段调用。
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// AppCtx 在注册路由时提供给各服务的公共组件
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *Config

	workers *[]Worker
	closers *[]func(ctx context.Context) error
}

// AddWorker 注册一个后台任务
func (a AppCtx) AddWorker(w Worker) {
	*a.workers = append(*a.workers, w)
}

// OnShutdown 注册关停时的清理函数，按注册的逆序执行
func (a AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	*a.closers = append(*a.closers, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int // 配置中的 app.port 大于 0 时覆盖该值
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由和后台任务
	RegisterHandlers func(appCtx AppCtx) error
}

// Init 加载配置并初始化日志，必须在 StartService 之前调用。
func Init(serviceName string) *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.LogFormat)
	SetCurrentConfig(cfg)
	return cfg
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	port := info.Port
	if cfg.App.Port > 0 {
		port = cfg.App.Port
	}
	log := logger.Logger().With().Str("service", info.ServiceName).Logger()

	// 1. Tracer
	var tp *sdktrace.TracerProvider
	if cfg.Infra.Jaeger.Endpoint != "" {
		var err error
		tp, err = tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracer provider")
		}
	} else {
		log.Info().Msg("jaeger endpoint not configured, tracing disabled")
	}

	// 2. Nacos：远程配置覆盖 + 服务注册
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		var err error
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		cfg = applyRemoteConfig(namingClient, cfg)

		ip, err = getOutboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 路由与后台任务
	var (
		workers []Worker
		closers []func(ctx context.Context) error
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		appCtx := AppCtx{Mux: mux, Nacos: namingClient, Config: cfg, workers: &workers, closers: &closers}
		if err := info.RegisterHandlers(appCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to register handlers")
		}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.App.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(TraceHTTP(info.ServiceName, mux))
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 4. 启动，并在收到退出信号或任一任务失败时优雅关停
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 按顺序执行清理操作：先摘流量，再停后台任务，最后刷出 trace
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, port); err != nil {
				log.Error().Err(err).Msg("error deregistering from nacos")
			}
			namingClient.Close()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
		for _, w := range workers {
			if err := w.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("error stopping worker")
			}
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("error running shutdown hook")
			}
		}
		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("error shutting down tracer provider")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		return
	}
	log.Info().Msg("service gracefully shut down")
}

// applyRemoteConfig 读取 Nacos 上的配置覆盖本地配置，并监听后续变更
func applyRemoteConfig(client *nacos.Client, cfg *Config) *Config {
	dataID := cfg.Infra.Nacos.DataID
	if dataID == "" {
		return cfg
	}
	content, err := client.GetConfig(dataID)
	if err != nil || content == "" {
		logger.Logger().Warn().Err(err).Str("data_id", dataID).Msg("remote config unavailable, keeping local config")
		return cfg
	}
	merged, err := MergeYAML(cfg, content)
	if err != nil {
		logger.Logger().Error().Err(err).Msg("remote config rejected, keeping local config")
		return cfg
	}
	SetCurrentConfig(merged)

	base := cfg
	if err := client.ListenConfig(dataID, func(content string) {
		next, err := MergeYAML(base, content)
		if err != nil {
			logger.Logger().Error().Err(err).Msg("remote config update rejected")
			return
		}
		SetCurrentConfig(next)
	}); err != nil {
		logger.Logger().Warn().Err(err).Msg("failed to listen for remote config changes")
	}
	return merged
}

// getOutboundIP 获取本机对外通信使用的 IP，用于服务注册
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
