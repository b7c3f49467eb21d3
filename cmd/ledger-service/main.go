// cmd/ledger-service/main.go
package main

import (
	"context"
	"net/http"

	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/pkg/mq"
	invinterfaces "nexus-ledger/internal/service/inventory/interfaces"
	orderinterfaces "nexus-ledger/internal/service/order/interfaces"
	promointerfaces "nexus-ledger/internal/service/promotion/interfaces"
	"nexus-ledger/internal/wiring"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const serviceName = "ledger-service"

// main 是台账服务的组装根：HTTP 管理端、订单生命周期、实时面板与生命周期消息消费
func main() {
	bootstrap.Init(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8090,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			cfg := appCtx.Config
			ledger, err := wiring.Build(cfg, serviceName)
			if err != nil {
				return errors.WithMessage(err, "build ledger")
			}
			appCtx.OnShutdown(ledger.Close)

			var feed http.Handler
			if ledger.Hub != nil {
				feed = ledger.Hub
				appCtx.AddWorker(ledger.HubWorker())
			}
			invinterfaces.NewInventoryHandler(ledger.Stock, ledger.StockQuery, ledger.Reconciler, ledger.AuditQuery, feed).
				RegisterRoutes(appCtx.Mux)
			promointerfaces.NewPromotionHandler(ledger.Promo).RegisterRoutes(appCtx.Mux)
			orderinterfaces.NewOrderHandler(ledger.Coordinator).RegisterRoutes(appCtx.Mux)

			kafkaCfg := cfg.Infra.Kafka
			if len(kafkaCfg.Brokers) > 0 && kafkaCfg.LifecycleTopic != "" {
				dltWriter := mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.LifecycleDLT)
				appCtx.OnShutdown(func(context.Context) error { return dltWriter.Close() })

				reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.LifecycleTopic, kafkaCfg.GroupID)
				appCtx.AddWorker(orderinterfaces.NewLifecycleConsumer(reader, ledger.Coordinator,
					mq.NewFailureHandler(dltWriter), otel.Tracer(serviceName)))

				dltReader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.LifecycleDLT, kafkaCfg.GroupID+"-dlt")
				appCtx.AddWorker(orderinterfaces.NewDltConsumer(dltReader))
			}

			// 嵌入式清扫器；多实例部署时使用独立的 expiry-sweeper 并配置集群锁
			if cfg.Sweeper.Embedded {
				sweeper, err := ledger.Sweeper(serviceName)
				if err != nil {
					return errors.WithMessage(err, "build sweeper")
				}
				appCtx.AddWorker(sweeper)
			}
			return nil
		},
	})
}
