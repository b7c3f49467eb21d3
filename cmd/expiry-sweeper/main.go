// cmd/expiry-sweeper/main.go
package main

import (
	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/wiring"

	"github.com/pkg/errors"
)

const serviceName = "expiry-sweeper"

// main 独立部署的清扫器。多副本运行时需配置 sweeper.lockBackend 为 redis 或 zookeeper。
func main() {
	bootstrap.Init(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8091,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			ledger, err := wiring.Build(appCtx.Config, serviceName)
			if err != nil {
				return errors.WithMessage(err, "build ledger")
			}
			appCtx.OnShutdown(ledger.Close)

			sweeper, err := ledger.Sweeper(serviceName)
			if err != nil {
				return errors.WithMessage(err, "build sweeper")
			}
			appCtx.AddWorker(sweeper)
			return nil
		},
	})
}
