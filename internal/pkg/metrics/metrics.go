// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nexus_ledger"

// 结果标签取值
const (
	ResultOK       = "ok"
	ResultRejected = "rejected" // 业务拒绝：库存不足、券已用完、调整非法等
	ResultError    = "error"    // 系统错误：锁超时、连接失败等
)

var (
	// LedgerOperations 记录每一次台账操作的结果
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by ledger type, operation and result.",
	}, []string{"ledger", "op", "result"})

	// LedgerTxDuration 记录台账事务耗时（包含等待行锁的时间）
	LedgerTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_tx_duration_seconds",
		Help:      "Duration of ledger transactions including row-lock waits.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"ledger", "op"})

	// ReleaseClamped 统计释放数量超过当前预占量而被截断为 0 的次数
	ReleaseClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_release_clamped_total",
		Help:      "Releases whose quantity exceeded the current reservation and were clamped at zero.",
	}, []string{"ledger"})

	LowStockSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "low_stock_signals_total",
		Help:      "Low-stock signals emitted after a ledger mutation.",
	})

	SweeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeper_runs_total",
		Help:      "Expiry sweeper runs by result.",
	}, []string{"result"})

	SweeperReleasedOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeper_released_orders_total",
		Help:      "Orders released by the expiry sweeper, by reason.",
	}, []string{"reason"})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions.",
	}, []string{"from", "to"})
)

// ObserveLedgerOp 同时记录结果计数与耗时
func ObserveLedgerOp(ledger, op, result string, started time.Time) {
	LedgerOperations.WithLabelValues(ledger, op, result).Inc()
	LedgerTxDuration.WithLabelValues(ledger, op).Observe(time.Since(started).Seconds())
}
