package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"nexus-ledger/internal/pkg/mq"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// FeedTopicLowStock 实时面板中低库存告警的 topic
const FeedTopicLowStock = "low-stock"

// KafkaLowStockNotifier 把低库存告警发送到 low-stock-signals 主题
type KafkaLowStockNotifier struct {
	writer mq.MessageWriter
}

// NewKafkaLowStockNotifier 创建 Kafka 告警投递器
func NewKafkaLowStockNotifier(writer mq.MessageWriter) *KafkaLowStockNotifier {
	return &KafkaLowStockNotifier{writer: writer}
}

// NotifyLowStock 实现 domain.LowStockNotifier
func (n *KafkaLowStockNotifier) NotifyLowStock(ctx context.Context, signal domain.LowStockSignal) error {
	value, err := json.Marshal(signal)
	if err != nil {
		return errors.Wrap(err, "marshal low stock signal")
	}
	return mq.ProduceMessage(ctx, n.writer, []byte(strconv.FormatUint(signal.StockID, 10)), value)
}

// Broadcaster 由 wsfeed.Hub 实现
type Broadcaster interface {
	Broadcast(topic string, payload interface{})
}

// FeedLowStockNotifier 把低库存告警推送到管理端实时面板
type FeedLowStockNotifier struct {
	hub Broadcaster
}

// NewFeedLowStockNotifier 创建实时面板告警投递器
func NewFeedLowStockNotifier(hub Broadcaster) *FeedLowStockNotifier {
	return &FeedLowStockNotifier{hub: hub}
}

// NotifyLowStock 实现 domain.LowStockNotifier
func (n *FeedLowStockNotifier) NotifyLowStock(_ context.Context, signal domain.LowStockSignal) error {
	n.hub.Broadcast(FeedTopicLowStock, signal)
	return nil
}
