// internal/service/audit/infrastructure/sinks.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"nexus-ledger/internal/pkg/mq"
	"nexus-ledger/internal/service/audit/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// FeedTopicLedger 实时面板中审计事件的 topic
const FeedTopicLedger = "ledger"

// KafkaSink 把审计记录发布到 ledger-events 主题，key 为 "<台账类型>:<台账ID>"，保证同一行的事件有序
type KafkaSink struct {
	writer mq.MessageWriter
}

// NewKafkaSink 创建 Kafka 投递器
func NewKafkaSink(writer mq.MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Publish 批量发送
func (s *KafkaSink) Publish(ctx context.Context, entries []domain.Entry) error {
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "audit: marshal entry")
		}
		msg := kafka.Message{
			Key:   []byte(fmt.Sprintf("%s:%d", e.LedgerType, e.LedgerID)),
			Value: value,
		}
		mq.InjectTraceContext(ctx, &msg.Headers)
		msgs = append(msgs, msg)
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

// Broadcaster 由 wsfeed.Hub 实现
type Broadcaster interface {
	Broadcast(topic string, payload interface{})
}

// FeedSink 把审计记录推送到管理端 WebSocket 实时面板
type FeedSink struct {
	hub Broadcaster
}

// NewFeedSink 创建实时面板投递器
func NewFeedSink(hub Broadcaster) *FeedSink {
	return &FeedSink{hub: hub}
}

func (s *FeedSink) Name() string { return "feed" }

func (s *FeedSink) Publish(_ context.Context, entries []domain.Entry) error {
	for _, e := range entries {
		s.hub.Broadcast(FeedTopicLedger, e)
	}
	return nil
}
