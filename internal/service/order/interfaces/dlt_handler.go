// internal/service/order/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"sync"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/pkg/mq"

	"github.com/segmentio/kafka-go"
)

// DltConsumer 监听生命周期命令的死信主题并记录日志，供人工排查与重放
type DltConsumer struct {
	reader MessageReader
	wg     sync.WaitGroup
	stop   chan struct{}
	once   sync.Once
}

func NewDltConsumer(reader MessageReader) *DltConsumer {
	return &DltConsumer{reader: reader, stop: make(chan struct{})}
}

// Start 实现 bootstrap.Worker
func (a *DltConsumer) Start(ctx context.Context) error {
	a.wg.Add(1)
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Ctx(ctx).Info().Msg("DLT consumer started")
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("DLT consumer shutting down")
				return nil
			}
			continue
		}

		logDeadLetter(ctx, msg)

		// 死信只记录，记录完即视为已处理
		if err := a.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("failed to commit dead letter")
		}
	}
}

// Stop 实现 bootstrap.Worker
func (a *DltConsumer) Stop(ctx context.Context) error {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("DLT consumer stopped")
	return a.reader.Close()
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("dead letter received for order lifecycle command")
}
