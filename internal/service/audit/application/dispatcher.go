// internal/service/audit/application/dispatcher.go
package application

import (
	"context"

	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/service/audit/domain"
)

// Sink 审计记录提交后的投递目标
type Sink interface {
	Name() string
	Publish(ctx context.Context, entries []domain.Entry) error
}

// Dispatcher 在台账事务提交后把审计记录扇出到各个投递目标。
// 投递失败只记录日志：审计记录已经和变更一起落库，投递只是通知。
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher 创建分发器，nil 的 sink 会被忽略
func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Dispatch 投递一批审计记录
func (d *Dispatcher) Dispatch(ctx context.Context, entries ...domain.Entry) {
	if d == nil || len(entries) == 0 {
		return
	}
	for _, s := range d.sinks {
		if err := s.Publish(ctx, entries); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("sink", s.Name()).
				Int("entries", len(entries)).
				Msg("failed to publish audit entries")
		}
	}
}
