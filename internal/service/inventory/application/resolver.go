package application

import (
	"context"
	"math/rand/v2"

	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BindingResolver 默认的分配策略：固定绑定优先，取优先级最高的一行；
// 没有固定绑定时，从优先级最高的随机池中任选一行。
type BindingResolver struct {
	repo   domain.BindingRepository
	tracer trace.Tracer
	pick   func(n int) int
}

// NewBindingResolver 创建解析器
func NewBindingResolver(repo domain.BindingRepository, tracer trace.Tracer) *BindingResolver {
	return &BindingResolver{repo: repo, tracer: tracer, pick: rand.IntN}
}

// Resolve 返回订单行应扣减的库存行
func (r *BindingResolver) Resolve(ctx context.Context, productID string, qty int64) ([]domain.Allocation, error) {
	ctx, span := r.tracer.Start(ctx, "BindingResolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int64("quantity", qty))

	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	bindings, err := r.repo.FindByProduct(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var fixed, pool []domain.Binding
	for _, b := range bindings {
		switch b.Mode {
		case domain.BindingFixed:
			fixed = append(fixed, b)
		case domain.BindingRandom:
			pool = append(pool, b)
		}
	}

	var chosen domain.Binding
	switch {
	case len(fixed) > 0:
		chosen = topPriority(fixed)[0]
	case len(pool) > 0:
		top := topPriority(pool)
		chosen = top[r.pick(len(top))]
	default:
		return nil, errors.WithMessagef(domain.ErrNoBinding, "product %s", productID)
	}
	span.SetAttributes(attribute.Int64("stock.id", int64(chosen.StockID)))
	return []domain.Allocation{{StockID: chosen.StockID, Quantity: qty}}, nil
}

// topPriority 返回优先级最高的一组绑定，保持输入顺序
func topPriority(bs []domain.Binding) []domain.Binding {
	best := bs[0].Priority
	for _, b := range bs[1:] {
		if b.Priority > best {
			best = b.Priority
		}
	}
	out := make([]domain.Binding, 0, len(bs))
	for _, b := range bs {
		if b.Priority == best {
			out = append(out, b)
		}
	}
	return out
}
