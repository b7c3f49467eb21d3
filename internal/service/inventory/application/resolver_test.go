package application

import (
	"context"
	"testing"

	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace/noop"
)

type staticBindings map[string][]domain.Binding

func (s staticBindings) FindByProduct(_ context.Context, productID string) ([]domain.Binding, error) {
	return s[productID], nil
}

func TestBindingResolver(t *testing.T) {
	repo := staticBindings{
		"fixed": {
			{StockID: 1, Mode: domain.BindingRandom, Priority: 10},
			{StockID: 2, Mode: domain.BindingFixed, Priority: 1},
			{StockID: 3, Mode: domain.BindingFixed, Priority: 5},
		},
		"pool": {
			{StockID: 4, Mode: domain.BindingRandom, Priority: 2},
			{StockID: 5, Mode: domain.BindingRandom, Priority: 2},
			{StockID: 6, Mode: domain.BindingRandom, Priority: 1},
		},
	}
	r := NewBindingResolver(repo, noop.NewTracerProvider().Tracer("test"))
	r.pick = func(n int) int { return n - 1 }

	tests := []struct {
		product string
		want    uint64
		wantErr error
	}{
		{product: "fixed", want: 3},
		{product: "pool", want: 5},
		{product: "unknown", wantErr: domain.ErrNoBinding},
	}
	for _, tt := range tests {
		allocs, err := r.Resolve(context.Background(), tt.product, 2)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: expected %v, got %v", tt.product, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.product, err)
		}
		if len(allocs) != 1 || allocs[0].StockID != tt.want || allocs[0].Quantity != 2 {
			t.Fatalf("%s: unexpected allocation %+v", tt.product, allocs)
		}
	}

	if _, err := r.Resolve(context.Background(), "fixed", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}
