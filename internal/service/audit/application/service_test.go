package application

import (
	"context"
	"errors"
	"testing"

	"nexus-ledger/internal/service/audit/domain"

	"go.opentelemetry.io/otel/trace/noop"
)

type fakeRepo struct {
	sum int64
}

func (r *fakeRepo) List(context.Context, domain.Filter) ([]domain.Entry, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) SumReservedDelta(context.Context, domain.LedgerType, uint64) (int64, error) {
	return r.sum, nil
}

func TestReconcile(t *testing.T) {
	svc := NewQueryService(&fakeRepo{sum: 4}, noop.NewTracerProvider().Tracer("test"))

	res, err := svc.Reconcile(context.Background(), domain.LedgerStock, 1, 4)
	if err != nil || !res.Consistent {
		t.Fatalf("expected consistent result, got %+v, %v", res, err)
	}
	res, err = svc.Reconcile(context.Background(), domain.LedgerStock, 1, 5)
	if err != nil || res.Consistent {
		t.Fatalf("expected drift to be reported, got %+v, %v", res, err)
	}
}

type countingSink struct {
	name string
	n    int
	err  error
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Publish(_ context.Context, entries []domain.Entry) error {
	s.n += len(entries)
	return s.err
}

func TestDispatcher_SinkFailureDoesNotStopOthers(t *testing.T) {
	failing := &countingSink{name: "kafka", err: errors.New("broker down")}
	ok := &countingSink{name: "feed"}
	d := NewDispatcher(failing, nil, ok)

	d.Dispatch(context.Background(), domain.Entry{ID: 1}, domain.Entry{ID: 2})

	if failing.n != 2 || ok.n != 2 {
		t.Fatalf("every sink must receive the batch: failing=%d ok=%d", failing.n, ok.n)
	}
}
