package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/mq"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain"
	promodomain "nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace/noop"
)

// fakeOrders 记录调用并返回预设错误
type fakeOrders struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeOrders) record(call string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Order{ID: "o-1", Status: domain.StatePendingPayment}, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	return f.record("get:" + id)
}
func (f *fakeOrders) Checkout(_ context.Context, req *application.CheckoutRequest) (*domain.Order, error) {
	return f.record("checkout:" + req.UserID)
}
func (f *fakeOrders) CreateDraft(_ context.Context, req *application.CheckoutRequest) (*domain.Order, error) {
	return f.record("draft:" + req.UserID)
}
func (f *fakeOrders) Submit(_ context.Context, id string) (*domain.Order, error) {
	return f.record("submit:" + id)
}
func (f *fakeOrders) Cancel(_ context.Context, id, actor, reason string) error {
	_, err := f.record("cancel:" + id + ":" + actor + ":" + reason)
	return err
}
func (f *fakeOrders) MarkPaid(_ context.Context, id string) (*domain.Order, error) {
	return f.record("pay:" + id)
}
func (f *fakeOrders) Ship(_ context.Context, id string) (*domain.Order, error) {
	return f.record("ship:" + id)
}
func (f *fakeOrders) Complete(_ context.Context, id string) (*domain.Order, error) {
	return f.record("complete:" + id)
}
func (f *fakeOrders) RequestResubmit(_ context.Context, id, reason string) (*domain.Order, error) {
	return f.record("resubmit-request:" + id + ":" + reason)
}
func (f *fakeOrders) Resubmit(_ context.Context, id string) (*domain.Order, error) {
	return f.record("resubmit:" + id)
}
func (f *fakeOrders) Reprice(_ context.Context, id string, _ *application.RepriceRequest) (*domain.Order, error) {
	return f.record("reprice:" + id)
}
func (f *fakeOrders) ExpireOrder(_ context.Context, id string) (bool, error) {
	_, err := f.record("expire:" + id)
	return err == nil, err
}

func (f *fakeOrders) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func TestOrderHandler_Status(t *testing.T) {
	checkout := `{"userId":"u-1","lines":[{"productId":"p1","quantity":2,"unitPrice":"9.90"}]}`
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		err      error
		want     int
		wantCall string
	}{
		{"checkout", http.MethodPost, "/orders", checkout, nil, http.StatusCreated, "checkout:u-1"},
		{"checkout invalid body", http.MethodPost, "/orders", `{"userId":"u-1","lines":[]}`, nil, http.StatusBadRequest, ""},
		{"checkout sold out", http.MethodPost, "/orders", checkout, invdomain.ErrInsufficientStock, http.StatusConflict, "checkout:u-1"},
		{"checkout promo exhausted", http.MethodPost, "/orders", checkout, promodomain.ErrCodeExhausted, http.StatusConflict, "checkout:u-1"},
		{"checkout no binding", http.MethodPost, "/orders", checkout, invdomain.ErrNoBinding, http.StatusUnprocessableEntity, "checkout:u-1"},
		{"checkout lock timeout", http.MethodPost, "/orders", checkout, database.ErrLockTimeout, http.StatusServiceUnavailable, "checkout:u-1"},
		{"draft", http.MethodPost, "/orders/drafts", checkout, nil, http.StatusCreated, "draft:u-1"},
		{"get missing", http.MethodGet, "/orders/o-9", "", domain.ErrOrderNotFound, http.StatusNotFound, "get:o-9"},
		{"pay", http.MethodPost, "/orders/o-1/pay", "", nil, http.StatusOK, "pay:o-1"},
		{"ship invalid", http.MethodPost, "/orders/o-1/ship", "", domain.ErrInvalidTransition, http.StatusConflict, "ship:o-1"},
		{"complete", http.MethodPost, "/orders/o-1/complete", "", nil, http.StatusOK, "complete:o-1"},
		{"submit", http.MethodPost, "/orders/o-1/submit", "", nil, http.StatusOK, "submit:o-1"},
		{"resubmit", http.MethodPost, "/orders/o-1/resubmit", "", nil, http.StatusOK, "resubmit:o-1"},
		{"request resubmit", http.MethodPost, "/orders/o-1/resubmit-request", `{"reason":"price"}`, nil, http.StatusOK, "resubmit-request:o-1:price"},
		{"cancel", http.MethodPost, "/orders/o-1/cancel", `{"actor":"u-1","reason":"oops"}`, nil, http.StatusOK, "get:o-1"},
		{"cancel without actor", http.MethodPost, "/orders/o-1/cancel", `{"reason":"oops"}`, nil, http.StatusBadRequest, ""},
		{"reprice", http.MethodPost, "/orders/o-1/reprice", `{"prices":{"p1":"1.00"},"actor":"ops"}`, nil, http.StatusOK, "reprice:o-1"},
		{"reprice internal", http.MethodPost, "/orders/o-1/reprice", `{"prices":{"p1":"1.00"},"actor":"ops"}`, errors.New("boom"), http.StatusInternalServerError, "reprice:o-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{err: tt.err}
			mux := http.NewServeMux()
			NewOrderHandler(orders).RegisterRoutes(mux)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
			if got := orders.last(); got != tt.wantCall {
				t.Fatalf("last call %q, want %q", got, tt.wantCall)
			}
		})
	}
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func command(t *testing.T, cmd domain.LifecycleCommand) kafka.Message {
	t.Helper()
	b, err := json.Marshal(cmd)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Topic: "order-lifecycle", Key: []byte(cmd.OrderID), Value: b}
}

func TestLifecycleConsumer_Handle(t *testing.T) {
	tests := []struct {
		name     string
		msg      func(t *testing.T) kafka.Message
		err      error
		wantDLT  bool
		wantCall string
	}{
		{"pay", func(t *testing.T) kafka.Message {
			return command(t, domain.LifecycleCommand{Command: domain.CommandPay, OrderID: "o-1"})
		}, nil, false, "pay:o-1"},
		{"cancel defaults actor", func(t *testing.T) kafka.Message {
			return command(t, domain.LifecycleCommand{Command: domain.CommandCancel, OrderID: "o-1", Reason: "fraud"})
		}, nil, false, "cancel:o-1:lifecycle-consumer:fraud"},
		{"replayed transition is dropped", func(t *testing.T) kafka.Message {
			return command(t, domain.LifecycleCommand{Command: domain.CommandShip, OrderID: "o-1"})
		}, domain.ErrInvalidTransition, false, "ship:o-1"},
		{"system failure goes to DLT", func(t *testing.T) kafka.Message {
			return command(t, domain.LifecycleCommand{Command: domain.CommandExpire, OrderID: "o-1"})
		}, database.ErrLockTimeout, true, "expire:o-1"},
		{"unknown command goes to DLT", func(t *testing.T) kafka.Message {
			return command(t, domain.LifecycleCommand{Command: "refund", OrderID: "o-1"})
		}, nil, true, ""},
		{"garbage goes to DLT", func(*testing.T) kafka.Message {
			return kafka.Message{Topic: "order-lifecycle", Value: []byte("{not json")}
		}, nil, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{err: tt.err}
			dlt := &recordingWriter{}
			c := NewLifecycleConsumer(nil, orders, mq.NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"))

			msg := tt.msg(t)
			if err := c.Handle(context.Background(), msg); err != nil {
				c.failures.Handle(context.Background(), msg, err)
			}
			if got := dlt.count() == 1; got != tt.wantDLT {
				t.Fatalf("dead-lettered=%v, want %v", got, tt.wantDLT)
			}
			if got := orders.last(); got != tt.wantCall {
				t.Fatalf("last call %q, want %q", got, tt.wantCall)
			}
		})
	}
}

// chanReader 用 channel 模拟 kafka.Reader
type chanReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed int
	closed    bool
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *chanReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *chanReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func TestLifecycleConsumer_CommitsEveryMessage(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 2)}
	dlt := &recordingWriter{}
	orders := &fakeOrders{}
	c := NewLifecycleConsumer(reader, orders, mq.NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"))

	reader.msgs <- command(t, domain.LifecycleCommand{Command: domain.CommandComplete, OrderID: "o-1"})
	reader.msgs <- kafka.Message{Value: []byte("garbage")}

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for reader.commits() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 commits, got %d", reader.commits())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("start returned %v", err)
	}
	if dlt.count() != 1 || !reader.closed {
		t.Fatalf("expected one dead letter and a closed reader, dlt=%d closed=%v", dlt.count(), reader.closed)
	}
}

func TestDltConsumer_LogsAndCommits(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 1)}
	reader.msgs <- kafka.Message{Value: []byte("{}"), Headers: []kafka.Header{
		{Key: mq.HeaderOriginalTopic, Value: []byte("order-lifecycle")},
	}}
	c := NewDltConsumer(reader)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()
	deadline := time.Now().Add(5 * time.Second)
	for reader.commits() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("dead letter not committed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
