package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	var c KafkaHeaderCarrier
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "x=1")

	if got := c.Get("traceparent"); got != "b" {
		t.Fatalf("Get(traceparent) = %q, want b", got)
	}
	if len(c.Keys()) != 2 {
		t.Fatalf("Keys() = %v, want 2 keys", c.Keys())
	}
	if c.Get("missing") != "" {
		t.Fatalf("missing key should be empty")
	}
}

func TestInjectExtractTraceContext_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	if len(headers) == 0 {
		t.Fatalf("expected traceparent header to be injected")
	}

	out := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	if out.TraceID() != traceID {
		t.Fatalf("trace id = %s, want %s", out.TraceID(), traceID)
	}
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestFailureHandler_ForwardsWithOriginHeaders(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w)

	h.Handle(context.Background(), kafka.Message{
		Topic:     "order-lifecycle",
		Partition: 3,
		Offset:    42,
		Key:       []byte("order-1"),
		Value:     []byte(`{"orderId":"order-1"}`),
	}, errors.New("boom"))

	if len(w.msgs) != 1 {
		t.Fatalf("forwarded %d messages, want 1", len(w.msgs))
	}
	carrier := KafkaHeaderCarrier(w.msgs[0].Headers)
	if carrier.Get(HeaderOriginalTopic) != "order-lifecycle" {
		t.Fatalf("original topic header = %q", carrier.Get(HeaderOriginalTopic))
	}
	if carrier.Get(HeaderOriginalOffset) != "42" || carrier.Get(HeaderOriginalPartition) != "3" {
		t.Fatalf("unexpected offset/partition headers: %v", carrier.Keys())
	}
	if carrier.Get(HeaderExceptionMessage) != "boom" {
		t.Fatalf("exception message header = %q", carrier.Get(HeaderExceptionMessage))
	}
}
