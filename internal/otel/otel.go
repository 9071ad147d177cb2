// Package otel turns server lifecycle events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/gqlserve/internal/eventbus"
	events "github.com/hanpama/gqlserve/internal/events"
	reqid "github.com/hanpama/gqlserve/internal/reqid"
)

// TracerName names the tracer spans are created with.
const TracerName = "gqlserve"

// Setup exports spans over OTLP/gRPC to endpoint and subscribes the span
// handlers to the process-wide bus. An empty endpoint turns tracing off. The
// returned function flushes and stops the exporter.
func Setup(endpoint, service string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating otlp exporter")
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))),
	)
	otel.SetTracerProvider(provider)
	Register(eventbus.Current(), provider.Tracer(TracerName))
	return provider.Shutdown, nil
}

// Register subscribes span handlers to b. Each request gets an
// "http.request" span with a "graphql.operation" child. A nil bus registers
// nothing.
func Register(b *eventbus.Bus, tracer trace.Tracer) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	t := &tracing{tracer: tracer}
	unsubs := []func(){
		eventbus.SubscribeTo(b, t.httpStart),
		eventbus.SubscribeTo(b, t.httpFinish),
		eventbus.SubscribeTo(b, t.operationStart),
		eventbus.SubscribeTo(b, t.unexpectedError),
		eventbus.SubscribeTo(b, t.operationFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// openSpans holds the spans of requests in flight, keyed by request id.
type openSpans struct{ m sync.Map }

func (o *openSpans) put(ctx context.Context, span trace.Span) {
	rid, _ := reqid.FromContext(ctx)
	o.m.Store(rid, span)
}

func (o *openSpans) get(ctx context.Context) (trace.Span, bool) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := o.m.Load(rid)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (o *openSpans) take(ctx context.Context) (trace.Span, bool) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := o.m.LoadAndDelete(rid)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

type tracing struct {
	tracer     trace.Tracer
	requests   openSpans
	operations openSpans
}

func (t *tracing) httpStart(ctx context.Context, e events.HTTPStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := t.tracer.Start(ctx, "http.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
			attribute.String("http.request_id", rid),
		),
	)
	t.requests.put(ctx, span)
}

func (t *tracing) httpFinish(ctx context.Context, e events.HTTPFinish) {
	span, ok := t.requests.take(ctx)
	if !ok {
		return
	}
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	if e.MediaType != "" {
		span.SetAttributes(attribute.String("http.response.media_type", e.MediaType))
	}
	if e.Status >= 500 {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

func (t *tracing) operationStart(ctx context.Context, e events.GraphQLStart) {
	parent := ctx
	if span, ok := t.requests.get(ctx); ok {
		parent = trace.ContextWithSpan(ctx, span)
	}
	_, span := t.tracer.Start(parent, "graphql.operation", trace.WithAttributes(
		attribute.String("graphql.operation.name", e.OperationName),
		attribute.String("graphql.operation.type", e.OperationType),
	))
	t.operations.put(ctx, span)
}

func (t *tracing) unexpectedError(ctx context.Context, e events.UnexpectedError) {
	if span, ok := t.operations.get(ctx); ok {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, "unexpected error")
	}
}

func (t *tracing) operationFinish(ctx context.Context, e events.GraphQLFinish) {
	span, ok := t.operations.take(ctx)
	if !ok {
		return
	}
	span.SetAttributes(
		attribute.Int("graphql.error_count", len(e.Errors)),
		attribute.Bool("graphql.streamed", e.Streamed),
	)
	span.End()
}
