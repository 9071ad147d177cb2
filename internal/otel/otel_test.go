package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/gqlserve/internal/eventbus"
	events "github.com/hanpama/gqlserve/internal/events"
	reqid "github.com/hanpama/gqlserve/internal/reqid"
)

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup("", "svc")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestRegister_SpansFollowEvents(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	bus := eventbus.New()
	unsubscribe := Register(bus, tp.Tracer(TracerName))
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background())
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	eventbus.PublishTo(ctx, bus, events.HTTPStart{Request: r})
	eventbus.PublishTo(ctx, bus, events.GraphQLStart{OperationName: "Q", OperationType: "query"})
	eventbus.PublishTo(ctx, bus, events.UnexpectedError{Err: errors.New("db down")})
	eventbus.PublishTo(ctx, bus, events.GraphQLFinish{OperationName: "Q", OperationType: "query", Errors: []error{errors.New("x")}})
	eventbus.PublishTo(ctx, bus, events.HTTPFinish{Request: r, Status: http.StatusOK, MediaType: "application/json"})

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	op, httpSpan := spans[0], spans[1]
	assert.Equal(t, "graphql.operation", op.Name)
	assert.Equal(t, "http.request", httpSpan.Name)
	assert.Equal(t, httpSpan.SpanContext.SpanID(), op.Parent.SpanID())
	assert.Equal(t, codes.Error, op.Status.Code)
	require.Len(t, op.Events, 1)
	assert.Equal(t, "exception", op.Events[0].Name)
}
