package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/pipeline"
	reqid "github.com/hanpama/gqlserve/internal/reqid"
	"github.com/hanpama/gqlserve/internal/resolver"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

const testSDL = `
type Query {
  hello: String
  fail: String
  required: String!
  items: [Int]
}

type Mutation {
  echo(v: String): String
}

type Subscription {
  count(to: Int!): Int
}
`

type fixture struct {
	itemsClosed atomic.Int32
	captured    atomic.Value
	logs        *bytes.Buffer
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *fixture) {
	t.Helper()
	fx := &fixture{logs: &bytes.Buffer{}}
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)

	reg := resolver.New().
		Field("Query", "hello", func(ctx context.Context, _ any, _ map[string]any) (any, error) {
			fx.captured.Store(ctx)
			return "world", nil
		}).
		Field("Query", "fail", func(context.Context, any, map[string]any) (any, error) {
			return nil, errors.New("db down")
		}).
		Field("Query", "required", func(context.Context, any, map[string]any) (any, error) {
			return nil, nil
		}).
		Field("Query", "items", func(context.Context, any, map[string]any) (any, error) {
			n := 0
			return stream.Func(func(ctx context.Context) (any, error) {
				if n < 2 {
					n++
					return n, nil
				}
				<-ctx.Done()
				return nil, ctx.Err()
			}, func() error {
				fx.itemsClosed.Add(1)
				return nil
			}), nil
		}).
		Field("Mutation", "echo", func(_ context.Context, _ any, args map[string]any) (any, error) {
			return args["v"], nil
		}).
		Subscription("Subscription", "count", func(_ context.Context, args map[string]any) (stream.Iterator[any], error) {
			to := args["to"].(int)
			values := make([]any, to)
			for i := range values {
				values[i] = i + 1
			}
			return stream.FromSlice(values), nil
		})
	require.NoError(t, reg.Bind(sch))

	logger := logrus.New()
	logger.SetOutput(fx.logs)
	h, err := New(reg, sch, append([]Option{WithLogger(logger), WithSSEHeartbeat(time.Hour)}, opts...)...)
	require.NoError(t, err)
	return h, fx
}

func do(h http.Handler, method, target, accept, contentType, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestQueryOverGET(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodGet, "/graphql?query="+url.QueryEscape("{ hello }"), "application/graphql-response+json", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/graphql-response+json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
}

func TestGETAndPOSTAgree(t *testing.T) {
	h, _ := newTestHandler(t)
	get := do(h, http.MethodGet, "/graphql?query="+url.QueryEscape("query Q { hello }")+"&operationName=Q", "application/json", "", "")
	post := do(h, http.MethodPost, "/graphql", "application/json", "application/json", `{"query":"query Q { hello }","operationName":"Q"}`)

	require.Equal(t, get.Code, post.Code)
	if diff := cmp.Diff(decode(t, get), decode(t, post)); diff != "" {
		t.Fatalf("GET and POST differ (-get +post):\n%s", diff)
	}
}

func TestValidationErrorStatus(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(h, http.MethodPost, "/graphql", "application/graphql-response+json", "application/json", `{"query":"{ nope }"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["data"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].(map[string]any)["message"], `Cannot query field "nope"`)
	assert.NotContains(t, w.Body.String(), `"http"`)

	// Legacy clients get 200 for the same document.
	w = do(h, http.MethodPost, "/graphql", "application/json", "application/json", `{"query":"{ nope }"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestParseErrorStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Expected Name")
}

func TestMutationOverGET(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodGet, "/graphql?query="+url.QueryEscape(`mutation { echo(v: "x") }`), "application/graphql-response+json", "", "")

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))
	assert.Contains(t, w.Body.String(), "Can only perform a mutation operation from a POST request.")

	w = do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"mutation { echo(v: \"x\") }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"echo":"x"}}`, w.Body.String())
}

func TestMutationOverGETWithMultipart(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodGet, "/graphql?query="+url.QueryEscape(`mutation { echo(v: "x") }`), "multipart/mixed", "", "")

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))
	assert.Equal(t, `multipart/mixed; boundary="-"`, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Can only perform a mutation operation from a POST request.")
	assert.NotContains(t, w.Body.String(), `"http"`)
}

func TestNotAcceptable(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "text/plain", "application/json", `{"query":"{ hello }"}`)

	require.Equal(t, http.StatusNotAcceptable, w.Code)
	assert.Equal(t, "application/graphql-response+json; charset=utf-8, application/json; charset=utf-8, multipart/mixed, text/event-stream", w.Header().Get("Accept"))
	assert.Empty(t, w.Body.String())
}

func TestTransportErrors(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxBodyBytes(10))

	w := do(h, http.MethodPut, "/graphql", "", "application/json", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))

	w = do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"1234567890"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(h, http.MethodPost, "/graphql", "", "application/json", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "POST body is expected to be object but received array")
}

func TestUnexpectedErrorsAreMasked(t *testing.T) {
	h, fx := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ fail hello }"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, map[string]any{"fail": nil, "hello": "world"}, body["data"])
	e := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, gqlerrors.MaskedMessage, e["message"])
	assert.Equal(t, []any{"fail"}, e["path"])
	assert.NotContains(t, w.Body.String(), "db down")
	assert.Contains(t, fx.logs.String(), "db down")

	dev, _ := newTestHandler(t, WithDevMode())
	w = do(dev, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ fail }"}`)
	assert.Contains(t, w.Body.String(), `"originalError":{"message":"db down"}`)
}

func TestNonNullRootFieldNullsData(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "application/graphql-response+json", "application/json", `{"query":"{ hello required }"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Contains(t, body, "data")
	assert.Nil(t, body["data"])
	e := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, "Cannot return null for non-nullable field required", e["message"])
}

func TestSubscriptionOverSSE(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "text/event-stream", "application/json", `{"query":"subscription { count(to: 3) }"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	want := ":\n\n" +
		"event: next\ndata: {\"data\":{\"count\":1}}\n\n" +
		"event: next\ndata: {\"data\":{\"count\":2}}\n\n" +
		"event: next\ndata: {\"data\":{\"count\":3}}\n\n" +
		"event: complete\ndata:\n\n"
	assert.Equal(t, want, w.Body.String())
}

func TestSubscriptionNeedsStreamingMediaType(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "application/json", "application/json", `{"query":"subscription { count(to: 3) }"}`)
	require.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestStreamedListAbortClosesSource(t *testing.T) {
	h, fx := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/graphql", strings.NewReader(`{"query":"{ items @stream(initialCount: 1) }"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "multipart/mixed")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `multipart/mixed; boundary="-"`, resp.Header.Get("Content-Type"))

	var got bytes.Buffer
	br := bufio.NewReader(resp.Body)
	for strings.Count(got.String(), "\r\n---") < 3 {
		b, err := br.ReadByte()
		require.NoError(t, err)
		got.WriteByte(b)
	}
	assert.Contains(t, got.String(), `{"data":{"items":[1]},"hasNext":true}`)
	assert.Contains(t, got.String(), `{"incremental":[{"items":[2],"path":["items",1]}],"hasNext":true}`)
	require.NoError(t, resp.Body.Close())

	require.Eventually(t, func() bool { return fx.itemsClosed.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fx.itemsClosed.Load())
}

func TestStreamRequiresStreamingMediaType(t *testing.T) {
	h, fx := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "application/json", "application/json", `{"query":"{ items @stream(initialCount: 1) }"}`)
	require.Equal(t, http.StatusNotAcceptable, w.Code)
	assert.Equal(t, int32(1), fx.itemsClosed.Load())
}

func TestForwardedHeaders(t *testing.T) {
	h, fx := newTestHandler(t, WithMetadataHeaders("X-Test"))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	req.Header.Set(reqid.Header, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(reqid.Header))

	ctx := fx.captured.Load().(context.Context)
	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"abc"}, md.Get("x-test"))
	assert.Empty(t, md.Get("x-other"))
	assert.Equal(t, []string{"req-1"}, md.Get(RequestIDMetadataKey))
	id, _ := reqid.FromContext(ctx)
	assert.Equal(t, "req-1", id)
}

func TestRequestIDGenerated(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	assert.Len(t, w.Header().Get(reqid.Header), 36)
}

func TestCORSAndPreflight(t *testing.T) {
	h, _ := newTestHandler(t, WithCORS("*"))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	assert.Equal(t, http.StatusNoContent, pw.Code)
	assert.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "x-test", strings.ToLower(pw.Header().Get("Access-Control-Allow-Headers")))
}

func TestRoutes(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(h, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"alive"}`, w.Body.String())

	w = do(h, http.MethodGet, "/elsewhere", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodGet, "/graphql", "text/html", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "GraphiQL")

	// Without GraphiQL nothing can answer a browser asking only for HTML.
	off, _ := newTestHandler(t, WithGraphiQL(false))
	w = do(off, http.MethodGet, "/graphql", "text/html", "", "")
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestIntrospectionToggle(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ __schema { queryType { name } } }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"__schema":{"queryType":{"name":"Query"}}}}`, w.Body.String())

	off, _ := newTestHandler(t, WithIntrospection(false))
	w = do(off, http.MethodPost, "/graphql", "application/graphql-response+json", "application/json", `{"query":"{ __schema { queryType { name } } }"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "introspection has been disabled")

	w = do(off, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ __typename }"}`)
	assert.JSONEq(t, `{"data":{"__typename":"Query"}}`, w.Body.String())
}

func TestPluginHooks(t *testing.T) {
	var seen []string
	var finalStatus int
	record := func(name string) func(*pipeline.Request) error {
		return func(*pipeline.Request) error {
			seen = append(seen, name)
			return nil
		}
	}
	h, _ := newTestHandler(t, WithPlugins(pipeline.Plugin{
		Name:            "recorder",
		OnRequest:       record("request"),
		OnParams:        record("params"),
		OnParse:         record("parse"),
		OnValidate:      record("validate"),
		OnExecute:       record("execute"),
		OnSubscribe:     record("subscribe"),
		OnResultProcess: record("result"),
		OnResponse:      func(req *pipeline.Request) { finalStatus = req.Status() },
	}))
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"request", "params", "parse", "validate", "execute", "result"}, seen)
	assert.Equal(t, http.StatusOK, finalStatus)
}

func TestPluginEndsResponse(t *testing.T) {
	h, _ := newTestHandler(t, WithPlugins(pipeline.Plugin{
		OnParams: func(req *pipeline.Request) error {
			if req.Raw()["query"] == "{ hello }" {
				req.Header().Set("X-Cache", "hit")
				req.EndResponse(&pipeline.Response{Status: http.StatusOK, Body: []byte(`{"data":{"hello":"cached"}}`)})
			}
			return nil
		},
	}))
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"data":{"hello":"cached"}}`, w.Body.String())
}

func TestPluginErrors(t *testing.T) {
	h, fx := newTestHandler(t, WithPlugins(pipeline.Plugin{
		OnRequest: func(req *pipeline.Request) error {
			switch req.HTTP.Header.Get("Authorization") {
			case "":
				return gqlerrors.New("Unauthorized", gqlerrors.WithStatus(http.StatusUnauthorized))
			case "boom":
				return errors.New("token store unavailable")
			}
			return nil
		},
	}))

	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Unauthorized")

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "boom")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), gqlerrors.MaskedMessage)
	assert.Contains(t, fx.logs.String(), "token store unavailable")
}

func TestResultProcessHookError(t *testing.T) {
	var calls atomic.Int32
	h, fx := newTestHandler(t, WithPlugins(pipeline.Plugin{
		OnResultProcess: func(*pipeline.Request) error {
			calls.Add(1)
			return errors.New("cache backend down")
		},
	}))
	w := do(h, http.MethodPost, "/graphql", "application/graphql-response+json", "application/json", `{"query":"{ hello }"}`)

	assert.Equal(t, int32(1), calls.Load())
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/graphql-response+json; charset=utf-8", w.Header().Get("Content-Type"))
	body := decode(t, w)
	e := body["errors"].([]any)[0].(map[string]any)
	assert.Equal(t, gqlerrors.MaskedMessage, e["message"])
	assert.Contains(t, fx.logs.String(), "cache backend down")
}

func TestPluginProvidesResult(t *testing.T) {
	h, _ := newTestHandler(t, WithPlugins(pipeline.Plugin{
		OnExecute: func(req *pipeline.Request) error {
			req.SetResult(executor.SingleResult(&executor.ExecutionResult{Data: map[string]any{"hello": "from plugin"}}))
			return nil
		},
	}))
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	assert.JSONEq(t, `{"data":{"hello":"from plugin"}}`, w.Body.String())
}

func TestContextFactory(t *testing.T) {
	type key struct{}
	h, fx := newTestHandler(t, WithContextFactory(func(ctx context.Context, req *pipeline.Request) (context.Context, error) {
		return context.WithValue(ctx, key{}, req.Operation().Operation), nil
	}))
	w := do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	ctx := fx.captured.Load().(context.Context)
	assert.EqualValues(t, "query", ctx.Value(key{}))
	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestCachesAreUsed(t *testing.T) {
	h, _ := newTestHandler(t)
	for i := 0; i < 3; i++ {
		do(h, http.MethodPost, "/graphql", "", "application/json", `{"query":"{ hello }"}`)
	}
	stats := map[string][2]uint64{}
	h.WatchCaches(func(name string, f func() (uint64, uint64)) {
		hits, misses := f()
		stats[name] = [2]uint64{hits, misses}
	})
	assert.Equal(t, [2]uint64{2, 1}, stats["parse"])
	assert.Equal(t, [2]uint64{2, 1}, stats["validation"])
}

func TestNewRejectsMissingSchema(t *testing.T) {
	_, err := New(resolver.New(), nil)
	require.Error(t, err)
	_, err = New(resolver.New(), schema.NewSchema(""))
	require.Error(t, err)
}
