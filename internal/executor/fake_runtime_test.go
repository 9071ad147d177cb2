package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

// resultOpts compares results by message and path, treating nil and empty
// collections alike.
var resultOpts = cmp.Options{
	cmpopts.IgnoreFields(GraphQLError{}, "Locations", "Err"),
	cmpopts.EquateEmpty(),
}

type resolveFunc func(ctx context.Context, source any, args map[string]any) (any, error)

type subscribeFunc func(ctx context.Context, args map[string]any) (stream.Iterator[any], error)

func returns(v any) resolveFunc {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

func fails(msg string) resolveFunc {
	err := errors.New(msg)
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// call is one field resolution seen by fakeRuntime. Batch is zero for
// ResolveSync and the 1-based BatchResolveAsync invocation otherwise.
type call struct {
	Coord  string
	Batch  int
	Source any
	Args   map[string]any
}

// fakeRuntime resolves fields from a table keyed by "Type.field" and keeps
// the calls in order. Unknown fields resolve to null.
type fakeRuntime struct {
	fields map[string]resolveFunc
	subs   map[string]subscribeFunc
	typeOf func(value any) (string, error)
	leaf   func(typ string, value any) (any, error)

	mu      sync.Mutex
	calls   []call
	batches int
}

func newFake(fields map[string]resolveFunc) *fakeRuntime {
	return &fakeRuntime{fields: fields, subs: map[string]subscribeFunc{}}
}

func (f *fakeRuntime) resolve(ctx context.Context, coord string, batch int, source any, args map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Coord: coord, Batch: batch, Source: source, Args: args})
	fn := f.fields[coord]
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, source, args)
}

func (f *fakeRuntime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return f.resolve(ctx, objectType+"."+field, 0, source, args)
}

func (f *fakeRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	f.mu.Lock()
	f.batches++
	batch := f.batches
	f.mu.Unlock()
	out := make([]AsyncResolveResult, len(tasks))
	for i, task := range tasks {
		v, err := f.resolve(ctx, task.ObjectType+"."+task.Field, batch, task.Source, task.Args)
		out[i] = AsyncResolveResult{Value: v, Error: err}
	}
	return out
}

func (f *fakeRuntime) ResolveType(_ context.Context, _ string, value any) (string, error) {
	if f.typeOf != nil {
		return f.typeOf(value)
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type of %v", value)
}

func (f *fakeRuntime) SerializeLeafValue(_ context.Context, typ string, value any) (any, error) {
	if f.leaf != nil {
		return f.leaf(typ, value)
	}
	return value, nil
}

func (f *fakeRuntime) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (stream.Iterator[any], error) {
	sub := f.subs[objectType+"."+field]
	if sub == nil {
		return nil, fmt.Errorf("no subscriber for %s.%s", objectType, field)
	}
	return sub(ctx, args)
}

// trace lists the calls as "Type.field" for ResolveSync and "Type.field#n"
// for the nth batch.
func (f *fakeRuntime) trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Coord
		if c.Batch > 0 {
			out[i] = fmt.Sprintf("%s#%d", c.Coord, c.Batch)
		}
	}
	return out
}

// buildSchema builds sdl and marks the "Type.field" coordinates in async as
// batch resolved.
func buildSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	for _, coord := range async {
		typ, field, _ := strings.Cut(coord, ".")
		f := sch.Types[typ].Field(field)
		require.NotNil(t, f, coord)
		f.SetAsync(true)
	}
	return sch
}

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	require.NoError(t, err)
	return d
}
