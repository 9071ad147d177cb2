package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

func subscriptionSchema(t *testing.T) *schema.Schema {
	return buildSchema(t, `
		type Query { a: String }
		type Subscription { tick(every: Int): Tick }
		type Tick { n: Int }`)
}

func TestSubscribe_EventsExecuteSelectionSet(t *testing.T) {
	rt := newFake(map[string]resolveFunc{
		"Tick.n": func(ctx context.Context, src any, args map[string]any) (any, error) {
			return src.(map[string]any)["n"], nil
		},
	})
	var gotArgs map[string]any
	rt.subs["Subscription.tick"] = func(ctx context.Context, args map[string]any) (stream.Iterator[any], error) {
		gotArgs = args
		return stream.FromSlice([]any{map[string]any{"n": 1}, map[string]any{"n": 2}}), nil
	}
	exec := NewExecutor(rt, subscriptionSchema(t))
	doc := mustParseQuery(t, `subscription { tick(every: 5) { n } }`)

	res := exec.Subscribe(context.Background(), Params{Document: doc})
	require.True(t, res.IsStream())
	got, err := stream.Collect(context.Background(), res.Stream)
	require.NoError(t, err)

	want := []*ExecutionResult{
		{Data: map[string]any{"tick": map[string]any{"n": 1}}, Errors: []GraphQLError{}},
		{Data: map[string]any{"tick": map[string]any{"n": 2}}, Errors: []GraphQLError{}},
	}
	if diff := cmp.Diff(want, got, resultOpts); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]any{"every": 5}, gotArgs)

	require.NotContains(t, rt.trace(), "Subscription.tick", "root field must not be resolved per event")
}

func TestSubscribe_SetupError_IsSingleResult(t *testing.T) {
	rt := newFake(nil)
	boom := errors.New("not allowed")
	rt.subs["Subscription.tick"] = func(ctx context.Context, args map[string]any) (stream.Iterator[any], error) {
		return nil, boom
	}
	exec := NewExecutor(rt, subscriptionSchema(t))
	doc := mustParseQuery(t, `subscription { tick { n } }`)

	res := exec.Subscribe(context.Background(), Params{Document: doc})

	require.False(t, res.IsStream())
	require.Len(t, res.Single.Errors, 1)
	require.Equal(t, "not allowed", res.Single.Errors[0].Message)
	require.Equal(t, Path{"tick"}, res.Single.Errors[0].Path)
	require.ErrorIs(t, res.Single.Errors[0], boom)
	require.Nil(t, res.Single.Data)
}

func TestSubscribe_QueryOperationDelegatesToExecute(t *testing.T) {
	rt := newFake(map[string]resolveFunc{"Query.a": returns("A")})
	exec := NewExecutor(rt, subscriptionSchema(t))
	doc := mustParseQuery(t, `{ a }`)

	res := exec.Subscribe(context.Background(), Params{Document: doc})

	require.False(t, res.IsStream())
	require.Equal(t, map[string]any{"a": "A"}, res.Single.Data)
}

func TestSubscribe_ClosingResultClosesSource(t *testing.T) {
	closed := 0
	rt := newFake(nil)
	rt.subs["Subscription.tick"] = func(ctx context.Context, args map[string]any) (stream.Iterator[any], error) {
		return stream.Func(func(ctx context.Context) (any, error) {
			return map[string]any{"n": 1}, nil
		}, func() error { closed++; return nil }), nil
	}
	exec := NewExecutor(rt, subscriptionSchema(t))
	doc := mustParseQuery(t, `subscription { tick { __typename } }`)

	res := exec.Subscribe(context.Background(), Params{Document: doc})
	require.True(t, res.IsStream())
	ev, err := res.Stream.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"tick": map[string]any{"__typename": "Tick"}}, ev.Data)

	require.NoError(t, res.Stream.Close())
	require.Equal(t, 1, closed)
}

func TestSubscribe_MissingSubscriptionType(t *testing.T) {
	sch := subscriptionSchema(t)
	sch.SubscriptionType = ""
	exec := NewExecutor(newFake(nil), sch)
	doc := mustParseQuery(t, `subscription { tick { n } }`)

	res := exec.Subscribe(context.Background(), Params{Document: doc})

	require.False(t, res.IsStream())
	require.Equal(t, "root type not found for subscription operation", res.Single.Errors[0].Message)
}
