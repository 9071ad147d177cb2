package defaultschema

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlserve/internal/executor"
	language "github.com/hanpama/gqlserve/internal/language"
	"github.com/hanpama/gqlserve/internal/stream"
)

func TestGreetings(t *testing.T) {
	sch, reg, err := Build(0)
	require.NoError(t, err)

	doc, perr := language.ParseQuery(`{ greetings }`)
	require.NoError(t, perr)

	res := executor.NewExecutor(reg, sch).Execute(context.Background(), executor.Params{Document: doc})
	require.NotNil(t, res.Single)
	if diff := cmp.Diff(map[string]any{"greetings": Greeting}, res.Single.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeSubscription(t *testing.T) {
	sch, reg, err := Build(time.Millisecond)
	require.NoError(t, err)

	doc, perr := language.ParseQuery(`subscription { time }`)
	require.NoError(t, perr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := executor.NewExecutor(reg, sch).Subscribe(ctx, executor.Params{Document: doc})
	require.NotNil(t, res.Stream)
	defer res.Stream.Close()

	for i := 0; i < 3; i++ {
		v, err := res.Stream.Next(ctx)
		require.NoError(t, err)
		require.Empty(t, v.Errors)
		data := v.Data.(map[string]any)
		_, err = time.Parse(time.RFC3339Nano, data["time"].(string))
		require.NoError(t, err)
	}
}

func TestClockStopsOnCancel(t *testing.T) {
	it := clock(time.Hour)
	defer it.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := it.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, stream.Done)
}
