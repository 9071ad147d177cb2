// Package defaultschema is the schema served when no other schema is given.
// It is small enough to try queries and subscriptions from GraphiQL.
package defaultschema

import (
	"context"
	"time"

	"github.com/hanpama/gqlserve/internal/resolver"
	"github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

// SDL is the type system of the default schema.
const SDL = `type Query {
  greetings: String
}

type Subscription {
  "Current server time, once per tick."
  time: String
}
`

// Greeting is the value of Query.greetings.
const Greeting = "This is the `greetings` field of the root `Query` type"

// Build returns the default schema and its runtime. Subscription.time
// emits one RFC 3339 timestamp per tick; tick <= 0 means one second.
func Build(tick time.Duration) (*schema.Schema, *resolver.Registry, error) {
	if tick <= 0 {
		tick = time.Second
	}
	sch, err := schema.BuildFromSDL(SDL)
	if err != nil {
		return nil, nil, err
	}
	reg := resolver.New().
		Field("Query", "greetings", func(context.Context, any, map[string]any) (any, error) {
			return Greeting, nil
		}).
		Subscription("Subscription", "time", func(ctx context.Context, _ map[string]any) (stream.Iterator[any], error) {
			return clock(tick), nil
		})
	if err := reg.Bind(sch); err != nil {
		return nil, nil, err
	}
	return sch, reg, nil
}

func clock(tick time.Duration) stream.Iterator[any] {
	t := time.NewTicker(tick)
	return stream.Func(func(ctx context.Context) (any, error) {
		select {
		case now := <-t.C:
			return now.UTC().Format(time.RFC3339Nano), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, func() error {
		t.Stop()
		return nil
	})
}
