package executor

import (
	"context"

	"github.com/hanpama/gqlserve/internal/stream"
)

// Runtime resolves fields for the Executor.
//
// Within one depth the Executor first resolves every synchronous field with
// ResolveSync, then hands all batch-resolved fields of that depth to a single
// BatchResolveAsync call. ResolveSync is never called for a field marked
// Async, and BatchResolveAsync is never called with an empty batch.
//
// objectType is the parent type name (the root type name for root fields),
// source the parent value (nil at the root) and args the coerced arguments.
// Implementations must not mutate source or args and must be safe for
// concurrent operations.
//
// Returned errors become located GraphQL errors on the field. A list field
// may resolve to a stream.Iterator[any]; it is pulled lazily under @stream
// and drained and closed otherwise.
type Runtime interface {
	// ResolveSync returns the raw value of a synchronous field. (nil, nil)
	// is a GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves the batch-resolved fields of one depth. It
	// returns exactly one result per task, in task order; an error in one
	// result does not affect the others. Tasks under paths already nulled by
	// a Non-Null violation are not included.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the object type of a value of an interface or union
	// type. The name must be one of the abstract type's possible types.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-safe value.
	// Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one batch-resolved field of a depth.
type AsyncResolveTask struct {
	ObjectType string
	Field      string
	Source     any // nil for root fields
	Args       map[string]any
}

// AsyncResolveResult is the raw value, or the error, of one task.
type AsyncResolveResult struct {
	Value any
	Error error
}

// SubscriptionRuntime is implemented by runtimes that can serve subscription
// operations.
type SubscriptionRuntime interface {
	// Subscribe creates the source event stream for a root subscription
	// field. Every event becomes the value of that field for one execution of
	// the selection set. The stream must honor ctx in Next and release its
	// resources in Close.
	Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (stream.Iterator[any], error)
}
