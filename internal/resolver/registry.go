// Package resolver provides an executor.Runtime assembled from Go functions.
//
// Fields with a registered FieldFunc or BatchFunc are resolved asynchronously:
// the executor hands every such field of one depth to BatchResolveAsync, which
// groups the tasks by (objectType, field) and runs the groups concurrently.
// All other fields are projected synchronously from the parent value by the
// default resolver.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	executor "github.com/hanpama/gqlserve/internal/executor"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

// FieldFunc resolves one field of one parent value.
type FieldFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// BatchFunc resolves one field for all parents of an execution depth. It
// returns one value per source; an element that is an error fails only that
// field instance.
type BatchFunc func(ctx context.Context, sources []any, args []map[string]any) ([]any, error)

// TypeFunc names the concrete object type of a value of an abstract type.
type TypeFunc func(ctx context.Context, value any) (string, error)

// SubscribeFunc creates the source event stream of a subscription field.
type SubscribeFunc func(ctx context.Context, args map[string]any) (stream.Iterator[any], error)

// ScalarFunc serializes a custom scalar.
type ScalarFunc func(value any) (any, error)

type fieldKey struct {
	objectType string
	field      string
}

// Registry implements executor.Runtime and executor.SubscriptionRuntime.
// Register everything before serving; the registry is read-only afterwards.
type Registry struct {
	fields        map[fieldKey]FieldFunc
	batches       map[fieldKey]BatchFunc
	types         map[string]TypeFunc
	subscriptions map[fieldKey]SubscribeFunc
	scalars       map[string]ScalarFunc

	concurrency int
}

var (
	_ executor.Runtime             = (*Registry)(nil)
	_ executor.SubscriptionRuntime = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithConcurrency bounds the number of field groups resolved in parallel.
// Zero or negative means unbounded.
func WithConcurrency(n int) Option { return func(r *Registry) { r.concurrency = n } }

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		fields:        map[fieldKey]FieldFunc{},
		batches:       map[fieldKey]BatchFunc{},
		types:         map[string]TypeFunc{},
		subscriptions: map[fieldKey]SubscribeFunc{},
		scalars:       map[string]ScalarFunc{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Field registers a resolver for objectType.field.
func (r *Registry) Field(objectType, field string, fn FieldFunc) *Registry {
	r.fields[fieldKey{objectType, field}] = fn
	return r
}

// Batch registers a batch resolver for objectType.field.
func (r *Registry) Batch(objectType, field string, fn BatchFunc) *Registry {
	r.batches[fieldKey{objectType, field}] = fn
	return r
}

// Type registers the type resolver of an interface or union.
func (r *Registry) Type(abstractType string, fn TypeFunc) *Registry {
	r.types[abstractType] = fn
	return r
}

// Subscription registers the source stream of a subscription root field.
func (r *Registry) Subscription(objectType, field string, fn SubscribeFunc) *Registry {
	r.subscriptions[fieldKey{objectType, field}] = fn
	return r
}

// Scalar registers the serializer of a custom scalar.
func (r *Registry) Scalar(name string, fn ScalarFunc) *Registry {
	r.scalars[name] = fn
	return r
}

// Bind marks the schema fields that have a resolver as asynchronous and
// reports registrations that do not match the schema.
func (r *Registry) Bind(sch *schema.Schema) error {
	var result *multierror.Error
	check := func(kind string, k fieldKey) *schema.Field {
		t := sch.Types[k.objectType]
		if t == nil {
			result = multierror.Append(result, errors.Errorf("%s %s.%s: type %s is not defined", kind, k.objectType, k.field, k.objectType))
			return nil
		}
		f := t.Field(k.field)
		if f == nil {
			result = multierror.Append(result, errors.Errorf("%s %s.%s: field is not defined", kind, k.objectType, k.field))
		}
		return f
	}
	for _, k := range sortedKeys(r.fields) {
		if f := check("resolver", k); f != nil {
			f.SetAsync(true)
		}
	}
	for _, k := range sortedKeys(r.batches) {
		if f := check("batch resolver", k); f != nil {
			f.SetAsync(true)
		}
	}
	for _, k := range sortedKeys(r.subscriptions) {
		check("subscription", k)
	}
	for name := range r.types {
		t := sch.Types[name]
		if t == nil || (t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion) {
			result = multierror.Append(result, errors.Errorf("type resolver %s: not an interface or union", name))
		}
	}
	return result.ErrorOrNil()
}

func sortedKeys[V any](m map[fieldKey]V) []fieldKey {
	keys := make([]fieldKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].objectType != keys[j].objectType {
			return keys[i].objectType < keys[j].objectType
		}
		return keys[i].field < keys[j].field
	})
	return keys
}

// ResolveSync projects the field from source unless a resolver is
// registered, in which case it is called directly.
func (r *Registry) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	k := fieldKey{objectType, field}
	if fn, ok := r.fields[k]; ok {
		return callField(ctx, k, fn, source, args)
	}
	if fn, ok := r.batches[k]; ok {
		res := r.runBatch(ctx, k, fn, []executor.AsyncResolveTask{{ObjectType: objectType, Field: field, Source: source, Args: args}})
		return res[0].Value, res[0].Error
	}
	return DefaultResolve(source, field)
}

// BatchResolveAsync groups tasks by (objectType, field) and resolves the
// groups concurrently. Results keep the order of tasks.
func (r *Registry) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	type group struct {
		key  fieldKey
		idxs []int
	}
	var groups []group
	idxByKey := map[fieldKey]int{}
	for i, t := range tasks {
		k := fieldKey{t.ObjectType, t.Field}
		if gi, ok := idxByKey[k]; ok {
			groups[gi].idxs = append(groups[gi].idxs, i)
		} else {
			idxByKey[k] = len(groups)
			groups = append(groups, group{key: k, idxs: []int{i}})
		}
	}

	run := func(g group) {
		groupTasks := make([]executor.AsyncResolveTask, len(g.idxs))
		for j, idx := range g.idxs {
			groupTasks[j] = tasks[idx]
		}
		var out []executor.AsyncResolveResult
		switch {
		case r.batches[g.key] != nil:
			out = r.runBatch(ctx, g.key, r.batches[g.key], groupTasks)
		case r.fields[g.key] != nil:
			out = make([]executor.AsyncResolveResult, len(groupTasks))
			for j, t := range groupTasks {
				v, err := callField(ctx, g.key, r.fields[g.key], t.Source, t.Args)
				out[j] = executor.AsyncResolveResult{Value: v, Error: err}
			}
		default:
			out = make([]executor.AsyncResolveResult, len(groupTasks))
			for j, t := range groupTasks {
				v, err := DefaultResolve(t.Source, t.Field)
				out[j] = executor.AsyncResolveResult{Value: v, Error: err}
			}
		}
		for j, idx := range g.idxs {
			results[idx] = out[j]
		}
	}

	if len(groups) == 1 {
		run(groups[0])
		return results
	}
	var eg errgroup.Group
	if r.concurrency > 0 {
		eg.SetLimit(r.concurrency)
	}
	for _, g := range groups {
		eg.Go(func() error {
			run(g)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (r *Registry) runBatch(ctx context.Context, k fieldKey, fn BatchFunc, tasks []executor.AsyncResolveTask) (out []executor.AsyncResolveResult) {
	out = make([]executor.AsyncResolveResult, len(tasks))
	failAll := func(err error) {
		for i := range out {
			out[i] = executor.AsyncResolveResult{Error: err}
		}
	}
	defer func() {
		if p := recover(); p != nil {
			failAll(errors.Errorf("panic in batch resolver %s.%s: %v", k.objectType, k.field, p))
		}
	}()

	sources := make([]any, len(tasks))
	args := make([]map[string]any, len(tasks))
	for i, t := range tasks {
		sources[i] = t.Source
		args[i] = t.Args
	}
	values, err := fn(ctx, sources, args)
	if err != nil {
		failAll(err)
		return out
	}
	if len(values) != len(tasks) {
		failAll(errors.Errorf("batch resolver %s.%s returned %d values for %d sources", k.objectType, k.field, len(values), len(tasks)))
		return out
	}
	for i, v := range values {
		if e, ok := v.(error); ok {
			out[i] = executor.AsyncResolveResult{Error: e}
			continue
		}
		out[i] = executor.AsyncResolveResult{Value: v}
	}
	return out
}

func callField(ctx context.Context, k fieldKey, fn FieldFunc, source any, args map[string]any) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, errors.Errorf("panic in resolver %s.%s: %v", k.objectType, k.field, p)
		}
	}()
	return fn(ctx, source, args)
}

// ResolveType asks the registered TypeFunc, then falls back to values that
// name their own type.
func (r *Registry) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if fn, ok := r.types[abstractType]; ok {
		return fn(ctx, value)
	}
	switch v := value.(type) {
	case interface{ GraphQLTypeName() string }:
		return v.GraphQLTypeName(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s from %T", abstractType, value)
}

// Subscribe implements executor.SubscriptionRuntime.
func (r *Registry) Subscribe(ctx context.Context, objectType string, field string, args map[string]any) (stream.Iterator[any], error) {
	fn, ok := r.subscriptions[fieldKey{objectType, field}]
	if !ok {
		return nil, fmt.Errorf("no event source registered for %s.%s", objectType, field)
	}
	return fn(ctx, args)
}

// SerializeLeafValue applies a registered scalar serializer or the default
// leaf serialization.
func (r *Registry) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if fn, ok := r.scalars[scalarOrEnumTypeName]; ok && value != nil {
		return fn(value)
	}
	return SerializeLeaf(value)
}
