package executor

import (
	"fmt"
	"slices"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// pendingField is an async field waiting for the batch of its depth.
type pendingField struct {
	task   AsyncResolveTask
	path   Path
	typ    *schema.TypeRef
	fields []*language.Field
}

// placeholder stands in the response for a pending field until its batch
// result is written over it.
type placeholder struct{}

// runBatches resolves pending fields one batch per round until none are
// left or the object the state writes has been nulled. Completing a batch
// queues the async fields of the next depth.
func runBatches(state *executionState, root map[string]any) {
	for len(state.pending) > 0 {
		if state.nulled {
			state.pending = nil
			return
		}
		batch := slices.DeleteFunc(state.pending, func(f pendingField) bool { return state.isPruned(f.path) })
		state.pending = nil
		if len(batch) == 0 {
			continue
		}
		results := resolveBatch(state, batch)
		for i, f := range batch {
			completePending(state, f, results[i], root)
		}
	}
}

func resolveBatch(state *executionState, batch []pendingField) []AsyncResolveResult {
	tasks := make([]AsyncResolveTask, len(batch))
	for i, f := range batch {
		tasks[i] = f.task
	}
	results := state.runtime.BatchResolveAsync(state.ctx, tasks)
	if len(results) == len(tasks) {
		return results
	}
	// Results cannot be matched to tasks, so the whole batch fails.
	err := fmt.Errorf("runtime returned %d results for %d tasks", len(results), len(tasks))
	results = make([]AsyncResolveResult, len(tasks))
	for i := range results {
		results[i].Error = err
	}
	return results
}

// completePending completes a batch result and writes it over the field's
// placeholder. A null for a non-null field prunes the nearest nullable
// position above it.
func completePending(state *executionState, f pendingField, res AsyncResolveResult, root map[string]any) {
	if state.isPruned(f.path) {
		return
	}
	var v any
	if res.Error != nil {
		state.addFieldError(res.Error, f.path, f.fields)
	} else {
		v = completeValue(state, f.typ, f.fields, res.Value, f.path)
	}
	if isNullish(v) {
		if schema.IsNonNull(f.typ) {
			state.prune(root, f.path)
			return
		}
		v = nil
	}
	setValueAtPath(root, state.relative(f.path), v)
}
