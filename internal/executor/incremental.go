package executor

import (
	"context"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/stream"
)

// incrementalState is the queue of work left behind by @defer and @stream.
// Records are delivered in the order they were registered; a streamed list
// goes back to the end of the queue after each item.
type incrementalState struct {
	queue []any
}

type deferRecord struct {
	parent       *executionState
	path         Path
	label        string
	objectType   *schema.Type
	objectValue  any
	selectionSet language.SelectionSet
}

type streamRecord struct {
	parent   *executionState
	path     Path
	label    string
	itemType *schema.TypeRef
	fields   []*language.Field
	index    int
	items    stream.Iterator[any]
}

// incrementalStream yields the initial result followed by one payload per
// deferred fragment or streamed item, then a final {hasNext:false}.
type incrementalStream struct {
	inc     *incrementalState
	initial *ExecutionResult
	done    bool
}

func newIncrementalStream(inc *incrementalState, initial *ExecutionResult) stream.Iterator[*ExecutionResult] {
	s := &incrementalStream{inc: inc, initial: initial}
	return stream.Func(s.next, s.close)
}

func (s *incrementalStream) next(ctx context.Context) (*ExecutionResult, error) {
	if s.initial != nil {
		res := s.initial
		s.initial = nil
		return res, nil
	}
	if s.done {
		return nil, stream.Done
	}
	for len(s.inc.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := s.inc.queue[0]
		s.inc.queue = s.inc.queue[1:]

		switch r := rec.(type) {
		case *deferRecord:
			if r.parent.isPruned(r.path) {
				continue
			}
			return s.emit(runDeferred(r)), nil

		case *streamRecord:
			if r.parent.isPruned(r.path) {
				r.items.Close()
				continue
			}
			item, err := r.items.Next(ctx)
			if err == stream.Done {
				r.items.Close()
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					// Put it back so close releases the iterator.
					s.inc.queue = append([]any{r}, s.inc.queue...)
					return nil, err
				}
				r.items.Close()
				ge := AsGraphQLError(err)
				ge.Path = r.path
				ge.Locations = fieldLocations(r.fields)
				return s.emit(IncrementalPayload{Path: r.path, Label: r.label, Errors: []GraphQLError{ge}}), nil
			}
			payload := runStreamItem(r, item)
			r.index++
			s.inc.queue = append(s.inc.queue, r)
			return s.emit(payload), nil
		}
	}
	s.done = true
	return &ExecutionResult{HasNext: boolPtr(false)}, nil
}

func (s *incrementalStream) emit(p IncrementalPayload) *ExecutionResult {
	hasNext := len(s.inc.queue) > 0
	if !hasNext {
		s.done = true
	}
	return &ExecutionResult{Incremental: []IncrementalPayload{p}, HasNext: boolPtr(hasNext)}
}

func (s *incrementalStream) close() error {
	s.inc.discard()
	s.done = true
	return nil
}

// discard drops the queued work, closing streamed list sources.
func (inc *incrementalState) discard() {
	for _, rec := range inc.queue {
		if r, ok := rec.(*streamRecord); ok {
			r.items.Close()
		}
	}
	inc.queue = nil
}

func runDeferred(r *deferRecord) IncrementalPayload {
	sub := r.parent.child(r.path, "")
	data := executeSelectionSet(sub, r.objectType, r.selectionSet, r.objectValue, r.path)
	if data != nil {
		runBatches(sub, data)
	}
	p := IncrementalPayload{Path: r.path, Label: r.label, Errors: sub.errors}
	if data != nil && !sub.nulled {
		p.Data = data
	}
	return p
}

func runStreamItem(r *streamRecord, item any) IncrementalPayload {
	itemPath := appendPath(r.path, r.index)
	sub := r.parent.child(itemPath, "item")
	root := map[string]any{"item": completeValue(sub, r.itemType, r.fields, item, itemPath)}
	runBatches(sub, root)

	v := root["item"]
	if isNullish(v) {
		v = nil
	}
	return IncrementalPayload{Items: []any{v}, Path: itemPath, Label: r.label, Errors: sub.errors}
}
