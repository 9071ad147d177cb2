package executor

import (
	"context"
	"slices"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// executionState is what one execution carries around: the inputs, the
// fields waiting for the next batch, and the errors raised so far. Deferred
// fragments and streamed items run in child states that write into a part of
// the response.
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	ctx            context.Context

	pending []pendingField
	errors  []GraphQLError

	// nonNull holds the response positions whose type is non-null. A null
	// for a batched field climbs them to the nearest nullable position,
	// which is then pruned: nothing below it is resolved or written again.
	nonNull map[string]struct{}
	pruned  map[string]struct{}
	// nulled is set when a null climbed past every field of the object at
	// basePath, so the object itself is null.
	nulled bool

	// basePath is the absolute path of the value this state writes into.
	// rootKey, when set, is the key that value lives under in the write
	// root. Both are empty when running a whole operation.
	basePath Path
	rootKey  string

	// event is the source event of a subscription execution. It becomes the
	// value of the root field.
	event    any
	hasEvent bool

	// incremental collects @defer and @stream work. Nil means both
	// directives are ignored and everything is delivered at once.
	incremental *incrementalState
}

func (e *Executor) newState(ctx context.Context, document *language.QueryDocument, variableValues map[string]any) *executionState {
	return &executionState{
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: variableValues,
		ctx:            ctx,
	}
}

// child returns a state for a deferred fragment or streamed item writing
// into the value at base.
func (s *executionState) child(base Path, rootKey string) *executionState {
	return &executionState{
		runtime:        s.runtime,
		schema:         s.schema,
		document:       s.document,
		variableValues: s.variableValues,
		ctx:            s.ctx,
		basePath:       base,
		rootKey:        rootKey,
		incremental:    s.incremental,
	}
}

// addError records an error raised by the executor itself.
func (s *executionState) addError(message string, path Path, fields []*language.Field) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path, Locations: fieldLocations(fields)})
}

// addFieldError records an error returned by the runtime, keeping its cause.
func (s *executionState) addFieldError(err error, path Path, fields []*language.Field) {
	ge := AsGraphQLError(err)
	ge.Path = path
	if len(ge.Locations) == 0 {
		ge.Locations = fieldLocations(fields)
	}
	s.errors = append(s.errors, ge)
}

func (s *executionState) hasErrorAt(path Path) bool {
	return slices.ContainsFunc(s.errors, func(e GraphQLError) bool {
		return slices.Equal(e.Path, path)
	})
}

func fieldLocations(fields []*language.Field) []Location {
	if len(fields) == 0 || fields[0].Position == nil {
		return nil
	}
	return []Location{{Line: fields[0].Position.Line, Column: fields[0].Position.Column}}
}

// markNonNull records that the value at path may not be null.
func (s *executionState) markNonNull(path Path) {
	if s.nonNull == nil {
		s.nonNull = map[string]struct{}{}
	}
	s.nonNull[path.String()] = struct{}{}
}

// prune writes null at the nearest nullable position at or above path. It
// does not climb past the fields directly below the state's base path; a
// non-null field there nulls the whole object the state writes.
func (s *executionState) prune(root map[string]any, path Path) {
	target := path
	for len(target) > len(s.basePath)+1 {
		if _, ok := s.nonNull[target.String()]; !ok {
			break
		}
		target = target[:len(target)-1]
	}
	if _, ok := s.nonNull[target.String()]; ok && len(target) == len(s.basePath)+1 && s.rootKey == "" {
		s.nulled = true
	}
	setValueAtPath(root, s.relative(target), nil)
	if s.pruned == nil {
		s.pruned = map[string]struct{}{}
	}
	s.pruned[target.String()] = struct{}{}
}

// isPruned reports whether path lies at or below a pruned position.
func (s *executionState) isPruned(path Path) bool {
	if len(s.pruned) == 0 {
		return false
	}
	for i := range path {
		if _, ok := s.pruned[path[:i+1].String()]; ok {
			return true
		}
	}
	return false
}

// relative maps an absolute response path into the state's write root.
func (s *executionState) relative(p Path) Path {
	if len(s.basePath) == 0 && s.rootKey == "" {
		return p
	}
	var rel Path
	if s.rootKey != "" {
		rel = append(rel, s.rootKey)
	}
	if len(p) > len(s.basePath) {
		rel = append(rel, p[len(s.basePath):]...)
	}
	return rel
}
