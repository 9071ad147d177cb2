package executor

import (
	"errors"

	"github.com/hanpama/gqlserve/internal/stream"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Location is a line/column position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	// Err is the underlying cause when the error was raised by a resolver or
	// hook rather than by GraphQL itself. It is never serialized.
	Err error `json:"-"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

func (e GraphQLError) Unwrap() error { return e.Err }

// AsGraphQLError converts err into a GraphQLError. Errors that already carry
// GraphQL shape (GraphQLError, *gqlerror.Error) keep their message and
// extensions; any other error is kept as the cause.
func AsGraphQLError(err error) GraphQLError {
	var ge GraphQLError
	if errors.As(err, &ge) {
		return ge
	}
	var pge *GraphQLError
	if errors.As(err, &pge) && pge != nil {
		return *pge
	}
	var gq *gqlerror.Error
	if errors.As(err, &gq) && gq != nil {
		return FromGQLError(gq)
	}
	return GraphQLError{Message: err.Error(), Err: err}
}

// FromGQLError converts a parser or validator error.
func FromGQLError(err *gqlerror.Error) GraphQLError {
	out := GraphQLError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		out.Locations = append(out.Locations, Location{Line: loc.Line, Column: loc.Column})
	}
	for _, p := range err.Path {
		switch v := p.(type) {
		case ast.PathIndex:
			out.Path = append(out.Path, int(v))
		case ast.PathName:
			out.Path = append(out.Path, string(v))
		}
	}
	return out
}

// FromGQLErrors converts a list of parser or validator errors.
func FromGQLErrors(list gqlerror.List) []GraphQLError {
	out := make([]GraphQLError, 0, len(list))
	for _, err := range list {
		out = append(out, FromGQLError(err))
	}
	return out
}

// ExecutionResult represents the result of executing a GraphQL query. For
// incremental delivery the first payload carries Data and HasNext; later
// payloads carry Incremental and HasNext.
type ExecutionResult struct {
	Data        any                  `json:"data,omitempty"`
	Errors      []GraphQLError       `json:"errors,omitempty"`
	Extensions  map[string]any       `json:"extensions,omitempty"`
	Incremental []IncrementalPayload `json:"incremental,omitempty"`
	HasNext     *bool                `json:"hasNext,omitempty"`
}

// IncrementalPayload is one deferred fragment (Data) or a batch of streamed
// list items (Items) delivered after the initial result.
type IncrementalPayload struct {
	Data   any            `json:"data,omitempty"`
	Items  any            `json:"items,omitempty"`
	Path   Path           `json:"path"`
	Label  string         `json:"label,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// Result is what an operation produces: either a single ExecutionResult or a
// stream of them (subscriptions, @defer, @stream).
type Result struct {
	Single *ExecutionResult
	Stream stream.Iterator[*ExecutionResult]
}

// SingleResult wraps r.
func SingleResult(r *ExecutionResult) Result { return Result{Single: r} }

// ErrorResult returns a single result carrying only errs.
func ErrorResult(errs ...GraphQLError) Result {
	return Result{Single: &ExecutionResult{Errors: errs}}
}

// IsStream reports whether the result is delivered over time.
func (r Result) IsStream() bool { return r.Stream != nil }

func boolPtr(b bool) *bool { return &b }
