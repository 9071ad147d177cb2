// Package gqlerrors builds GraphQL errors that carry HTTP semantics and
// derives the response status and headers from a result.
//
// HTTP information travels in extensions.http ({status, headers, spec}) and
// is stripped before the result is written.
package gqlerrors

import (
	"errors"
	"net/http"
	"strings"

	executor "github.com/hanpama/gqlserve/internal/executor"
)

// MaskedMessage replaces the message of unexpected errors.
const MaskedMessage = "Unexpected error."

const (
	extHTTP       = "http"
	extUnexpected = "unexpected"
	extOriginal   = "originalError"
)

// Option configures an error built by New.
type Option func(*executor.GraphQLError)

// New returns a GraphQL error with the given message.
func New(message string, opts ...Option) executor.GraphQLError {
	e := executor.GraphQLError{Message: message}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func httpExt(e *executor.GraphQLError) map[string]any {
	if e.Extensions == nil {
		e.Extensions = map[string]any{}
	}
	h, ok := e.Extensions[extHTTP].(map[string]any)
	if !ok {
		h = map[string]any{}
		e.Extensions[extHTTP] = h
	}
	return h
}

// WithStatus sets the HTTP status the error asks for.
func WithStatus(code int) Option {
	return func(e *executor.GraphQLError) { httpExt(e)["status"] = code }
}

// WithHeader adds a response header the error asks for.
func WithHeader(key, value string) Option {
	return func(e *executor.GraphQLError) {
		h := httpExt(e)
		headers, ok := h["headers"].(map[string]string)
		if !ok {
			headers = map[string]string{}
			h["headers"] = headers
		}
		headers[key] = value
	}
}

// Spec marks an error whose status is mandated by the GraphQL-over-HTTP
// rules for application/graphql-response+json. Clients that negotiated
// application/json receive 200 for it instead.
func Spec() Option {
	return func(e *executor.GraphQLError) { httpExt(e)["spec"] = true }
}

// WithExtension sets a public extension.
func WithExtension(key string, value any) Option {
	return func(e *executor.GraphQLError) {
		if e.Extensions == nil {
			e.Extensions = map[string]any{}
		}
		e.Extensions[key] = value
	}
}

// BadRequest is a 400 error.
func BadRequest(message string, opts ...Option) executor.GraphQLError {
	return New(message, append([]Option{WithStatus(http.StatusBadRequest)}, opts...)...)
}

// FromDocument converts parse or validation errors into 400 spec errors.
func FromDocument(errs []executor.GraphQLError) []executor.GraphQLError {
	out := make([]executor.GraphQLError, len(errs))
	for i, e := range errs {
		ext := make(map[string]any, len(e.Extensions)+1)
		for k, v := range e.Extensions {
			ext[k] = v
		}
		e.Extensions = ext
		WithStatus(http.StatusBadRequest)(&e)
		Spec()(&e)
		out[i] = e
	}
	return out
}

// IsUnexpected reports whether e was produced by something other than
// GraphQL: a resolver or hook returned a plain Go error.
func IsUnexpected(e executor.GraphQLError) bool {
	if e.Extensions != nil {
		if v, _ := e.Extensions[extUnexpected].(bool); v {
			return true
		}
	}
	if e.Err == nil {
		return false
	}
	var ge executor.GraphQLError
	if errors.As(e.Err, &ge) {
		return false
	}
	var pge *executor.GraphQLError
	return !errors.As(e.Err, &pge)
}

// Mask hides the message of unexpected errors. In development mode the
// original message is kept under extensions.originalError.
func Mask(e executor.GraphQLError, dev bool) executor.GraphQLError {
	if e.Err == nil || !IsUnexpected(e) {
		return e
	}
	ext := map[string]any{extUnexpected: true}
	if dev {
		ext[extOriginal] = map[string]any{"message": e.Err.Error()}
	}
	return executor.GraphQLError{
		Message:    MaskedMessage,
		Locations:  e.Locations,
		Path:       e.Path,
		Extensions: ext,
		Err:        e.Err,
	}
}

// FromError turns any error reaching the error layer into client errors.
// GraphQL-shaped errors pass through; anything else is masked.
func FromError(err error, dev bool) []executor.GraphQLError {
	var list List
	if errors.As(err, &list) {
		out := make([]executor.GraphQLError, len(list))
		for i, e := range list {
			out[i] = Mask(e, dev)
		}
		return out
	}
	return []executor.GraphQLError{Mask(executor.AsGraphQLError(err), dev)}
}

// List carries several errors through an error return.
type List []executor.GraphQLError

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "\n")
}

// StatusFor derives the response status and extra headers of a result.
// jsonNegotiated reports that the client accepted application/json rather
// than application/graphql-response+json; spec errors then keep status 200.
func StatusFor(res *executor.ExecutionResult, jsonNegotiated bool) (int, http.Header) {
	headers := http.Header{}
	status := 0
	if res == nil {
		return http.StatusOK, headers
	}
	if h, ok := res.Extensions[extHTTP].(map[string]any); ok {
		mergeHeaders(headers, h["headers"])
		if s := asInt(h["status"]); s > 0 {
			status = s
		}
	}
	unexpected := false
	for _, e := range res.Errors {
		h, ok := e.Extensions[extHTTP].(map[string]any)
		if !ok {
			if IsUnexpected(e) {
				unexpected = true
			}
			continue
		}
		mergeHeaders(headers, h["headers"])
		if spec, _ := h["spec"].(bool); spec && jsonNegotiated {
			continue
		}
		if s := asInt(h["status"]); s > status {
			status = s
		}
	}
	if status == 0 {
		if unexpected && res.Data == nil {
			status = http.StatusInternalServerError
		} else {
			status = http.StatusOK
		}
	}
	return status, headers
}

// Strip returns a copy of res without the internal extensions.
func Strip(res *executor.ExecutionResult) *executor.ExecutionResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Extensions = stripExtensions(res.Extensions)
	out.Errors = stripErrors(res.Errors)
	if len(res.Incremental) > 0 {
		out.Incremental = make([]executor.IncrementalPayload, len(res.Incremental))
		for i, p := range res.Incremental {
			p.Errors = stripErrors(p.Errors)
			out.Incremental[i] = p
		}
	}
	return &out
}

func stripErrors(errs []executor.GraphQLError) []executor.GraphQLError {
	if len(errs) == 0 {
		return errs
	}
	out := make([]executor.GraphQLError, len(errs))
	for i, e := range errs {
		e.Extensions = stripExtensions(e.Extensions)
		out[i] = e
	}
	return out
}

func stripExtensions(ext map[string]any) map[string]any {
	if ext == nil {
		return nil
	}
	_, hasHTTP := ext[extHTTP]
	_, hasUnexpected := ext[extUnexpected]
	if !hasHTTP && !hasUnexpected {
		return ext
	}
	out := make(map[string]any, len(ext))
	for k, v := range ext {
		if k == extHTTP || k == extUnexpected {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaders(dst http.Header, v any) {
	switch h := v.(type) {
	case map[string]string:
		for k, val := range h {
			dst.Set(k, val)
		}
	case map[string]any:
		for k, val := range h {
			if s, ok := val.(string); ok {
				dst.Set(k, s)
			}
		}
	case http.Header:
		for k, vals := range h {
			for _, val := range vals {
				dst.Add(k, val)
			}
		}
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
