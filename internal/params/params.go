// Package params turns HTTP requests into GraphQL request parameters.
//
// Extract reads whatever transport the request uses into an untyped Raw map;
// Validate checks that map and produces GraphQLParams. The two steps are
// separate so that plugins can inspect or rewrite the raw parameters (for
// example to fill in a persisted query) before they are validated.
package params

import (
	"net/http"
	"sort"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	language "github.com/hanpama/gqlserve/internal/language"
)

// Raw is the decoded transport payload before validation.
type Raw map[string]any

// GraphQLParams are the validated parameters of one GraphQL request.
type GraphQLParams struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Extensions    map[string]any
	// Extra holds allow-listed non-standard parameters.
	Extra map[string]any
}

var standardKeys = map[string]bool{
	"query":         true,
	"variables":     true,
	"operationName": true,
	"extensions":    true,
}

// Validate checks raw and returns typed parameters. extra lists additional
// keys that may appear in the request.
func Validate(raw Raw, extra []string) (*GraphQLParams, error) {
	allowed := make(map[string]bool, len(extra))
	for _, k := range extra {
		allowed[k] = true
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !standardKeys[k] && !allowed[k] && raw[k] != nil {
			return nil, gqlerrors.BadRequest(`Unexpected parameter "` + k + `" in the request body.`)
		}
	}

	q, ok := raw["query"]
	if !ok || q == nil {
		return nil, gqlerrors.BadRequest("Must provide query string.", gqlerrors.Spec())
	}
	query, ok := q.(string)
	if !ok {
		return nil, gqlerrors.BadRequest(`Expected "query" param to be a string, but given ` + TypeName(q) + ".")
	}

	p := &GraphQLParams{Query: query}
	if v := raw["operationName"]; v != nil {
		name, ok := v.(string)
		if !ok {
			return nil, gqlerrors.BadRequest(`Expected "operationName" param to be a string, but given ` + TypeName(v) + ".")
		}
		p.OperationName = name
	}
	if v := raw["variables"]; v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, gqlerrors.BadRequest(`Expected "variables" param to be empty or an object, but given ` + TypeName(v) + ".")
		}
		p.Variables = m
	}
	if v := raw["extensions"]; v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, gqlerrors.BadRequest(`Expected "extensions" param to be empty or an object, but given ` + TypeName(v) + ".")
		}
		p.Extensions = m
	}
	for _, k := range extra {
		if v, ok := raw[k]; ok {
			if p.Extra == nil {
				p.Extra = map[string]any{}
			}
			p.Extra[k] = v
		}
	}
	return p, nil
}

// CheckOperationMethod resolves the operation to run and rejects mutations
// sent with GET.
func CheckOperationMethod(method string, doc *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	op := executor.OperationFor(doc, operationName)
	if op == nil {
		return nil, gqlerrors.BadRequest("Could not determine what operation to execute.")
	}
	if method == http.MethodGet && op.Operation == language.Mutation {
		return nil, gqlerrors.New("Can only perform a mutation operation from a POST request.",
			gqlerrors.WithStatus(http.StatusMethodNotAllowed),
			gqlerrors.WithHeader("Allow", "POST"))
	}
	return op, nil
}

// TypeName names the JSON type of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
