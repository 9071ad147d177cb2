package gqlerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlserve/internal/executor"
)

func TestNew_HTTPExtensions(t *testing.T) {
	e := New("nope", WithStatus(http.StatusMethodNotAllowed), WithHeader("Allow", "POST"), Spec())

	require.Equal(t, "nope", e.Message)
	require.Equal(t, map[string]any{
		"http": map[string]any{
			"status":  http.StatusMethodNotAllowed,
			"headers": map[string]string{"Allow": "POST"},
			"spec":    true,
		},
	}, e.Extensions)
}

func TestMask(t *testing.T) {
	cause := errors.New("db password wrong")

	t.Run("plain cause is masked", func(t *testing.T) {
		got := Mask(executor.AsGraphQLError(cause), false)
		assert.Equal(t, MaskedMessage, got.Message)
		assert.Equal(t, map[string]any{"unexpected": true}, got.Extensions)
		assert.ErrorIs(t, got, cause)
	})

	t.Run("development keeps original message", func(t *testing.T) {
		got := Mask(executor.AsGraphQLError(cause), true)
		assert.Equal(t, map[string]any{"message": "db password wrong"}, got.Extensions["originalError"])
	})

	t.Run("graphql errors pass", func(t *testing.T) {
		e := New("forbidden", WithExtension("code", "FORBIDDEN"))
		assert.Equal(t, e, Mask(e, false))
		wrapped := executor.AsGraphQLError(fmt.Errorf("ctx: %w", e))
		assert.Equal(t, "forbidden", Mask(wrapped, false).Message)
	})
}

func TestFromError(t *testing.T) {
	got := FromError(List{BadRequest("a"), BadRequest("b")}, false)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Message)

	got = FromError(errors.New("kaboom"), false)
	require.Len(t, got, 1)
	assert.Equal(t, MaskedMessage, got[0].Message)
}

func TestStatusFor(t *testing.T) {
	parseErr := FromDocument([]executor.GraphQLError{{Message: "Syntax Error"}})

	tests := []struct {
		name   string
		res    *executor.ExecutionResult
		json   bool
		status int
	}{
		{"no errors", &executor.ExecutionResult{Data: map[string]any{}}, false, 200},
		{"spec error with graphql-response+json", &executor.ExecutionResult{Errors: parseErr}, false, 400},
		{"spec error with legacy json", &executor.ExecutionResult{Errors: parseErr}, true, 200},
		{"field error keeps 200", &executor.ExecutionResult{Data: map[string]any{"a": nil}, Errors: []executor.GraphQLError{{Message: "x"}}}, false, 200},
		{"unexpected without data", &executor.ExecutionResult{Errors: []executor.GraphQLError{Mask(executor.AsGraphQLError(errors.New("x")), false)}}, false, 500},
		{"unexpected with data", &executor.ExecutionResult{Data: map[string]any{}, Errors: []executor.GraphQLError{Mask(executor.AsGraphQLError(errors.New("x")), false)}}, false, 200},
		{"highest status wins", &executor.ExecutionResult{Errors: []executor.GraphQLError{New("a", WithStatus(401)), New("b", WithStatus(403))}}, false, 403},
		{"result extension status", &executor.ExecutionResult{Extensions: map[string]any{"http": map[string]any{"status": 418}}}, false, 418},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := StatusFor(tt.res, tt.json)
			assert.Equal(t, tt.status, got)
		})
	}
}

func TestStatusFor_Headers(t *testing.T) {
	res := &executor.ExecutionResult{Errors: []executor.GraphQLError{
		New("Can only perform a mutation operation from a POST request.", WithStatus(405), WithHeader("Allow", "POST")),
	}}
	status, headers := StatusFor(res, false)
	assert.Equal(t, 405, status)
	assert.Equal(t, "POST", headers.Get("Allow"))
}

func TestStrip(t *testing.T) {
	res := &executor.ExecutionResult{
		Errors: []executor.GraphQLError{
			Mask(executor.AsGraphQLError(errors.New("x")), true),
			BadRequest("bad", WithExtension("code", "BAD")),
		},
		Extensions: map[string]any{"http": map[string]any{"status": 200}},
	}
	got := Strip(res)

	assert.Nil(t, got.Extensions)
	assert.Equal(t, map[string]any{"originalError": map[string]any{"message": "x"}}, got.Errors[0].Extensions)
	assert.Equal(t, map[string]any{"code": "BAD"}, got.Errors[1].Extensions)
	// input untouched
	assert.Contains(t, res.Errors[1].Extensions, "http")
}
