// Package language exposes the gqlparser query AST and validator under the
// names the executor and server use.
package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Query document nodes.
type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	Operation           = ast.Operation
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
	Type                = ast.Type
)

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

// Variable is the kind of a value that refers to an operation variable.
const Variable = ast.Variable

// ErrorList is the list of errors validation reports.
type ErrorList = gqlerror.List
