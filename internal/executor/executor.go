package executor

import (
	"context"
	"fmt"

	language "github.com/hanpama/gqlserve/internal/language"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// Executor runs operations against a schema, resolving fields through a
// Runtime.
type Executor struct {
	runtime     Runtime
	schema      *schema.Schema
	incremental bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithIncrementalDelivery toggles @defer and @stream support in Execute. When
// disabled both directives are executed inline. Enabled by default.
func WithIncrementalDelivery(enabled bool) Option {
	return func(e *Executor) { e.incremental = enabled }
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: schema, incremental: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema the executor runs against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// Params describe one operation to run.
type Params struct {
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
}

// ExecuteRequest runs the operation to completion and returns a single
// result. @defer and @stream are executed inline.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	op, errs := e.prepare(document, operationName, variableValues)
	if errs != nil {
		return &ExecutionResult{Errors: errs}
	}
	state := e.newState(ctx, document, op.variables)
	data := op.run(state, initialValue)
	return &ExecutionResult{Data: data, Errors: state.errors}
}

// Execute runs a query or mutation. When incremental delivery is enabled and
// the operation defers fragments or streams lists, the result is a stream
// whose first payload is the initial response.
func (e *Executor) Execute(ctx context.Context, p Params) Result {
	op, errs := e.prepare(p.Document, p.OperationName, p.Variables)
	if errs != nil {
		return ErrorResult(errs...)
	}
	state := e.newState(ctx, p.Document, op.variables)
	if e.incremental && op.definition.Operation != language.Subscription {
		state.incremental = &incrementalState{}
	}
	data := op.run(state, p.RootValue)
	res := &ExecutionResult{Data: data, Errors: state.errors}
	if state.incremental == nil || len(state.incremental.queue) == 0 {
		return SingleResult(res)
	}
	if data == nil {
		state.incremental.discard()
		return SingleResult(res)
	}
	res.HasNext = boolPtr(true)
	return Result{Stream: newIncrementalStream(state.incremental, res)}
}

// OperationFor returns the operation of document selected by name, or nil.
// An empty name selects the only operation of the document.
func OperationFor(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if document == nil {
		return nil
	}
	if operationName == "" {
		if len(document.Operations) == 1 {
			return document.Operations[0]
		}
		return nil
	}
	return document.Operations.ForName(operationName)
}

// preparedOperation is an operation whose variables have been coerced and
// whose root type exists.
type preparedOperation struct {
	definition *language.OperationDefinition
	variables  map[string]any
	root       *schema.Type
}

func (e *Executor) prepare(
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
) (*preparedOperation, []GraphQLError) {
	definition := OperationFor(document, operationName)
	if definition == nil {
		return nil, []GraphQLError{{Message: "operation not found"}}
	}
	variables, err := coerceVariableValues(e.schema, definition, variableValues)
	if err != nil {
		return nil, []GraphQLError{{Message: err.Error()}}
	}
	root := e.rootType(definition.Operation)
	if root == nil {
		return nil, []GraphQLError{{Message: fmt.Sprintf("root type not found for %s operation", definition.Operation)}}
	}
	return &preparedOperation{definition: definition, variables: variables, root: root}, nil
}

func (e *Executor) rootType(op language.Operation) *schema.Type {
	switch op {
	case language.Query:
		return e.schema.GetQueryType()
	case language.Mutation:
		return e.schema.GetMutationType()
	case language.Subscription:
		return e.schema.GetSubscriptionType()
	}
	return nil
}

// run executes the operation's selection set on rootValue and drains every
// batch. Mutation root fields run one after another, each with all of its
// batches, so their side effects happen in document order. A nil map means a
// non-null root field was null; it is encoded as "data": null.
func (op *preparedOperation) run(state *executionState, rootValue any) map[string]any {
	if op.definition.Operation != language.Mutation {
		data := executeSelectionSet(state, op.root, op.definition.SelectionSet, rootValue, Path{})
		if data == nil {
			state.pending = nil
			return nil
		}
		runBatches(state, data)
		if state.nulled {
			return nil
		}
		return data
	}

	data := make(map[string]any)
	groups, deferred := collectFields(state, op.root, op.definition.SelectionSet)
	for _, group := range groups.orderedFields() {
		v, typ := executeField(state, op.root, rootValue, group.Fields, Path{group.ResponseName})
		if typ == nil {
			continue
		}
		if isNullish(v) {
			if schema.IsNonNull(typ) {
				state.pending = nil
				return nil
			}
			v = nil
		}
		data[group.ResponseName] = v
		if runBatches(state, data); state.nulled {
			return nil
		}
	}
	state.deferFragments(deferred, op.root, rootValue, Path{})
	return data
}

// typeRefFromAST converts a type reference from a query document.
func typeRefFromAST(t *language.Type) *schema.TypeRef {
	switch {
	case t == nil:
		return nil
	case t.NonNull:
		inner := *t
		inner.NonNull = false
		return schema.NonNullType(typeRefFromAST(&inner))
	case t.Elem != nil:
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return schema.NamedType(t.NamedType)
}
