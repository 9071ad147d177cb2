package executor

import (
	"context"
	"fmt"

	language "github.com/hanpama/gqlserve/internal/language"
	"github.com/hanpama/gqlserve/internal/stream"
)

// Subscribe runs a subscription operation. The runtime creates the source
// event stream for the first root field; each event then executes the
// selection set with the event as that field's value. Setup failures are
// reported as a single result. Other operation types are passed to Execute.
func (e *Executor) Subscribe(ctx context.Context, p Params) Result {
	op, errs := e.prepare(p.Document, p.OperationName, p.Variables)
	if errs != nil {
		return ErrorResult(errs...)
	}
	if op.definition.Operation != language.Subscription {
		return e.Execute(ctx, p)
	}
	subscriber, ok := e.runtime.(SubscriptionRuntime)
	if !ok {
		return ErrorResult(GraphQLError{Message: "Subscriptions are not supported by this runtime."})
	}

	state := e.newState(ctx, p.Document, op.variables)
	groups, _ := collectFields(state, op.root, op.definition.SelectionSet)
	if len(groups.fields) == 0 {
		return ErrorResult(GraphQLError{Message: "Subscription operation must select a root field."})
	}
	first := groups.fields[0]
	fields, path := first.Fields, Path{first.ResponseName}
	def := op.root.Field(fields[0].Name)
	if def == nil {
		state.addError(fmt.Sprintf("The subscription field '%s' is not defined.", fields[0].Name), path, fields)
		return ErrorResult(state.errors...)
	}
	args := coerceArgumentValues(def, fields[0].Arguments, op.variables, state, path, fields)
	if len(state.errors) > 0 {
		return ErrorResult(state.errors...)
	}

	source, err := subscriber.Subscribe(ctx, op.root.Name, def.Name, args)
	if err != nil {
		state.addFieldError(err, path, fields)
		return ErrorResult(state.errors...)
	}
	return Result{Stream: stream.Map(source, func(ctx context.Context, event any) (*ExecutionResult, error) {
		es := e.newState(ctx, p.Document, op.variables)
		es.event, es.hasEvent = event, true
		return &ExecutionResult{Data: op.run(es, p.RootValue), Errors: es.errors}, nil
	})}
}
