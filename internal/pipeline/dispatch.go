package pipeline

import (
	"context"

	executor "github.com/hanpama/gqlserve/internal/executor"
)

// Engine runs operations. *executor.Executor implements it.
type Engine interface {
	Execute(ctx context.Context, p executor.Params) executor.Result
	Subscribe(ctx context.Context, p executor.Params) executor.Result
}

// Dispatch runs the OnExecute or OnSubscribe hooks and, unless one of them
// provided a result, the engine. The operation must have been set.
func Dispatch(runner *Runner, engine Engine, req *Request, rootValue any) error {
	point := OnExecute
	if req.IsSubscription {
		point = OnSubscribe
	}
	if err := runner.Run(point, req); err != nil {
		return err
	}
	if req.Ended() {
		return nil
	}
	if _, ok := req.Result(); ok {
		return nil
	}

	p := executor.Params{
		Document:  req.Document(),
		RootValue: rootValue,
	}
	if gp := req.Params(); gp != nil {
		p.OperationName = gp.OperationName
		p.Variables = gp.Variables
	}
	if req.IsSubscription {
		req.SetResult(engine.Subscribe(req.Context(), p))
	} else {
		req.SetResult(engine.Execute(req.Context(), p))
	}
	return nil
}
