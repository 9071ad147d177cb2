package server

import (
	"context"
	"errors"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlserve/internal/eventbus"
	events "github.com/hanpama/gqlserve/internal/events"
	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/stream"
)

// maskErrors masks unexpected errors, logging and publishing each of them.
func (h *Handler) maskErrors(ctx context.Context, errs []executor.GraphQLError) []executor.GraphQLError {
	if len(errs) == 0 {
		return errs
	}
	out := make([]executor.GraphQLError, len(errs))
	for i, e := range errs {
		masked := gqlerrors.Mask(e, h.opt.DevMode)
		if masked.Err != nil && gqlerrors.IsUnexpected(masked) {
			h.report(ctx, masked.Err, masked.Path)
		}
		out[i] = masked
	}
	return out
}

func (h *Handler) report(ctx context.Context, err error, path executor.Path) {
	entry := h.opt.Logger.WithError(err).WithField("request_id", requestID(ctx))
	var p []any
	if len(path) > 0 {
		p = make([]any, len(path))
		for i, el := range path {
			p[i] = el
		}
		entry = entry.WithField("path", p)
	}
	entry.Error("unexpected error")
	eventbus.Publish(ctx, events.UnexpectedError{Err: err, Path: p})
}

func (h *Handler) maskPayload(ctx context.Context, res *executor.ExecutionResult) *executor.ExecutionResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Errors = h.maskErrors(ctx, res.Errors)
	if len(res.Incremental) > 0 {
		out.Incremental = make([]executor.IncrementalPayload, len(res.Incremental))
		for i, p := range res.Incremental {
			p.Errors = h.maskErrors(ctx, p.Errors)
			out.Incremental[i] = p
		}
	}
	return &out
}

// maskResult masks a single result right away and every payload of a stream
// as it is pulled.
func (h *Handler) maskResult(ctx context.Context, res executor.Result, opName, opType string) executor.Result {
	if res.Stream == nil {
		return executor.SingleResult(h.maskPayload(ctx, res.Single))
	}
	return executor.Result{Stream: &resultStream{
		h:      h,
		ctx:    ctx,
		src:    res.Stream,
		opName: opName,
		opType: opType,
		start:  time.Now(),
	}}
}

// resultStream masks the payloads of src. An error other than cancellation
// becomes one last payload carrying the masked error.
type resultStream struct {
	h      *Handler
	ctx    context.Context
	src    stream.Iterator[*executor.ExecutionResult]
	opName string
	opType string
	start  time.Time

	payloads int
	failed   bool
	once     sync.Once
	closeErr error
}

func (s *resultStream) Next(ctx context.Context) (*executor.ExecutionResult, error) {
	if s.failed {
		return nil, stream.Done
	}
	v, err := s.src.Next(ctx)
	if err != nil {
		if errors.Is(err, stream.Done) || ctx.Err() != nil {
			return nil, err
		}
		s.failed = true
		s.payloads++
		return &executor.ExecutionResult{Errors: s.h.maskErrors(s.ctx, gqlerrors.FromError(err, s.h.opt.DevMode))}, nil
	}
	s.payloads++
	return s.h.maskPayload(s.ctx, v), nil
}

func (s *resultStream) Close() error {
	s.once.Do(func() {
		s.closeErr = s.src.Close()
		eventbus.Publish(s.ctx, events.StreamFinish{
			OperationName: s.opName,
			OperationType: s.opType,
			Payloads:      s.payloads,
			Duration:      time.Since(s.start),
		})
	})
	return s.closeErr
}
