package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"

	eventbus "github.com/hanpama/gqlserve/internal/eventbus"
	events "github.com/hanpama/gqlserve/internal/events"
	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/introspection"
	language "github.com/hanpama/gqlserve/internal/language"
	"github.com/hanpama/gqlserve/internal/log"
	"github.com/hanpama/gqlserve/internal/mediatype"
	"github.com/hanpama/gqlserve/internal/opcache"
	"github.com/hanpama/gqlserve/internal/params"
	"github.com/hanpama/gqlserve/internal/pipeline"
	"github.com/hanpama/gqlserve/internal/processor"
	reqid "github.com/hanpama/gqlserve/internal/reqid"
	schema "github.com/hanpama/gqlserve/internal/schema"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// Every request goes through the plugin pipeline: parameters are extracted
// and validated, the document is parsed and validated, the operation runs and
// its result is written by the processor matching the Accept header.
type Handler struct {
	exec   *executor.Executor
	schema *schema.Schema
	opt    Options

	runner      *pipeline.Runner
	processors  processor.Set
	limits      params.Limits
	rules       *language.Rules
	documents   *opcache.Cache[*language.QueryDocument]
	validations *opcache.Cache[[]executor.GraphQLError]

	root http.Handler
}

// New creates a new GraphQL HTTP handler using the given runtime and schema.
// The schema must carry its type system AST, as returned by
// schema.BuildFromSDL.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	if runtime == nil {
		return nil, errors.New("server: runtime is nil")
	}
	if sch == nil || sch.AST == nil {
		return nil, errors.New("server: schema has no type system definition")
	}
	op := defaultOptions()
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = log.Get()
	}

	h := &Handler{schema: sch, opt: op}

	execSchema := sch
	h.rules = language.DefaultRules()
	if op.Introspection {
		wrapped := introspection.Wrap(runtime, sch)
		runtime, execSchema = wrapped.Runtime, wrapped.Schema
	} else {
		h.rules.AddRule("NoIntrospection", language.NoIntrospection)
	}
	h.exec = executor.NewExecutor(runtime, execSchema, executor.WithIncrementalDelivery(op.Incremental))

	var err error
	if h.documents, err = opcache.New[*language.QueryDocument](op.CacheSize); err != nil {
		return nil, errors.Wrap(err, "server: parse cache")
	}
	if h.validations, err = opcache.New[[]executor.GraphQLError](op.CacheSize); err != nil {
		return nil, errors.Wrap(err, "server: validation cache")
	}

	h.processors = processor.NewSet(op.Pretty, op.SSEHeartbeat)
	h.limits = params.Limits{MaxBodyBytes: op.MaxBodyBytes, MaxFileBytes: op.MaxFileBytes}
	h.runner = pipeline.NewRunner(h.builtinPlugins()...)

	h.root = http.HandlerFunc(h.serveHTTP)
	if len(op.CORSOrigins) > 0 {
		h.root = cors.New(cors.Options{
			AllowedOrigins: op.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{reqid.Header},
		}).Handler(h.root)
	}
	return h, nil
}

// Schema returns the schema the handler was created with.
func (h *Handler) Schema() *schema.Schema { return h.schema }

// WatchCaches reports the statistics of the parse and validation caches.
func (h *Handler) WatchCaches(watch func(name string, stats func() (hits, misses uint64))) {
	watch("parse", h.documents.Stats)
	watch("validation", h.validations.Stats)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) serveHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, rid := reqid.FromRequest(r)
	r = r.WithContext(ctx)
	w.Header().Set(reqid.Header, rid)

	rw := &responseWriter{ResponseWriter: w}
	req := pipeline.NewRequest(r)
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			h.opt.Logger.WithField("request_id", rid).WithField("stack", string(debug.Stack())).
				Errorf("panic serving %s", r.URL.Path)
			h.fail(rw, req, errors.Errorf("panic: %v", p))
		}
		params.Cleanup(r)
		req.SetStatus(rw.Status())
		h.runner.Respond(req)
		eventbus.Publish(ctx, events.HTTPFinish{
			Request:   r,
			Status:    rw.Status(),
			MediaType: rw.mediaType,
			Duration:  time.Since(start),
		})
	}()

	if err := h.process(rw, req); err != nil {
		h.fail(rw, req, err)
	}
}

// process runs the pipeline. An error is returned only when nothing has been
// written yet.
func (h *Handler) process(w *responseWriter, req *pipeline.Request) error {
	r := req.HTTP
	if err := h.runner.Run(pipeline.OnRequest, req); err != nil {
		return err
	}
	if req.Ended() {
		return h.end(w, req)
	}

	req.SetAcceptableMediaTypes(mediatype.Negotiate(r))

	raw, err := params.Extract(r, h.limits)
	if err != nil {
		return err
	}
	req.SetRaw(raw)
	if err := h.runner.Run(pipeline.OnParams, req); err != nil {
		return err
	}
	if req.Ended() {
		return h.end(w, req)
	}
	if req.Params() == nil {
		p, err := params.Validate(req.Raw(), h.opt.ExtraParams)
		if err != nil {
			return err
		}
		req.SetParams(p)
	}
	gp := req.Params()

	if err := h.runner.Run(pipeline.OnParse, req); err != nil {
		return err
	}
	if req.Ended() {
		return h.end(w, req)
	}
	if req.Document() == nil {
		doc, err := h.parse(gp.Query)
		if err != nil {
			return err
		}
		req.SetDocument(doc)
	}
	op, err := params.CheckOperationMethod(r.Method, req.Document(), gp.OperationName)
	if err != nil {
		return err
	}
	req.SetOperation(op)

	if err := h.runner.Run(pipeline.OnValidate, req); err != nil {
		return err
	}
	if req.Ended() {
		return h.end(w, req)
	}
	verrs, validated := req.ValidationErrors()
	if !validated {
		verrs = h.validate(gp.Query, req.Document())
		req.SetValidationErrors(verrs)
	}
	if len(verrs) > 0 {
		return gqlerrors.List(gqlerrors.FromDocument(verrs))
	}

	ctx := req.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 && !req.IsSubscription {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	if h.opt.ContextFactory != nil {
		if ctx, err = h.opt.ContextFactory(ctx, req); err != nil {
			return err
		}
	}
	req.SetContext(ctx)

	opType := string(op.Operation)
	started := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: gp.Query, OperationName: gp.OperationName, OperationType: opType})
	if err := pipeline.Dispatch(h.runner, h.exec, req, h.opt.RootValue); err != nil {
		return err
	}
	if req.Ended() {
		return h.end(w, req)
	}
	res, _ := req.Result()
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         gp.Query,
		OperationName: gp.OperationName,
		OperationType: opType,
		Errors:        resultErrors(res),
		Streamed:      res.IsStream(),
		Duration:      time.Since(started),
	})
	req.SetResult(h.maskResult(ctx, res, gp.OperationName, opType))
	return h.respond(w, req)
}

// respond runs the OnResultProcess hooks and writes the result.
func (h *Handler) respond(w *responseWriter, req *pipeline.Request) error {
	if err := h.runner.Run(pipeline.OnResultProcess, req); err != nil {
		closeResult(req)
		return err
	}
	if req.Ended() {
		closeResult(req)
		return h.end(w, req)
	}
	return h.write(w, req)
}

// write picks the processor for the result and runs it.
func (h *Handler) write(w *responseWriter, req *pipeline.Request) error {
	res, _ := req.Result()
	cfg, mt := req.ResultProcessor()
	if cfg == nil {
		var ok bool
		cfg, mt, ok = h.processors.Select(req.AcceptableMediaTypes(), res, req.IsSubscription)
		if !ok {
			closeResult(req)
			copyHeader(w.Header(), req.Header())
			processor.NotAcceptable(w)
			return nil
		}
	}
	w.mediaType = string(mt)
	copyHeader(w.Header(), req.Header())
	if err := cfg.Process(w, req.HTTP.WithContext(req.Context()), res, mt); err != nil {
		if w.status == 0 {
			return err
		}
		h.opt.Logger.WithError(err).WithField("processor", cfg.Name).Warn("writing response")
	}
	return nil
}

// end writes the response a plugin ended the pipeline with.
func (h *Handler) end(w *responseWriter, req *pipeline.Request) error {
	resp := req.EndedResponse()
	w.mediaType = resp.Header.Get("Content-Type")
	return req.Write(w, resp)
}

// fail turns err into an error result and writes it with the processor the
// client accepts. The OnResultProcess hooks do not run again.
func (h *Handler) fail(w *responseWriter, req *pipeline.Request, err error) {
	if w.status != 0 {
		h.opt.Logger.WithError(err).WithField("request_id", requestID(req.Context())).
			Error("error after the response was started")
		return
	}
	errs := h.maskErrors(req.Context(), gqlerrors.FromError(err, h.opt.DevMode))
	req.SetResult(executor.SingleResult(&executor.ExecutionResult{Errors: errs}))
	if req.AcceptableMediaTypes() == nil {
		req.SetAcceptableMediaTypes(mediatype.Negotiate(req.HTTP))
	}
	if err := h.write(w, req); err != nil {
		h.opt.Logger.WithError(err).WithField("request_id", requestID(req.Context())).
			Error("writing error response")
		if w.status == 0 {
			http.Error(w, gqlerrors.MaskedMessage, http.StatusInternalServerError)
		}
	}
}

func (h *Handler) parse(query string) (*language.QueryDocument, error) {
	if doc, ok := h.documents.Get(query); ok {
		return doc, nil
	}
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, gqlerrors.List(gqlerrors.FromDocument([]executor.GraphQLError{executor.AsGraphQLError(err)}))
	}
	h.documents.Add(query, doc)
	return doc, nil
}

func (h *Handler) validate(query string, doc *language.QueryDocument) []executor.GraphQLError {
	if errs, ok := h.validations.Get(query); ok {
		return errs
	}
	var errs []executor.GraphQLError
	if list := language.Validate(h.schema.AST, doc, h.rules); len(list) > 0 {
		errs = executor.FromGQLErrors(list)
	}
	h.validations.Add(query, errs)
	return errs
}

func resultErrors(res executor.Result) []error {
	if res.Single == nil || len(res.Single.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(res.Single.Errors))
	for i, e := range res.Single.Errors {
		errs[i] = e
	}
	return errs
}

func closeResult(req *pipeline.Request) {
	if res, ok := req.Result(); ok && res.Stream != nil {
		_ = res.Stream.Close()
	}
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		dst.Del(k)
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func requestID(ctx context.Context) string {
	id, _ := reqid.FromContext(ctx)
	return id
}

// responseWriter records the status written by processors and plugins.
type responseWriter struct {
	http.ResponseWriter
	status    int
	mediaType string
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
