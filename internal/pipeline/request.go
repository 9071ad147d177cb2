package pipeline

import (
	"context"
	"net/http"

	executor "github.com/hanpama/gqlserve/internal/executor"
	language "github.com/hanpama/gqlserve/internal/language"
	"github.com/hanpama/gqlserve/internal/mediatype"
	"github.com/hanpama/gqlserve/internal/params"
	"github.com/hanpama/gqlserve/internal/processor"
)

// Response is written verbatim when a hook ends the request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Request is the state of one GraphQL request as it moves through the
// pipeline. It is not safe for concurrent use.
type Request struct {
	HTTP *http.Request

	ctx    context.Context
	header http.Header

	mediaTypes []mediatype.Type

	raw    params.Raw
	params *params.GraphQLParams

	document  *language.QueryDocument
	operation *language.OperationDefinition

	validated        bool
	validationErrors []executor.GraphQLError

	// IsSubscription is set once the operation is known.
	IsSubscription bool

	hasResult bool
	result    executor.Result

	processor *processor.Config
	mediaType mediatype.Type

	ended  *Response
	status int
}

// NewRequest starts the pipeline state for r.
func NewRequest(r *http.Request) *Request {
	return &Request{HTTP: r, ctx: r.Context(), header: http.Header{}}
}

// Context is the context operations run with.
func (r *Request) Context() context.Context { return r.ctx }

// SetContext replaces the context operations run with.
func (r *Request) SetContext(ctx context.Context) { r.ctx = ctx }

// Header holds headers added to whatever response is eventually written.
func (r *Request) Header() http.Header { return r.header }

// AcceptableMediaTypes is the negotiated list, in client preference order.
func (r *Request) AcceptableMediaTypes() []mediatype.Type { return r.mediaTypes }

// SetAcceptableMediaTypes stores the negotiated list.
func (r *Request) SetAcceptableMediaTypes(types []mediatype.Type) { r.mediaTypes = types }

// Raw returns the parameters as extracted from the transport.
func (r *Request) Raw() params.Raw { return r.raw }

// SetRaw replaces the raw parameters.
func (r *Request) SetRaw(raw params.Raw) { r.raw = raw }

// Params returns the validated parameters, or nil before validation.
func (r *Request) Params() *params.GraphQLParams { return r.params }

// SetParams replaces the parameters. Parameters set before validation are
// trusted and not validated again.
func (r *Request) SetParams(p *params.GraphQLParams) { r.params = p }

// Document returns the parsed document.
func (r *Request) Document() *language.QueryDocument { return r.document }

// SetDocument replaces the document; a document set in OnParse skips parsing.
func (r *Request) SetDocument(doc *language.QueryDocument) { r.document = doc }

// Operation returns the operation selected for execution.
func (r *Request) Operation() *language.OperationDefinition { return r.operation }

// SetOperation records the operation selected for execution.
func (r *Request) SetOperation(op *language.OperationDefinition) {
	r.operation = op
	r.IsSubscription = op != nil && op.Operation == language.Subscription
}

// ValidationErrors returns the validation outcome and whether validation
// already happened.
func (r *Request) ValidationErrors() ([]executor.GraphQLError, bool) {
	return r.validationErrors, r.validated
}

// SetValidationErrors records the validation outcome. An empty list marks
// the document valid.
func (r *Request) SetValidationErrors(errs []executor.GraphQLError) {
	r.validated = true
	r.validationErrors = errs
}

// Result returns the operation result and whether there is one.
func (r *Request) Result() (executor.Result, bool) { return r.result, r.hasResult }

// SetResult replaces the operation result. Set in OnExecute or OnSubscribe
// it skips the engine.
func (r *Request) SetResult(res executor.Result) {
	r.result = res
	r.hasResult = true
}

// ResultProcessor returns the preselected processor and media type.
func (r *Request) ResultProcessor() (*processor.Config, mediatype.Type) {
	return r.processor, r.mediaType
}

// SetResultProcessor preselects the processor and the media type it writes.
func (r *Request) SetResultProcessor(cfg *processor.Config, mediaType mediatype.Type) {
	r.processor = cfg
	r.mediaType = mediaType
}

// EndResponse ends the pipeline with resp.
func (r *Request) EndResponse(resp *Response) {
	if resp == nil {
		resp = &Response{Status: http.StatusNoContent}
	}
	r.ended = resp
}

// Ended reports whether a hook ended the pipeline.
func (r *Request) Ended() bool { return r.ended != nil }

// EndedResponse returns the response given to EndResponse.
func (r *Request) EndedResponse() *Response { return r.ended }

// Status is the status code that was written, available in OnResponse.
func (r *Request) Status() int { return r.status }

// SetStatus records the written status.
func (r *Request) SetStatus(code int) { r.status = code }

// Write sends resp with the headers collected on r.
func (r *Request) Write(w http.ResponseWriter, resp *Response) error {
	h := w.Header()
	for k, vs := range r.header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, vs := range resp.Header {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}
