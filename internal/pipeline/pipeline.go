// Package pipeline runs plugin hooks around the stages of a GraphQL request.
//
// A request passes through the extension points in this order:
//
//	OnRequest, OnParams, OnParse, OnValidate, OnExecute or OnSubscribe,
//	OnResultProcess, OnResponse
//
// Hooks of one point run sequentially in registration order. A hook can end
// the request with Request.EndResponse; the remaining hooks and stages are
// skipped and the given response is written instead. OnResponse always runs
// once the response has been written.
package pipeline

// Plugin is a set of optional hooks. Only non-nil hooks are called.
type Plugin struct {
	Name string

	// OnRequest runs before anything is read from the request.
	OnRequest func(*Request) error
	// OnParams runs with the raw parameters, before they are validated. It
	// may replace them with SetRaw or provide typed parameters with SetParams.
	OnParams func(*Request) error
	// OnParse runs before the query is parsed. A document set with
	// SetDocument is used as is.
	OnParse func(*Request) error
	// OnValidate runs before the document is validated. Errors set with
	// SetValidationErrors replace validation.
	OnValidate func(*Request) error
	// OnExecute runs before a query or mutation is executed. A result set
	// with SetResult skips execution.
	OnExecute func(*Request) error
	// OnSubscribe is OnExecute for subscriptions.
	OnSubscribe func(*Request) error
	// OnResultProcess runs before the result processor is chosen. It may
	// replace the result or preselect the processor.
	OnResultProcess func(*Request) error
	// OnResponse observes the finished response.
	OnResponse func(*Request)
}

// Point names an extension point.
type Point int

const (
	OnRequest Point = iota
	OnParams
	OnParse
	OnValidate
	OnExecute
	OnSubscribe
	OnResultProcess
)

var pointNames = [...]string{"onRequest", "onParams", "onParse", "onValidate", "onExecute", "onSubscribe", "onResultProcess"}

func (p Point) String() string {
	if int(p) < len(pointNames) {
		return pointNames[p]
	}
	return "unknown"
}

func (p Plugin) hook(point Point) func(*Request) error {
	switch point {
	case OnRequest:
		return p.OnRequest
	case OnParams:
		return p.OnParams
	case OnParse:
		return p.OnParse
	case OnValidate:
		return p.OnValidate
	case OnExecute:
		return p.OnExecute
	case OnSubscribe:
		return p.OnSubscribe
	case OnResultProcess:
		return p.OnResultProcess
	}
	return nil
}

// Runner holds the registered plugins.
type Runner struct {
	plugins []Plugin
}

// NewRunner returns a runner calling plugins in the given order.
func NewRunner(plugins ...Plugin) *Runner {
	return &Runner{plugins: append([]Plugin(nil), plugins...)}
}

// Use appends a plugin. It must not be called while requests are served.
func (r *Runner) Use(p Plugin) { r.plugins = append(r.plugins, p) }

// Plugins returns the registered plugins.
func (r *Runner) Plugins() []Plugin { return r.plugins }

// Run calls the hooks registered for point. It stops at the first error or
// as soon as a hook ends the response.
func (r *Runner) Run(point Point, req *Request) error {
	for _, p := range r.plugins {
		if req.Ended() {
			return nil
		}
		h := p.hook(point)
		if h == nil {
			continue
		}
		if err := h(req); err != nil {
			return err
		}
	}
	return nil
}

// Respond calls every OnResponse hook.
func (r *Runner) Respond(req *Request) {
	for _, p := range r.plugins {
		if p.OnResponse != nil {
			p.OnResponse(req)
		}
	}
}
