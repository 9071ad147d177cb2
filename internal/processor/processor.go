// Package processor writes execution results to the client in the format the
// client negotiated: a single JSON document, multipart/mixed chunks or
// server-sent events.
package processor

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/mediatype"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProcessFunc writes res as mediaType. It owns res: a stream is consumed and
// closed before it returns.
type ProcessFunc func(w http.ResponseWriter, r *http.Request, res executor.Result, mediaType mediatype.Type) error

// Config describes one result processor.
type Config struct {
	Name       string
	MediaTypes []mediatype.Type
	// AsyncIterables reports whether the processor can deliver streams.
	AsyncIterables bool
	Process        ProcessFunc
}

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 12 * time.Second

// Set is the group of processors a handler chooses from.
type Set struct {
	Regular   *Config
	Multipart *Config
	SSE       *Config
}

// NewSet returns the standard processors. pretty indents JSON bodies;
// heartbeat is the SSE keep-alive interval (DefaultHeartbeat when zero).
func NewSet(pretty bool, heartbeat time.Duration) Set {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return Set{
		Regular:   NewRegular(pretty),
		Multipart: Multipart,
		SSE:       SSE(heartbeat),
	}
}

var defaultSet = NewSet(false, DefaultHeartbeat)

// Order lists the processors tried for an operation.
func (s Set) Order(subscription bool) []*Config {
	if subscription {
		return []*Config{s.SSE, s.Regular}
	}
	return []*Config{s.SSE, s.Multipart, s.Regular}
}

// Select picks the processor and media type answering types for res. Each
// processor in order is checked against every acceptable type; processors
// that cannot stream are skipped for streams.
func (s Set) Select(types []mediatype.Type, res executor.Result, subscription bool) (*Config, mediatype.Type, bool) {
	for _, cfg := range s.Order(subscription) {
		if res.IsStream() && !cfg.AsyncIterables {
			continue
		}
		for _, t := range types {
			for _, mt := range cfg.MediaTypes {
				if t == mt {
					return cfg, mt, true
				}
			}
		}
	}
	return nil, "", false
}

// Select chooses among the standard processors.
func Select(types []mediatype.Type, res executor.Result, subscription bool) (*Config, mediatype.Type, bool) {
	return defaultSet.Select(types, res, subscription)
}

// NotAcceptable answers with 406 and the media types the server can produce.
func NotAcceptable(w http.ResponseWriter) {
	w.Header().Set("Accept", mediatype.NotAcceptableHeader)
	w.WriteHeader(http.StatusNotAcceptable)
}

func encode(res *executor.ExecutionResult, pretty bool) ([]byte, error) {
	res = gqlerrors.Strip(res)
	if pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// closeOnce closes it when the returned func is first called.
func closeOnce(it interface{ Close() error }) func() {
	done := false
	return func() {
		if !done {
			done = true
			_ = it.Close()
		}
	}
}
