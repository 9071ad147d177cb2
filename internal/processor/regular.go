package processor

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/mediatype"
)

// NewRegular returns the processor writing a single JSON document.
func NewRegular(pretty bool) *Config {
	return &Config{
		Name:       "regular",
		MediaTypes: []mediatype.Type{mediatype.GraphQLResponseJSON, mediatype.JSON},
		Process: func(w http.ResponseWriter, r *http.Request, res executor.Result, mediaType mediatype.Type) error {
			return processRegular(w, res, mediaType, pretty)
		},
	}
}

// Regular writes compact JSON.
var Regular = NewRegular(false)

func processRegular(w http.ResponseWriter, res executor.Result, mediaType mediatype.Type, pretty bool) error {
	if res.IsStream() {
		_ = res.Stream.Close()
		NotAcceptable(w)
		return nil
	}
	status, headers := gqlerrors.StatusFor(res.Single, mediaType == mediatype.JSON)
	body, err := encode(res.Single, pretty)
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	h := w.Header()
	for k, vs := range headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("Content-Type", string(mediaType)+"; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
