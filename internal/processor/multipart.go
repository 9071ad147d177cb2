package processor

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/gqlerrors"
	"github.com/hanpama/gqlserve/internal/mediatype"
	"github.com/hanpama/gqlserve/internal/stream"
)

// Multipart writes every result as one part of a multipart/mixed response.
var Multipart = &Config{
	Name:           "multipart",
	MediaTypes:     []mediatype.Type{mediatype.MultipartMixed},
	AsyncIterables: true,
	Process:        processMultipart,
}

func processMultipart(w http.ResponseWriter, r *http.Request, res executor.Result, _ mediatype.Type) error {
	status := http.StatusOK
	h := w.Header()
	it := res.Stream
	if it == nil {
		// Spec errors never change the status of a multipart response.
		var headers http.Header
		status, headers = gqlerrors.StatusFor(res.Single, true)
		for k, vs := range headers {
			for _, v := range vs {
				h.Add(k, v)
			}
		}
		it = stream.Single(res.Single)
	}
	release := closeOnce(it)
	defer release()

	h.Set("Content-Type", `multipart/mixed; boundary="-"`)
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(status)

	rc := http.NewResponseController(w)
	if _, err := w.Write([]byte("\r\n---")); err != nil {
		return nil
	}
	_ = rc.Flush()

	ctx := r.Context()
	for {
		v, err := it.Next(ctx)
		if err == stream.Done {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reading result stream")
		}
		body, err := encode(v, false)
		if err != nil {
			return errors.Wrap(err, "encoding result")
		}
		var part bytes.Buffer
		part.WriteString("\r\nContent-Type: application/json; charset=utf-8\r\n")
		part.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
		part.Write(body)
		part.WriteString("\r\n---")
		if _, err := w.Write(part.Bytes()); err != nil {
			return nil
		}
		_ = rc.Flush()
	}
	if _, err := w.Write([]byte("--\r\n")); err != nil {
		return nil
	}
	_ = rc.Flush()
	return nil
}
