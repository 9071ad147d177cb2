package processor

import (
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	executor "github.com/hanpama/gqlserve/internal/executor"
	"github.com/hanpama/gqlserve/internal/mediatype"
	"github.com/hanpama/gqlserve/internal/stream"
)

// SSE returns the processor writing results as server-sent events, with a
// keep-alive comment every heartbeat.
func SSE(heartbeat time.Duration) *Config {
	return &Config{
		Name:           "sse",
		MediaTypes:     []mediatype.Type{mediatype.EventStream},
		AsyncIterables: true,
		Process: func(w http.ResponseWriter, r *http.Request, res executor.Result, _ mediatype.Type) error {
			return processSSE(w, r, res, heartbeat)
		},
	}
}

// sseWriter serializes writes from the event loop and the heartbeat.
type sseWriter struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	failed bool
}

func (s *sseWriter) write(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return false
	}
	if _, err := s.w.Write([]byte(p)); err != nil {
		s.failed = true
		return false
	}
	_ = s.rc.Flush()
	return true
}

func processSSE(w http.ResponseWriter, r *http.Request, res executor.Result, heartbeat time.Duration) error {
	it := res.Stream
	if it == nil {
		it = stream.Single(res.Single)
	}
	release := closeOnce(it)
	defer release()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Encoding", "none")
	w.WriteHeader(http.StatusOK)

	sw := &sseWriter{w: w, rc: http.NewResponseController(w)}
	if !sw.write(":\n\n") {
		return nil
	}

	ctx := r.Context()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(heartbeat)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !sw.write(":\n\n") {
						return
					}
				}
			}
		}()
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()

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
		if !sw.write("event: next\ndata: " + string(body) + "\n\n") {
			return nil
		}
	}
	sw.write("event: complete\ndata:\n\n")
	return nil
}
