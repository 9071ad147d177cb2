package reqid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header carries the request ID in requests and responses.
const Header = "X-Request-ID"

// maxLen bounds IDs accepted from clients.
const maxLen = 128

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(parent, id), id
}

// WithID returns a copy of parent carrying id.
func WithID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromRequest stores the ID sent by the client in the X-Request-ID header,
// or a new one when the header is missing or unusable.
func FromRequest(r *http.Request) (context.Context, string) {
	if id := r.Header.Get(Header); valid(id) {
		return WithID(r.Context(), id), id
	}
	return NewContext(r.Context())
}

func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(key{})
	id, ok := v.(string)
	return id, ok
}
