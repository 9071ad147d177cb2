package params

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/hanpama/gqlserve/internal/gqlerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Limits bound what a request may carry. Zero values mean unlimited.
type Limits struct {
	// MaxBodyBytes limits the request body after decompression.
	MaxBodyBytes int64
	// MaxFileBytes limits each uploaded file.
	MaxFileBytes int64
	// MaxMemory is the part of a multipart body kept in memory; the rest
	// spills to temporary files. Defaults to 32MB.
	MaxMemory int64
}

func (l Limits) maxMemory() int64 {
	if l.MaxMemory > 0 {
		return l.MaxMemory
	}
	return 32 << 20
}

var errBodyTooLarge = gqlerrors.New("Request body size limit exceeded.", gqlerrors.WithStatus(http.StatusRequestEntityTooLarge))

// Extract reads the GraphQL parameters of r. The result is untyped; see
// Validate.
func Extract(r *http.Request, lim Limits) (Raw, error) {
	switch r.Method {
	case http.MethodGet:
		return fromValues(r.URL.Query())
	case http.MethodPost:
	default:
		return nil, gqlerrors.New("GraphQL only supports GET and POST requests.",
			gqlerrors.WithStatus(http.StatusMethodNotAllowed),
			gqlerrors.WithHeader("Allow", "GET, POST"))
	}

	body, err := openBody(r, lim)
	if err != nil {
		return nil, err
	}
	r.Body = body

	contentType := r.Header.Get("Content-Type")
	mediaType := "application/json"
	if contentType != "" {
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			return nil, gqlerrors.BadRequest("Request is not valid")
		}
	}

	switch mediaType {
	case "application/json", "application/graphql+json", "application/graphql-response+json":
		b, err := readAll(body)
		if err != nil {
			return nil, err
		}
		return decodeObject(b)

	case "application/graphql":
		b, err := readAll(body)
		if err != nil {
			return nil, err
		}
		raw, err := fromValues(r.URL.Query())
		if err != nil {
			return nil, err
		}
		raw["query"] = string(b)
		return raw, nil

	case "application/x-www-form-urlencoded":
		b, err := readAll(body)
		if err != nil {
			return nil, err
		}
		values, err := url.ParseQuery(string(b))
		if err != nil {
			return nil, gqlerrors.BadRequest("Request is not valid")
		}
		return fromValues(values)

	case "multipart/form-data":
		return extractMultipart(r, lim)
	}
	return nil, gqlerrors.BadRequest("Request is not valid")
}

func openBody(r *http.Request, lim Limits) (io.ReadCloser, error) {
	var body io.ReadCloser = r.Body
	if body == nil {
		body = http.NoBody
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, gqlerrors.BadRequest("Request body is not valid gzip.")
		}
		body = struct {
			io.Reader
			io.Closer
		}{gz, body}
	}
	if lim.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(nil, body, lim.MaxBodyBytes)
	}
	return body, nil
}

func readAll(body io.Reader) ([]byte, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, bodyError(err)
	}
	return b, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) {
		return gqlerrors.BadRequest("Request body is not valid gzip.")
	}
	return errors.Wrap(err, "reading request body")
}

func decodeObject(b []byte) (Raw, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, gqlerrors.BadRequest("POST body sent invalid JSON.")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, gqlerrors.BadRequest("POST body is expected to be object but received " + TypeName(v))
	}
	return Raw(m), nil
}

// fromValues reads URL-encoded parameters. variables and extensions are
// JSON-encoded.
func fromValues(values url.Values) (Raw, error) {
	raw := Raw{}
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		raw[k] = vs[0]
	}
	if err := decodeJSONParam(raw, "variables", "Variables are invalid JSON."); err != nil {
		return nil, err
	}
	if err := decodeJSONParam(raw, "extensions", "Extensions are invalid JSON."); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeJSONParam(raw Raw, key, message string) error {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	if s == "" {
		delete(raw, key)
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return gqlerrors.BadRequest(message)
	}
	raw[key] = v
	return nil
}
