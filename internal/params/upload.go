package params

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/hanpama/gqlserve/internal/gqlerrors"
)

// Upload is a file sent with a multipart request. It replaces the null
// placeholder in the operation variables.
type Upload struct {
	File        multipart.File
	Filename    string
	Size        int64
	ContentType string
}

// openUploads holds the files opened for each parsed form until Cleanup.
var openUploads sync.Map // *multipart.Form -> []multipart.File

// Cleanup closes the uploads of a multipart request and removes the
// temporary files they were spilled to.
func Cleanup(r *http.Request) {
	if r.MultipartForm == nil {
		return
	}
	if v, ok := openUploads.LoadAndDelete(r.MultipartForm); ok {
		closeUploads(v.([]multipart.File))
	}
	_ = r.MultipartForm.RemoveAll()
}

func closeUploads(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// extractMultipart implements the multipart request format: an "operations"
// field holding the JSON request, a "map" field naming for every file field
// the dotted paths it fills, and the files themselves.
func extractMultipart(r *http.Request, lim Limits) (_ Raw, err error) {
	if err := r.ParseMultipartForm(lim.maxMemory()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, gqlerrors.BadRequest("Request is not valid")
	}
	form := r.MultipartForm

	ops := form.Value["operations"]
	if len(ops) == 0 {
		return nil, gqlerrors.BadRequest("Missing multipart field 'operations'.")
	}
	var operations any
	if err := json.Unmarshal([]byte(ops[0]), &operations); err != nil {
		return nil, gqlerrors.BadRequest("Multipart field 'operations' is not valid JSON.")
	}
	raw, ok := operations.(map[string]any)
	if !ok {
		return nil, gqlerrors.BadRequest("Multipart field 'operations' must be an object but received " + TypeName(operations) + ".")
	}

	var fileMap map[string][]string
	if m := form.Value["map"]; len(m) > 0 {
		if err := json.Unmarshal([]byte(m[0]), &fileMap); err != nil {
			return nil, gqlerrors.BadRequest("Multipart field 'map' must be an object of path lists.")
		}
	}

	var opened []multipart.File
	defer func() {
		if err != nil {
			closeUploads(opened)
		} else if len(opened) > 0 {
			openUploads.Store(form, opened)
		}
	}()
	for field, paths := range fileMap {
		headers := form.File[field]
		if len(headers) == 0 {
			return nil, gqlerrors.BadRequest(`File "` + field + `" referenced in 'map' was not uploaded.`)
		}
		fh := headers[0]
		if lim.MaxFileBytes > 0 && fh.Size > lim.MaxFileBytes {
			return nil, gqlerrors.New(`File "`+fh.Filename+`" exceeds the size limit.`, gqlerrors.WithStatus(http.StatusRequestEntityTooLarge))
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening upload %q", field)
		}
		opened = append(opened, f)
		up := &Upload{
			File:        f,
			Filename:    fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		}
		for _, p := range paths {
			if !setPath(raw, p, up) {
				return nil, gqlerrors.BadRequest(`Could not set file at path "` + p + `".`)
			}
		}
	}
	return Raw(raw), nil
}

// setPath stores v at a dotted path such as "variables.files.0". Every step
// but the last must already exist.
func setPath(root map[string]any, path string, v any) bool {
	parts := strings.Split(path, ".")
	var cur any = root
	for i, part := range parts {
		last := i == len(parts)-1
		switch c := cur.(type) {
		case map[string]any:
			if last {
				c[part] = v
				return true
			}
			next, ok := c[part]
			if !ok {
				return false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(c) {
				return false
			}
			if last {
				c[idx] = v
				return true
			}
			cur = c[idx]
		default:
			return false
		}
	}
	return false
}
