// Package mediatype turns an Accept header into the ordered list of media
// types the server can answer with.
package mediatype

import (
	"net/http"
	"strings"
)

// Type is one of the media types the server knows how to produce.
type Type string

const (
	GraphQLResponseJSON Type = "application/graphql-response+json"
	JSON                Type = "application/json"
	MultipartMixed      Type = "multipart/mixed"
	EventStream         Type = "text/event-stream"
	HTML                Type = "text/html"
)

// NotAcceptableHeader is the Accept value sent back with 406 responses.
const NotAcceptableHeader = "application/graphql-response+json; charset=utf-8, application/json; charset=utf-8, multipart/mixed, text/event-stream"

var known = map[string]Type{
	"*/*":                               GraphQLResponseJSON,
	"application/*":                     GraphQLResponseJSON,
	"application/graphql-response+json": GraphQLResponseJSON,
	"application/json":                  JSON,
	"text/*":                            EventStream,
	"text/event-stream":                 EventStream,
	"multipart/*":                       MultipartMixed,
	"multipart/mixed":                   MultipartMixed,
	"text/html":                         HTML,
}

// Negotiate returns the acceptable media types of r in preference order.
func Negotiate(r *http.Request) []Type {
	return ParseAccept(r.Header.Get("Accept"))
}

// ParseAccept parses an Accept header value. An empty header means */*.
// Entries are kept in header order; q-values are not considered and entries
// declaring a charset other than utf-8 are dropped.
func ParseAccept(header string) []Type {
	if strings.TrimSpace(header) == "" {
		header = "*/*"
	}
	var out []Type
	seen := make(map[Type]bool)
	for _, entry := range strings.Split(header, ",") {
		entry = strings.ToLower(strings.Join(strings.Fields(entry), ""))
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ";")
		if !utf8Charset(parts[1:]) {
			continue
		}
		t, ok := known[parts[0]]
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func utf8Charset(params []string) bool {
	for _, p := range params {
		if v, ok := strings.CutPrefix(p, "charset="); ok {
			return strings.Trim(v, `"`) == "utf-8"
		}
	}
	return true
}

// Contains reports whether t is in types.
func Contains(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
