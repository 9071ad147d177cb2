package server

import (
	_ "embed"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/hanpama/gqlserve/internal/mediatype"
	"github.com/hanpama/gqlserve/internal/pipeline"
)

//go:embed graphiql.html
var graphiqlPage []byte

// RequestIDMetadataKey carries the request ID in outgoing gRPC metadata.
const RequestIDMetadataKey = "graphql-request-id"

func (h *Handler) builtinPlugins() []pipeline.Plugin {
	plugins := []pipeline.Plugin{metadataPlugin(h.opt.MetadataHeaders)}
	if h.opt.HealthPath != "" {
		plugins = append(plugins, healthPlugin(h.opt.HealthPath))
	}
	if h.opt.GraphiQL {
		plugins = append(plugins, graphiqlPlugin(h.opt.Endpoint))
	}
	plugins = append(plugins, h.opt.Plugins...)
	return append(plugins, routePlugin(h.opt.Endpoint))
}

// metadataPlugin maps configured headers and the request ID into outgoing
// gRPC metadata, so resolvers calling gRPC services forward them.
func metadataPlugin(headers []string) pipeline.Plugin {
	allowed := make(map[string]struct{}, len(headers))
	for _, hdr := range headers {
		allowed[strings.ToLower(hdr)] = struct{}{}
	}
	return pipeline.Plugin{
		Name: "metadata",
		OnRequest: func(req *pipeline.Request) error {
			md := metadata.MD{}
			for k, v := range req.HTTP.Header {
				if _, ok := allowed[strings.ToLower(k)]; ok {
					md[strings.ToLower(k)] = v
				}
			}
			md[RequestIDMetadataKey] = []string{requestID(req.Context())}
			req.SetContext(metadata.NewOutgoingContext(req.Context(), md))
			return nil
		},
	}
}

func healthPlugin(path string) pipeline.Plugin {
	return pipeline.Plugin{
		Name: "health",
		OnRequest: func(req *pipeline.Request) error {
			if req.HTTP.URL.Path != path {
				return nil
			}
			req.EndResponse(&pipeline.Response{
				Status: http.StatusOK,
				Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
				Body:   []byte(`{"message":"alive"}`),
			})
			return nil
		},
	}
}

// graphiqlPlugin serves the IDE to browsers opening the endpoint.
func graphiqlPlugin(endpoint string) pipeline.Plugin {
	return pipeline.Plugin{
		Name: "graphiql",
		OnRequest: func(req *pipeline.Request) error {
			r := req.HTTP
			if r.Method != http.MethodGet || r.URL.Path != endpoint || r.URL.Query().Get("query") != "" {
				return nil
			}
			if !mediatype.Contains(mediatype.Negotiate(r), mediatype.HTML) {
				return nil
			}
			req.EndResponse(&pipeline.Response{
				Status: http.StatusOK,
				Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
				Body:   graphiqlPage,
			})
			return nil
		},
	}
}

func routePlugin(endpoint string) pipeline.Plugin {
	return pipeline.Plugin{
		Name: "route",
		OnRequest: func(req *pipeline.Request) error {
			if req.HTTP.URL.Path != endpoint {
				req.EndResponse(&pipeline.Response{Status: http.StatusNotFound})
			}
			return nil
		},
	}
}
