package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanpama/gqlserve/internal/pipeline"
	"github.com/hanpama/gqlserve/internal/processor"
)

// ContextFactory builds the context operations run with. It is called once
// per request after validation; an error aborts the request.
type ContextFactory func(ctx context.Context, req *pipeline.Request) (context.Context, error)

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// Subscriptions are not bounded by it. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// MaxFileBytes limits each uploaded file. 0 means unlimited.
	MaxFileBytes int64

	// CORSOrigins lists the allowed origins. If empty, CORS is disabled.
	CORSOrigins []string

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Endpoint is the path GraphQL is served on. Other paths answer 404.
	Endpoint string

	// HealthPath answers health checks. Empty disables them.
	HealthPath string

	// DevMode exposes the message of masked errors.
	DevMode bool

	// Introspection allows __schema and __type.
	Introspection bool

	// Incremental enables @defer and @stream.
	Incremental bool

	// CacheSize is the number of parsed documents and validation results
	// kept per handler. 0 disables caching.
	CacheSize int

	// SSEHeartbeat is the interval of keep-alive comments on event streams.
	SSEHeartbeat time.Duration

	// ExtraParams are request parameters accepted besides the standard four.
	ExtraParams []string

	ContextFactory ContextFactory
	RootValue      any
	Plugins        []pipeline.Plugin
	Logger         *logrus.Logger
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Timeout:       10 * time.Second,
		MaxBodyBytes:  10 << 20,
		MaxFileBytes:  5 << 20,
		GraphiQL:      true,
		Endpoint:      "/graphql",
		HealthPath:    "/health",
		Introspection: true,
		Incremental:   true,
		CacheSize:     1024,
		SSEHeartbeat:  processor.DefaultHeartbeat,
	}
}

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMaxFileBytes(n int64) Option    { return func(o *Options) { o.MaxFileBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORSOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithGraphiQL(enable bool) Option      { return func(o *Options) { o.GraphiQL = enable } }
func WithEndpoint(path string) Option      { return func(o *Options) { o.Endpoint = path } }
func WithHealthCheck(path string) Option   { return func(o *Options) { o.HealthPath = path } }
func WithDevMode() Option                  { return func(o *Options) { o.DevMode = true } }
func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }
func WithIncrementalDelivery(enable bool) Option {
	return func(o *Options) { o.Incremental = enable }
}
func WithCacheSize(n int) Option                 { return func(o *Options) { o.CacheSize = n } }
func WithSSEHeartbeat(d time.Duration) Option    { return func(o *Options) { o.SSEHeartbeat = d } }
func WithExtraParams(keys ...string) Option      { return func(o *Options) { o.ExtraParams = keys } }
func WithContextFactory(f ContextFactory) Option { return func(o *Options) { o.ContextFactory = f } }
func WithRootValue(v any) Option                 { return func(o *Options) { o.RootValue = v } }
func WithLogger(l *logrus.Logger) Option         { return func(o *Options) { o.Logger = l } }

// WithPlugins appends plugins. They run after the built-in plugins and
// before requests to unknown paths are rejected.
func WithPlugins(plugins ...pipeline.Plugin) Option {
	return func(o *Options) { o.Plugins = append(o.Plugins, plugins...) }
}
