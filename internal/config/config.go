// Package config loads server settings from defaults, an optional config
// file, GQLSERVE_ environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GQLSERVE_ADDR.
const EnvPrefix = "GQLSERVE"

// Config holds the settings of the serve command.
type Config struct {
	Addr            string
	Endpoint        string
	Timeout         time.Duration
	Pretty          bool
	MaxBodyBytes    int64
	MaxFileBytes    int64
	SSEHeartbeat    time.Duration
	GraphiQL        bool
	Introspection   bool
	Incremental     bool
	CacheSize       int
	DevMode         bool
	MetadataHeaders []string
	CORSOrigins     []string
	HealthPath      string
	MetricsPath     string
	LogLevel        string
	LogFormat       string
	OtelEndpoint    string
	OtelService     string
	ShutdownTimeout time.Duration
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:            ":4000",
		Endpoint:        "/graphql",
		Timeout:         10 * time.Second,
		MaxBodyBytes:    10 << 20,
		MaxFileBytes:    5 << 20,
		SSEHeartbeat:    12 * time.Second,
		GraphiQL:        true,
		Introspection:   true,
		Incremental:     true,
		CacheSize:       1024,
		HealthPath:      "/health",
		MetricsPath:     "/metrics",
		LogLevel:        "info",
		LogFormat:       "text",
		OtelService:     "gqlserve",
		ShutdownTimeout: 5 * time.Second,
	}
}

// RegisterFlags adds one flag per setting to fs, defaulting to Default().
func RegisterFlags(fs *flag.FlagSet) {
	d := Default()
	fs.String("config", "", "Configuration file (json, yaml or toml). Overridden by environment variables and flags.")
	fs.String("addr", d.Addr, "HTTP listen address")
	fs.String("endpoint", d.Endpoint, "Path of the GraphQL endpoint")
	fs.Duration("timeout", d.Timeout, "Per-request timeout for non-streamed responses; 0 disables it")
	fs.Bool("pretty", d.Pretty, "Indent JSON responses")
	fs.Int64("max_body_bytes", d.MaxBodyBytes, "Maximum request body size")
	fs.Int64("max_file_bytes", d.MaxFileBytes, "Maximum size of a single uploaded file")
	fs.Duration("sse_heartbeat", d.SSEHeartbeat, "Interval of keep-alive comments on event streams")
	fs.Bool("graphiql", d.GraphiQL, "Serve GraphiQL to browsers on GET requests without a query")
	fs.Bool("introspection", d.Introspection, "Allow __schema and __type queries")
	fs.Bool("incremental", d.Incremental, "Honor @defer and @stream")
	fs.Int("cache_size", d.CacheSize, "Entries of the parse and validation caches; 0 disables them")
	fs.Bool("dev", d.DevMode, "Expose the original message of masked errors")
	fs.StringSlice("metadata_header", nil, "HTTP header forwarded to resolvers as outgoing gRPC metadata. Repeatable")
	fs.StringSlice("cors_origin", nil, "Allowed CORS origin; empty disables CORS. Repeatable")
	fs.String("health_path", d.HealthPath, "Path answered by the health check; empty disables it")
	fs.String("metrics_path", d.MetricsPath, "Path of the Prometheus endpoint; empty disables it")
	fs.String("log_level", d.LogLevel, "One of debug, info, warn, error")
	fs.String("log_format", d.LogFormat, "Either text or json")
	fs.String("otel_endpoint", "", "OTLP gRPC collector endpoint; empty disables tracing")
	fs.String("otel_service", d.OtelService, "OpenTelemetry service name")
	fs.Duration("shutdown_timeout", d.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
}

// Load reads the settings bound to fs. The file named by the config flag is
// read first; environment variables and explicitly set flags override it.
func Load(fs *flag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, errors.Wrap(err, "binding flags")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", file)
		}
	}

	c := Config{
		Addr:            v.GetString("addr"),
		Endpoint:        v.GetString("endpoint"),
		Timeout:         v.GetDuration("timeout"),
		Pretty:          v.GetBool("pretty"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		MaxFileBytes:    v.GetInt64("max_file_bytes"),
		SSEHeartbeat:    v.GetDuration("sse_heartbeat"),
		GraphiQL:        v.GetBool("graphiql"),
		Introspection:   v.GetBool("introspection"),
		Incremental:     v.GetBool("incremental"),
		CacheSize:       v.GetInt("cache_size"),
		DevMode:         v.GetBool("dev"),
		MetadataHeaders: stringList(v, "metadata_header"),
		CORSOrigins:     stringList(v, "cors_origin"),
		HealthPath:      v.GetString("health_path"),
		MetricsPath:     v.GetString("metrics_path"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		OtelEndpoint:    v.GetString("otel_endpoint"),
		OtelService:     v.GetString("otel_service"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	return c, c.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Endpoint, "/") {
		return errors.Errorf("endpoint must start with '/', got %q", c.Endpoint)
	}
	if c.MaxBodyBytes < 0 || c.MaxFileBytes < 0 {
		return errors.New("size limits must not be negative")
	}
	if c.SSEHeartbeat < 0 || c.Timeout < 0 {
		return errors.New("durations must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// stringList accepts both lists and comma separated strings, so that
// GQLSERVE_CORS_ORIGIN=a,b works like two flags.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
