package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hanpama/gqlserve/internal/config"
	"github.com/hanpama/gqlserve/internal/defaultschema"
	"github.com/hanpama/gqlserve/internal/eventbus"
	executor "github.com/hanpama/gqlserve/internal/executor"
	language "github.com/hanpama/gqlserve/internal/language"
	"github.com/hanpama/gqlserve/internal/log"
	"github.com/hanpama/gqlserve/internal/metrics"
	"github.com/hanpama/gqlserve/internal/otel"
	"github.com/hanpama/gqlserve/internal/resolver"
	"github.com/hanpama/gqlserve/internal/schema"
	"github.com/hanpama/gqlserve/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gqlserve",
		Short:        "GraphQL over HTTP server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newValidateCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL server",
		Long: `Run the HTTP GraphQL server.

Without --schema the built-in schema is served (Query.greetings and
Subscription.time). With --schema every field is projected from the JSON
document given by --root-value.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringSlice("schema", nil, "GraphQL SDL file. Repeatable")
	cmd.Flags().String("root-value", "", "JSON file used as the root value of every operation")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	log.Configure(cfg.LogLevel, cfg.LogFormat)
	logger := log.Get()

	schemaFiles, _ := cmd.Flags().GetStringSlice("schema")
	rootFile, _ := cmd.Flags().GetString("root-value")

	app, err := newApp(cfg, schemaFiles, rootFile)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).WithField("endpoint", cfg.Endpoint).Info("GraphQL server listening")
		errc <- srv.ListenAndServe()
	}()

	var result *multierror.Error
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, errors.Wrap(err, "listen"))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "http shutdown"))
	}
	if err := app.close(sctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// app is the wired server: GraphQL handler, metrics and tracing.
type app struct {
	handler http.Handler
	close   func(context.Context) error
}

func newApp(cfg config.Config, schemaFiles []string, rootFile string) (*app, error) {
	sch, rt, rootValue, err := loadSchema(schemaFiles, rootFile)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	eventbus.Use(bus)
	shutdownTracing, err := otel.Setup(cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return nil, errors.Wrap(err, "otel setup")
	}
	m := metrics.New()
	unsubscribe := m.Register(bus)

	opts := []server.Option{
		server.WithTimeout(cfg.Timeout),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithMaxFileBytes(cfg.MaxFileBytes),
		server.WithSSEHeartbeat(cfg.SSEHeartbeat),
		server.WithGraphiQL(cfg.GraphiQL),
		server.WithIntrospection(cfg.Introspection),
		server.WithIncrementalDelivery(cfg.Incremental),
		server.WithCacheSize(cfg.CacheSize),
		server.WithEndpoint(cfg.Endpoint),
		server.WithHealthCheck(cfg.HealthPath),
		server.WithLogger(log.Get()),
	}
	if cfg.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if cfg.DevMode {
		opts = append(opts, server.WithDevMode())
	}
	if len(cfg.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.CORSOrigins...))
	}
	if len(cfg.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(cfg.MetadataHeaders...))
	}
	if rootValue != nil {
		opts = append(opts, server.WithRootValue(rootValue))
	}
	h, err := server.New(rt, sch, opts...)
	if err != nil {
		unsubscribe()
		_ = shutdownTracing(context.Background())
		return nil, errors.Wrap(err, "server init")
	}
	h.WatchCaches(m.WatchCache)

	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, m.Handler())
	}
	mux.Handle("/", h)

	return &app{
		handler: mux,
		close: func(ctx context.Context) error {
			unsubscribe()
			eventbus.Use(nil)
			return errors.Wrap(shutdownTracing(ctx), "otel shutdown")
		},
	}, nil
}

func loadSchema(files []string, rootFile string) (*schema.Schema, executor.Runtime, any, error) {
	if len(files) == 0 {
		sch, reg, err := defaultschema.Build(time.Second)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "default schema")
		}
		return sch, reg, nil, nil
	}
	sources := make([]string, len(files))
	for i, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "reading schema")
		}
		sources[i] = string(b)
	}
	sch, err := schema.BuildFromSDL(sources...)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "building schema")
	}
	reg := resolver.New()
	if err := reg.Bind(sch); err != nil {
		return nil, nil, nil, err
	}
	var root any
	if rootFile != "" {
		b, err := os.ReadFile(rootFile)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "reading root value")
		}
		if err := jsoniter.Unmarshal(b, &root); err != nil {
			return nil, nil, nil, errors.Wrap(err, "decoding root value")
		}
	}
	return sch, reg, root, nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <query-file>",
		Short: "Validate a query document against a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, _ := cmd.Flags().GetStringSlice("schema")
			sch, _, _, err := loadSchema(files, "")
			if err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "reading query")
			}
			doc, err := language.ParseQuery(string(src))
			if err != nil {
				return errors.Wrap(err, args[0])
			}
			list := language.Validate(sch.AST, doc, language.DefaultRules())
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}
			msgs := make([]string, len(list))
			for i, e := range list {
				msgs[i] = e.Error()
			}
			fmt.Fprintln(cmd.ErrOrStderr(), strings.Join(msgs, "\n"))
			return errors.Errorf("%s: %d validation error(s)", args[0], len(list))
		},
	}
	cmd.Flags().StringSlice("schema", nil, "GraphQL SDL file; defaults to the built-in schema. Repeatable")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gqlserve", version)
		},
	}
}
