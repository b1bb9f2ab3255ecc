package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/api"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/emit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/natsx"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and NATS event consumer",
		Long: `Serve the rule management and event intake API.

When nats.url is configured, trigger events published on
nats.events_subject are consumed as well. Configuration comes from
bizflow.yaml, BIZFLOW_* environment variables and flags.

Examples:
  bizflow serve
  bizflow serve --addr :9000
  BIZFLOW_DATABASE_DRIVER=postgres BIZFLOW_DATABASE_URL=postgres://... bizflow serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	level, err := parseLevel(cfg.Logging.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "logging.level", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Logging.Format, level)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer a.close()

	limiter, err := a.newLimiter()
	if err != nil {
		return WrapExitError(ExitCommandError, "rate limiter", err)
	}
	emitter := emit.New(a.engine)

	if a.nc != nil {
		consumer := natsx.NewConsumer(a.nc, cfg.NATS.EventsSubject, cfg.NATS.Queue, cfg.Engine.ActionTimeout*4,
			func(ctx context.Context, ev ir.TriggerEvent) {
				emitter.Emit(ctx, ev.Type, ev.TenantID, ev.Data)
			},
			natsx.WithOutcomeHook(func(outcome string) {
				if a.metrics != nil {
					a.metrics.MessageConsumed(outcome)
				}
			}),
		)
		if err := consumer.Start(); err != nil {
			return WrapExitError(ExitCommandError, "nats consumer", err)
		}
		defer func() {
			if err := consumer.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		}()
	}

	srvOpts := []api.Option{api.WithLimiter(limiter)}
	if a.metrics != nil {
		srvOpts = append(srvOpts, api.WithMetrics(a.metrics))
	}
	srv := api.NewServer(a.backend, emitter, srvOpts...)

	slog.Info("bizflow serving",
		"addr", cfg.HTTP.Addr,
		"database", cfg.Database.Driver,
		"messaging", cfg.Messaging.Driver,
		"ratelimit", cfg.RateLimit.Backend,
		"nats", cfg.NATS.URL != "",
	)
	if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout); err != nil {
		return WrapExitError(ExitCommandError, "http server", err)
	}
	return nil
}
