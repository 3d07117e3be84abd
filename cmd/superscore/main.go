// cmd/superscore/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tamzrod/superscore/internal/bootstrap"
	"github.com/tamzrod/superscore/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runFunc is a subcommand body with a built runtime.
type runFunc func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "superscore",
		Short: "Capture and restore control system settings",
		Long: `superscore snapshots the live values behind a Collection of process
variables and writes a stored Snapshot back to the control system.

The config file is taken from --config, $SUPERSCORE_CFG,
$XDG_CONFIG_HOME/superscore.cfg (or ~/.config/superscore.cfg), or
./superscore.cfg, in that order.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newSnapCmd(opts),
		newApplyCmd(opts),
		newVerifyCmd(opts),
		newSearchCmd(opts),
		newShowCmd(opts),
		newImportCmd(opts),
		newGetCmd(opts),
		newPutCmd(opts),
		newMonitorCmd(opts),
	)
	return root
}

// withRuntime loads the config, builds the runtime and, when configured,
// serves /metrics for the lifetime of the command.
func (o *rootOptions) withRuntime(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := bootstrap.LoadConfig(o.configPath, func(c *config.Config) {
			if o.logLevel != "" {
				c.Log.Level = o.logLevel
			}
		})
		if err != nil {
			return err
		}

		logger := bootstrap.NewLogger(cfg.Log, cmd.ErrOrStderr())
		slog.SetDefault(logger)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		bopts := bootstrap.Options{Logger: logger, Registerer: reg}
		tp, err := bootstrap.NewTracerProvider(cfg.Trace, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if tp != nil {
			defer func() { _ = tp.Shutdown(context.Background()) }()
			bopts.Tracer = tp.Tracer("superscore.client")
		}

		rt, err := bootstrap.Build(ctx, cfg, bopts)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				logger.Warn("runtime close failed", "err", err)
			}
		}()

		if cfg.Metrics.Listen != "" {
			stopMetrics := serveMetrics(cfg.Metrics.Listen, reg, logger)
			defer stopMetrics()
		}

		return fn(ctx, rt, cmd, args)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "addr", addr, "err", err)
		}
	}()
	logger.Debug("metrics listening", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
