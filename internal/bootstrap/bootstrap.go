// internal/bootstrap/bootstrap.go
//
// Package bootstrap turns a validated, normalized config into a ready
// client: the storage backend, the control layer with its shims, and the
// logger they share.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/badgerstore"
	"github.com/tamzrod/superscore/internal/backend/directory"
	"github.com/tamzrod/superscore/internal/backend/filestore"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/backend/s3store"
	"github.com/tamzrod/superscore/internal/backend/sqlstore"
	"github.com/tamzrod/superscore/internal/client"
	"github.com/tamzrod/superscore/internal/config"
	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/shim/ingest"
	"github.com/tamzrod/superscore/internal/shim/modbus"
	"github.com/tamzrod/superscore/internal/shim/sim"
)

// Options carries the process-level pieces a config cannot describe.
type Options struct {
	Logger     *slog.Logger          // defaults to slog.Default()
	Registerer prometheus.Registerer // nil disables control metrics
	Tracer     trace.Tracer          // nil uses the global provider
}

// Runtime is everything Build wires together.
type Runtime struct {
	Client  *client.Client
	Layer   *control.Layer
	Backend backend.Backend
	Sims    map[string]*sim.Shim // sim shims by tag

	closers []func() error
}

// Close releases shims and the backend, in reverse order of creation.
// It returns the last error seen.
func (r *Runtime) Close() error {
	var last error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			last = err
		}
	}
	r.closers = nil
	return last
}

// Build assumes cfg has passed Validate and Normalize.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	rt := &Runtime{Sims: make(map[string]*sim.Shim)}

	b, closeBackend, err := BuildBackend(ctx, cfg.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}
	rt.Backend = b
	rt.closers = append(rt.closers, closeBackend)

	if err := rt.buildControl(cfg.Control, opts); err != nil {
		_ = rt.Close()
		return nil, err
	}

	copts := []client.Option{client.WithLogger(opts.Logger)}
	if opts.Tracer != nil {
		copts = append(copts, client.WithTracer(opts.Tracer))
	}
	rt.Client = client.New(rt.Backend, rt.Layer, copts...)
	return rt, nil
}

// LoadConfig finds (when path is empty), loads, validates and normalizes
// a config file. adjust runs between loading and validation, for command
// line overrides.
func LoadConfig(path string, adjust ...func(*config.Config)) (*config.Config, error) {
	if path == "" {
		p, err := config.Find()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// FromConfig is LoadConfig followed by Build.
func FromConfig(ctx context.Context, path string, opts Options) (*Runtime, *config.Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	rt, err := Build(ctx, cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

// ---- backend ----

// BuildBackend opens the configured backend. The returned func closes it.
func BuildBackend(ctx context.Context, bc config.BackendConfig, logger *slog.Logger) (backend.Backend, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = slog.Default()
	}

	switch bc.Kind {
	case config.BackendMemory:
		return memory.New(memory.WithLogger(logger)), noop, nil

	case config.BackendFilestore:
		s, err := filestore.Open(bc.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.BackendDirectory:
		s, err := directory.Open(bc.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.BackendSQLite, config.BackendPostgres:
		sc := sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: bc.Path, Table: bc.Table, Logger: logger}
		if bc.Kind == config.BackendPostgres {
			sc.Driver, sc.DSN = sqlstore.DriverPostgres, bc.DSN
		}
		s, err := sqlstore.Open(ctx, sc)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.BackendS3:
		s, err := s3store.Open(ctx, s3store.Config{
			Bucket:          bc.S3.Bucket,
			Region:          bc.S3.Region,
			Endpoint:        bc.S3.Endpoint,
			Key:             bc.S3.Key,
			PathStyle:       bc.S3.PathStyle,
			AccessKeyID:     bc.S3.AccessKeyID,
			SecretAccessKey: bc.S3.SecretAccessKey,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case config.BackendBadger:
		s, err := badgerstore.Open(badgerstore.Config{Path: bc.Path, InMemory: bc.InMemory, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("bootstrap: unknown backend kind %q", bc.Kind)
}

// ---- control ----

func (rt *Runtime) buildControl(cc config.ControlConfig, opts Options) error {
	lopts := []control.Option{
		control.WithDefaultTag(cc.DefaultProtocol),
		control.WithTimeout(ms(cc.TimeoutMs)),
		control.WithMaxInFlight(cc.MaxInFlight),
		control.WithLogger(opts.Logger),
	}
	if cc.RatePerSecond > 0 {
		lopts = append(lopts, control.WithWriteRate(cc.RatePerSecond))
	}
	if opts.Registerer != nil {
		lopts = append(lopts, control.WithMetrics(control.NewMetrics(opts.Registerer)))
	}
	rt.Layer = control.New(lopts...)

	for _, sc := range cc.Shims {
		s, closeFn, err := rt.buildShim(sc, opts.Logger)
		if err != nil {
			return fmt.Errorf("bootstrap: shim %q: %w", sc.Tag, err)
		}
		if closeFn != nil {
			rt.closers = append(rt.closers, closeFn)
		}
		if err := rt.Layer.Register(sc.Tag, s); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) buildShim(sc config.ShimConfig, logger *slog.Logger) (control.Shim, func() error, error) {
	switch sc.Kind {
	case config.ShimModbus:
		s, err := modbus.New(modbus.Config{
			Endpoint:     sc.Endpoint,
			UnitID:       sc.UnitID,
			Timeout:      ms(sc.TimeoutMs),
			PollInterval: ms(sc.PollIntervalMs),
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.ShimIngest:
		s, err := ingest.New(ingest.Config{
			Endpoint: sc.Endpoint,
			UnitID:   sc.UnitID,
			Timeout:  ms(sc.TimeoutMs),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	case config.ShimSim:
		initial := make(map[string]model.Value, len(sc.Values))
		for addr, raw := range sc.Values {
			initial[addr] = model.ParseValue(raw)
		}
		s := sim.New(initial)
		rt.Sims[sc.Tag] = s
		return s, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown shim kind %q", sc.Kind)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// ---- logging ----

// NewLogger builds the process logger from the log section.
func NewLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
