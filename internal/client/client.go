// Package client composes a storage backend and a control layer into the
// two superscore workflows: snap captures live values into a Snapshot and
// apply writes a Snapshot back. Storage calls are forwarded unchanged.
package client

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/status"
)

// ErrEntryKind is returned when snap, apply or verify is given an entry
// they cannot act on.
var ErrEntryKind = errors.New("client: unsupported entry kind")

// ControlLayer is the part of *control.Layer the client drives.
type ControlLayer interface {
	Get(ctx context.Context, addresses ...string) []control.Result
	Put(ctx context.Context, addresses []string, values []model.Value) ([]*status.Task, error)
}

var _ ControlLayer = (*control.Layer)(nil)

// Client is safe for concurrent use if its backend and control layer are.
type Client struct {
	backend backend.Backend
	cl      ControlLayer
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithTracer sets the tracer. Defaults to the global provider's.
func WithTracer(t trace.Tracer) Option { return func(c *Client) { c.tracer = t } }

// New returns a client over b and cl.
func New(b backend.Backend, cl ControlLayer, opts ...Option) *Client {
	c := &Client{
		backend: b,
		cl:      cl,
		logger:  slog.Default(),
		tracer:  otel.Tracer("superscore.client"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) start(ctx context.Context, name string, e model.Entry) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if e != nil {
		attrs = append(attrs,
			attribute.String("entry.id", e.EntryID().String()),
			attribute.String("entry.kind", string(e.Kind())),
		)
	}
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ---- storage ----

func (c *Client) Save(ctx context.Context, e model.Entry) (err error) {
	ctx, span := c.start(ctx, "client.Save", e)
	defer func() { endSpan(span, err) }()
	return c.backend.Save(ctx, e)
}

func (c *Client) Update(ctx context.Context, e model.Entry) (err error) {
	ctx, span := c.start(ctx, "client.Update", e)
	defer func() { endSpan(span, err) }()
	return c.backend.Update(ctx, e)
}

func (c *Client) Delete(ctx context.Context, e model.Entry) (err error) {
	ctx, span := c.start(ctx, "client.Delete", e)
	defer func() { endSpan(span, err) }()
	return c.backend.Delete(ctx, e)
}

func (c *Client) GetEntry(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	return c.backend.Get(ctx, id)
}

// GetLazy returns a reference that fetches id on first Resolve.
func (c *Client) GetLazy(id uuid.UUID) *backend.LazyEntry {
	return backend.Lazy(c.backend, id)
}

func (c *Client) Search(ctx context.Context, terms ...backend.SearchTerm) (iter.Seq[model.Entry], error) {
	return c.backend.Search(ctx, terms...)
}

func (c *Client) Root(ctx context.Context) (*model.Root, error) {
	return c.backend.Root(ctx)
}
