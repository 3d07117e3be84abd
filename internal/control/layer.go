package control

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/status"
)

const (
	DefaultTag         = "ca"
	DefaultTimeout     = 2 * time.Second
	DefaultMaxInFlight = 64
)

// Layer routes addresses to registered shims.
//
// Get blocks until every address has a result. Put returns one task per
// address immediately and settles them in the background. A failure or
// timeout on one address never affects the others.
type Layer struct {
	mu    sync.RWMutex // guards shims during registration
	shims map[string]Shim

	defaultTag  string
	timeout     time.Duration
	maxInFlight int
	limiter     *rate.Limiter
	metrics     *Metrics
	logger      *slog.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithDefaultTag sets the tag used for addresses without one.
func WithDefaultTag(tag string) Option { return func(l *Layer) { l.defaultTag = tag } }

// WithTimeout bounds every shim call. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(l *Layer) { l.timeout = d } }

// WithMaxInFlight bounds concurrent shim calls per Get or Put.
func WithMaxInFlight(n int) Option {
	return func(l *Layer) {
		if n > 0 {
			l.maxInFlight = n
		}
	}
}

// WithWriteRate throttles writes to perSecond across the layer.
// Zero or negative means unlimited.
func WithWriteRate(perSecond float64) Option {
	return func(l *Layer) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMetrics records operation counts and latencies.
func WithMetrics(m *Metrics) Option { return func(l *Layer) { l.metrics = m } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(lg *slog.Logger) Option { return func(l *Layer) { l.logger = lg } }

// New creates an empty layer.
func New(opts ...Option) *Layer {
	l := &Layer{
		shims:       make(map[string]Shim),
		defaultTag:  DefaultTag,
		timeout:     DefaultTimeout,
		maxInFlight: DefaultMaxInFlight,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Register binds tag to s. Tags are unique.
func (l *Layer) Register(tag string, s Shim) error {
	if tag == "" || s == nil {
		return fmt.Errorf("%w: register: tag and shim required", ErrConfiguration)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.shims[tag]; dup {
		return fmt.Errorf("%w: tag %q already registered", ErrConfiguration, tag)
	}
	l.shims[tag] = s
	return nil
}

// Tags lists registered tags in sorted order.
func (l *Layer) Tags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tags := make([]string, 0, len(l.shims))
	for t := range l.shims {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// DefaultTag is the tag applied to untagged addresses.
func (l *Layer) DefaultTag() string { return l.defaultTag }

func (l *Layer) route(address string) (Shim, string, string, error) {
	tag, rest := ParseAddress(address, l.defaultTag)
	l.mu.RLock()
	s, ok := l.shims[tag]
	l.mu.RUnlock()
	if !ok {
		return nil, tag, rest, fmt.Errorf("%w: %s: no shim registered for tag %q", ErrConfiguration, address, tag)
	}
	return s, tag, rest, nil
}

func (l *Layer) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout > 0 {
		return context.WithTimeout(ctx, l.timeout)
	}
	return context.WithCancel(ctx)
}

// GetOne reads a single address.
func (l *Layer) GetOne(ctx context.Context, address string) (model.Value, error) {
	s, tag, rest, err := l.route(address)
	if err != nil {
		return model.Null(), err
	}
	cctx, cancel := l.callCtx(ctx)
	defer cancel()

	start := time.Now()
	v, err := s.Get(cctx, rest)
	l.metrics.observe(tag, "get", time.Since(start).Seconds(), err)
	if err != nil {
		return model.Null(), wrapShimErr(address, err)
	}
	return v, nil
}

// readUnit is one unit of concurrent work: a batch for one batching shim,
// or a single address.
type readUnit struct {
	tag     string
	shim    Shim
	idx     []int
	address []string // full addresses, for errors
	rest    []string
}

// Get reads every address concurrently. The result slice is index-aligned
// with addresses; unknown tags fail only their own position.
func (l *Layer) Get(ctx context.Context, addresses ...string) []Result {
	results := make([]Result, len(addresses))
	batches := make(map[string]*readUnit)
	var units []*readUnit

	for i, addr := range addresses {
		s, tag, rest, err := l.route(addr)
		if err != nil {
			results[i] = Result{Value: model.Null(), Err: err}
			continue
		}
		if _, ok := s.(BatchGetter); ok {
			u := batches[tag]
			if u == nil {
				u = &readUnit{tag: tag, shim: s}
				batches[tag] = u
				units = append(units, u)
			}
			u.idx = append(u.idx, i)
			u.address = append(u.address, addr)
			u.rest = append(u.rest, rest)
			continue
		}
		units = append(units, &readUnit{tag: tag, shim: s, idx: []int{i}, address: []string{addr}, rest: []string{rest}})
	}

	// goroutines never return errors, so siblings are never cancelled
	var g errgroup.Group
	g.SetLimit(l.maxInFlight)
	for _, u := range units {
		g.Go(func() error {
			l.readUnit(ctx, u, results)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *Layer) readUnit(ctx context.Context, u *readUnit, results []Result) {
	cctx, cancel := l.callCtx(ctx)
	defer cancel()
	start := time.Now()

	if bg, ok := u.shim.(BatchGetter); ok {
		got := bg.GetMany(cctx, u.rest)
		for j, i := range u.idx {
			var r Result
			if j < len(got) {
				r = got[j]
			} else {
				r = Result{Err: fmt.Errorf("%w: batch returned %d results for %d addresses", ErrCommunication, len(got), len(u.rest))}
			}
			if r.Err != nil {
				r = Result{Value: model.Null(), Err: wrapShimErr(u.address[j], r.Err)}
			}
			results[i] = r
		}
		l.metrics.observe(u.tag, "get_many", time.Since(start).Seconds(), nil)
		return
	}

	v, err := u.shim.Get(cctx, u.rest[0])
	l.metrics.observe(u.tag, "get", time.Since(start).Seconds(), err)
	if err != nil {
		l.logger.Debug("get failed", "address", u.address[0], "err", err)
		results[u.idx[0]] = Result{Value: model.Null(), Err: wrapShimErr(u.address[0], err)}
		return
	}
	results[u.idx[0]] = Result{Value: v}
}

// Put writes values[i] to addresses[i]. It returns one pending task per
// address without waiting; the writes run in the background, bounded by
// the in-flight limit and the write rate. Cancelling ctx abandons writes
// that have not been issued.
func (l *Layer) Put(ctx context.Context, addresses []string, values []model.Value) ([]*status.Task, error) {
	if len(addresses) != len(values) {
		return nil, fmt.Errorf("%w: put: %d addresses for %d values", ErrConfiguration, len(addresses), len(values))
	}
	tasks := make([]*status.Task, len(addresses))
	for i, addr := range addresses {
		tasks[i] = status.NewTask(addr, values[i])
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(l.maxInFlight)
		for _, t := range tasks {
			g.Go(func() error {
				l.write(ctx, t)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return tasks, nil
}

func (l *Layer) write(ctx context.Context, t *status.Task) {
	s, tag, rest, err := l.route(t.Address)
	if err != nil {
		t.Finish(err)
		return
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			t.Finish(wrapShimErr(t.Address, err))
			return
		}
	}

	cctx, cancel := l.callCtx(ctx)
	defer cancel()

	t.Start()
	l.metrics.writeStarted()
	start := time.Now()
	err = s.Put(cctx, rest, t.Value)
	l.metrics.observe(tag, "put", time.Since(start).Seconds(), err)
	l.metrics.writeDone()

	if err != nil {
		l.logger.Debug("put failed", "address", t.Address, "err", err)
	}
	t.Finish(wrapShimErr(t.Address, err))
}

// Monitor subscribes fn to changes of address until ctx ends or the
// subscription is closed.
func (l *Layer) Monitor(ctx context.Context, address string, fn MonitorFunc) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: monitor %s: nil callback", ErrConfiguration, address)
	}
	s, tag, rest, err := l.route(address)
	if err != nil {
		return nil, err
	}
	sub, err := s.Monitor(ctx, rest, func(v model.Value, err error) {
		fn(v, wrapShimErr(address, err))
	})
	l.metrics.observe(tag, "monitor", 0, err)
	if err != nil {
		return nil, wrapShimErr(address, err)
	}
	return sub, nil
}
