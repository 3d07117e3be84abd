package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/status"
)

// ---- fake shims ----

type fakeShim struct {
	mu     sync.Mutex
	values map[string]model.Value
	fail   map[string]bool
	delay  map[string]time.Duration
	puts   []string
}

func newFakeShim() *fakeShim {
	return &fakeShim{values: map[string]model.Value{}, fail: map[string]bool{}, delay: map[string]time.Duration{}}
}

func (f *fakeShim) wait(ctx context.Context, address string) error {
	f.mu.Lock()
	d := f.delay[address]
	f.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeShim) Get(ctx context.Context, address string) (model.Value, error) {
	if err := f.wait(ctx, address); err != nil {
		return model.Null(), err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[address] {
		return model.Null(), errors.New("no response")
	}
	v, ok := f.values[address]
	if !ok {
		return model.Null(), errors.New("unknown pv")
	}
	return v, nil
}

func (f *fakeShim) Put(ctx context.Context, address string, v model.Value) error {
	if err := f.wait(ctx, address); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[address] {
		return errors.New("write refused")
	}
	f.values[address] = v
	f.puts = append(f.puts, address)
	return nil
}

func (f *fakeShim) Monitor(ctx context.Context, address string, fn MonitorFunc) (Subscription, error) {
	v, err := f.Get(ctx, address)
	fn(v, err)
	return SubscriptionFunc(func() error { return nil }), nil
}

type batchShim struct {
	*fakeShim
	calls [][]string
}

func (b *batchShim) GetMany(ctx context.Context, addresses []string) []Result {
	b.mu.Lock()
	b.calls = append(b.calls, append([]string(nil), addresses...))
	b.mu.Unlock()
	out := make([]Result, len(addresses))
	for i, a := range addresses {
		v, err := b.Get(ctx, a)
		out[i] = Result{Value: v, Err: err}
	}
	return out
}

// ---- tests ----

func TestParseAddress(t *testing.T) {
	tag, rest := ParseAddress("modbus://hr/100", "ca")
	assert.Equal(t, "modbus", tag)
	assert.Equal(t, "hr/100", rest)

	tag, rest = ParseAddress("MY:MOTOR:mtr1.ACCL", "ca")
	assert.Equal(t, "ca", tag)
	assert.Equal(t, "MY:MOTOR:mtr1.ACCL", rest)

	assert.Equal(t, "sim://X", JoinAddress("sim", "X"))
}

func TestRegister(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("sim", newFakeShim()))
	require.ErrorIs(t, l.Register("sim", newFakeShim()), ErrConfiguration)
	require.ErrorIs(t, l.Register("", newFakeShim()), ErrConfiguration)
	require.ErrorIs(t, l.Register("x", nil), ErrConfiguration)
	assert.Equal(t, []string{"sim"}, l.Tags())
}

func TestGetOne(t *testing.T) {
	s := newFakeShim()
	s.values["A"] = model.Int(1)
	l := New(WithDefaultTag("sim"))
	require.NoError(t, l.Register("sim", s))

	v, err := l.GetOne(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, model.Int(1), v)

	_, err = l.GetOne(context.Background(), "nope://A")
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = l.GetOne(context.Background(), "sim://missing")
	require.ErrorIs(t, err, ErrCommunication)
}

func TestGetIsolatesFailures(t *testing.T) {
	s := newFakeShim()
	for i, a := range []string{"0", "1", "2", "3", "4"} {
		s.values[a] = model.Int(int64(i))
	}
	s.fail["2"] = true
	l := New(WithDefaultTag("sim"))
	require.NoError(t, l.Register("sim", s))

	res := l.Get(context.Background(), "0", "1", "2", "3", "bogus://4", "4")
	require.Len(t, res, 6)
	for i, want := range []int64{0, 1} {
		require.NoError(t, res[i].Err)
		assert.Equal(t, model.Int(want), res[i].Value)
	}
	require.ErrorIs(t, res[2].Err, ErrCommunication)
	assert.True(t, res[2].Value.IsNull())
	assert.Equal(t, model.Int(3), res[3].Value)
	require.ErrorIs(t, res[4].Err, ErrConfiguration)
	assert.Equal(t, model.Int(4), res[5].Value)
}

func TestGetTimeoutDoesNotBlockSiblings(t *testing.T) {
	s := newFakeShim()
	s.values["slow"] = model.Int(1)
	s.values["fast"] = model.Int(2)
	s.delay["slow"] = time.Second
	l := New(WithDefaultTag("sim"), WithTimeout(20*time.Millisecond))
	require.NoError(t, l.Register("sim", s))

	start := time.Now()
	res := l.Get(context.Background(), "slow", "fast")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.ErrorIs(t, res[0].Err, ErrCommunication)
	require.ErrorIs(t, res[0].Err, context.DeadlineExceeded)
	require.NoError(t, res[1].Err)
}

func TestGetBatchesPerShim(t *testing.T) {
	b := &batchShim{fakeShim: newFakeShim()}
	b.values["a"] = model.Float(1)
	b.values["b"] = model.Float(2)
	plain := newFakeShim()
	plain.values["c"] = model.Float(3)

	l := New()
	require.NoError(t, l.Register("batch", b))
	require.NoError(t, l.Register("plain", plain))

	res := l.Get(context.Background(), "batch://a", "plain://c", "batch://b")
	require.Len(t, b.calls, 1)
	assert.Equal(t, []string{"a", "b"}, b.calls[0])
	assert.Equal(t, model.Float(1), res[0].Value)
	assert.Equal(t, model.Float(3), res[1].Value)
	assert.Equal(t, model.Float(2), res[2].Value)
}

func TestPutTasks(t *testing.T) {
	s := newFakeShim()
	s.fail["bad"] = true
	reg := prometheus.NewRegistry()
	l := New(WithDefaultTag("sim"), WithMetrics(NewMetrics(reg)))
	require.NoError(t, l.Register("sim", s))

	tasks, err := l.Put(context.Background(),
		[]string{"a", "bad", "none://x", "b"},
		[]model.Value{model.Int(1), model.Int(2), model.Int(3), model.Int(4)})
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	for _, task := range tasks {
		_ = task.Wait(context.Background())
	}
	assert.Equal(t, status.StateCompleted, tasks[0].State())
	assert.Equal(t, status.StateFailed, tasks[1].State())
	require.ErrorIs(t, tasks[1].Err(), ErrCommunication)
	require.ErrorIs(t, tasks[2].Err(), ErrConfiguration)
	assert.Equal(t, status.StateCompleted, tasks[3].State())
	assert.Equal(t, model.Int(4), s.values["b"])

	assert.Equal(t, 2.0, testutil.ToFloat64(l.metrics.ops.WithLabelValues("sim", "put", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.ops.WithLabelValues("sim", "put", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(l.metrics.inFlight))
}

func TestPutLengthMismatch(t *testing.T) {
	l := New()
	_, err := l.Put(context.Background(), []string{"a"}, nil)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestPutWriteRate(t *testing.T) {
	s := newFakeShim()
	l := New(WithDefaultTag("sim"), WithWriteRate(20))
	require.NoError(t, l.Register("sim", s))

	addrs := make([]string, 25)
	vals := make([]model.Value, 25)
	for i := range addrs {
		addrs[i] = "pv"
		vals[i] = model.Int(int64(i))
	}
	start := time.Now()
	tasks, err := l.Put(context.Background(), addrs, vals)
	require.NoError(t, err)
	require.NoError(t, status.WaitAll(context.Background(), tasks))
	// burst of 20, then 5 more at 20/s
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestMonitor(t *testing.T) {
	s := newFakeShim()
	s.values["A"] = model.Bool(true)
	l := New(WithDefaultTag("sim"))
	require.NoError(t, l.Register("sim", s))

	var got model.Value
	sub, err := l.Monitor(context.Background(), "A", func(v model.Value, err error) {
		require.NoError(t, err)
		got = v
	})
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	assert.Equal(t, model.Bool(true), got)

	_, err = l.Monitor(context.Background(), "A", nil)
	require.ErrorIs(t, err, ErrConfiguration)
}
