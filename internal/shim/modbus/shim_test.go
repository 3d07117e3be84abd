package modbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
)

// ---- fake bus ----

type readCall struct {
	unit uint8
	fc   uint8
	addr uint16
	qty  uint16
}

type fakeBus struct {
	mu    sync.Mutex
	unit  uint8
	coils map[uint16]bool
	regs  map[uint16]uint16
	reads []readCall
	fail  bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{coils: map[uint16]bool{}, regs: map[uint16]uint16{}}
}

func (f *fakeBus) bits(fc uint8, addr, qty uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("connection reset")
	}
	f.reads = append(f.reads, readCall{f.unit, fc, addr, qty})
	out := make([]bool, qty)
	for i := range out {
		out[i] = f.coils[addr+uint16(i)]
	}
	return packBits(out), nil
}

func (f *fakeBus) registers(fc uint8, addr, qty uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("connection reset")
	}
	f.reads = append(f.reads, readCall{f.unit, fc, addr, qty})
	out := make([]uint16, qty)
	for i := range out {
		out[i] = f.regs[addr+uint16(i)]
	}
	return packRegisters(out), nil
}

func (f *fakeBus) ReadCoils(a, q uint16) ([]byte, error)            { return f.bits(1, a, q) }
func (f *fakeBus) ReadDiscreteInputs(a, q uint16) ([]byte, error)   { return f.bits(2, a, q) }
func (f *fakeBus) ReadHoldingRegisters(a, q uint16) ([]byte, error) { return f.registers(3, a, q) }
func (f *fakeBus) ReadInputRegisters(a, q uint16) ([]byte, error)   { return f.registers(4, a, q) }

func (f *fakeBus) WriteMultipleCoils(addr, qty uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range unpackBits(value, int(qty)) {
		f.coils[addr+uint16(i)] = b
	}
	return nil, nil
}

func (f *fakeBus) WriteMultipleRegisters(addr, qty uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range unpackRegisters(value) {
		f.regs[addr+uint16(i)] = r
	}
	return nil, nil
}

func (f *fakeBus) set(addr, v uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = v
}

func newTestShim(b *fakeBus) *Shim {
	ep := &EndpointClient{client: b, setUnit: func(u uint8) { b.unit = u }}
	return newShim(ep, Config{UnitID: 1, PollInterval: 5 * time.Millisecond})
}

// ---- tests ----

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("hr/100", 1)
	require.NoError(t, err)
	assert.Equal(t, Address{Unit: 1, Area: AreaHoldingRegister, Offset: 100, Count: 1}, a)

	a, err = ParseAddress("17/coil/8:4", 1)
	require.NoError(t, err)
	assert.Equal(t, Address{Unit: 17, Area: AreaCoil, Offset: 8, Count: 4}, a)
	assert.Equal(t, "17/coil/8:4", a.String())

	for _, bad := range []string{"hr", "xx/1", "hr/-1", "hr/1:0", "hr/0:126", "300/hr/1", "hr/65535:2", "a/b/c/d"} {
		_, err := ParseAddress(bad, 1)
		require.ErrorIs(t, err, control.ErrConfiguration, bad)
	}
}

func TestGetPut_Registers(t *testing.T) {
	b := newFakeBus()
	s := newTestShim(b)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "hr/10", model.Int(-2)))
	assert.Equal(t, uint16(0xFFFE), b.regs[10])

	require.NoError(t, s.Put(ctx, "hr/20:3", model.Ints([]int64{1, 2, 3})))
	v, err := s.Get(ctx, "hr/20:3")
	require.NoError(t, err)
	assert.Equal(t, model.Ints([]int64{1, 2, 3}), v)

	require.NoError(t, s.Put(ctx, "hr/30", model.Float(7)))
	v, err = s.Get(ctx, "hr/30")
	require.NoError(t, err)
	assert.Equal(t, model.Int(7), v)

	require.ErrorIs(t, s.Put(ctx, "hr/30", model.Float(7.5)), control.ErrConfiguration)
	require.ErrorIs(t, s.Put(ctx, "hr/30", model.Int(70000)), control.ErrConfiguration)
	require.ErrorIs(t, s.Put(ctx, "hr/20:3", model.Int(1)), control.ErrConfiguration)
	require.ErrorIs(t, s.Put(ctx, "ir/0", model.Int(1)), control.ErrConfiguration)
}

func TestGetPut_Coils(t *testing.T) {
	b := newFakeBus()
	s := newTestShim(b)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "coil/3", model.Bool(true)))
	require.NoError(t, s.Put(ctx, "coil/4:2", model.Bools([]bool{false, true})))

	v, err := s.Get(ctx, "coil/3:3")
	require.NoError(t, err)
	assert.Equal(t, model.Bools([]bool{true, false, true}), v)

	v, err = s.Get(ctx, "5/di/0")
	require.NoError(t, err)
	assert.Equal(t, model.Bool(false), v)
	assert.Equal(t, uint8(5), b.reads[len(b.reads)-1].unit)
	assert.Equal(t, uint8(2), b.reads[len(b.reads)-1].fc)

	require.ErrorIs(t, s.Put(ctx, "coil/3", model.String("on")), control.ErrConfiguration)
}

func TestGetMany_Coalesces(t *testing.T) {
	b := newFakeBus()
	for i := uint16(0); i < 10; i++ {
		b.regs[i] = i * 10
	}
	s := newTestShim(b)

	res := s.GetMany(context.Background(), []string{"hr/5", "hr/0:2", "coil/0", "hr/2", "bad", "hr/200"})
	require.Len(t, res, 6)
	assert.Equal(t, model.Int(50), res[0].Value)
	assert.Equal(t, model.Ints([]int64{0, 10}), res[1].Value)
	assert.Equal(t, model.Bool(false), res[2].Value)
	assert.Equal(t, model.Int(20), res[3].Value)
	require.ErrorIs(t, res[4].Err, control.ErrConfiguration)
	assert.Equal(t, model.Int(0), res[5].Value)

	// hr/0:2 + hr/2 merge; hr/5 is not contiguous; hr/200 is separate
	assert.ElementsMatch(t, []readCall{
		{1, 1, 0, 1},
		{1, 3, 0, 3},
		{1, 3, 5, 1},
		{1, 3, 200, 1},
	}, b.reads)
}

func TestGetMany_FailureMarksSpan(t *testing.T) {
	b := newFakeBus()
	b.fail = true
	s := newTestShim(b)
	res := s.GetMany(context.Background(), []string{"hr/0", "hr/1"})
	require.Error(t, res[0].Err)
	require.Error(t, res[1].Err)
	assert.True(t, res[0].Value.IsNull())
}

func TestMonitor_ReportsChanges(t *testing.T) {
	b := newFakeBus()
	b.set(7, 1)
	s := newTestShim(b)

	got := make(chan model.Value, 8)
	sub, err := s.Monitor(context.Background(), "hr/7", func(v model.Value, err error) {
		if err == nil {
			got <- v
		}
	})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	assert.Equal(t, model.Int(1), <-got)
	b.set(7, 2)
	select {
	case v := <-got:
		assert.Equal(t, model.Int(2), v)
	case <-time.After(time.Second):
		t.Fatal("change not reported")
	}

	_, err = s.Monitor(context.Background(), "zz/1", func(model.Value, error) {})
	require.ErrorIs(t, err, control.ErrConfiguration)
}
