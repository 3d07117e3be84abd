// Package sim is an in-process shim holding simulated control points.
// It serves dry runs and tests; writes to a setpoint can be mirrored to a
// linked readback.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
)

// ErrNoSuchPV is returned for addresses that were never set.
var ErrNoSuchPV = errors.New("sim: no such pv")

var _ control.Shim = (*Shim)(nil)

// Shim holds values by address. The zero value is not usable; call New.
type Shim struct {
	mu       sync.Mutex
	values   map[string]model.Value
	links    map[string]string
	failures map[string]error
	watchers map[string]map[int]control.MonitorFunc
	nextID   int
	puts     []string
}

// New returns a shim seeded with initial values.
func New(initial map[string]model.Value) *Shim {
	s := &Shim{
		values:   make(map[string]model.Value, len(initial)),
		links:    make(map[string]string),
		failures: make(map[string]error),
		watchers: make(map[string]map[int]control.MonitorFunc),
	}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

// Set changes a value without counting as a put, notifying monitors.
func (s *Shim) Set(address string, v model.Value) {
	s.mu.Lock()
	s.values[address] = v
	fns := s.watchersOf(address)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v, nil)
	}
}

// Link mirrors every put to setpoint onto readback.
func (s *Shim) Link(setpoint, readback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[setpoint] = readback
}

// Fail makes every access to address return err. A nil err clears it.
func (s *Shim) Fail(address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, address)
		return
	}
	s.failures[address] = err
}

// Puts returns the addresses written, in order.
func (s *Shim) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

func (s *Shim) watchersOf(address string) []control.MonitorFunc {
	var out []control.MonitorFunc
	for _, fn := range s.watchers[address] {
		out = append(out, fn)
	}
	return out
}

func (s *Shim) Get(ctx context.Context, address string) (model.Value, error) {
	if err := ctx.Err(); err != nil {
		return model.Null(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[address]; err != nil {
		return model.Null(), err
	}
	v, ok := s.values[address]
	if !ok {
		return model.Null(), fmt.Errorf("%w: %s", ErrNoSuchPV, address)
	}
	return v, nil
}

func (s *Shim) Put(ctx context.Context, address string, v model.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.failures[address]; err != nil {
		s.mu.Unlock()
		return err
	}
	s.values[address] = v
	s.puts = append(s.puts, address)
	fns := s.watchersOf(address)
	rb, linked := s.links[address]
	var rbFns []control.MonitorFunc
	if linked {
		s.values[rb] = v
		rbFns = s.watchersOf(rb)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v, nil)
	}
	for _, fn := range rbFns {
		fn(v, nil)
	}
	return nil
}

// Monitor delivers the current value, then every later change, until the
// subscription is closed or ctx ends.
func (s *Shim) Monitor(ctx context.Context, address string, fn control.MonitorFunc) (control.Subscription, error) {
	v, err := s.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[address] == nil {
		s.watchers[address] = make(map[int]control.MonitorFunc)
	}
	s.watchers[address][id] = fn
	s.mu.Unlock()

	fn(v, nil)

	var once sync.Once
	closed := make(chan struct{})
	unsubscribe := func() error {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[address], id)
			s.mu.Unlock()
			close(closed)
		})
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = unsubscribe()
		case <-closed:
		}
	}()
	return control.SubscriptionFunc(unsubscribe), nil
}
