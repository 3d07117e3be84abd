// internal/status/task.go
package status

import (
	"context"
	"sync"

	"github.com/tamzrod/superscore/internal/model"
)

// Task tracks one remote write. It is safe for concurrent use; Wait may be
// called from any number of goroutines.
type Task struct {
	Address string
	Value   model.Value

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

// NewTask returns a pending task.
func NewTask(address string, v model.Value) *Task {
	return &Task{Address: address, Value: v, done: make(chan struct{})}
}

// Start moves a pending task in flight. It is a no-op otherwise.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePending {
		t.state = StateInFlight
	}
}

// Finish settles the task. Only the first call has an effect.
func (t *Task) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.err = err
	t.state = StateCompleted
	if err != nil {
		t.state = StateFailed
	}
	close(t.done)
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure of a settled task.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task settles.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task settles and returns its error.
// If ctx ends first, ctx's error is returned and the task keeps running.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits for every task and returns the first non-nil error in
// task order.
func WaitAll(ctx context.Context, tasks []*Task) error {
	var first error
	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
