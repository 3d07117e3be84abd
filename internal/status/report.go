// internal/status/report.go
package status

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/model"
)

// Item is the outcome for one setpoint or readback.
type Item struct {
	ID      uuid.UUID
	Address string
	State   State
	Err     error
	Want    model.Value // mismatch only
	Got     model.Value // mismatch only
}

// Report collects per-item outcomes of an apply or verify pass.
// Items keep the order they were recorded in.
type Report struct {
	mu    sync.Mutex
	items []Item
}

// Add records one outcome.
func (r *Report) Add(it Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, it)
}

// AddTask records a settled task for entry id.
func (r *Report) AddTask(id uuid.UUID, t *Task) {
	r.Add(Item{ID: id, Address: t.Address, State: t.State(), Err: t.Err()})
}

// Items returns a copy of the recorded outcomes.
func (r *Report) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Failed returns the items that failed or disagreed.
func (r *Report) Failed() []Item {
	var out []Item
	for _, it := range r.Items() {
		if it.State == StateFailed || it.State == StateMismatch {
			out = append(out, it)
		}
	}
	return out
}

// OK reports whether nothing failed or disagreed.
func (r *Report) OK() bool { return len(r.Failed()) == 0 }

// Err joins every failure into one error, nil when OK.
// Communication errors stay reachable through errors.Is.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	var msgs []string
	var errs []error
	for _, it := range failed {
		if it.State == StateMismatch {
			msgs = append(msgs, fmt.Sprintf("%s: readback %s outside tolerance of %s", it.Address, it.Got, it.Want))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %v", it.Address, it.Err))
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return &reportError{msg: strings.Join(msgs, " | "), errs: errs}
}

type reportError struct {
	msg  string
	errs []error
}

func (e *reportError) Error() string { return e.msg }

func (e *reportError) Unwrap() []error { return e.errs }
