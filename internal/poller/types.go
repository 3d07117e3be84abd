// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/superscore/internal/model"
)

// Sample is the value read for one address.
type Sample struct {
	Address string
	Value   model.Value
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	Name string
	At   time.Time

	Samples []Sample // one per configured address, in order
	Err     error    // non-nil means the poll cycle failed
}

// Equal reports whether two results carry the same outcome:
// both failed, or both succeeded with equal values.
func (r PollResult) Equal(o PollResult) bool {
	if (r.Err == nil) != (o.Err == nil) {
		return false
	}
	if r.Err != nil {
		return true
	}
	if len(r.Samples) != len(o.Samples) {
		return false
	}
	for i := range r.Samples {
		if r.Samples[i].Address != o.Samples[i].Address || !r.Samples[i].Value.Equal(o.Samples[i].Value) {
			return false
		}
	}
	return true
}
