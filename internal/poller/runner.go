// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// RunOnChange polls immediately, then on every tick, and calls fn only
// when the outcome differs from the previous cycle.
func (p *Poller) RunOnChange(ctx context.Context, fn func(PollResult)) {
	last := p.PollOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	fn(last)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := p.PollOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			if res.Equal(last) {
				continue
			}
			last = res
			fn(res)
		}
	}
}
