// internal/poller/builder.go
package poller

import (
	"context"
	"sync"
)

// Watch builds a poller and runs RunOnChange in its own goroutine.
// The returned stop function cancels the loop and waits for it to exit;
// it is safe to call more than once.
func Watch(ctx context.Context, cfg Config, reader Reader, fn func(PollResult)) (func() error, error) {
	p, err := New(cfg, reader)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.RunOnChange(ctx, fn)
	}()

	var once sync.Once
	return func() error {
		once.Do(func() {
			cancel()
			<-done
		})
		return nil
	}, nil
}
