// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/superscore/internal/model"
)

// Reader abstracts the single-address read the poller needs.
type Reader interface {
	Read(ctx context.Context, address string) (model.Value, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, address string) (model.Value, error)

func (f ReaderFunc) Read(ctx context.Context, address string) (model.Value, error) {
	return f(ctx, address)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Name      string
	Interval  time.Duration
	Addresses []string
}

// Poller is a dumb, clock-driven reader.
type Poller struct {
	cfg    Config
	reader Reader
}

// New creates a poller with immutable config.
func New(cfg Config, reader Reader) (*Poller, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller: name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("poller: at least one address required")
	}
	if reader == nil {
		return nil, errors.New("poller: reader required")
	}
	return &Poller{cfg: cfg, reader: reader}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: any failure aborts the cycle.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	res := PollResult{
		Name: p.cfg.Name,
		At:   time.Now(),
	}

	samples := make([]Sample, 0, len(p.cfg.Addresses))
	for _, addr := range p.cfg.Addresses {
		v, err := p.reader.Read(ctx, addr)
		if err != nil {
			res.Err = fmt.Errorf("poller: %s: %w", addr, err)
			return res
		}
		samples = append(samples, Sample{Address: addr, Value: v})
	}

	// Commit only if all reads succeeded
	res.Samples = samples
	return res
}
