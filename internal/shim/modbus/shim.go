// Package modbus is the Modbus TCP shim. Addresses take the form
// "[unit/]area/offset[:count]" with area one of coil, di, hr, ir.
package modbus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/poller"
)

const DefaultPollInterval = 500 * time.Millisecond

var (
	_ control.Shim        = (*Shim)(nil)
	_ control.BatchGetter = (*Shim)(nil)
)

// Config describes one endpoint.
type Config struct {
	Endpoint     string
	UnitID       uint8
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Shim reads and writes one Modbus TCP endpoint.
type Shim struct {
	ep           *EndpointClient
	unit         uint8
	pollInterval time.Duration
	logger       *slog.Logger
}

// New connects to the endpoint.
func New(cfg Config) (*Shim, error) {
	ep, err := NewEndpointClient(EndpointConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return newShim(ep, cfg), nil
}

func newShim(ep *EndpointClient, cfg Config) *Shim {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Shim{
		ep:           ep,
		unit:         cfg.UnitID,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger.With("shim", "modbus", "endpoint", cfg.Endpoint),
	}
}

// Close closes the connection.
func (s *Shim) Close() error { return s.ep.Close() }

func (s *Shim) read(ctx context.Context, a Address) (model.Value, error) {
	if err := ctx.Err(); err != nil {
		return model.Null(), err
	}
	bits, regs, err := s.ep.Read(a)
	if err != nil {
		return model.Null(), err
	}
	if a.Area.Bits() {
		return bitsValue(bits), nil
	}
	return registersValue(regs), nil
}

// Get reads one address.
func (s *Shim) Get(ctx context.Context, address string) (model.Value, error) {
	a, err := ParseAddress(address, s.unit)
	if err != nil {
		return model.Null(), err
	}
	return s.read(ctx, a)
}

// Put writes coils or holding registers.
func (s *Shim) Put(ctx context.Context, address string, v model.Value) error {
	a, err := ParseAddress(address, s.unit)
	if err != nil {
		return err
	}
	if !a.Area.Writable() {
		return fmt.Errorf("%w: modbus %s is read-only", control.ErrConfiguration, a.Area)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bits, regs, err := Encode(a, v)
	if err != nil {
		return err
	}
	if a.Area == AreaCoil {
		return s.ep.WriteCoils(a.Unit, a.Offset, bits)
	}
	return s.ep.WriteRegisters(a.Unit, a.Offset, regs)
}

// span is one read request covering several requested addresses.
type span struct {
	Address
	members []int // indexes into the request
}

// GetMany coalesces addresses of the same unit and area into as few
// range reads as the protocol limits allow.
func (s *Shim) GetMany(ctx context.Context, addresses []string) []control.Result {
	out := make([]control.Result, len(addresses))
	parsed := make([]Address, len(addresses))
	var order []int
	for i, raw := range addresses {
		a, err := ParseAddress(raw, s.unit)
		if err != nil {
			out[i] = control.Result{Value: model.Null(), Err: err}
			continue
		}
		parsed[i] = a
		order = append(order, i)
	}

	slices.SortStableFunc(order, func(x, y int) int {
		a, b := parsed[x], parsed[y]
		if a.Unit != b.Unit {
			return int(a.Unit) - int(b.Unit)
		}
		if a.Area != b.Area {
			return int(a.Area) - int(b.Area)
		}
		return int(a.Offset) - int(b.Offset)
	})

	var spans []*span
	for _, i := range order {
		a := parsed[i]
		if n := len(spans); n > 0 {
			cur := spans[n-1]
			end := int(a.Offset) + int(a.Count)
			curEnd := int(cur.Offset) + int(cur.Count)
			if cur.Unit == a.Unit && cur.Area == a.Area && int(a.Offset) <= curEnd &&
				max(end, curEnd)-int(cur.Offset) <= int(a.Area.maxQuantity()) {
				cur.Count = uint16(max(end, curEnd) - int(cur.Offset))
				cur.members = append(cur.members, i)
				continue
			}
		}
		spans = append(spans, &span{Address: a, members: []int{i}})
	}

	for _, sp := range spans {
		if err := ctx.Err(); err != nil {
			for _, i := range sp.members {
				out[i] = control.Result{Value: model.Null(), Err: err}
			}
			continue
		}
		bits, regs, err := s.ep.Read(sp.Address)
		for _, i := range sp.members {
			if err != nil {
				out[i] = control.Result{Value: model.Null(), Err: err}
				continue
			}
			a := parsed[i]
			lo := int(a.Offset - sp.Offset)
			hi := lo + int(a.Count)
			if a.Area.Bits() {
				out[i] = control.Result{Value: bitsValue(bits[lo:hi])}
			} else {
				out[i] = control.Result{Value: registersValue(regs[lo:hi])}
			}
		}
	}
	return out
}

// Monitor polls the address and reports each change.
func (s *Shim) Monitor(ctx context.Context, address string, fn control.MonitorFunc) (control.Subscription, error) {
	a, err := ParseAddress(address, s.unit)
	if err != nil {
		return nil, err
	}
	stop, err := poller.Watch(ctx,
		poller.Config{Name: a.String(), Interval: s.pollInterval, Addresses: []string{address}},
		poller.ReaderFunc(func(ctx context.Context, _ string) (model.Value, error) { return s.read(ctx, a) }),
		func(res poller.PollResult) {
			if res.Err != nil {
				s.logger.Debug("monitor read failed", "address", address, "err", res.Err)
				fn(model.Null(), res.Err)
				return
			}
			fn(res.Samples[0].Value, nil)
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", control.ErrConfiguration, err)
	}
	return control.SubscriptionFunc(stop), nil
}
