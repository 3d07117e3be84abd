// Package ingest is a write-only shim that pushes values to a Raw Ingest
// v1 receiver. Addresses use the Modbus shim's "[unit/]area/offset[:count]"
// form; all four areas are accepted.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/shim/modbus"
)

var _ control.Shim = (*Shim)(nil)

// Config describes one receiver.
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Shim writes through an EndpointClient.
type Shim struct {
	ep   *EndpointClient
	unit uint8
}

// New validates the config. No connection is made until the first Put.
func New(cfg Config) (*Shim, error) {
	ep, err := NewEndpointClient(EndpointConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &Shim{ep: ep, unit: cfg.UnitID}, nil
}

// Get is not supported: the receiver has no read path.
func (s *Shim) Get(_ context.Context, address string) (model.Value, error) {
	return model.Null(), fmt.Errorf("%w: ingest %s: shim is write-only", control.ErrConfiguration, address)
}

// Put sends one packet.
func (s *Shim) Put(ctx context.Context, address string, v model.Value) error {
	a, err := modbus.ParseAddress(address, s.unit)
	if err != nil {
		return err
	}
	bits, regs, err := modbus.Encode(a, v)
	if err != nil {
		return err
	}
	if a.Area.Bits() {
		return s.ep.WriteBits(ctx, byte(a.Area), a.Unit, a.Offset, bits)
	}
	return s.ep.WriteRegisters(ctx, byte(a.Area), a.Unit, a.Offset, regs)
}

// Monitor is not supported.
func (s *Shim) Monitor(_ context.Context, address string, _ control.MonitorFunc) (control.Subscription, error) {
	return nil, fmt.Errorf("%w: ingest %s: shim is write-only", control.ErrConfiguration, address)
}
