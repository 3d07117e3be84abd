// internal/shim/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// bus is the subset of modbus.Client the endpoint uses.
type bus interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// EndpointClient is a single TCP connection to one Modbus endpoint.
// It serializes requests because it mutates SlaveId per request.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler // nil in tests
	client  bus
	setUnit func(uint8)
}

type EndpointConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// NewEndpointClient connects to cfg.Endpoint. The goburrow handler
// reconnects on its own after the transport drops.
func NewEndpointClient(cfg EndpointConfig) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("shim modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("shim modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
		setUnit: func(u uint8) { h.SlaveId = u },
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

// Read returns the raw bits or registers of a.
func (c *EndpointClient) Read(a Address) ([]bool, []uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setUnit(a.Unit)

	switch a.Area {
	case AreaCoil, AreaDiscreteInput:
		read := c.client.ReadCoils
		if a.Area == AreaDiscreteInput {
			read = c.client.ReadDiscreteInputs
		}
		data, err := read(a.Offset, a.Count)
		if err != nil {
			return nil, nil, err
		}
		if len(data) < (int(a.Count)+7)/8 {
			return nil, nil, errors.New("shim modbus: read-bits payload shorter than quantity")
		}
		return unpackBits(data, int(a.Count)), nil, nil

	case AreaHoldingRegister, AreaInputRegister:
		read := c.client.ReadHoldingRegisters
		if a.Area == AreaInputRegister {
			read = c.client.ReadInputRegisters
		}
		data, err := read(a.Offset, a.Count)
		if err != nil {
			return nil, nil, err
		}
		if len(data) != 2*int(a.Count) {
			return nil, nil, fmt.Errorf("shim modbus: got %d register bytes, want %d", len(data), 2*int(a.Count))
		}
		return nil, unpackRegisters(data), nil
	}
	return nil, nil, fmt.Errorf("shim modbus: unsupported area %d", a.Area)
}

func (c *EndpointClient) WriteCoils(unitID uint8, addr uint16, bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setUnit(unitID)

	qty := uint16(len(bits))
	payload := packBits(bits)

	_, err := c.client.WriteMultipleCoils(addr, qty, payload)
	return err
}

func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setUnit(unitID)

	qty := uint16(len(regs))
	payload := packRegisters(regs)

	_, err := c.client.WriteMultipleRegisters(addr, qty, payload)
	return err
}
