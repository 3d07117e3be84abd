// Package control dispatches reads, writes and subscriptions for remote
// control points to protocol shims chosen by the address tag.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/superscore/internal/model"
)

var (
	// ErrCommunication is returned when a shim fails or times out.
	ErrCommunication = errors.New("control: communication error")
	// ErrConfiguration is returned for unknown tags and malformed requests.
	ErrConfiguration = errors.New("control: configuration error")
)

// Shim speaks one protocol. Addresses passed to a shim have the tag
// stripped. Implementations must be safe for concurrent use.
type Shim interface {
	Get(ctx context.Context, address string) (model.Value, error)
	Put(ctx context.Context, address string, v model.Value) error
	Monitor(ctx context.Context, address string, fn MonitorFunc) (Subscription, error)
}

// BatchGetter is implemented by shims that read many addresses in one
// request. Results are index-aligned with addresses.
type BatchGetter interface {
	GetMany(ctx context.Context, addresses []string) []Result
}

// MonitorFunc receives every change of a monitored value.
type MonitorFunc func(v model.Value, err error)

// Subscription ends a Monitor.
type Subscription interface {
	Close() error
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }

// Result is the outcome of reading one address.
type Result struct {
	Value model.Value
	Err   error
}

const tagSep = "://"

// ParseAddress splits "tag://rest". Untagged addresses get defaultTag.
func ParseAddress(address, defaultTag string) (tag, rest string) {
	if i := strings.Index(address, tagSep); i >= 0 {
		return address[:i], address[i+len(tagSep):]
	}
	return defaultTag, address
}

// JoinAddress is the inverse of ParseAddress.
func JoinAddress(tag, rest string) string { return tag + tagSep + rest }

func wrapShimErr(address string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrCommunication) {
		return fmt.Errorf("%s: %w", address, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timeout: %w", ErrCommunication, address, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrCommunication, address, err)
}
