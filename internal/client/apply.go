package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/status"
)

// Apply writes the Setpoints below e, a Snapshot or a bare Setpoint.
// Readbacks are never written. Setpoints with null data are recorded as
// skipped.
//
// Without sequential, every write is handed to the control layer in one
// put and then awaited together. With sequential, writes are issued one at
// a time in depth-first order, each after the previous one has settled. A
// failed write never stops the others; the report carries every outcome.
// The returned error is reserved for unusable input.
func (c *Client) Apply(ctx context.Context, e model.Entry, sequential bool) (_ *status.Report, err error) {
	ctx, span := c.start(ctx, "client.Apply", e)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Bool("apply.sequential", sequential))

	switch e.(type) {
	case *model.Snapshot, *model.Setpoint:
	default:
		return nil, fmt.Errorf("%w: apply %s", ErrEntryKind, kindOf(e))
	}

	all := setpoints(e)
	var items []*model.Setpoint
	for _, sp := range all {
		if !sp.Data.IsNull() {
			items = append(items, sp)
		}
	}
	span.SetAttributes(attribute.Int("apply.items", len(items)))

	// outcomes are recorded in traversal order, null-data skips included
	report := &status.Report{}
	if sequential {
		for i, sp := range all {
			if sp.Data.IsNull() {
				skipNull(report, sp)
				continue
			}
			if ctx.Err() != nil {
				skipRest(report, all[i:], ctx.Err())
				break
			}
			tasks, err := c.cl.Put(ctx, []string{sp.Address}, []model.Value{sp.Data})
			if err != nil {
				return nil, err
			}
			c.settle(ctx, report, sp, tasks[0])
		}
	} else {
		var tasks []*status.Task
		if len(items) > 0 {
			addrs := make([]string, len(items))
			values := make([]model.Value, len(items))
			for i, sp := range items {
				addrs[i], values[i] = sp.Address, sp.Data
			}
			if tasks, err = c.cl.Put(ctx, addrs, values); err != nil {
				return nil, err
			}
		}
		next := 0
		for _, sp := range all {
			if sp.Data.IsNull() {
				skipNull(report, sp)
				continue
			}
			c.settle(ctx, report, sp, tasks[next])
			next++
		}
	}

	failed := len(report.Failed())
	span.SetAttributes(attribute.Int("apply.failed", failed))
	if failed > 0 {
		c.logger.Warn("apply finished with failures", "failed", failed, "items", len(items))
	}
	return report, nil
}

// settle waits for t and records it. A task still running when ctx ends is
// recorded as failed with ctx's error.
func (c *Client) settle(ctx context.Context, report *status.Report, sp *model.Setpoint, t *status.Task) {
	err := t.Wait(ctx)
	if !t.State().Terminal() {
		report.Add(status.Item{ID: sp.ID, Address: sp.Address, State: status.StateFailed, Err: err})
		return
	}
	if err != nil {
		c.logger.Warn("apply write failed", "address", sp.Address, "err", err)
	}
	report.AddTask(sp.ID, t)
}

func skipNull(report *status.Report, sp *model.Setpoint) {
	report.Add(status.Item{ID: sp.ID, Address: sp.Address, State: status.StateSkipped})
}

// skipRest records every remaining item as skipped because ctx ended.
func skipRest(report *status.Report, rest []*model.Setpoint, err error) {
	for _, sp := range rest {
		if sp.Data.IsNull() {
			skipNull(report, sp)
			continue
		}
		report.Add(status.Item{ID: sp.ID, Address: sp.Address, State: status.StateSkipped, Err: err})
	}
}

// setpoints flattens e depth-first.
func setpoints(e model.Entry) []*model.Setpoint {
	var out []*model.Setpoint
	var walk func(model.Entry)
	walk = func(e model.Entry) {
		switch t := e.(type) {
		case *model.Setpoint:
			out = append(out, t)
		case *model.Snapshot:
			for _, ch := range t.Children {
				walk(ch)
			}
		}
	}
	walk(e)
	return out
}

// Verify reads the live value behind every Readback below e, a Snapshot or
// a Setpoint, and checks it against the captured value within the
// Readback's tolerance. A Setpoint's embedded Readback is checked against
// the Setpoint's data; a standalone Readback against its own data.
// Disagreements are recorded as mismatches and unreadable addresses as
// failures.
func (c *Client) Verify(ctx context.Context, e model.Entry) (_ *status.Report, err error) {
	ctx, span := c.start(ctx, "client.Verify", e)
	defer func() { endSpan(span, err) }()

	switch e.(type) {
	case *model.Snapshot, *model.Setpoint:
	default:
		return nil, fmt.Errorf("%w: verify %s", ErrEntryKind, kindOf(e))
	}

	type check struct {
		rb   *model.Readback
		want model.Value
	}
	var checks []check
	var walk func(model.Entry)
	walk = func(e model.Entry) {
		switch t := e.(type) {
		case *model.Setpoint:
			if t.Readback != nil && !t.Data.IsNull() {
				checks = append(checks, check{rb: t.Readback, want: t.Data})
			}
		case *model.Readback:
			if !t.Data.IsNull() {
				checks = append(checks, check{rb: t, want: t.Data})
			}
		case *model.Snapshot:
			for _, ch := range t.Children {
				walk(ch)
			}
		}
	}
	walk(e)
	span.SetAttributes(attribute.Int("verify.items", len(checks)))

	report := &status.Report{}
	if len(checks) == 0 {
		return report, nil
	}
	addrs := make([]string, len(checks))
	for i, ch := range checks {
		addrs[i] = ch.rb.Address
	}
	results := c.cl.Get(ctx, addrs...)
	for i, ch := range checks {
		it := status.Item{ID: ch.rb.ID, Address: ch.rb.Address}
		switch r := results[i]; {
		case r.Err != nil:
			it.State, it.Err = status.StateFailed, r.Err
		default:
			live := *ch.rb
			live.Data = r.Value
			it.State = status.StateCompleted
			if !live.WithinTolerance(ch.want) {
				it.State, it.Want, it.Got = status.StateMismatch, ch.want, r.Value
			}
		}
		report.Add(it)
	}
	span.SetAttributes(attribute.Int("verify.failed", len(report.Failed())))
	return report, nil
}
