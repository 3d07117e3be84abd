// cmd/superscore/commands.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/bootstrap"
	"github.com/tamzrod/superscore/internal/importer"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/status"
)

// errFailures makes the process exit non-zero after a report with failures
// has been printed.
var errFailures = errors.New("one or more items failed")

// ---- snap / apply / verify ----

func newSnapCmd(o *rootOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "snap COLLECTION_ID",
		Short: "Capture the live values of a Collection",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the Snapshot in the backend")
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		e, err := entryArg(ctx, rt, args[0])
		if err != nil {
			return err
		}
		snap, err := rt.Client.Snap(ctx, e)
		if err != nil {
			return err
		}
		if save {
			if err := rt.Client.Save(ctx, snap); err != nil {
				return err
			}
		}
		printTree(cmd, snap, 0)
		printf(cmd, "snapshot %s\n", snap.ID)
		return nil
	})
	return cmd
}

func newApplyCmd(o *rootOptions) *cobra.Command {
	var sequential, verify bool
	cmd := &cobra.Command{
		Use:   "apply SNAPSHOT_ID",
		Short: "Write a stored Snapshot or Setpoint back to the control system",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&sequential, "sequential", false, "write one item at a time, in order")
	cmd.Flags().BoolVar(&verify, "verify", false, "check readbacks after writing")
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		e, err := entryArg(ctx, rt, args[0])
		if err != nil {
			return err
		}
		report, err := rt.Client.Apply(ctx, e, sequential)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		if !report.OK() {
			return errFailures
		}
		if !verify {
			return nil
		}
		report, err = rt.Client.Verify(ctx, e)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		if !report.OK() {
			return errFailures
		}
		return nil
	})
	return cmd
}

func newVerifyCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify SNAPSHOT_ID",
		Short: "Compare live readbacks against a stored Snapshot",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		e, err := entryArg(ctx, rt, args[0])
		if err != nil {
			return err
		}
		report, err := rt.Client.Verify(ctx, e)
		if err != nil {
			return err
		}
		printReport(cmd, report)
		if !report.OK() {
			return errFailures
		}
		return nil
	})
	return cmd
}

// ---- storage ----

func newSearchCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search ATTR OP VALUE [VALUE...] [-- ATTR OP VALUE...]",
		Short: "Find stored entries",
		Long: `Find stored entries matching every term.

Operators: eq, lt (<=), gt (>=), in (any of the values), like (regular
expression). Terms are separated by "--" when more than one is given.

Examples:
  superscore search entry_type eq Snapshot
  superscore search address like '^VAC:' -- entry_type eq Parameter
  superscore search title in IN20 L0B`,
		Args: cobra.MinimumNArgs(3),
	}
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		terms, err := parseTerms(args)
		if err != nil {
			return err
		}
		seq, err := rt.Client.Search(ctx, terms...)
		if err != nil {
			return err
		}
		n := 0
		for e := range seq {
			printf(cmd, "%s\n", describe(e))
			n++
		}
		printf(cmd, "%d entries\n", n)
		return nil
	})
	return cmd
}

// parseTarget reads creation_time targets as RFC 3339 timestamps and
// everything else as a plain value.
func parseTarget(attr, raw string) (any, error) {
	if attr == model.AttrCreationTime {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("creation_time wants an RFC 3339 timestamp: %w", err)
		}
		return ts, nil
	}
	return model.ParseValue(raw).Interface(), nil
}

// parseTerms splits args on "--" into ATTR OP VALUE... groups.
func parseTerms(args []string) ([]backend.SearchTerm, error) {
	var terms []backend.SearchTerm
	var group []string
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		if len(group) < 3 {
			return fmt.Errorf("search term %q: want ATTR OP VALUE", strings.Join(group, " "))
		}
		op := backend.Operator(group[1])
		values := make([]any, len(group)-2)
		for i, raw := range group[2:] {
			v, err := parseTarget(group[0], raw)
			if err != nil {
				return fmt.Errorf("search term %q: %w", strings.Join(group, " "), err)
			}
			values[i] = v
		}
		var target any = values[0]
		switch {
		case op == backend.OpIn:
			target = values
		case op == backend.OpLike:
			target = group[2]
		case len(values) > 1:
			return fmt.Errorf("search term %q: operator %s takes one value", strings.Join(group, " "), op)
		}
		terms = append(terms, backend.Term(group[0], op, target))
		group = nil
		return nil
	}
	for _, a := range args {
		if a == "--" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		group = append(group, a)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return terms, nil
}

func newShowCmd(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored entry",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored JSON document")
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		e, err := entryArg(ctx, rt, args[0])
		if err != nil {
			return err
		}
		if !asJSON {
			printTree(cmd, e, 0)
			return nil
		}
		data, err := model.MarshalEntry(e)
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return err
		}
		printf(cmd, "%s\n", out.String())
		return nil
	})
	return cmd
}

func newImportCmd(o *rootOptions) *cobra.Command {
	var save bool
	var title string
	cmd := &cobra.Command{
		Use:   "import CSV_FILE",
		Short: "Build a Collection from a CSV of setpoint/readback pairs",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the Collection in the backend")
	cmd.Flags().StringVar(&title, "title", "", "Collection title (defaults to the file name)")
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if title == "" {
			title = args[0]
		}
		coll, err := importer.Read(f, importer.Options{Title: title, Description: "imported from " + args[0]})
		if err != nil {
			return err
		}
		if save {
			if err := rt.Client.Save(ctx, coll); err != nil {
				return err
			}
		}
		printf(cmd, "collection %s (%d parameters)\n", coll.ID, len(coll.Children))
		return nil
	})
	return cmd
}

// ---- live ----

func newGetCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get ADDRESS...",
		Short: "Read live values",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		failed := false
		for i, r := range rt.Layer.Get(ctx, args...) {
			if r.Err != nil {
				failed = true
				printf(cmd, "%s: error: %v\n", args[i], r.Err)
				continue
			}
			printf(cmd, "%s = %s\n", args[i], r.Value)
		}
		if failed {
			return errFailures
		}
		return nil
	})
	return cmd
}

func newPutCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put ADDRESS VALUE",
		Short: "Write one live value",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		tasks, err := rt.Layer.Put(ctx, args[:1], []model.Value{model.ParseValue(args[1])})
		if err != nil {
			return err
		}
		if err := status.WaitAll(ctx, tasks); err != nil {
			return err
		}
		printf(cmd, "%s <- %s\n", args[0], tasks[0].Value)
		return nil
	})
	return cmd
}

func newMonitorCmd(o *rootOptions) *cobra.Command {
	var count int
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "monitor ADDRESS",
		Short: "Print changes of a live value until interrupted",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many updates (0 = no limit)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = no limit)")
	cmd.RunE = o.withRuntime(func(ctx context.Context, rt *bootstrap.Runtime, cmd *cobra.Command, args []string) error {
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		updates := make(chan string, 16)
		sub, err := rt.Layer.Monitor(ctx, args[0], func(v model.Value, err error) {
			line := fmt.Sprintf("%s %s = %s", time.Now().Format(time.RFC3339), args[0], v)
			if err != nil {
				line = fmt.Sprintf("%s %s: error: %v", time.Now().Format(time.RFC3339), args[0], err)
			}
			select {
			case updates <- line:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return err
		}
		defer sub.Close()

		for n := 0; count == 0 || n < count; n++ {
			select {
			case line := <-updates:
				printf(cmd, "%s\n", line)
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	return cmd
}

// ---- output helpers ----

func entryArg(ctx context.Context, rt *bootstrap.Runtime, arg string) (model.Entry, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("entry id %q: %w", arg, err)
	}
	return rt.Client.GetEntry(ctx, id)
}

func describe(e model.Entry) string {
	switch t := e.(type) {
	case *model.Collection:
		return fmt.Sprintf("%s %s %q", t.Kind(), t.ID, t.Title)
	case *model.Snapshot:
		return fmt.Sprintf("%s %s %q", t.Kind(), t.ID, t.Title)
	case *model.Parameter:
		ro := ""
		if t.ReadOnly {
			ro = " (read-only)"
		}
		return fmt.Sprintf("%s %s %s%s", t.Kind(), t.ID, t.Address, ro)
	case *model.Setpoint:
		return fmt.Sprintf("%s %s %s = %s", t.Kind(), t.ID, t.Address, t.Data)
	case *model.Readback:
		return fmt.Sprintf("%s %s %s = %s", t.Kind(), t.ID, t.Address, t.Data)
	}
	return fmt.Sprintf("%s %s", e.Kind(), e.EntryID())
}

func printTree(cmd *cobra.Command, e model.Entry, depth int) {
	printf(cmd, "%s%s\n", strings.Repeat("  ", depth), describe(e))
	switch t := e.(type) {
	case *model.Setpoint:
		if t.Readback != nil {
			printTree(cmd, t.Readback, depth+1)
		}
	case *model.Parameter:
		if t.Readback != nil {
			printf(cmd, "%s  readback %s\n", strings.Repeat("  ", depth), t.Readback.Address)
		}
	}
	for _, ch := range model.Children(e) {
		printTree(cmd, ch, depth+1)
	}
}

func printReport(cmd *cobra.Command, r *status.Report) {
	for _, it := range r.Items() {
		switch it.State {
		case status.StateFailed:
			printf(cmd, "%-9s %s: %v\n", it.State, it.Address, it.Err)
		case status.StateMismatch:
			printf(cmd, "%-9s %s: got %s, want %s\n", it.State, it.Address, it.Got, it.Want)
		default:
			printf(cmd, "%-9s %s\n", it.State, it.Address)
		}
	}
	printf(cmd, "%s\n", status.Encode(r).Summary())
}
