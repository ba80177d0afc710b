// Package crdump reconstructs a recorded run from its database and emits it
// in stable textual forms: a hierarchical execution report, and CSV exports
// of the raw and joined tables. The report layout is a contract — the audit
// prompt is built from it verbatim — so changes here are format changes.
package crdump

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/callrec/callrec"
)

// Reader is the read surface of a run database.
type Reader interface {
	Functions(ctx context.Context) ([]callrec.Function, error)
	Calls(ctx context.Context) ([]callrec.StaticCall, error)
	Arguments(ctx context.Context) ([]callrec.Argument, error)
}

// Render builds the full execution report: function identities with source,
// then every call tree depth-first, children in timestamp order (id as the
// tiebreak). In-flight calls — INSERTed but never completed — render with
// "in flight" in place of a duration.
func Render(ctx context.Context, r Reader) (string, error) {
	functions, err := r.Functions(ctx)
	if err != nil {
		return "", fmt.Errorf("load functions: %w", err)
	}

	calls, err := r.Calls(ctx)
	if err != nil {
		return "", fmt.Errorf("load calls: %w", err)
	}

	arguments, err := r.Arguments(ctx)
	if err != nil {
		return "", fmt.Errorf("load arguments: %w", err)
	}

	argsByCall := map[int64][]callrec.Argument{}
	for _, a := range arguments {
		argsByCall[a.CallID] = append(argsByCall[a.CallID], a)
	}

	var (
		roots    []callrec.StaticCall
		children = map[int64][]callrec.StaticCall{}
	)
	for _, c := range calls {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	byStart := func(cs []callrec.StaticCall) {
		sort.SliceStable(cs, func(i, j int) bool {
			if !cs[i].Start.Equal(cs[j].Start) {
				return cs[i].Start.Before(cs[j].Start)
			}
			return cs[i].ID < cs[j].ID
		})
	}

	var b strings.Builder

	b.WriteString("=== Functions Metadata ===\n\n")

	for _, f := range functions {
		fmt.Fprintf(&b, "Function ID: %d\n", f.ID)
		fmt.Fprintf(&b, "  Module: %s\n", f.Module)
		fmt.Fprintf(&b, "  Qualified Name: %s\n", f.QualName)
		fmt.Fprintf(&b, "  Defined at: %s:%d\n", f.Filename, f.Line)
		fmt.Fprintf(&b, "  Signature: %s\n", f.Signature)
		if f.Receiver != "" {
			fmt.Fprintf(&b, "  Receiver: %s\n", f.Receiver)
		}
		if f.TypeParams != "" {
			fmt.Fprintf(&b, "  Type Params: %s\n", f.TypeParams)
		}
		if f.Results != "" {
			fmt.Fprintf(&b, "  Results: %s\n", f.Results)
		}
		b.WriteString("  Source Code:\n")
		for _, line := range strings.Split(f.Source, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("\n")
	}

	b.WriteString("=== Call Execution Flow ===\n\n")

	var render func(c callrec.StaticCall, depth int)
	render = func(c callrec.StaticCall, depth int) {
		prefix := fmt.Sprintf("[DEPTH=%d] ", depth)

		fmt.Fprintf(&b, "%sCALL %d:\n", prefix, c.ID)
		fmt.Fprintf(&b, "%s  Function ID: %d\n", prefix, c.FunctionID)
		fmt.Fprintf(&b, "%s  Timestamp: %s\n", prefix, c.Start.Format(time.RFC3339Nano))
		fmt.Fprintf(&b, "%s  Duration (ms): %s\n", prefix, formatDuration(c.DurationMS))
		fmt.Fprintf(&b, "%s  Goroutine: %d  Background: %t\n", prefix, c.Goroutine, c.Background)
		if c.TypeName != "" {
			fmt.Fprintf(&b, "%s  Kind: %s  Type: %s\n", prefix, c.Kind, c.TypeName)
		} else {
			fmt.Fprintf(&b, "%s  Kind: %s\n", prefix, c.Kind)
		}

		if args := argsByCall[c.ID]; len(args) > 0 {
			fmt.Fprintf(&b, "%s  Arguments:\n", prefix)
			for _, a := range args {
				fmt.Fprintf(&b, "%s    - %s: %s\n", prefix, a.Name, a.Value)
			}
		}

		if c.ReturnValue != nil {
			fmt.Fprintf(&b, "%s  Return Value: %s\n", prefix, *c.ReturnValue)
		}

		if c.Failed() {
			var msg string
			if c.ExceptionMessage != nil {
				msg = *c.ExceptionMessage
			}
			fmt.Fprintf(&b, "%s  Exception: %s - %s\n", prefix, *c.ExceptionType, msg)
		}

		if c.Traceback != nil && *c.Traceback != "" {
			fmt.Fprintf(&b, "%s  Traceback:\n", prefix)
			for _, line := range strings.Split(*c.Traceback, "\n") {
				fmt.Fprintf(&b, "%s    %s\n", prefix, line)
			}
		}

		kids := children[c.ID]
		byStart(kids)
		for _, kid := range kids {
			render(kid, depth+1)
		}
	}

	byStart(roots)
	for _, root := range roots {
		render(root, 0)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func formatDuration(ms *float64) string {
	if ms == nil {
		return "in flight"
	}
	return strconv.FormatFloat(*ms, 'f', -1, 64)
}
