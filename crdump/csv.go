package crdump

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/callrec/callrec"
)

// DumpCSV exports the run under dir as functions.csv, calls.csv, and
// arguments.csv (raw tables, store column order), plus unified.csv: calls
// joined with their function identity and aggregated argument text.
func DumpCSV(ctx context.Context, r Reader, dir string) error {
	functions, err := r.Functions(ctx)
	if err != nil {
		return fmt.Errorf("load functions: %w", err)
	}

	calls, err := r.Calls(ctx)
	if err != nil {
		return fmt.Errorf("load calls: %w", err)
	}

	arguments, err := r.Arguments(ctx)
	if err != nil {
		return fmt.Errorf("load arguments: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	functionRows := [][]string{{
		"id", "module", "qualname", "filename", "lineno", "signature",
		"type_params", "results", "receiver", "type_name", "source_code",
	}}
	for _, f := range functions {
		functionRows = append(functionRows, []string{
			strconv.FormatInt(f.ID, 10), f.Module, f.QualName, f.Filename,
			strconv.Itoa(f.Line), f.Signature,
			f.TypeParams, f.Results, f.Receiver, f.TypeName, f.Source,
		})
	}

	callRows := [][]string{{
		"id", "function_id", "parent_call_id", "timestamp", "duration_ms",
		"goroutine_id", "is_background", "method_type", "class_name",
		"return_value", "exception_type", "exception_message", "tb",
	}}
	for _, c := range calls {
		callRows = append(callRows, []string{
			strconv.FormatInt(c.ID, 10),
			strconv.FormatInt(c.FunctionID, 10),
			optInt(c.ParentID),
			c.Start.Format(time.RFC3339Nano),
			optFloat(c.DurationMS),
			strconv.FormatInt(c.Goroutine, 10),
			strconv.FormatBool(c.Background),
			string(c.Kind),
			c.TypeName,
			optStr(c.ReturnValue),
			optStr(c.ExceptionType),
			optStr(c.ExceptionMessage),
			optStr(c.Traceback),
		})
	}

	argumentRows := [][]string{{"id", "call_id", "name", "value"}}
	for _, a := range arguments {
		argumentRows = append(argumentRows, []string{
			strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.CallID, 10), a.Name, a.Value,
		})
	}

	byID := map[int64]callrec.Function{}
	for _, f := range functions {
		byID[f.ID] = f
	}

	argText := map[int64]string{}
	for _, a := range arguments {
		pair := a.Name + "=" + a.Value
		if existing, ok := argText[a.CallID]; ok {
			argText[a.CallID] = existing + "; " + pair
		} else {
			argText[a.CallID] = pair
		}
	}

	unifiedRows := [][]string{{
		"call_id", "module", "qualname", "filename", "lineno", "signature",
		"timestamp", "duration_ms", "goroutine_id", "is_background",
		"method_type", "class_name", "arguments",
		"return_value", "exception_type", "exception_message",
	}}
	for _, c := range calls {
		f := byID[c.FunctionID]
		unifiedRows = append(unifiedRows, []string{
			strconv.FormatInt(c.ID, 10),
			f.Module, f.QualName, f.Filename, strconv.Itoa(f.Line), f.Signature,
			c.Start.Format(time.RFC3339Nano),
			optFloat(c.DurationMS),
			strconv.FormatInt(c.Goroutine, 10),
			strconv.FormatBool(c.Background),
			string(c.Kind),
			c.TypeName,
			argText[c.ID],
			optStr(c.ReturnValue),
			optStr(c.ExceptionType),
			optStr(c.ExceptionMessage),
		})
	}

	for name, rows := range map[string][][]string{
		"functions.csv": functionRows,
		"calls.csv":     callRows,
		"arguments.csv": argumentRows,
		"unified.csv":   unifiedRows,
	} {
		if err := writeCSV(filepath.Join(dir, name), rows); err != nil {
			return err
		}
	}

	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	return nil
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
