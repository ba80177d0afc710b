package crdump_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/callrec/callrec/crdump"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", filepath.Base(path), err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", filepath.Base(path), err)
	}

	return rows
}

func TestDumpCSV(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "dump")

	if err := crdump.DumpCSV(context.Background(), computeRun(), dir); err != nil {
		t.Fatalf("dump csv: %v", err)
	}

	functions := readCSV(t, filepath.Join(dir, "functions.csv"))

	if want, have := 4, len(functions); want != have {
		t.Fatalf("functions.csv rows: want %d, have %d", want, have)
	}

	wantHeader := []string{
		"id", "module", "qualname", "filename", "lineno", "signature",
		"type_params", "results", "receiver", "type_name", "source_code",
	}
	if diff := cmp.Diff(wantHeader, functions[0]); diff != "" {
		t.Errorf("functions.csv header (-want +have):\n%s", diff)
	}

	if want, have := "compute", functions[1][2]; want != have {
		t.Errorf("functions.csv qualname: want %q, have %q", want, have)
	}

	calls := readCSV(t, filepath.Join(dir, "calls.csv"))

	if want, have := 5, len(calls); want != have {
		t.Fatalf("calls.csv rows: want %d, have %d", want, have)
	}

	root := calls[1]

	if want, have := "", root[2]; want != have {
		t.Errorf("root parent_call_id: want empty, have %q", have)
	}

	if _, err := time.Parse(time.RFC3339Nano, root[3]); err != nil {
		t.Errorf("calls.csv timestamp %q: %v", root[3], err)
	}

	if want, have := "4", root[4]; want != have {
		t.Errorf("root duration_ms: want %q, have %q", want, have)
	}

	if want, have := "false", root[6]; want != have {
		t.Errorf("root is_background: want %q, have %q", want, have)
	}

	arguments := readCSV(t, filepath.Join(dir, "arguments.csv"))

	if want, have := 7, len(arguments); want != have {
		t.Fatalf("arguments.csv rows: want %d, have %d", want, have)
	}

	unified := readCSV(t, filepath.Join(dir, "unified.csv"))

	if want, have := 5, len(unified); want != have {
		t.Fatalf("unified.csv rows: want %d, have %d", want, have)
	}

	if want, have := 16, len(unified[0]); want != have {
		t.Fatalf("unified.csv columns: want %d, have %d", want, have)
	}

	multiply := unified[2]

	if want, have := "multiply", multiply[2]; want != have {
		t.Errorf("unified qualname: want %q, have %q", want, have)
	}

	if want, have := "x=3; y=2", multiply[12]; want != have {
		t.Errorf("unified arguments: want %q, have %q", want, have)
	}

	if want, have := "6", multiply[13]; want != have {
		t.Errorf("unified return_value: want %q, have %q", want, have)
	}
}
