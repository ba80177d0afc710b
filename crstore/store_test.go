package crstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/callrec/callrec"
	"github.com/callrec/callrec/crstore"
)

func newStore(t *testing.T) *crstore.Store {
	t.Helper()

	s, err := crstore.Open(filepath.Join(t.TempDir(), "run_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func insertFunc(t *testing.T, s *crstore.Store, qualname string, line int) int64 {
	t.Helper()

	id, err := s.InsertFunction(context.Background(), callrec.FuncInfo{
		Module:    "example.com/demo/pkg",
		QualName:  qualname,
		Filename:  "/src/demo/pkg/pkg.go",
		Line:      line,
		Signature: "func " + qualname + "(x int) int",
		Results:   "int",
		Source:    "func " + qualname + "(x int) int {\n\treturn x\n}",
	})
	if err != nil {
		t.Fatalf("insert function: %v", err)
	}

	return id
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	funcID := insertFunc(t, s, "Compute", 10)

	start := time.Now()
	callID, err := s.InsertCall(ctx, callrec.CallStart{
		FunctionID: funcID,
		Start:      start,
		Goroutine:  1,
		Kind:       callrec.KindFunction,
	})
	if err != nil {
		t.Fatalf("insert call: %v", err)
	}

	if err := s.InsertArguments(ctx, callID, []callrec.NamedValue{
		{Name: "x", Value: "3"},
		{Name: "y", Value: "2"},
	}); err != nil {
		t.Fatalf("insert arguments: %v", err)
	}

	ret := "14"
	if err := s.CompleteCall(ctx, callrec.CallOutcome{
		CallID:      callID,
		DurationMS:  1.5,
		ReturnValue: &ret,
	}); err != nil {
		t.Fatalf("complete call: %v", err)
	}

	functions, err := s.Functions(ctx)
	if err != nil {
		t.Fatalf("functions: %v", err)
	}

	if want, have := 1, len(functions); want != have {
		t.Fatalf("functions: want %d, have %d", want, have)
	}

	if want, have := "Compute", functions[0].QualName; want != have {
		t.Errorf("qualname: want %q, have %q", want, have)
	}

	if want, have := "example.com/demo/pkg", functions[0].Module; want != have {
		t.Errorf("module: want %q, have %q", want, have)
	}

	calls, err := s.Calls(ctx)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}

	if want, have := 1, len(calls); want != have {
		t.Fatalf("calls: want %d, have %d", want, have)
	}

	c := calls[0]

	if want, have := funcID, c.FunctionID; want != have {
		t.Errorf("function id: want %d, have %d", want, have)
	}

	if c.ParentID != nil {
		t.Errorf("parent id: want nil, have %d", *c.ParentID)
	}

	if want, have := start.UnixNano(), c.Start.UnixNano(); want != have {
		t.Errorf("start: want %d, have %d", want, have)
	}

	if c.DurationMS == nil || *c.DurationMS != 1.5 {
		t.Errorf("duration: want 1.5, have %v", c.DurationMS)
	}

	if c.ReturnValue == nil || *c.ReturnValue != "14" {
		t.Errorf("return value: want %q, have %v", "14", c.ReturnValue)
	}

	if c.Failed() {
		t.Errorf("call unexpectedly failed: %v", c.ExceptionType)
	}

	args, err := s.ArgumentsByCall(ctx, callID)
	if err != nil {
		t.Fatalf("arguments: %v", err)
	}

	if want, have := 2, len(args); want != have {
		t.Fatalf("arguments: want %d, have %d", want, have)
	}

	if want, have := "x", args[0].Name; want != have {
		t.Errorf("argument 0 name: want %q, have %q", want, have)
	}

	if want, have := "2", args[1].Value; want != have {
		t.Errorf("argument 1 value: want %q, have %q", want, have)
	}
}

func TestStoreFunctionIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	first := insertFunc(t, s, "Compute", 10)
	second := insertFunc(t, s, "Compute", 10)

	if first != second {
		t.Errorf("duplicate identity: want one id, have %d and %d", first, second)
	}

	other := insertFunc(t, s, "Compute", 42)

	if first == other {
		t.Errorf("distinct identities resolved to one id %d", first)
	}

	functions, err := s.Functions(ctx)
	if err != nil {
		t.Fatalf("functions: %v", err)
	}

	if want, have := 2, len(functions); want != have {
		t.Fatalf("functions: want %d, have %d", want, have)
	}
}

func TestStoreFunctionIdentityConcurrent(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	const n = 8

	var (
		wg  sync.WaitGroup
		ids [n]int64
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = insertFunc(t, s, "Compute", 10)
		}(i)
	}

	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("id %d: want %d, have %d", i, ids[0], ids[i])
		}
	}

	functions, err := s.Functions(context.Background())
	if err != nil {
		t.Fatalf("functions: %v", err)
	}

	if want, have := 1, len(functions); want != have {
		t.Fatalf("functions: want %d, have %d", want, have)
	}
}

func TestStoreParentChild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	funcID := insertFunc(t, s, "Compute", 10)

	rootID, err := s.InsertCall(ctx, callrec.CallStart{FunctionID: funcID, Start: time.Now(), Goroutine: 1, Kind: callrec.KindFunction})
	if err != nil {
		t.Fatalf("insert root: %v", err)
	}

	childID, err := s.InsertCall(ctx, callrec.CallStart{FunctionID: funcID, ParentID: &rootID, Start: time.Now(), Goroutine: 1, Kind: callrec.KindFunction})
	if err != nil {
		t.Fatalf("insert child: %v", err)
	}

	calls, err := s.Calls(ctx)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}

	if want, have := 2, len(calls); want != have {
		t.Fatalf("calls: want %d, have %d", want, have)
	}

	byID := map[int64]callrec.StaticCall{}
	for _, c := range calls {
		byID[c.ID] = c
	}

	if byID[rootID].ParentID != nil {
		t.Errorf("root parent: want nil, have %d", *byID[rootID].ParentID)
	}

	if p := byID[childID].ParentID; p == nil || *p != rootID {
		t.Errorf("child parent: want %d, have %v", rootID, p)
	}
}

func TestStoreFailedCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	funcID := insertFunc(t, s, "Compute", 10)

	okID, err := s.InsertCall(ctx, callrec.CallStart{FunctionID: funcID, Start: time.Now(), Goroutine: 1, Kind: callrec.KindFunction})
	if err != nil {
		t.Fatalf("insert call: %v", err)
	}

	badID, err := s.InsertCall(ctx, callrec.CallStart{FunctionID: funcID, Start: time.Now(), Goroutine: 1, Kind: callrec.KindFunction})
	if err != nil {
		t.Fatalf("insert call: %v", err)
	}

	ret := "14"
	if err := s.CompleteCall(ctx, callrec.CallOutcome{CallID: okID, DurationMS: 1, ReturnValue: &ret}); err != nil {
		t.Fatalf("complete ok call: %v", err)
	}

	excType, excMsg, tb := "callrec_test.badInputError", "bad", "Compute pkg.go:10"
	if err := s.CompleteCall(ctx, callrec.CallOutcome{
		CallID:           badID,
		DurationMS:       1,
		ExceptionType:    &excType,
		ExceptionMessage: &excMsg,
		Traceback:        &tb,
	}); err != nil {
		t.Fatalf("complete bad call: %v", err)
	}

	failed, err := s.FailedCalls(ctx)
	if err != nil {
		t.Fatalf("failed calls: %v", err)
	}

	if want, have := 1, len(failed); want != have {
		t.Fatalf("failed calls: want %d, have %d", want, have)
	}

	if want, have := badID, failed[0].ID; want != have {
		t.Errorf("failed call id: want %d, have %d", want, have)
	}

	if !failed[0].Failed() {
		t.Error("Failed() reported false for a call with an exception")
	}

	if failed[0].Traceback == nil || *failed[0].Traceback != tb {
		t.Errorf("traceback: want %q, have %v", tb, failed[0].Traceback)
	}
}

func TestStoreCompleteUnknownCall(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	if err := s.CompleteCall(context.Background(), callrec.CallOutcome{CallID: 999, DurationMS: 1}); err == nil {
		t.Fatal("completing an unknown call: want error, have nil")
	}
}

func TestStoreInFlightCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	funcID := insertFunc(t, s, "Compute", 10)

	if _, err := s.InsertCall(ctx, callrec.CallStart{FunctionID: funcID, Start: time.Now(), Goroutine: 1, Kind: callrec.KindFunction}); err != nil {
		t.Fatalf("insert call: %v", err)
	}

	calls, err := s.Calls(ctx)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}

	if want, have := 1, len(calls); want != have {
		t.Fatalf("calls: want %d, have %d", want, have)
	}

	if calls[0].DurationMS != nil {
		t.Errorf("in-flight duration: want nil, have %v", *calls[0].DurationMS)
	}

	if calls[0].ReturnValue != nil {
		t.Errorf("in-flight return value: want nil, have %q", *calls[0].ReturnValue)
	}
}

func TestProvision(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "run_dbs")

	s, err := crstore.Provision(dir, "demo")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	defer s.Close()

	meta, err := s.Meta(context.Background())
	if err != nil {
		t.Fatalf("meta: %v", err)
	}

	if meta["run_id"] == "" {
		t.Error("meta run_id is empty")
	}

	if meta["program"] != "demo" {
		t.Errorf("meta program: want %q, have %q", "demo", meta["program"])
	}

	if _, err := time.Parse(time.RFC3339Nano, meta["started_at"]); err != nil {
		t.Errorf("meta started_at %q: %v", meta["started_at"], err)
	}

	paths, err := crstore.List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if want, have := 1, len(paths); want != have {
		t.Fatalf("runs: want %d, have %d", want, have)
	}

	if want, have := paths[0], s.Path(); want != have {
		t.Errorf("run path: want %q, have %q", want, have)
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if _, err := crstore.Latest(dir); !errors.Is(err, crstore.ErrNoRuns) {
		t.Fatalf("empty dir: want ErrNoRuns, have %v", err)
	}

	for _, name := range []string{
		"run_20240101_000000.db",
		"run_20240301_120000.db",
		"run_20240201_060000.db",
	} {
		s, err := crstore.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		s.Close()
	}

	latest, err := crstore.Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}

	if want, have := filepath.Join(dir, "run_20240301_120000.db"), latest; want != have {
		t.Errorf("latest: want %q, have %q", want, have)
	}
}
