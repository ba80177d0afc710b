package callrec

import (
	"context"
	"time"
)

// Store is the persistence surface the Recorder writes through. Every method
// must be safe for concurrent use. Writes are expected to complete quickly
// and to fail fast when the backing storage is unavailable; the recorder
// treats a write failure as a degraded trace, never as a program error.
type Store interface {
	// InsertFunction resolves the persisted identity for the given
	// declaration, inserting it if absent. The lookup and insert are atomic:
	// concurrent first calls to the same declaration must resolve to a
	// single identity.
	InsertFunction(ctx context.Context, info FuncInfo) (int64, error)

	// InsertCall persists the entry half of one invocation and returns its
	// identity.
	InsertCall(ctx context.Context, start CallStart) (int64, error)

	// InsertArguments persists the bound arguments of a call in bulk,
	// immediately after the call row and before the body runs.
	InsertArguments(ctx context.Context, callID int64, args []NamedValue) error

	// CompleteCall records the outcome of a call. It is invoked exactly once
	// per call id.
	CompleteCall(ctx context.Context, outcome CallOutcome) error
}

// CallStart is the portion of a call known before the wrapped body executes.
type CallStart struct {
	FunctionID int64
	ParentID   *int64 // nil for a root call
	Start      time.Time
	Goroutine  int64
	Background bool // true when off the runtime-init goroutine
	Kind       CallKind
	TypeName   string
}

// CallOutcome is the completion of a call: its duration plus either a return
// value or the exception fields, never both.
type CallOutcome struct {
	CallID           int64
	DurationMS       float64
	ReturnValue      *string
	ExceptionType    *string
	ExceptionMessage *string
	Traceback        *string
}

// NamedValue is one serialized argument.
type NamedValue struct {
	Name  string
	Value string
}

//
//
//

// Function is a traced callable identity read back from a store.
type Function struct {
	ID         int64
	Module     string
	QualName   string
	Filename   string
	Line       int
	Signature  string
	TypeParams string
	Results    string
	Receiver   string
	TypeName   string
	Source     string
}

// StaticCall is an immutable copy of one recorded invocation, read back from
// a store. Outcome fields are nil while the call was still in flight when the
// store was captured.
type StaticCall struct {
	ID               int64
	FunctionID       int64
	ParentID         *int64
	Start            time.Time
	DurationMS       *float64
	Goroutine        int64
	Background       bool
	Kind             CallKind
	TypeName         string
	ReturnValue      *string
	ExceptionType    *string
	ExceptionMessage *string
	Traceback        *string
}

// Failed reports whether the call completed with an exception.
func (sc StaticCall) Failed() bool {
	return sc.ExceptionType != nil
}

// Argument is one bound parameter value read back from a store.
type Argument struct {
	ID     int64
	CallID int64
	Name   string
	Value  string
}
