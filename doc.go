// Package callrec records every invocation of an instrumented function as a
// structured trace event: who called it, with which arguments, on which
// goroutine, how long it took, and what it returned or how it failed. Events
// are persisted as they happen, so a run that crashes still leaves behind the
// calls that were in flight.
//
// The package is the recording core. A [Recorder] is bound to a [Store] and
// produces one call row per invocation: the row is inserted before the wrapped
// body executes, and completed exactly once when the body returns, fails, or
// panics. Nested calls on the same goroutine are correlated into a parent and
// child hierarchy by a per-goroutine stack of in-flight calls; calls on
// different goroutines never adopt each other as parents.
//
// The recorder is transparent to the program it observes. Arguments and
// results are serialized copies, panics are re-raised with the identical
// value, errors pass through unchanged, and a failed trace write is logged and
// counted rather than surfaced to the traced code.
//
// Most programs never import this package directly. The callrec command
// rewrites a copy of the target module so that every selected function calls
// [github.com/callrec/callrec/ezrec], which manages a process-global Recorder
// and its backing store.
package callrec
