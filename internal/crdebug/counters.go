package crdebug

import "sync/atomic"

// WriteCounters track persistence attempts for one kind of trace record.
// Recording is best-effort, so failures don't stop the traced program, but
// they should never disappear without a trace of their own.
type WriteCounters struct {
	Attempt atomic.Uint64
	Failure atomic.Uint64
}

// FailurePercent returns the percent (0..100) of attempts that failed.
func (wc *WriteCounters) FailurePercent() float64 {
	var (
		attempt = wc.Attempt.Load()
		failure = wc.Failure.Load()
	)
	if attempt <= 0 {
		return 0.0
	}
	return 100 * float64(failure) / float64(attempt)
}

// Values returns the current values of the counters.
func (wc *WriteCounters) Values() (attempt, failure uint64, failurePercent float64) {
	var (
		a = wc.Attempt.Load()
		f = wc.Failure.Load()
		p = wc.FailurePercent()
	)
	return a, f, p
}

var (
	// FunctionCounters tracks function identity inserts.
	FunctionCounters WriteCounters

	// CallCounters tracks call row inserts.
	CallCounters WriteCounters

	// CompleteCounters tracks call row completion updates.
	CompleteCounters WriteCounters

	// ArgumentCounters tracks argument row inserts.
	ArgumentCounters WriteCounters
)
