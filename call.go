package callrec

import "time"

// Call is the in-flight recording of one invocation, returned by
// [Recorder.Begin]. Its only operation is [Call.End], which must run on every
// exit path of the wrapped body; rewritten code arranges that with a single
// deferred call.
//
// A Call is owned by the goroutine that began it and is not safe for
// concurrent use.
type Call struct {
	rec   *Recorder
	fn    *Func
	id    int64
	gid   int64
	begin time.Time
}

// NoopCall returns a Call that records nothing. End still re-raises a
// recovered panic, so disabled or degraded recording stays transparent to the
// traced program.
func NoopCall() *Call {
	return &Call{}
}

// End completes the call. recovered must be the value returned by a recover()
// in the deferred caller: when non-nil, the call is recorded as failed with
// the panic's type, message, and stack, and the identical value is re-raised
// after recording. Otherwise results holds the callable's results at return
// time; a non-nil error in the final slot records a failure, anything else
// records a return value.
func (c *Call) End(recovered any, results ...any) {
	if c != nil && c.rec != nil {
		c.rec.end(c, recovered, results)
	}

	if recovered != nil {
		panic(recovered)
	}
}
