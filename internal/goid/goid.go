// Package goid resolves the numeric id of the calling goroutine.
//
// The runtime deliberately doesn't expose goroutine ids, but the first line of
// a [runtime.Stack] dump begins with "goroutine N [state]:", which is a stable
// format relied on by the standard library's own tests. Parsing that line is
// the only portable way to key per-goroutine state without requiring callers
// to thread an explicit identifier through every call.
package goid

import "runtime"

// ID returns the id of the calling goroutine.
func ID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// Skip the "goroutine " prefix and accumulate digits up to the
	// following space.
	const prefix = len("goroutine ")
	var id int64
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
