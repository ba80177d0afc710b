package crutil

// Truncate returns s cut down to at most max runes. Truncation counts runes
// rather than bytes, so a multi-byte character is never split in half.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}

	// Fast path: a string of max bytes can't exceed max runes.
	if len(s) <= max {
		return s
	}

	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
