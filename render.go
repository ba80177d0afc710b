package callrec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/callrec/callrec/internal/crutil"
)

// MaxValueLen is the cap, in characters, applied to every serialized argument
// and return value at write time. Values beyond the cap are stored truncated;
// reads never truncate.
const MaxValueLen = 1000

// RenderValue converts an arbitrary runtime value to its textual trace form.
// Errors render as their message and [fmt.Stringer] values as their String
// form; everything else is tried as JSON, and values that can't marshal fall
// back to a type-name placeholder like "<*os.File>". The result is truncated
// to [MaxValueLen].
func RenderValue(v any) string {
	return crutil.Truncate(renderValue(v), MaxValueLen)
}

func renderValue(v any) string {
	if v == nil {
		return "null"
	}

	switch x := v.(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}

	if buf, err := json.Marshal(v); err == nil {
		return string(buf)
	}

	return fmt.Sprintf("<%T>", v)
}

// RenderResults converts a callable's results to the single textual form
// stored as the call's return value. No results render as null, a single
// result stands alone, and multiple results render as a JSON-style array.
// The result is truncated to [MaxValueLen].
func RenderResults(results []any) string {
	switch len(results) {
	case 0:
		return "null"
	case 1:
		return RenderValue(results[0])
	}

	parts := make([]string, len(results))
	for i, v := range results {
		parts[i] = renderValue(v)
	}
	return crutil.Truncate("["+strings.Join(parts, ", ")+"]", MaxValueLen)
}
