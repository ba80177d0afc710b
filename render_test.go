package callrec_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/callrec/callrec"
)

func TestRenderValue(t *testing.T) {
	t.Parallel()

	ch := make(chan int)

	for _, tc := range []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, "null"},
		{"int", 14, "14"},
		{"float", 2.5, "2.5"},
		{"bool", true, "true"},
		{"string", "hi", `"hi"`},
		{"slice", []int{1, 2, 3}, "[1,2,3]"},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
		{"struct", struct {
			N int `json:"n"`
		}{N: 9}, `{"n":9}`},
		{"error", errors.New("broken"), "broken"},
		{"stringer", time.Duration(1500) * time.Millisecond, "1.5s"},
		{"unserializable", ch, "<chan int>"},
		{"pointer to unserializable", &ch, "<*chan int>"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if want, have := tc.want, callrec.RenderValue(tc.v); want != have {
				t.Errorf("RenderValue(%v): want %q, have %q", tc.v, want, have)
			}
		})
	}

	t.Run("truncates to the cap", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("a", 5000)
		have := callrec.RenderValue(long)
		if want := callrec.MaxValueLen; len([]rune(have)) != want {
			t.Errorf("length: want %d, have %d", want, len([]rune(have)))
		}
	})
}

func TestRenderResults(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		results []any
		want    string
	}{
		{"none", nil, "null"},
		{"single", []any{14}, "14"},
		{"single string", []any{"ok"}, `"ok"`},
		{"pair", []any{1, "two"}, `[1, "two"]`},
		{"with nil", []any{nil, 2}, "[null, 2]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if want, have := tc.want, callrec.RenderResults(tc.results); want != have {
				t.Errorf("RenderResults(%v): want %q, have %q", tc.results, want, have)
			}
		})
	}
}
