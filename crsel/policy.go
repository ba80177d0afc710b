// Package crsel decides which source files of a target module get traced,
// and rewrites them. Selection is a staging operation: the target tree is
// copied, selected files are rewritten to invoke the recorder, everything
// else passes through byte-for-byte, and the original tree is never touched.
package crsel

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Policy reports whether a file belongs to the traced surface of a module.
// The zero value is not usable; construct with [NewPolicy].
type Policy struct {
	root   string // module root, absolute, symlinks resolved
	goroot string
}

// NewPolicy returns a policy for the module rooted at root.
func NewPolicy(root string) (*Policy, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return &Policy{
		root:   abs,
		goroot: runtime.GOROOT(),
	}, nil
}

// Selected reports whether the file at path should be rewritten, and, when it
// shouldn't, the reason it passes through unchanged. Rules, first match wins:
// the file must lie inside the module root; directories governed by a nested
// go.mod are out; vendor, testdata, and dot- or underscore-prefixed path
// elements are out, as the Go toolchain treats them; anything under GOROOT is
// out. Only .go files are candidates, and _test.go files pass through.
func (p *Policy) Selected(path string) (bool, string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, "unresolvable path"
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, "outside module root"
	}

	if p.goroot != "" {
		if rel, err := filepath.Rel(p.goroot, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false, "inside GOROOT"
		}
	}

	elems := strings.Split(rel, string(filepath.Separator))
	for i, elem := range elems {
		switch {
		case elem == "vendor":
			return false, "vendored package"
		case elem == "testdata":
			return false, "testdata directory"
		case strings.HasPrefix(elem, ".") || strings.HasPrefix(elem, "_"):
			return false, "ignored by the toolchain"
		}

		// Directories carrying their own go.mod are separate modules.
		if i < len(elems)-1 {
			dir := filepath.Join(p.root, filepath.Join(elems[:i+1]...))
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				return false, "nested module"
			}
		}
	}

	base := filepath.Base(abs)
	switch {
	case !strings.HasSuffix(base, ".go"):
		return false, "not a Go source file"
	case strings.HasSuffix(base, "_test.go"):
		return false, "test file"
	}

	return true, ""
}
