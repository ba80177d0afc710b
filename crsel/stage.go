package crsel

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// tracerModule is the module the staged go.mod gains a requirement on.
const tracerModule = "github.com/callrec/callrec"

// placeholderVersion satisfies the require directive when a replace points
// the tracer module at a local checkout.
const placeholderVersion = "v0.0.0-00010101000000-000000000000"

// StageConfig configures one staging run.
type StageConfig struct {
	// Dir is the target module root. It must contain a go.mod.
	Dir string

	// Out is the staging destination. Empty means a fresh temp directory.
	Out string

	// TracerDir, when non-empty, adds a replace directive pointing the
	// injected tracer requirement at that checkout, so the staged tree
	// builds without network access.
	TracerDir string

	// SkipUnparsed copies files that fail to parse through unchanged
	// instead of failing the run.
	SkipUnparsed bool

	// Debug receives per-file decisions.
	Debug *log.Logger
}

// Staged describes the outcome of a staging run.
type Staged struct {
	Dir        string   // staged module root
	ModulePath string   // module path of the target, from its go.mod
	Rewritten  int      // files instrumented
	Functions  int      // declarations instrumented across all files
	Copied     int      // files passed through byte-for-byte
	Skipped    []string // unparseable files passed through (SkipUnparsed)
}

// Stage copies the module at cfg.Dir into a staging directory, rewriting
// every selected source file and passing everything else through unchanged,
// then edits the staged go.mod to require the tracer module. The original
// tree is never modified.
func Stage(cfg StageConfig) (*Staged, error) {
	debug := cfg.Debug
	if debug == nil {
		debug = log.New(io.Discard, "", 0)
	}

	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve target dir: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	modData, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, fmt.Errorf("target is not a module root: %w", err)
	}

	mf, err := modfile.Parse("go.mod", modData, nil)
	if err != nil {
		return nil, fmt.Errorf("parse target go.mod: %w", err)
	}
	if mf.Module == nil || mf.Module.Mod.Path == "" {
		return nil, fmt.Errorf("target go.mod declares no module path")
	}

	out := cfg.Out
	if out == "" {
		if out, err = os.MkdirTemp("", "callrec-stage-"); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	} else {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}
	if resolved, err := filepath.EvalSymlinks(out); err == nil {
		out = resolved
	}

	policy, err := NewPolicy(root)
	if err != nil {
		return nil, err
	}

	staged := &Staged{Dir: out, ModulePath: mf.Module.Mod.Path}

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Guard against a staging dir nested inside the target.
		if path == out {
			return fs.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		dst := filepath.Join(out, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read link %s: %w", rel, err)
			}
			return os.Symlink(target, dst)

		case d.IsDir():
			return os.MkdirAll(dst, 0o755)
		}

		selected, reason := policy.Selected(path)
		if !selected {
			debug.Printf("copy %s (%s)", rel, reason)
			staged.Copied++
			return copyFile(path, dst)
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}

		importPath := staged.ModulePath
		if dir := filepath.Dir(rel); dir != "." {
			importPath += "/" + filepath.ToSlash(dir)
		}

		rewritten, n, err := Rewrite(src, FileRewrite{Filename: path, ImportPath: importPath})
		if err != nil {
			if !cfg.SkipUnparsed {
				return err
			}
			debug.Printf("copy %s (unparseable: %v)", rel, err)
			staged.Skipped = append(staged.Skipped, rel)
			staged.Copied++
			return copyFile(path, dst)
		}

		if n == 0 {
			debug.Printf("copy %s (nothing to instrument)", rel)
			staged.Copied++
		} else {
			debug.Printf("rewrite %s (%d functions)", rel, n)
			staged.Rewritten++
			staged.Functions += n
		}

		return writeFileLike(path, dst, rewritten)
	}

	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, fmt.Errorf("stage %s: %w", root, err)
	}

	if err := stageModFile(mf, out, cfg.TracerDir); err != nil {
		return nil, err
	}

	debug.Printf("staged %s: %d files rewritten (%d functions), %d copied, %d skipped",
		staged.ModulePath, staged.Rewritten, staged.Functions, staged.Copied, len(staged.Skipped))

	return staged, nil
}

// stageModFile adds the tracer requirement (and, when tracerDir is set, a
// replace directive to that checkout) to the staged go.mod.
func stageModFile(mf *modfile.File, out, tracerDir string) error {
	if err := mf.AddRequire(tracerModule, placeholderVersion); err != nil {
		return fmt.Errorf("require %s: %w", tracerModule, err)
	}

	if tracerDir != "" {
		abs, err := filepath.Abs(tracerDir)
		if err != nil {
			return fmt.Errorf("resolve tracer dir: %w", err)
		}
		if err := mf.AddReplace(tracerModule, "", abs, ""); err != nil {
			return fmt.Errorf("replace %s: %w", tracerModule, err)
		}
	}

	mf.Cleanup()

	data, err := mf.Format()
	if err != nil {
		return fmt.Errorf("format staged go.mod: %w", err)
	}

	if err := os.WriteFile(filepath.Join(out, "go.mod"), data, 0o644); err != nil {
		return fmt.Errorf("write staged go.mod: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	outf, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(outf, in); err != nil {
		outf.Close()
		return err
	}

	return outf.Close()
}

// writeFileLike writes data to dst with src's permission bits, so staged
// scripts and tools keep their execute bits.
func writeFileLike(src, dst string, data []byte) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(src); err == nil {
		perm = info.Mode().Perm()
	}

	return os.WriteFile(dst, data, perm)
}

// ChildEnv returns the environment overrides a staged program needs: the
// module-aware build mode (a vendored target would otherwise fail its
// consistency check against the injected requirement) and the database the
// recorder should write to.
func ChildEnv(dbPath string) []string {
	flags := "-mod=mod"
	if existing := os.Getenv("GOFLAGS"); existing != "" && !strings.Contains(existing, "-mod=") {
		flags = existing + " " + flags
	}

	return []string{
		"GOFLAGS=" + flags,
		"CALLREC_DB=" + dbPath,
	}
}
