package crsel_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/mod/modfile"

	"github.com/callrec/callrec/crsel"
)

func writeTarget(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	for name, content := range files {
		full := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	return root
}

func targetFiles() map[string]string {
	return map[string]string{
		"go.mod": "module example.com/demo\n\ngo 1.21\n",
		"main.go": `package main

func helper(x int) int {
	return x * 2
}

func main() {
	helper(3)
}
`,
		"sub/util.go": `package sub

func Util() {}
`,
		"main_test.go": `package main

import "testing"

func TestHelper(t *testing.T) {
	if helper(2) != 4 {
		t.Fail()
	}
}
`,
		"vendor/dep/dep.go": "package dep\n\nfunc Dep() {}\n",
		"assets/data.txt":   "not go\n",
	}
}

func TestStage(t *testing.T) {
	t.Parallel()

	root := writeTarget(t, targetFiles())
	out := filepath.Join(t.TempDir(), "staged")
	tracer := t.TempDir()

	staged, err := crsel.Stage(crsel.StageConfig{Dir: root, Out: out, TracerDir: tracer})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	if want, have := "example.com/demo", staged.ModulePath; want != have {
		t.Errorf("module path: want %q, have %q", want, have)
	}

	if want, have := 2, staged.Rewritten; want != have {
		t.Errorf("rewritten files: want %d, have %d", want, have)
	}

	if want, have := 3, staged.Functions; want != have {
		t.Errorf("instrumented declarations: want %d, have %d", want, have)
	}

	mainSrc, err := os.ReadFile(filepath.Join(staged.Dir, "main.go"))
	if err != nil {
		t.Fatalf("read staged main.go: %v", err)
	}

	for _, want := range []string{
		`import _crrt "github.com/callrec/callrec/ezrec"`,
		`defer _crrt.Close()`,
		`Module: "example.com/demo",`,
	} {
		if !strings.Contains(string(mainSrc), want) {
			t.Errorf("staged main.go missing %q", want)
		}
	}

	// The baked filename points at the original tree, not the staged copy.
	if want := filepath.Join(root, "main.go"); !strings.Contains(string(mainSrc), want) {
		t.Errorf("staged main.go does not record original path %q", want)
	}

	subSrc, err := os.ReadFile(filepath.Join(staged.Dir, "sub", "util.go"))
	if err != nil {
		t.Fatalf("read staged sub/util.go: %v", err)
	}

	if want := `Module: "example.com/demo/sub",`; !strings.Contains(string(subSrc), want) {
		t.Errorf("staged sub/util.go missing %q", want)
	}

	// Excluded files pass through byte-for-byte.
	for _, name := range []string{"main_test.go", "vendor/dep/dep.go", "assets/data.txt"} {
		want := targetFiles()[name]
		have, err := os.ReadFile(filepath.Join(staged.Dir, name))
		if err != nil {
			t.Fatalf("read staged %s: %v", name, err)
		}
		if string(have) != want {
			t.Errorf("staged %s was modified:\n%s", name, have)
		}
	}

	// The original tree stays untouched.
	originalMain, err := os.ReadFile(filepath.Join(root, "main.go"))
	if err != nil {
		t.Fatalf("read original main.go: %v", err)
	}
	if want, have := targetFiles()["main.go"], string(originalMain); want != have {
		t.Error("staging modified the original tree")
	}
}

func TestStageModFile(t *testing.T) {
	t.Parallel()

	root := writeTarget(t, targetFiles())
	tracer := t.TempDir()

	staged, err := crsel.Stage(crsel.StageConfig{Dir: root, TracerDir: tracer})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	defer os.RemoveAll(staged.Dir)

	data, err := os.ReadFile(filepath.Join(staged.Dir, "go.mod"))
	if err != nil {
		t.Fatalf("read staged go.mod: %v", err)
	}

	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		t.Fatalf("parse staged go.mod: %v", err)
	}

	var required bool
	for _, req := range mf.Require {
		if req.Mod.Path == "github.com/callrec/callrec" {
			required = true
		}
	}
	if !required {
		t.Errorf("staged go.mod does not require the tracer module:\n%s", data)
	}

	var replaced bool
	for _, rep := range mf.Replace {
		if rep.Old.Path != "github.com/callrec/callrec" {
			continue
		}
		replaced = true
		if want, have := tracer, rep.New.Path; !strings.HasSuffix(have, filepath.Base(want)) {
			t.Errorf("replace target: want %q, have %q", want, have)
		}
	}
	if !replaced {
		t.Errorf("staged go.mod does not replace the tracer module:\n%s", data)
	}
}

func TestStageUnparseable(t *testing.T) {
	t.Parallel()

	files := targetFiles()
	files["broken.go"] = "package main\n\nfunc Broken( {\n"

	root := writeTarget(t, files)

	if _, err := crsel.Stage(crsel.StageConfig{
		Dir: root,
		Out: filepath.Join(t.TempDir(), "strict"),
	}); err == nil {
		t.Fatal("unparseable file: want error, have nil")
	} else if !strings.Contains(err.Error(), "broken.go") {
		t.Errorf("error does not name the file: %v", err)
	}

	staged, err := crsel.Stage(crsel.StageConfig{
		Dir:          root,
		Out:          filepath.Join(t.TempDir(), "lenient"),
		SkipUnparsed: true,
	})
	if err != nil {
		t.Fatalf("stage with -skip-unparsed: %v", err)
	}

	if want, have := 1, len(staged.Skipped); want != have {
		t.Fatalf("skipped files: want %d, have %d (%v)", want, have, staged.Skipped)
	}

	if want, have := "broken.go", staged.Skipped[0]; want != have {
		t.Errorf("skipped file: want %q, have %q", want, have)
	}

	have, err := os.ReadFile(filepath.Join(staged.Dir, "broken.go"))
	if err != nil {
		t.Fatalf("read staged broken.go: %v", err)
	}
	if string(have) != files["broken.go"] {
		t.Error("unparseable file was modified in staging")
	}
}

func TestStageNotAModule(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := crsel.Stage(crsel.StageConfig{Dir: root, Out: filepath.Join(t.TempDir(), "out")}); err == nil {
		t.Fatal("missing go.mod: want error, have nil")
	}
}
