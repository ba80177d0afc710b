package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/callrec/callrec/crsel"
	"github.com/callrec/callrec/crstore"
)

type runConfig struct {
	*rootConfig

	dir          string
	stagingDir   string
	keepStaging  bool
	skipUnparsed bool
	tracerDir    string
}

func (cfg *runConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'C',
		LongName:    "dir",
		Value:       ffval.NewValueDefault(&cfg.dir, "."),
		Usage:       "target module root",
		Placeholder: "DIR",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "staging",
		Value:       ffval.NewValue(&cfg.stagingDir),
		Usage:       "staging directory (default: a fresh temp dir)",
		Placeholder: "DIR",
		NoDefault:   true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "keep-staging",
		Value:     ffval.NewValue(&cfg.keepStaging),
		Usage:     "keep the staging directory after the run",
		NoDefault: true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:  "skip-unparsed",
		Value:     ffval.NewValue(&cfg.skipUnparsed),
		Usage:     "copy files that fail to parse instead of failing the run",
		NoDefault: true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "tracer",
		Value:       ffval.NewValue(&cfg.tracerDir),
		Usage:       "local checkout of the recorder module, for offline builds",
		Placeholder: "DIR",
		NoDefault:   true,
	})
}

func (cfg *runConfig) Exec(ctx context.Context, args []string) error {
	staged, err := crsel.Stage(crsel.StageConfig{
		Dir:          cfg.dir,
		Out:          cfg.stagingDir,
		TracerDir:    cfg.tracerDir,
		SkipUnparsed: cfg.skipUnparsed,
		Debug:        cfg.debug,
	})
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	if cfg.keepStaging || cfg.stagingDir != "" {
		cfg.info.Printf("staged %s in %s", staged.ModulePath, staged.Dir)
	} else {
		defer os.RemoveAll(staged.Dir)
		cfg.debug.Printf("staged %s in %s", staged.ModulePath, staged.Dir)
	}

	cfg.info.Printf("instrumented %d functions in %d files", staged.Functions, staged.Rewritten)
	for _, rel := range staged.Skipped {
		cfg.info.Printf("skipped %s (unparseable)", rel)
	}

	store, err := crstore.Provision(cfg.dbDir, filepath.Base(staged.ModulePath))
	if err != nil {
		return fmt.Errorf("provision database: %w", err)
	}
	dbPath := store.Path()

	// The traced program is the sole writer.
	if err := store.Close(); err != nil {
		return err
	}

	// The child runs in the staging directory, so it gets an absolute path.
	absDB, err := filepath.Abs(dbPath)
	if err != nil {
		return err
	}

	cfg.info.Printf("recording to %s", dbPath)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		child := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
		child.Dir = staged.Dir
		child.Stdin = cfg.stdin
		child.Stdout = cfg.stdout
		child.Stderr = cfg.stderr
		child.Env = append(os.Environ(), crsel.ChildEnv(absDB)...)
		g.Add(func() error {
			cfg.debug.Printf("exec: go run . %v", args)
			return child.Run()
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	err = g.Run()

	// Interrupted or failed runs still have data worth pointing at.
	cfg.info.Printf("run database: %s", dbPath)

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return exitError(ee.ExitCode())
	}
	return err
}
