package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/callrec/callrec/crdump"
	"github.com/callrec/callrec/crstore"
)

type csvConfig struct {
	*rootConfig

	outDir string
}

func (cfg *csvConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'o',
		LongName:    "out",
		Value:       ffval.NewValue(&cfg.outDir),
		Usage:       "output directory (default: dumps/<run name>)",
		Placeholder: "DIR",
		NoDefault:   true,
	})
}

func (cfg *csvConfig) Exec(ctx context.Context, args []string) error {
	path, err := cfg.resolveDB(args)
	if err != nil {
		return err
	}

	store, err := crstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cfg.outDir
	if out == "" {
		out = filepath.Join("dumps", strings.TrimSuffix(filepath.Base(path), ".db"))
	}

	if err := crdump.DumpCSV(ctx, store, out); err != nil {
		return err
	}

	cfg.info.Printf("wrote functions.csv, calls.csv, arguments.csv, unified.csv to %s", out)

	return nil
}
