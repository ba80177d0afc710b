package main

import (
	"context"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/callrec/callrec/crdump"
)

type reportConfig struct {
	*rootConfig

	outFile string
}

func (cfg *reportConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'o',
		LongName:    "out",
		Value:       ffval.NewValue(&cfg.outFile),
		Usage:       "write the report to FILE instead of stdout",
		Placeholder: "FILE",
		NoDefault:   true,
	})
}

func (cfg *reportConfig) Exec(ctx context.Context, args []string) error {
	store, err := cfg.openStore(args)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := crdump.Render(ctx, store)
	if err != nil {
		return err
	}

	if cfg.outFile != "" {
		if err := os.WriteFile(cfg.outFile, []byte(report), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		cfg.info.Printf("report saved to %s", cfg.outFile)
		return nil
	}

	fmt.Fprint(cfg.stdout, report)

	return nil
}
