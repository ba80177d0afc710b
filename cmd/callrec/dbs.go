package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/callrec/callrec/crstore"
	"github.com/callrec/callrec/internal/crutil"
)

type dbsConfig struct {
	*rootConfig
}

func (cfg *dbsConfig) Exec(ctx context.Context, args []string) error {
	paths, err := crstore.List(cfg.dbDir)
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		fmt.Fprintf(cfg.stdout, "no run databases in %s\n", cfg.dbDir)
		return nil
	}

	tw := tabwriter.NewWriter(cfg.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "DATABASE\tSIZE\tAGE\tPROGRAM\tRUN\n")
	for _, path := range paths {
		size, age := "-", "-"
		if info, err := os.Stat(path); err == nil {
			size = crutil.HumanizeBytes(info.Size())
			age = crutil.HumanizeDuration(time.Since(info.ModTime()))
		}

		program, runID := "-", "-"
		if store, err := crstore.Open(path); err == nil {
			if meta, err := store.Meta(ctx); err == nil {
				if v := meta["program"]; v != "" {
					program = v
				}
				if v := meta["run_id"]; v != "" {
					runID = v
				}
			}
			store.Close()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", path, size, age, program, runID)
	}

	return tw.Flush()
}
