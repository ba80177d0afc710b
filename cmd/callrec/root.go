package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/callrec/callrec/crstore"
)

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	dbDir    string
	logLevel string

	info, debug *log.Logger
}

func (cfg *rootConfig) registerBaseFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'd',
		LongName:    "db-dir",
		Value:       ffval.NewValueDefault(&cfg.dbDir, "run_dbs"),
		Usage:       "directory holding run databases",
		Placeholder: "DIR",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "none", "n"),
		Usage:       "log level: i/info, d/debug, n/none",
		Placeholder: "LEVEL",
	})
}

// resolveDB picks the run database named by the (optional) positional
// argument: a database file, a directory holding runs directly or under
// run_dbs, or, with no argument, the newest run under --db-dir.
func (cfg *rootConfig) resolveDB(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("at most one database argument, have %d", len(args))
	}

	if len(args) == 0 {
		return crstore.Latest(cfg.dbDir)
	}

	arg := args[0]
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}

	if !info.IsDir() {
		return arg, nil
	}

	path, err := crstore.Latest(arg)
	if errors.Is(err, crstore.ErrNoRuns) {
		return crstore.Latest(filepath.Join(arg, "run_dbs"))
	}
	return path, err
}

func (cfg *rootConfig) openStore(args []string) (*crstore.Store, error) {
	path, err := cfg.resolveDB(args)
	if err != nil {
		return nil, err
	}

	cfg.debug.Printf("database: %s", path)

	return crstore.Open(path)
}
