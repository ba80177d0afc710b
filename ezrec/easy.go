// Package ezrec is the single import of instrumented programs: a global
// recorder configured from the environment. Each rewritten file registers
// its declarations in package-level vars and brackets each body with Begin
// and a deferred End; the rewritten main defers Close.
//
// The recorder initializes lazily on the first Begin and degrades to a no-op
// when recording is disabled or the run database cannot be opened — the
// traced program always runs.
//
//	CALLREC_DB        run database to append to (normally set by callrec run)
//	CALLREC_DB_DIR    directory for self-provisioned run databases (default run_dbs)
//	CALLREC_DISABLED  disable recording entirely
//	CALLREC_VERBOSE   log recorder activity and write counters
package ezrec

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/kelseyhightower/envconfig"

	"github.com/callrec/callrec"
	"github.com/callrec/callrec/crstore"
	"github.com/callrec/callrec/internal/crdebug"
)

// FuncInfo is the declaration identity baked into generated registrations.
type FuncInfo = callrec.FuncInfo

// Arg is one captured argument.
type Arg = callrec.Arg

// Config is the recorder's environment configuration.
type Config struct {
	DB       string `envconfig:"CALLREC_DB"`
	DBDir    string `envconfig:"CALLREC_DB_DIR" default:"run_dbs"`
	Disabled bool   `envconfig:"CALLREC_DISABLED"`
	Verbose  bool   `envconfig:"CALLREC_VERBOSE"`
}

var global struct {
	mu       sync.Mutex
	logger   *log.Logger
	rec      *callrec.Recorder
	store    *crstore.Store
	verbose  bool
	disabled bool
	closed   bool
}

// Register wraps one declaration's identity for use with Begin. It touches no
// global state, so registration order across files doesn't matter.
func Register(info FuncInfo) *callrec.Func {
	return callrec.NewFunc(info)
}

// Begin starts recording a call of fn. The first Begin initializes the global
// recorder from the environment; when recording is unavailable the returned
// call is a no-op.
func Begin(fn *callrec.Func, args ...Arg) *callrec.Call {
	if rec := recorder(); rec != nil {
		return rec.Begin(fn, args...)
	}
	return callrec.NoopCall()
}

// SetLogger routes diagnostics to logger. Call it before the first traced
// call to capture recorder output as well.
func SetLogger(logger *log.Logger) {
	global.mu.Lock()
	defer global.mu.Unlock()

	global.logger = logger
}

// Close completes the run: it logs write counters when verbose and closes the
// run database. The rewritten main defers Close last, so every completion
// lands before exit. Traced calls after Close run untraced.
func Close() {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.closed {
		return
	}
	global.closed = true

	if global.rec == nil {
		return
	}
	global.rec = nil

	if global.verbose {
		for _, c := range []struct {
			name string
			wc   *crdebug.WriteCounters
		}{
			{"functions", &crdebug.FunctionCounters},
			{"calls", &crdebug.CallCounters},
			{"completions", &crdebug.CompleteCounters},
			{"arguments", &crdebug.ArgumentCounters},
		} {
			attempt, failure, pct := c.wc.Values()
			infof("%s: %d writes, %d failed (%.1f%%)", c.name, attempt, failure, pct)
		}
	}

	if err := global.store.Close(); err != nil {
		errorf("close run database: %v", err)
	}
	global.store = nil
}

func recorder() *callrec.Recorder {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.rec == nil && !global.disabled && !global.closed {
		initialize()
	}

	return global.rec
}

// initialize runs under global.mu, at most once per process (failure latches
// the disabled flag).
func initialize() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		global.disabled = true
		errorf("config: %v (recording disabled)", err)
		return
	}

	if cfg.Disabled {
		global.disabled = true
		return
	}

	global.verbose = cfg.Verbose

	var (
		store *crstore.Store
		err   error
	)
	if cfg.DB != "" {
		store, err = crstore.Open(cfg.DB)
	} else {
		store, err = crstore.Provision(cfg.DBDir, filepath.Base(os.Args[0]))
	}
	if err != nil {
		global.disabled = true
		errorf("open run database: %v (recording disabled)", err)
		return
	}

	var options []callrec.Option
	if global.logger != nil {
		options = append(options, callrec.WithLogger(global.logger))
	}

	global.store = store
	global.rec = callrec.New(store, options...)

	infof("recording to %s", store.Path())
}

// errorf always surfaces; infof only when verbose. Callers hold global.mu.
func errorf(format string, args ...any) {
	if global.logger != nil {
		global.logger.Printf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "callrec: "+format+"\n", args...)
}

func infof(format string, args ...any) {
	if !global.verbose {
		return
	}
	errorf(format, args...)
}
