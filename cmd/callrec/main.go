// callrec is a CLI tool for tracing Go programs: it instruments a copy of a
// target module, runs it, and turns the recorded calls into reports, CSV
// dumps, and model-assisted audits.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdin  = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdin, stdout, stderr, args)
	var code exitError
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a traced program's exit code to main.
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("base")
	rootConfig.registerBaseFlags(rootFlags)

	rootCommand := &ff.Command{
		Name:      "callrec",
		ShortHelp: "record and inspect the function calls of a Go program",
		Flags:     rootFlags,
	}

	// Config for `callrec run`.
	runConfig := &runConfig{rootConfig: rootConfig}
	runFlags := ff.NewFlagSet("run").SetParent(rootFlags)
	runConfig.register(runFlags)
	runCommand := &ff.Command{
		Name:      "run",
		Usage:     "callrec run [FLAGS] [-- PROGRAM ARGS...]",
		ShortHelp: "instrument a module and run it, recording every call",
		LongHelp:  "Copy the target module into a staging directory, instrument every function, and `go run` the result. The original tree is never modified.",
		Flags:     runFlags,
		Exec:      runConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, runCommand)

	// Config for `callrec report`.
	reportConfig := &reportConfig{rootConfig: rootConfig}
	reportFlags := ff.NewFlagSet("report").SetParent(rootFlags)
	reportConfig.register(reportFlags)
	reportCommand := &ff.Command{
		Name:      "report",
		Usage:     "callrec report [FLAGS] [DB]",
		ShortHelp: "print the execution report of a recorded run",
		LongHelp:  "Print function metadata and the call tree of a run database. Defaults to the most recent run.",
		Flags:     reportFlags,
		Exec:      reportConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, reportCommand)

	// Config for `callrec csv`.
	csvConfig := &csvConfig{rootConfig: rootConfig}
	csvFlags := ff.NewFlagSet("csv").SetParent(rootFlags)
	csvConfig.register(csvFlags)
	csvCommand := &ff.Command{
		Name:      "csv",
		Usage:     "callrec csv [FLAGS] [DB]",
		ShortHelp: "dump a recorded run to CSV files",
		Flags:     csvFlags,
		Exec:      csvConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, csvCommand)

	// Config for `callrec analyze`.
	analyzeConfig := &analyzeConfig{rootConfig: rootConfig}
	analyzeFlags := ff.NewFlagSet("analyze").SetParent(rootFlags)
	analyzeConfig.register(analyzeFlags)
	analyzeCommand := &ff.Command{
		Name:      "analyze",
		Usage:     "callrec analyze [FLAGS] [DB]",
		ShortHelp: "audit a recorded run with a language model",
		LongHelp:  "Render the execution report and send it to the configured model provider for an audit. The audit is printed and saved next to the database.",
		Flags:     analyzeFlags,
		Exec:      analyzeConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, analyzeCommand)

	// Config for `callrec dbs`.
	dbsConfig := &dbsConfig{rootConfig: rootConfig}
	dbsFlags := ff.NewFlagSet("dbs").SetParent(rootFlags)
	dbsCommand := &ff.Command{
		Name:      "dbs",
		Usage:     "callrec dbs",
		ShortHelp: "list recorded run databases",
		Flags:     dbsFlags,
		Exec:      dbsConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, dbsCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("CALLREC")); err != nil {
		return err
	}

	// Validation and set-up.
	{
		var infodst, debugdst io.Writer
		switch rootConfig.logLevel {
		case "n", "none":
			infodst, debugdst = io.Discard, io.Discard
		case "i", "info":
			infodst, debugdst = stderr, io.Discard
		case "d", "debug":
			infodst, debugdst = stderr, stderr
		default:
			return fmt.Errorf("invalid log level %q", rootConfig.logLevel)
		}
		rootConfig.info = log.New(infodst, "", 0)
		rootConfig.debug = log.New(debugdst, "[DEBUG] ", log.Lmsgprefix)
	}

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
