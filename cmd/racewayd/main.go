// racewayd is the causality analysis engine's HTTP daemon: it ingests
// events, maintains the causal graph, and answers race/critical-path/
// anomaly/audit queries over it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/unixtransport"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	unixtransport.RegisterDefault()

	rootConfig := &rootConfig{stdout: stdout, stderr: stderr}
	rootFlags := ff.NewFlagSet("racewayd")
	rootConfig.registerBaseFlags(rootFlags)
	rootCommand := &ff.Command{
		Name:      "racewayd",
		ShortHelp: "causality analysis engine daemon",
		Flags:     rootFlags,
	}

	serveConfig := &serveConfig{rootConfig: rootConfig}
	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	serveConfig.register(serveFlags)
	serveCommand := &ff.Command{
		Name:      "serve",
		ShortHelp: "run the ingestion pipeline and query surface",
		LongHelp:  "Serve the HTTP ingestion and query endpoints backed by an in-memory causal graph.",
		Flags:     serveFlags,
		Exec:      serveConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, serveCommand)

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

	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("RACEWAYD")); err != nil {
		return err
	}

	showHelp = false

	return rootCommand.Run(ctx)
}
