package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/datagridgo/internal/app"
	"github.com/specialistvlad/datagridgo/internal/cli"
	"github.com/specialistvlad/datagridgo/internal/scheduler"
)

// main is the entrypoint for the datagridgo application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Records and command output go to outW, logs to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical startup errors, so we recover here to
	// provide a clean exit message to the user.
	defer recoverStartup(&err)

	a := app.NewApp(logW, inv.Config).WithStreams(os.Stdin, outW)

	switch inv.Command {
	case cli.CmdOperators:
		for _, name := range a.Operators() {
			fmt.Fprintln(outW, name)
		}
		return nil
	case cli.CmdValidate:
		plan, err := a.Compile(ctx)
		if err != nil {
			return err
		}
		waves, err := scheduler.Waves(plan)
		if err != nil {
			return err
		}
		for i, w := range waves {
			for _, idx := range w {
				n := plan.Node(idx)
				fmt.Fprintf(outW, "wave %d: %s (%s)\n", i, n.Name, n.Operator)
			}
		}
		fmt.Fprintf(outW, "pipeline is valid: %d step(s) in %d wave(s)\n", plan.Len(), len(waves))
		return nil
	default:
		return a.Run(ctx)
	}
}

func recoverStartup(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("application startup panicked: %v", r)
	}
}
