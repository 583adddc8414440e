package cli

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/datagridgo/internal/app"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command names the action requested on the command line.
type Command string

const (
	CmdRun       Command = "run"
	CmdValidate  Command = "validate"
	CmdOperators Command = "operators"
)

// Invocation is the parsed command line.
type Invocation struct {
	Command Command
	Config  *app.Config
}

type flags struct {
	input, output, stats string
	assignIDs            bool
	cacheMode, cacheDir  string
	policy               string
	parallelism          int
	env                  map[string]string
	logFormat, logLevel  string
	healthcheckPort      int
}

// Parse processes command-line arguments. It returns the Invocation, a
// boolean indicating if the program should exit cleanly (help was printed),
// or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var (
		f   flags
		inv *Invocation
		err error
	)

	root := &cobra.Command{
		Use:   "datagridgo",
		Short: "DataGridGo - a declarative, cache-aware dataset transformation engine.",
		Long: `DataGridGo runs a pipeline of record operators over a JSONL dataset.
Steps form a dependency graph executed in waves, and each step's output can be
cached by its inputs, its configuration and the execution environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	runCmd := &cobra.Command{
		Use:   "run PIPELINE",
		Short: "Execute a pipeline over a JSONL dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, a []string) error {
			inv, err = invocation(CmdRun, a[0], f)
			return err
		},
	}
	rf := runCmd.Flags()
	rf.StringVarP(&f.input, "input", "i", "", "JSONL input file. Defaults to standard input.")
	rf.StringVarP(&f.output, "output", "o", "", "JSONL output file. Defaults to standard output.")
	rf.StringVar(&f.stats, "stats", "", "Write run statistics as JSON to this file.")
	rf.BoolVar(&f.assignIDs, "assign-ids", false, "Generate ids for input records that have none.")
	rf.StringVar(&f.cacheMode, "cache", app.CacheOff, "Result cache. Options: 'off', 'memory', 'disk'.")
	rf.StringVar(&f.cacheDir, "cache-dir", "", "Directory of the disk cache.")
	rf.StringVar(&f.policy, "policy", "fail_fast", "Failure policy. Options: 'fail_fast', 'skip_errors'.")
	rf.IntVarP(&f.parallelism, "parallelism", "p", 0, "Maximum steps run at once. 0 uses every CPU.")
	rf.StringToStringVar(&f.env, "env", nil, "Environment entries mixed into cache keys (key=value).")
	rf.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")

	validateCmd := &cobra.Command{
		Use:   "validate PIPELINE",
		Short: "Load and compile a pipeline without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, a []string) error {
			inv, err = invocation(CmdValidate, a[0], f)
			return err
		},
	}

	operatorsCmd := &cobra.Command{
		Use:   "operators",
		Short: "List the registered operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, a []string) error {
			inv, err = invocation(CmdOperators, "", f)
			return err
		},
	}

	root.AddCommand(runCmd, validateCmd, operatorsCmd)

	if execErr := root.Execute(); execErr != nil {
		var exitErr *ExitError
		if errors.As(execErr, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: execErr.Error()}
	}
	if inv == nil {
		slog.Debug("No command selected, help was printed.")
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "command", inv.Command)
	return inv, false, nil
}

func invocation(cmd Command, pipelinePath string, f flags) (*Invocation, error) {
	if cmd == CmdOperators {
		// Listing operators needs no pipeline; only logging applies.
		pipelinePath = "-"
	}
	cfg, err := app.NewConfig(app.Config{
		PipelinePath:    pipelinePath,
		InputPath:       f.input,
		OutputPath:      f.output,
		StatsPath:       f.stats,
		AssignIDs:       f.assignIDs,
		CacheMode:       strings.ToLower(f.cacheMode),
		CacheDir:        f.cacheDir,
		Policy:          strings.ToLower(f.policy),
		Parallelism:     f.parallelism,
		Env:             f.env,
		LogFormat:       f.logFormat,
		LogLevel:        f.logLevel,
		HealthcheckPort: f.healthcheckPort,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return &Invocation{Command: cmd, Config: cfg}, nil
}
