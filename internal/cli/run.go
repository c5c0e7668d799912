package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/journal"
	"github.com/roach88/intent/internal/middleware"
	"github.com/roach88/intent/internal/program"
	"github.com/roach88/intent/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Emit     []string
	Database string
	MaxDepth int
	Strict   bool
	Timeout  time.Duration

	// IDs overrides the dispatch ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.IDGenerator
}

// DispatchResult is the outcome of one --emit.
type DispatchResult struct {
	Intent     string `json:"intent"`
	DispatchID string `json:"dispatch_id,omitempty"`
	Outcome    string `json:"outcome"` // success, error or rejected
	Error      string `json:"error,omitempty"`
}

// RunResult holds everything a run produced.
type RunResult struct {
	Dispatches []DispatchResult         `json:"dispatches"`
	State      value.Object             `json:"state"`
	Statuses   map[string]engine.Status `json:"statuses"`
	Output     string                   `json:"output,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program-dir>",
		Short: "Dispatch intents against a program",
		Long: `Load a program, emit the given intents in order and print the final
state and per-type statuses.

Each --emit is TYPE or TYPE=<json payload>. Payloads must not contain
floats. With --db every dispatch is recorded in a SQLite journal that
"intent trace" can read; the journal only records history, each run
starts from the program's initial state.

Examples:
  intent run ./program --emit INC --emit INC
  intent run ./program --emit 'NAME={"name":"ada"}' --db ./intent.db
  intent run ./program --emit LOOP --max-depth 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Emit, "emit", "e", nil, "intent to emit, TYPE or TYPE=json (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "maximum nested emission depth (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail intents that have no handler")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-dispatch timeout (0 = none)")

	return cmd
}

func runProgram(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger(cmd)

	intents, err := parseEmits(opts.Emit)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --emit", err)
	}
	if opts.MaxDepth < 0 {
		return NewExitError(ExitCommandError, "--max-depth must be non-negative")
	}

	prog, err := loadProgram(formatter, dir)
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Printed output would corrupt JSON; it is returned in the result.
	var out io.Writer = formatter.Writer
	var printed *bytes.Buffer
	if formatter.JSON() {
		printed = &bytes.Buffer{}
		out = printed
	}

	mws := []engine.Middleware{
		middleware.Recover(logger),
		middleware.Logging(logger),
		middleware.Tracing(),
		middleware.Metrics(),
	}
	if opts.Timeout > 0 {
		mws = append(mws, middleware.Timeout(opts.Timeout))
	}

	last := &lastTopLevel{}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMiddleware(mws...),
		engine.WithObserver(last),
		engine.WithMaxDepth(opts.MaxDepth),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}
	if opts.Strict {
		engineOpts = append(engineOpts, engine.WithMissingHandlerPolicy(engine.MissingHandlerError))
	}

	if opts.Database != "" {
		j, err := journal.Open(opts.Database, journal.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		seq, err := j.LastSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		logger.Debug("journal ready", "path", opts.Database, "last_seq", seq)
		engineOpts = append(engineOpts, engine.WithClock(engine.NewClockAt(seq)), engine.WithObserver(j))
	}

	eng, err := program.NewEngine(prog, program.NewEffects(logger, out), engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to install program", err)
	}

	result := RunResult{Dispatches: make([]DispatchResult, 0, len(intents))}
	failed := 0
	for _, in := range intents {
		if ctx.Err() != nil {
			break
		}
		last.reset()
		emitErr := eng.Emit(ctx, in)

		d := DispatchResult{Intent: in.Type, DispatchID: last.ev.DispatchID, Outcome: string(engine.StatusSuccess)}
		switch {
		case emitErr != nil:
			d.Outcome = string(engine.StatusError)
			d.Error = emitErr.Error()
			failed++
		case last.ev.Kind == engine.EventRejected:
			d.Outcome = string(engine.EventRejected)
		}
		result.Dispatches = append(result.Dispatches, d)
		if !formatter.JSON() {
			printDispatch(formatter.Writer, d)
		}
	}

	result.State = eng.Store().GetState()
	result.Statuses = eng.Statuses()
	if printed != nil {
		result.Output = printed.String()
	}

	var exitErr error
	if ctx.Err() != nil {
		exitErr = WrapExitError(ExitFailure, "run interrupted", ctx.Err())
	} else if failed > 0 {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("%d of %d intent(s) failed", failed, len(intents)))
	}

	if formatter.JSON() {
		status := "ok"
		if exitErr != nil {
			status = "error"
		}
		if err := formatter.Respond(CLIResponse{Status: status, Data: result}); err != nil {
			return err
		}
		return exitErr
	}

	if err := printRunSummary(formatter.Writer, result); err != nil {
		return err
	}
	return exitErr
}

// parseEmits turns TYPE or TYPE=json flags into intents.
func parseEmits(specs []string) ([]engine.Intent, error) {
	intents := make([]engine.Intent, 0, len(specs))
	for _, s := range specs {
		typ, raw, hasPayload := strings.Cut(s, "=")
		typ = strings.TrimSpace(typ)
		if typ == "" {
			return nil, fmt.Errorf("%q: intent type is empty", s)
		}
		in := engine.Intent{Type: typ}
		if hasPayload {
			payload, err := value.Unmarshal([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("%s: payload: %w", typ, err)
			}
			in.Payload = payload
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// lastTopLevel remembers the most recent depth-0 event.
type lastTopLevel struct {
	ev engine.Event
}

func (l *lastTopLevel) Observe(_ context.Context, ev engine.Event) {
	if ev.Depth == 0 {
		l.ev = ev
	}
}

func (l *lastTopLevel) reset() {
	l.ev = engine.Event{}
}

func printDispatch(w io.Writer, d DispatchResult) {
	switch d.Outcome {
	case string(engine.StatusError):
		fmt.Fprintf(w, "✗ %s: %s\n", d.Intent, d.Error)
	case string(engine.EventRejected):
		fmt.Fprintf(w, "- %s (rejected)\n", d.Intent)
	default:
		fmt.Fprintf(w, "✓ %s\n", d.Intent)
	}
}

func printRunSummary(w io.Writer, result RunResult) error {
	st, err := value.MarshalCanonical(result.State)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode state", err)
	}
	fmt.Fprintf(w, "\nstate: %s\n", st)

	types := make([]string, 0, len(result.Statuses))
	for typ := range result.Statuses {
		types = append(types, typ)
	}
	sort.Strings(types)
	fmt.Fprintln(w, "statuses:")
	for _, typ := range types {
		fmt.Fprintf(w, "  %s: %s\n", typ, result.Statuses[typ])
	}
	return nil
}
