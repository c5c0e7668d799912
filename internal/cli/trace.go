package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/intent/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Intent     string // optional - filter to one intent type
	Dispatch   string // optional - one dispatch and its ancestry
	Incomplete bool
	Limit      int
}

// TraceDispatch is a journaled dispatch with its transitions.
type TraceDispatch struct {
	journal.Dispatch
	Transitions []journal.Transition `json:"transitions,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Dispatches []TraceDispatch `json:"dispatches"`

	// Ancestors is set with --dispatch: the chain of emitting
	// dispatches, nearest parent first.
	Ancestors []journal.Dispatch `json:"ancestors,omitempty"`

	Stats TraceStats `json:"stats"`
}

// TraceStats counts dispatches by outcome.
type TraceStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show dispatch history from a journal",
		Long: `Read the dispatch journal written by "intent run --db".

Lists dispatches in seq order, indented by emission depth. With
--dispatch, shows one dispatch, its transitions and the chain of
dispatches that emitted it. --incomplete lists dispatches that never
finished, left behind by a process that exited mid-dispatch.

Examples:
  intent trace --db ./intent.db
  intent trace --db ./intent.db --intent INC
  intent trace --db ./intent.db --dispatch 0191f2c4-...
  intent trace --db ./intent.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "filter to one intent type")
	cmd.Flags().StringVar(&opts.Dispatch, "dispatch", "", "show one dispatch and its ancestry")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "only dispatches still pending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum dispatches to show (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database, journal.WithLogger(opts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	result, err := buildTrace(ctx, j, opts)
	if err != nil {
		return err
	}

	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result})
	}
	outputTraceText(formatter.Writer, result, opts.Verbose || opts.Dispatch != "")
	return nil
}

func buildTrace(ctx context.Context, j *journal.Journal, opts *TraceOptions) (TraceResult, error) {
	var (
		result     TraceResult
		dispatches []journal.Dispatch
		err        error
	)

	switch {
	case opts.Dispatch != "":
		d, err := j.Dispatch(ctx, opts.Dispatch)
		if errors.Is(err, sql.ErrNoRows) {
			return result, NewExitError(ExitFailure, fmt.Sprintf("dispatch not found: %s", opts.Dispatch))
		}
		if err != nil {
			return result, WrapExitError(ExitCommandError, "failed to read dispatch", err)
		}
		dispatches = []journal.Dispatch{d}
		result.Ancestors, err = j.Ancestors(ctx, d.ID)
		if err != nil {
			return result, WrapExitError(ExitCommandError, "failed to read ancestors", err)
		}
	case opts.Incomplete:
		dispatches, err = j.Incomplete(ctx)
	default:
		dispatches, err = j.Dispatches(ctx, journal.Filter{IntentType: opts.Intent, Limit: opts.Limit})
	}
	if err != nil {
		return result, WrapExitError(ExitCommandError, "failed to read dispatches", err)
	}

	result.Dispatches = make([]TraceDispatch, 0, len(dispatches))
	for _, d := range dispatches {
		if opts.Intent != "" && d.IntentType != opts.Intent {
			continue
		}
		ts, err := j.Transitions(ctx, d.ID)
		if err != nil {
			return result, WrapExitError(ExitCommandError, "failed to read transitions", err)
		}
		result.Dispatches = append(result.Dispatches, TraceDispatch{Dispatch: d, Transitions: ts})
		result.Stats.count(d.Outcome)
	}
	return result, nil
}

func (s *TraceStats) count(outcome string) {
	s.Total++
	switch outcome {
	case "success":
		s.Succeeded++
	case "error":
		s.Failed++
	case "rejected":
		s.Rejected++
	case "pending":
		s.Pending++
	}
}

func outputTraceText(w io.Writer, result TraceResult, showTransitions bool) {
	if len(result.Dispatches) == 0 {
		fmt.Fprintln(w, "No dispatches found.")
		return
	}

	for _, d := range result.Dispatches {
		line := fmt.Sprintf("[%d] %s%s %s %s", d.Seq, strings.Repeat("  ", d.Depth), d.IntentType, d.Outcome, d.ID)
		if d.Payload != "" {
			line += " " + d.Payload
		}
		if d.Error != "" {
			line += fmt.Sprintf(" (%s)", d.Error)
		}
		fmt.Fprintln(w, line)

		if showTransitions {
			for _, t := range d.Transitions {
				fmt.Fprintf(w, "      seq %d: %s %s -> %s\n", t.Seq, t.Kind, orDash(t.From), orDash(t.To))
			}
		}
	}

	if len(result.Ancestors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Emitted by:")
		for _, a := range result.Ancestors {
			fmt.Fprintf(w, "  %s %s (depth %d)\n", a.IntentType, a.ID, a.Depth)
		}
	}

	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d dispatch(es): %d succeeded, %d failed, %d rejected, %d pending\n",
		s.Total, s.Succeeded, s.Failed, s.Rejected, s.Pending)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
