package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/intent/internal/program"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions

	// WarningsAsErrors fails validation when lint reports anything.
	WarningsAsErrors bool
}

// ValidationIssue is one error or warning found in a program.
type ValidationIssue struct {
	Code    string `json:"code,omitempty"`
	Intent  string `json:"intent,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (i ValidationIssue) location() string {
	if i.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Intents  int               `json:"intents"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <program-dir>",
		Short: "Check a program for errors and likely mistakes",
		Long: `Compile every intent of a program, reporting all errors rather than
stopping at the first, then lint the result.

Lint warnings (emits of undefined intents, unguarded self-emission,
guards on paths nothing writes) do not fail validation unless
--warnings-as-errors is set.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.WarningsAsErrors, "warnings-as-errors", false, "treat lint warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, loadErrors := program.Load(dir, program.LoadModeCollectAll)

	// No program at all: the directory itself is unusable.
	if prog == nil {
		code, msg := describeLoadError(loadErrors[0])
		return outputValidateError(formatter, code, msg)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", len(prog.Files), dir)

	result := ValidationResult{Intents: len(prog.Intents)}
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, issueFromError(err))
	}
	for _, w := range program.Lint(prog) {
		issue := ValidationIssue{Intent: w.Intent, Message: w.Message}
		if w.Pos.IsValid() {
			issue.File, issue.Line, issue.Column = w.Pos.Filename(), w.Pos.Line(), w.Pos.Column()
		}
		result.Warnings = append(result.Warnings, issue)
	}
	result.Valid = len(result.Errors) == 0 && (!opts.WarningsAsErrors || len(result.Warnings) == 0)

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func issueFromError(err error) ValidationIssue {
	var le *program.LoadError
	if !errors.As(err, &le) {
		return ValidationIssue{Code: program.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		issue.File, issue.Line, issue.Column = le.Pos.Filename(), le.Pos.Line(), le.Pos.Column()
	}
	return issue
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Program valid (%d intent(s))\n", result.Intents)
	printWarnings(formatter, result.Warnings)
	return nil
}

// outputValidateError reports a program that could not be loaded at all.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := len(result.Errors)
	if count == 0 {
		count = len(result.Warnings)
	}
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", count))

	if formatter.JSON() {
		first := ValidationIssue{Message: exitErr.Message}
		if len(result.Errors) > 0 {
			first = result.Errors[0]
		} else if len(result.Warnings) > 0 {
			first = result.Warnings[0]
		}
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		if loc := issue.location(); loc != "" {
			fmt.Fprintln(formatter.Writer, loc)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	printWarnings(formatter, result.Warnings)

	return exitErr
}

func printWarnings(formatter *OutputFormatter, warnings []ValidationIssue) {
	for _, w := range warnings {
		if loc := w.location(); loc != "" {
			fmt.Fprintf(formatter.Writer, "warning: %s: %s: %s\n", loc, w.Intent, w.Message)
			continue
		}
		fmt.Fprintf(formatter.Writer, "warning: %s: %s\n", w.Intent, w.Message)
	}
}
