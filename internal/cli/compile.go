package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/intent/internal/program"
	"github.com/roach88/intent/internal/value"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledProgram is the JSON form of a loaded program.
type CompiledProgram struct {
	State   value.Object     `json:"state"`
	Intents []CompiledIntent `json:"intents"`
	Files   []string         `json:"files,omitempty"`
}

// CompiledIntent is the JSON form of one intent definition.
type CompiledIntent struct {
	Type  string              `json:"type"`
	Guard []CompiledCondition `json:"guard,omitempty"`
	Do    []CompiledStep      `json:"do,omitempty"`
	Lua   string              `json:"lua,omitempty"`
}

// CompiledCondition is the JSON form of a guard condition.
type CompiledCondition struct {
	Path  string      `json:"path"`
	Op    string      `json:"op"`
	Value value.Value `json:"value,omitempty"`
}

// CompiledStep is the JSON form of a step.
type CompiledStep struct {
	Op      string      `json:"op"`
	Path    string      `json:"path,omitempty"`
	Value   value.Value `json:"value,omitempty"`
	From    string      `json:"from,omitempty"`
	By      int64       `json:"by,omitempty"`
	Intent  string      `json:"intent,omitempty"`
	Effect  string      `json:"name,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <program-dir>",
		Short: "Compile a CUE program and print its normalized form",
		Long: `Compile the CUE files of a program directory and print the result:
the initial state and every intent with its guard and handler, defaults
filled in.

Examples:
  intent compile ./program
  intent compile ./program -o program.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prog, err := loadProgram(formatter, dir)
	if err != nil {
		return err
	}
	compiled := newCompiledProgram(prog)

	if opts.Output != "" {
		data, err := json.MarshalIndent(compiled, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode program", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if formatter.JSON() {
		return formatter.Success(compiled)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d intent(s) from %d file(s)\n", len(compiled.Intents), len(compiled.Files))
	for _, in := range compiled.Intents {
		handler := fmt.Sprintf("%d step(s)", len(in.Do))
		if in.Lua != "" {
			handler = "lua"
		}
		fmt.Fprintf(formatter.Writer, "  %s: %d guard condition(s), %s\n", in.Type, len(in.Guard), handler)
	}
	return nil
}

func newCompiledProgram(prog *program.Program) CompiledProgram {
	out := CompiledProgram{
		State:   prog.State,
		Intents: make([]CompiledIntent, 0, len(prog.Intents)),
		Files:   prog.Files,
	}
	for _, def := range prog.Intents {
		in := CompiledIntent{Type: def.Type, Lua: def.Lua}
		for _, c := range def.Guard {
			in.Guard = append(in.Guard, CompiledCondition{Path: c.Path, Op: string(c.Op), Value: c.Value})
		}
		for _, s := range def.Steps {
			in.Do = append(in.Do, CompiledStep{
				Op:      string(s.Op),
				Path:    s.Path,
				Value:   s.Value,
				From:    s.From,
				By:      s.By,
				Intent:  s.Intent,
				Effect:  s.Effect,
				Message: s.Message,
			})
		}
		out.Intents = append(out.Intents, in)
	}
	return out
}
