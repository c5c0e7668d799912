package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/intent/internal/program"
)

// loadProgram loads dir fail-fast. A load failure is reported through f
// and returned as an ExitCommandError.
func loadProgram(f *OutputFormatter, dir string) (*program.Program, error) {
	prog, errs := program.Load(dir, program.LoadModeFailFast)
	if len(errs) > 0 {
		code, msg := describeLoadError(errs[0])
		_ = f.Error(code, msg, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, msg))
	}
	f.VerboseLog("Loaded %d intent(s) from %d CUE file(s) in %s", len(prog.Intents), len(prog.Files), dir)
	return prog, nil
}

// describeLoadError returns the error code and a message carrying the
// source position, if any.
func describeLoadError(err error) (code, message string) {
	var le *program.LoadError
	if !errors.As(err, &le) {
		return program.ErrCodeGeneric, err.Error()
	}
	if le.Pos.IsValid() {
		return le.Code, fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
	}
	return le.Code, le.Message
}
