package program

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/intent/internal/value"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes shared by every command that loads a program.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeInvalidState  = "E101" // state is not a struct
	ErrCodeInvalidIntent = "E102" // Malformed intent definition
	ErrCodeInvalidGuard  = "E103" // Malformed guard condition
	ErrCodeInvalidType   = "E104" // Float or non-concrete value
	ErrCodeInvalidStep   = "E105" // Malformed step
	ErrCodeInvalidLua    = "E106" // Lua does not compile
)

// LoadError is an error that occurred while loading a program.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads every CUE file in dir as one instance and compiles it.
// With LoadModeCollectAll the returned Program holds the intents that
// compiled; errors are *LoadError.
func Load(dir string, mode LoadMode) (*Program, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing program directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	return compileLoaded(v, files, mode)
}

func compileLoaded(v cue.Value, files []string, mode LoadMode) (*Program, []error) {
	var errs []error
	prog := &Program{State: value.Object{}, Files: files}

	st, err := CompileState(v.LookupPath(cue.ParsePath("state")))
	if err != nil {
		errs = append(errs, convertCompileError(err, "state"))
		if mode == LoadModeFailFast {
			return prog, errs
		}
	} else {
		prog.State = st
	}

	intentsVal := v.LookupPath(cue.ParsePath("intent"))
	if intentsVal.Exists() {
		iter, iterErr := intentsVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidIntent, Message: fmt.Sprintf("iterating intents: %v", iterErr)})
			if mode == LoadModeFailFast {
				return prog, errs
			}
		} else {
			for iter.Next() {
				def, compileErr := CompileIntent(iter.Label(), iter.Value())
				if compileErr != nil {
					errs = append(errs, convertCompileError(compileErr, "intent."+iter.Label()))
					if mode == LoadModeFailFast {
						return prog, errs
					}
					continue
				}
				prog.Intents = append(prog.Intents, *def)
			}
		}
	}

	if len(prog.Intents) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no intents found in program"})
	}

	return prog, errs
}

// FindCUEFiles walks dir and returns all .cue file paths in sorted order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compile error into a LoadError with
// position info.
func convertCompileError(err error, context string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    MapFieldToErrorCode(ce.Field),
			Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a CompileError field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "value":
		return ErrCodeInvalidType
	case field == "state":
		return ErrCodeInvalidState
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasSuffix(field, ".lua"):
		return ErrCodeInvalidLua
	case strings.HasSuffix(field, ".guard"), strings.Contains(field, ".guard."):
		return ErrCodeInvalidGuard
	case strings.HasSuffix(field, ".do"), strings.Contains(field, ".do["):
		return ErrCodeInvalidStep
	case strings.HasPrefix(field, "intent"):
		return ErrCodeInvalidIntent
	default:
		return ErrCodeGeneric
	}
}
