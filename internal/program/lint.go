package program

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue/token"

	"github.com/roach88/intent/internal/value"
)

// Warning is a lint finding. Warnings never stop a program from running.
type Warning struct {
	Intent  string
	Message string
	Pos     token.Pos
}

func (w Warning) String() string {
	if w.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", w.Pos.Filename(), w.Pos.Line(), w.Pos.Column(), w.Intent, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Intent, w.Message)
}

// Lint reports likely mistakes in prog:
//
//   - emit steps naming an intent the program does not define
//   - intents that emit themselves with no guard
//   - guards reading a path nothing can ever write
//
// Lua handlers are opaque; when any intent uses Lua the last check is
// skipped.
func Lint(prog *Program) []Warning {
	var warns []Warning

	defined := make(map[string]bool, len(prog.Intents))
	hasLua := false
	for _, def := range prog.Intents {
		defined[def.Type] = true
		hasLua = hasLua || def.Lua != ""
	}

	written := writtenRoots(prog)

	for _, def := range prog.Intents {
		for _, step := range def.Steps {
			if step.Op != OpEmit {
				continue
			}
			if !defined[step.Intent] {
				warns = append(warns, Warning{
					Intent:  def.Type,
					Message: fmt.Sprintf("emits %s, which has no definition", step.Intent),
					Pos:     step.Pos,
				})
			}
			if step.Intent == def.Type && len(def.Guard) == 0 {
				warns = append(warns, Warning{
					Intent:  def.Type,
					Message: "emits itself without a guard",
					Pos:     step.Pos,
				})
			}
		}

		if hasLua {
			continue
		}
		for _, cond := range def.Guard {
			root := firstSegment(cond.Path)
			if written[root] {
				continue
			}
			if cond.Op == CondExists || cond.Op == CondNotEquals {
				continue
			}
			warns = append(warns, Warning{
				Intent:  def.Type,
				Message: fmt.Sprintf("guard reads %s, which no step writes and the initial state lacks", cond.Path),
				Pos:     cond.Pos,
			})
		}
	}

	sort.SliceStable(warns, func(i, j int) bool { return warns[i].Intent < warns[j].Intent })
	return warns
}

// writtenRoots returns the top-level keys present in the initial state or
// written by some step.
func writtenRoots(prog *Program) map[string]bool {
	roots := make(map[string]bool)
	for k := range prog.State {
		roots[k] = true
	}
	for _, def := range prog.Intents {
		for _, step := range def.Steps {
			switch step.Op {
			case OpSet, OpIncr:
				roots[firstSegment(step.Path)] = true
			case OpEffect:
				if step.Effect == EffectNow {
					roots[firstSegment(step.Path)] = true
				}
			}
		}
	}
	return roots
}

func firstSegment(path string) string {
	segs := value.SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}
