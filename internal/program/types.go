package program

import (
	"cuelang.org/go/cue/token"

	"github.com/roach88/intent/internal/value"
)

// Program is a compiled intent program.
type Program struct {
	// State is the initial state. Never nil.
	State value.Object

	// Intents in declaration order.
	Intents []IntentDef

	// Files lists the CUE files the program was loaded from, if any.
	Files []string
}

// Intent returns the definition for typ.
func (p *Program) Intent(typ string) (IntentDef, bool) {
	for _, def := range p.Intents {
		if def.Type == typ {
			return def, true
		}
	}
	return IntentDef{}, false
}

// IntentDef defines how one intent type is guarded and handled.
// Exactly one of Steps and Lua is set, or neither for a no-op handler.
type IntentDef struct {
	Type  string
	Guard []Condition
	Steps []Step
	Lua   string
	Pos   token.Pos
}

// CondOp is a guard comparison.
type CondOp string

const (
	CondEquals    CondOp = "equals"
	CondNotEquals CondOp = "not_equals"
	CondExists    CondOp = "exists"
	CondMin       CondOp = "min"
	CondMax       CondOp = "max"
)

// Condition tests the state value at Path.
type Condition struct {
	Path  string
	Op    CondOp
	Value value.Value // Bool for exists, Int for min and max
	Pos   token.Pos
}

// StepOp names a step.
type StepOp string

const (
	OpSet    StepOp = "set"
	OpIncr   StepOp = "incr"
	OpDelete StepOp = "delete"
	OpEmit   StepOp = "emit"
	OpEffect StepOp = "effect"
	OpFail   StepOp = "fail"
)

// Step is one instruction of a handler. Fields not used by Op are zero.
type Step struct {
	Op StepOp

	// Path is the state path for set, incr, delete and the now and
	// print effects.
	Path string

	// Value is the literal for set, or the payload for emit.
	Value value.Value

	// From is a source reference: "payload", "payload.<path>" or
	// "state.<path>". Used by set and emit instead of Value.
	From string

	// By is the increment for incr.
	By int64

	// Intent is the type emitted by emit.
	Intent string

	// Effect is the effect name for effect.
	Effect string

	// Message is the text for fail, log and print.
	Message string

	Pos token.Pos
}

// Effect names.
const (
	EffectLog   = "log"
	EffectPrint = "print"
	EffectNow   = "now"
)
