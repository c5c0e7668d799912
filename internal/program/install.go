package program

import (
	"fmt"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/script"
)

// NewEngine builds an engine seeded with prog's initial state and
// installs every intent of prog on it.
func NewEngine(prog *Program, fx Effects, opts ...engine.Option) (*engine.Engine[Effects], error) {
	eng := engine.New(prog.State, fx, opts...)
	if err := Install(eng, prog); err != nil {
		return nil, err
	}
	return eng, nil
}

// Install registers a handler and guard for every intent of prog,
// replacing existing registrations for the same types.
func Install(eng *engine.Engine[Effects], prog *Program) error {
	for _, def := range prog.Intents {
		h, err := def.handler(eng.Effects())
		if err != nil {
			return err
		}
		eng.On(def.Type, h)
		eng.Guard(def.Type, GuardFunc(def.Guard))
	}
	return nil
}

func (def IntentDef) handler(fx Effects) (engine.Handler[Effects], error) {
	if def.Lua == "" {
		return StepsHandler(def), nil
	}
	s, err := script.Compile(def.Type, def.Lua)
	if err != nil {
		return nil, fmt.Errorf("intent %s: %w", def.Type, err)
	}
	return script.Handler[Effects](s, fx.Logger), nil
}
