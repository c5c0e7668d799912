package program

import (
	"fmt"
	"strings"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/value"
)

// StepsHandler returns a handler that runs def.Steps in order. The first
// failing step stops the handler; writes made by earlier steps stay.
func StepsHandler(def IntentDef) engine.Handler[Effects] {
	steps := def.Steps
	return func(in engine.Intent, c *engine.Context[Effects]) error {
		payload, err := value.FromGo(in.Payload)
		if err != nil {
			return fmt.Errorf("%s: payload: %w", in.Type, err)
		}
		for i, step := range steps {
			if err := runStep(step, in.Type, payload, c); err != nil {
				return &StepError{Intent: in.Type, Index: i, Op: step.Op, Err: err}
			}
		}
		return nil
	}
}

func runStep(step Step, typ string, payload value.Value, c *engine.Context[Effects]) error {
	switch step.Op {
	case OpSet:
		v := step.Value
		if step.From != "" {
			var err error
			if v, err = resolveFrom(step.From, payload, c.State()); err != nil {
				return err
			}
		}
		return c.Set(step.Path, v)

	case OpIncr:
		return c.Update(func(prev value.Object) (value.Object, error) {
			var n int64
			if cur, ok := value.Get(prev, step.Path); ok {
				i, isInt := value.AsInt(cur)
				if !isInt {
					return nil, fmt.Errorf("incr %q: value is %s, not int", step.Path, value.KindOf(cur))
				}
				n = i
			}
			return value.Set(prev, step.Path, value.Int(n+step.By))
		})

	case OpDelete:
		_, err := c.Delete(step.Path)
		return err

	case OpEmit:
		var p value.Value
		switch {
		case step.From != "":
			var err error
			if p, err = resolveFrom(step.From, payload, c.State()); err != nil {
				return err
			}
		case step.Value != nil:
			p = step.Value
		}
		in := engine.Intent{Type: step.Intent}
		if p != nil {
			in.Payload = p
		}
		return c.Emit(in)

	case OpEffect:
		return runEffect(step, c)

	case OpFail:
		return &FailError{Intent: typ, Message: step.Message}
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func runEffect(step Step, c *engine.Context[Effects]) error {
	fx := c.Effects()
	switch step.Effect {
	case EffectNow:
		if fx.Now == nil {
			return fmt.Errorf("effect now: no clock configured")
		}
		return c.Set(step.Path, value.Int(fx.Now()))

	case EffectLog:
		if fx.Logger == nil {
			return nil
		}
		args := []any{"dispatch_id", c.DispatchID()}
		if step.Path != "" {
			args = append(args, "path", step.Path, "value", value.ToGo(c.Get(step.Path)))
		}
		fx.Logger.Info(step.Message, args...)
		return nil

	case EffectPrint:
		if fx.Out == nil {
			return nil
		}
		line, err := printLine(step, c)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(fx.Out, line)
		return err
	}
	return fmt.Errorf("unknown effect %q", step.Effect)
}

func printLine(step Step, c *engine.Context[Effects]) (string, error) {
	if step.Path == "" {
		return step.Message, nil
	}
	v := c.Get(step.Path)
	rendered := "<absent>"
	if v != nil {
		data, err := value.Marshal(v)
		if err != nil {
			return "", err
		}
		rendered = string(data)
	}
	if step.Message == "" {
		return rendered, nil
	}
	return step.Message + " " + rendered, nil
}

// resolveFrom reads a source reference. An absent source is an error so
// a typo in a program does not silently write null.
func resolveFrom(from string, payload value.Value, st value.Object) (value.Value, error) {
	var (
		root value.Value
		path string
	)
	switch {
	case from == "payload":
		if payload == nil {
			return nil, fmt.Errorf("from %q: no payload", from)
		}
		return payload, nil
	case strings.HasPrefix(from, "payload."):
		root, path = payload, strings.TrimPrefix(from, "payload.")
	case strings.HasPrefix(from, "state."):
		root, path = st, strings.TrimPrefix(from, "state.")
	default:
		return nil, fmt.Errorf("from %q: unknown source", from)
	}
	if root == nil {
		return nil, fmt.Errorf("from %q: not found", from)
	}
	v, ok := value.Get(root, path)
	if !ok {
		return nil, fmt.Errorf("from %q: not found", from)
	}
	return v, nil
}

// GuardFunc returns a guard that holds when every condition holds.
// A nil result means the intent is unguarded.
func GuardFunc(conds []Condition) engine.Guard[Effects] {
	if len(conds) == 0 {
		return nil
	}
	return func(c *engine.Context[Effects]) bool {
		st := c.State()
		for _, cond := range conds {
			if !cond.Holds(st) {
				return false
			}
		}
		return true
	}
}

// Holds evaluates the condition against st.
func (cond Condition) Holds(st value.Object) bool {
	cur, present := value.Get(st, cond.Path)
	switch cond.Op {
	case CondEquals:
		return present && value.Equal(cur, cond.Value)
	case CondNotEquals:
		return !present || !value.Equal(cur, cond.Value)
	case CondExists:
		want, _ := value.AsBool(cond.Value)
		return present == want
	case CondMin, CondMax:
		n, ok := value.AsInt(cur)
		if !ok {
			return false
		}
		bound, _ := value.AsInt(cond.Value)
		if cond.Op == CondMin {
			return n >= bound
		}
		return n <= bound
	}
	return false
}
