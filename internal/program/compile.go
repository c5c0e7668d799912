package program

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/intent/internal/script"
	"github.com/roach88/intent/internal/value"
)

// CompileString compiles a single CUE source. filename is used in error
// positions.
func CompileString(src, filename string) (*Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// Compile turns a CUE value holding state and intent fields into a
// Program. It stops at the first error; CompileAll collects them.
func Compile(v cue.Value) (*Program, error) {
	prog, errs := CompileAll(v)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return prog, nil
}

// CompileAll compiles every intent it can and returns all errors. The
// Program holds whatever compiled cleanly.
func CompileAll(v cue.Value) (*Program, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	prog := &Program{State: value.Object{}}

	st, err := CompileState(v.LookupPath(cue.ParsePath("state")))
	if err != nil {
		errs = append(errs, err)
	} else {
		prog.State = st
	}

	intentsVal := v.LookupPath(cue.ParsePath("intent"))
	if !intentsVal.Exists() {
		return prog, errs
	}
	iter, err := intentsVal.Fields()
	if err != nil {
		return prog, append(errs, &CompileError{Field: "intent", Message: "must be a struct", Pos: intentsVal.Pos()})
	}
	for iter.Next() {
		def, err := CompileIntent(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		prog.Intents = append(prog.Intents, *def)
	}

	return prog, errs
}

// CompileState converts the state field. A missing field yields an empty
// object.
func CompileState(v cue.Value) (value.Object, error) {
	if !v.Exists() {
		return value.Object{}, nil
	}
	sv, err := fromCUE(v)
	if err != nil {
		return nil, err
	}
	obj, ok := sv.(value.Object)
	if !ok {
		return nil, &CompileError{
			Field:   "state",
			Message: fmt.Sprintf("must be a struct, got %s", value.KindOf(sv)),
			Pos:     v.Pos(),
		}
	}
	return obj, nil
}

var intentKeys = []string{"guard", "do", "lua"}

// CompileIntent compiles the definition of one intent type.
func CompileIntent(typ string, v cue.Value) (*IntentDef, error) {
	field := "intent." + typ
	if err := checkKeys(v, field, intentKeys); err != nil {
		return nil, err
	}

	def := &IntentDef{Type: typ, Pos: v.Pos()}

	guardVal := v.LookupPath(cue.ParsePath("guard"))
	if guardVal.Exists() {
		iter, err := guardVal.List()
		if err != nil {
			return nil, &CompileError{Field: field + ".guard", Message: "must be a list", Pos: guardVal.Pos()}
		}
		for iter.Next() {
			cond, err := compileCondition(field+".guard", iter.Value())
			if err != nil {
				return nil, err
			}
			def.Guard = append(def.Guard, cond)
		}
	}

	doVal := v.LookupPath(cue.ParsePath("do"))
	luaVal := v.LookupPath(cue.ParsePath("lua"))
	if doVal.Exists() && luaVal.Exists() {
		return nil, &CompileError{Field: field, Message: "do and lua are mutually exclusive", Pos: v.Pos()}
	}

	if doVal.Exists() {
		iter, err := doVal.List()
		if err != nil {
			return nil, &CompileError{Field: field + ".do", Message: "must be a list", Pos: doVal.Pos()}
		}
		for i := 0; iter.Next(); i++ {
			step, err := compileStep(fmt.Sprintf("%s.do[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			def.Steps = append(def.Steps, step)
		}
	}

	if luaVal.Exists() {
		src, err := luaVal.String()
		if err != nil {
			return nil, &CompileError{Field: field + ".lua", Message: "must be a string", Pos: luaVal.Pos()}
		}
		if _, err := script.Compile(typ, src); err != nil {
			return nil, &CompileError{Field: field + ".lua", Message: err.Error(), Pos: luaVal.Pos()}
		}
		def.Lua = src
	}

	return def, nil
}

var condOps = []CondOp{CondEquals, CondNotEquals, CondExists, CondMin, CondMax}

func compileCondition(field string, v cue.Value) (Condition, error) {
	keys := []string{"path"}
	for _, op := range condOps {
		keys = append(keys, string(op))
	}
	if err := checkKeys(v, field, keys); err != nil {
		return Condition{}, err
	}

	path, err := requireString(v, field, "path")
	if err != nil {
		return Condition{}, err
	}
	cond := Condition{Path: path, Pos: v.Pos()}

	found := 0
	for _, op := range condOps {
		opVal := v.LookupPath(cue.ParsePath(string(op)))
		if !opVal.Exists() {
			continue
		}
		found++
		val, err := fromCUE(opVal)
		if err != nil {
			return Condition{}, err
		}
		switch op {
		case CondExists:
			if _, ok := val.(value.Bool); !ok {
				return Condition{}, &CompileError{Field: field + ".exists", Message: "must be a bool", Pos: opVal.Pos()}
			}
		case CondMin, CondMax:
			if _, ok := val.(value.Int); !ok {
				return Condition{}, &CompileError{Field: field + "." + string(op), Message: "must be an int", Pos: opVal.Pos()}
			}
		}
		cond.Op, cond.Value = op, val
	}
	if found != 1 {
		return Condition{}, &CompileError{
			Field:   field,
			Message: "exactly one of equals, not_equals, exists, min, max is required",
			Pos:     v.Pos(),
		}
	}
	return cond, nil
}

// stepKeys lists the fields each op accepts besides op itself.
var stepKeys = map[StepOp][]string{
	OpSet:    {"path", "value", "from"},
	OpIncr:   {"path", "by"},
	OpDelete: {"path"},
	OpEmit:   {"intent", "payload", "from"},
	OpEffect: {"name", "message", "path"},
	OpFail:   {"message"},
}

func compileStep(field string, v cue.Value) (Step, error) {
	opName, err := requireString(v, field, "op")
	if err != nil {
		return Step{}, err
	}
	op := StepOp(opName)
	keys, ok := stepKeys[op]
	if !ok {
		return Step{}, &CompileError{Field: field + ".op", Message: fmt.Sprintf("unknown op %q", opName), Pos: v.Pos()}
	}
	if err := checkKeys(v, field, append([]string{"op"}, keys...)); err != nil {
		return Step{}, err
	}

	step := Step{Op: op, Pos: v.Pos()}

	switch op {
	case OpSet:
		if step.Path, err = requireString(v, field, "path"); err != nil {
			return Step{}, err
		}
		if step.Value, step.From, err = valueOrFrom(v, field, "value", true); err != nil {
			return Step{}, err
		}

	case OpIncr:
		if step.Path, err = requireString(v, field, "path"); err != nil {
			return Step{}, err
		}
		step.By = 1
		if byVal := v.LookupPath(cue.ParsePath("by")); byVal.Exists() {
			if step.By, err = byVal.Int64(); err != nil {
				return Step{}, &CompileError{Field: field + ".by", Message: "must be an int", Pos: byVal.Pos()}
			}
		}

	case OpDelete:
		if step.Path, err = requireString(v, field, "path"); err != nil {
			return Step{}, err
		}

	case OpEmit:
		if step.Intent, err = requireString(v, field, "intent"); err != nil {
			return Step{}, err
		}
		if step.Value, step.From, err = valueOrFrom(v, field, "payload", false); err != nil {
			return Step{}, err
		}

	case OpEffect:
		if step.Effect, err = requireString(v, field, "name"); err != nil {
			return Step{}, err
		}
		if step.Message, _, err = optionalString(v, field, "message"); err != nil {
			return Step{}, err
		}
		if step.Path, _, err = optionalString(v, field, "path"); err != nil {
			return Step{}, err
		}
		switch step.Effect {
		case EffectNow:
			if step.Path == "" {
				return Step{}, &CompileError{Field: field + ".path", Message: "now requires a path", Pos: v.Pos()}
			}
		case EffectLog, EffectPrint:
			if step.Message == "" && step.Path == "" {
				return Step{}, &CompileError{Field: field, Message: step.Effect + " requires a message or a path", Pos: v.Pos()}
			}
		default:
			return Step{}, &CompileError{Field: field + ".name", Message: fmt.Sprintf("unknown effect %q", step.Effect), Pos: v.Pos()}
		}

	case OpFail:
		if step.Message, err = requireString(v, field, "message"); err != nil {
			return Step{}, err
		}
	}

	return step, nil
}

// valueOrFrom reads either a literal field or a from reference. With
// required set, one of the two must be present.
func valueOrFrom(v cue.Value, field, literal string, required bool) (value.Value, string, error) {
	litVal := v.LookupPath(cue.ParsePath(literal))
	from, hasFrom, err := optionalString(v, field, "from")
	if err != nil {
		return nil, "", err
	}

	switch {
	case litVal.Exists() && hasFrom:
		return nil, "", &CompileError{Field: field, Message: literal + " and from are mutually exclusive", Pos: v.Pos()}
	case litVal.Exists():
		val, err := fromCUE(litVal)
		return val, "", err
	case hasFrom:
		if err := checkFrom(from); err != nil {
			return nil, "", &CompileError{Field: field + ".from", Message: err.Error(), Pos: v.Pos()}
		}
		return nil, from, nil
	case required:
		return nil, "", &CompileError{Field: field, Message: "one of " + literal + " or from is required", Pos: v.Pos()}
	}
	return nil, "", nil
}

func checkFrom(from string) error {
	switch {
	case from == "payload", strings.HasPrefix(from, "payload."):
		return nil
	case strings.HasPrefix(from, "state.") && len(from) > len("state."):
		return nil
	}
	return fmt.Errorf("%q must be payload, payload.<path> or state.<path>", from)
}

func requireString(v cue.Value, field, key string) (string, error) {
	s, ok, err := optionalString(v, field, key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", &CompileError{Field: field + "." + key, Message: key + " is required and must be a non-empty string", Pos: v.Pos()}
	}
	return s, nil
}

// optionalString reads key when present. A present value that is not a
// string is an error.
func optionalString(v cue.Value, field, key string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, &CompileError{Field: field + "." + key, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, true, nil
}

// checkKeys rejects fields outside allowed, catching typos like "pth".
func checkKeys(v cue.Value, field string, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		if !slices.Contains(allowed, iter.Label()) {
			return &CompileError{
				Field:   field + "." + iter.Label(),
				Message: fmt.Sprintf("unknown field (allowed: %s)", strings.Join(allowed, ", ")),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// fromCUE converts a concrete CUE value into the state value model.
// Floats are forbidden.
func fromCUE(v cue.Value) (value.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.IncompleteKind() {
	case cue.FloatKind:
		return nil, &CompileError{Field: "value", Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := value.Array{}
		for iter.Next() {
			elem, err := fromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := value.Object{}
		for iter.Next() {
			elem, err := fromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	}

	if !v.IsConcrete() {
		return nil, &CompileError{Field: "value", Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return value.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.String(s), nil
	case cue.FloatKind:
		return nil, &CompileError{Field: "value", Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: "value", Message: fmt.Sprintf("unsupported kind: %v", v.Kind()), Pos: v.Pos()}
	}
}
