package script

import (
	"errors"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/value"
)

// Handler returns an engine handler that runs s. logger receives log()
// calls; nil means slog.Default.
func Handler[E any](s *Script, logger *slog.Logger) engine.Handler[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(in engine.Intent, c *engine.Context[E]) error {
		return Run(s, in, c, logger)
	}
}

// Run executes s once for in.
//
// Errors returned by set, delete and emit keep their identity: the
// returned *Error unwraps to them.
func Run[E any](s *Script, in engine.Intent, c *engine.Context[E], logger *slog.Logger) error {
	payload, err := value.FromGo(in.Payload)
	if err != nil {
		return &Error{Script: s.Name, Err: err}
	}

	L := newState()
	defer L.Close()
	L.SetContext(c.Context())

	r := &runner[E]{c: c, logger: logger}
	r.install(L, in, payload)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		if r.hostErr != nil && raisedBy(err, r.hostErr) {
			return &Error{Script: s.Name, Err: r.hostErr}
		}
		if ctxErr := c.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Script: s.Name, Err: err}
	}
	return nil
}

// raisedBy reports whether the Lua error that ended the script is the one
// fail raised for hostErr. A script may catch a host error with pcall and
// go on to raise its own.
func raisedBy(err, hostErr error) bool {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg, ok := apiErr.Object.(lua.LString)
	return ok && strings.HasSuffix(string(msg), hostErr.Error())
}

// runner binds the Lua globals to one dispatch.
type runner[E any] struct {
	c       *engine.Context[E]
	logger  *slog.Logger
	hostErr error
}

func (r *runner[E]) install(L *lua.LState, in engine.Intent, payload value.Value) {
	it := L.NewTable()
	it.RawSetString("type", lua.LString(in.Type))
	if in.Payload != nil {
		it.RawSetString("payload", toLua(L, payload))
	}
	L.SetGlobal("intent", it)
	L.SetGlobal("dispatch_id", lua.LString(r.c.DispatchID()))

	L.SetGlobal("get", L.NewFunction(r.get))
	L.SetGlobal("set", L.NewFunction(r.set))
	L.SetGlobal("delete", L.NewFunction(r.del))
	L.SetGlobal("emit", L.NewFunction(r.emit))
	L.SetGlobal("log", L.NewFunction(r.log))
}

// fail records err and raises it in Lua. It does not return. Only the most
// recent host error is kept.
func (r *runner[E]) fail(L *lua.LState, err error) {
	r.hostErr = err
	L.RaiseError("%s", err.Error())
}

func (r *runner[E]) get(L *lua.LState) int {
	path := L.CheckString(1)
	v, ok := r.c.Lookup(path)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, v))
	return 1
}

func (r *runner[E]) set(L *lua.LState) int {
	path := L.CheckString(1)
	v, err := fromLua(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	if err := r.c.Set(path, v); err != nil {
		r.fail(L, err)
	}
	return 0
}

func (r *runner[E]) del(L *lua.LState) int {
	path := L.CheckString(1)
	removed, err := r.c.Delete(path)
	if err != nil {
		r.fail(L, err)
		return 0
	}
	L.Push(lua.LBool(removed))
	return 1
}

func (r *runner[E]) emit(L *lua.LState) int {
	in := engine.Intent{Type: L.CheckString(1)}
	if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		p, err := fromLua(L.Get(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		in.Payload = p
	}
	if err := r.c.Emit(in); err != nil {
		r.fail(L, err)
	}
	return 0
}

func (r *runner[E]) log(L *lua.LState) int {
	msg := L.CheckString(1)
	args := []any{"dispatch_id", r.c.DispatchID()}
	for i := 2; i+1 <= L.GetTop(); i += 2 {
		key := L.CheckString(i)
		v, err := fromLua(L.Get(i + 1))
		if err != nil {
			L.ArgError(i+1, err.Error())
			return 0
		}
		args = append(args, key, value.ToGo(v))
	}
	r.logger.Info(msg, args...)
	return 0
}
