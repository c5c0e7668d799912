package script

import (
	lua "github.com/yuin/gopher-lua"
)

// removedGlobals can load code from outside the compiled chunk.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// newState returns a state with only the safe libraries open.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       256,
		IncludeGoStackTrace: false,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
