package script

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/intent/internal/value"
)

// toLua converts a state value into a Lua value. Null and absent both
// become nil.
func toLua(L *lua.LState, v value.Value) lua.LValue {
	switch val := v.(type) {
	case value.String:
		return lua.LString(val)
	case value.Int:
		return lua.LNumber(val)
	case value.Bool:
		return lua.LBool(val)
	case value.Array:
		t := L.CreateTable(len(val), 0)
		for i, elem := range val {
			t.RawSetInt(i+1, toLua(L, elem))
		}
		return t
	case value.Object:
		t := L.CreateTable(0, len(val))
		for _, k := range val.SortedKeys() {
			t.RawSetString(k, toLua(L, val[k]))
		}
		return t
	default:
		return lua.LNil
	}
}

// fromLua converts a Lua value into a state value. Tables with keys
// 1..n become arrays; any other table becomes an object. The empty table
// is an object.
func fromLua(lv lua.LValue) (value.Value, error) {
	return fromLuaVisited(lv, map[*lua.LTable]bool{})
}

func fromLuaVisited(lv lua.LValue, visited map[*lua.LTable]bool) (value.Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.Null{}, nil
	case lua.LBool:
		return value.Bool(v), nil
	case lua.LString:
		return value.String(v), nil
	case lua.LNumber:
		return intFromNumber(v)
	case *lua.LTable:
		if visited[v] {
			return nil, fmt.Errorf("table contains a cycle")
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToValue(v, visited)
	default:
		return nil, fmt.Errorf("cannot convert %s", lv.Type())
	}
}

func intFromNumber(n lua.LNumber) (value.Value, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("number %v is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("number %v is out of int64 range", f)
	}
	return value.Int(int64(f)), nil
}

func tableToValue(t *lua.LTable, visited map[*lua.LTable]bool) (value.Value, error) {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && count == n {
		arr := make(value.Array, n)
		for i := 1; i <= n; i++ {
			elem, err := fromLuaVisited(t.RawGetInt(i), visited)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i-1] = elem
		}
		return arr, nil
	}

	obj := value.Object{}
	var firstErr error
	t.ForEach(func(k, v lua.LValue) {
		if firstErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'f', -1, 64)
		default:
			firstErr = fmt.Errorf("unsupported key type %s", k.Type())
			return
		}
		elem, err := fromLuaVisited(v, visited)
		if err != nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
			return
		}
		obj[key] = elem
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return obj, nil
}
