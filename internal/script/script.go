package script

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Script is a compiled Lua chunk. It is safe for concurrent use; each
// run gets its own state.
type Script struct {
	Name  string
	proto *lua.FunctionProto
}

// Compile parses and compiles src. name appears in error messages.
func Compile(name, src string) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, &Error{Script: name, Err: err}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, &Error{Script: name, Err: err}
	}
	return &Script{Name: name, proto: proto}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name, src string) *Script {
	s, err := Compile(name, src)
	if err != nil {
		panic(fmt.Sprintf("script: %v", err))
	}
	return s
}
