// Package program compiles declarative intent programs written in CUE and
// installs them on an engine.
//
// A program is a directory of CUE files with two top-level fields:
//
//	state: {count: 0}
//
//	intent: INC: {
//		guard: [{path: "count", max: 9}]
//		do: [{op: "incr", path: "count"}]
//	}
//
//	intent: GREET: {
//		lua: """
//			set("greeting", "hello " .. intent.payload.name)
//			"""
//	}
//
// state is the initial state tree. Each entry under intent defines the
// handler for one intent type, either as a list of steps (do) or as a Lua
// chunk (lua), plus an optional guard. Guard conditions read the state
// and must all hold.
//
// Steps:
//
//	set    {path, value} or {path, from: "payload.x" | "state.x"}
//	incr   {path, by?}             absent counts as 0; by defaults to 1
//	delete {path}
//	emit   {intent, payload?} or {intent, from}
//	effect {name: "log" | "print" | "now", message?, path?}
//	fail   {message}
//
// Numbers are integers only. Floats are rejected at compile time.
package program
