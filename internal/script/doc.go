// Package script runs intent handlers written in Lua.
//
// A script is compiled once and run in a fresh sandboxed state per
// dispatch. Only the base, table, string and math libraries are open;
// dofile, loadfile, load, loadstring and require are removed.
//
// The chunk sees these globals:
//
//	intent        table with type and payload
//	dispatch_id   ID of the running dispatch
//	get(path)     state value at path, or nil
//	set(path, v)  write v at path
//	delete(path)  remove path, returns whether it existed
//	emit(type, payload?)  dispatch a nested intent and wait for it
//	log(msg, ...) log at info with key/value pairs
//
// Numbers cross the boundary as integers. A fractional number passed to
// set or emit raises an error. Calling error() fails the dispatch.
package script
