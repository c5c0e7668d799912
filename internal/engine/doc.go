// Package engine implements the intent dispatch engine.
//
// An intent is a named request to change state or trigger a side effect.
// Callers emit intents; the engine routes each one through an optional
// guard, the global middleware pipeline and the handler registered for the
// intent's type, while tracking one status per intent type.
//
// DISPATCH ORDER:
//
//  1. Depth check (only when WithMaxDepth is set).
//  2. Guard for the type, if any. A false guard abandons the dispatch:
//     no status change, no handler, Emit returns nil.
//  3. Status moves to pending.
//  4. Middleware runs in registration order, outermost first, around a
//     terminal step that looks up the handler at call time.
//  5. Status moves to success or error. Errors are returned unchanged.
//
// STATE:
//
// Engine state is a value.Object held in a state.Store. Handlers read and
// write it through their Context using dot paths. The same store is
// exposed to callers via Engine.Store for direct reads and subscriptions.
//
// Handlers may emit further intents through Context.Emit. Nested
// dispatches record the emitting dispatch as their parent; the engine
// imposes no depth limit unless WithMaxDepth is given.
package engine
