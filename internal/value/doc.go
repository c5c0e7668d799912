// Package value provides the tree value used as intent engine state.
//
// State is a sealed union of Null, String, Int, Bool, Array and Object.
// Handlers address it with dot-delimited paths ("cart.items.0.sku") through
// Get and Set. Set never mutates its input: every object and array along the
// written path is copied, so a state value handed out by the store can be
// shared freely as long as callers treat it as immutable.
//
// Design constraints:
//   - No float type. Numbers are int64 so canonical encoding is exact.
//   - Object keys sort by UTF-16 code units (RFC 8785) for deterministic output.
//   - Canonical JSON (MarshalCanonical) is the only encoding used for hashing.
//
// value imports nothing internal; every other package may depend on it.
package value
