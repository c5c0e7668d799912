// Package testutil holds deterministic stand-ins for the engine's clock
// and ID sources, plus small helpers shared by tests.
//
// With a DeterministicClock and SequentialIDs, running the same scenario
// twice yields byte-identical traces.
package testutil
