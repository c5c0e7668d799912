// Package harness runs conformance scenarios against intent programs.
//
// A scenario loads a program, emits a list of intents against a fresh
// engine and checks the outcome of each emission, the final state and the
// recorded trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_caps_at_three
//	description: "INC stops counting once the guard refuses it"
//	program: ../programs/counter
//	state:
//	  count: 1
//	steps:
//	  - emit: INC
//	  - emit: SET_NAME
//	    payload: { name: ada }
//	    expect:
//	      status: success
//	  - emit: BREAK
//	    expect:
//	      status: error
//	      error: "broken"
//	assertions:
//	  - type: state
//	    path: count
//	    equals: 3
//	  - type: status
//	    intent: INC
//	    status: success
//	  - type: trace_order
//	    intents: [INC, LOGGED]
//	  - type: trace_count
//	    intent: INC
//	    count: 2
//	  - type: rejected
//	    intent: INC
//	    count: 1
//
// program is resolved relative to the scenario file. state replaces
// top-level keys of the program's initial state.
//
// # Assertion Types
//
//   - state: the value at path equals the expected value, or is absent
//     with absent: true
//   - status: the last status of an intent type
//   - trace_contains: a dispatch of the intent with a payload matching
//     the given subset
//   - trace_order: intents were first dispatched in this order
//   - trace_count: an intent was dispatched exactly count times; kind
//     selects another event kind
//   - rejected: a guard refused an intent exactly count times
//
// # Deterministic Testing
//
// Every run uses a fresh engine with a deterministic logical clock
// (testutil.DeterministicClock), sequential dispatch IDs
// (testutil.SequentialIDs) and a logical "now" effect, so traces are
// byte-identical across runs and can be compared against golden files.
package harness
