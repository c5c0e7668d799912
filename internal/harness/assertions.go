package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s%s %s", ev.Seq, strings.Repeat("  ", ev.Depth), ev.Intent, ev.Kind)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertState:
		return assertState(result.State, a)
	case AssertStatus:
		return assertStatus(result, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		kind := engine.EventPending
		if a.Kind != "" {
			kind = engine.EventKind(a.Kind)
		}
		return assertCount(result.Trace, a, kind)
	case AssertRejected:
		return assertCount(result.Trace, a, engine.EventRejected)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertState compares the value at a.Path.
func assertState(st value.Object, a Assertion) error {
	got, present := value.Get(st, a.Path)

	if a.Absent {
		if present {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s absent", a.Path),
				Actual:   render(got),
			}
		}
		return nil
	}

	var raw any
	if err := a.Equals.Decode(&raw); err != nil {
		return fmt.Errorf("decode equals: %w", err)
	}
	want, err := value.FromGo(raw)
	if err != nil {
		return fmt.Errorf("equals: %w", err)
	}

	if !present {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %s", a.Path, render(want)),
			Actual:   "absent",
		}
	}
	if !value.Equal(got, want) {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %s", a.Path, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

func assertStatus(result *Result, a Assertion) error {
	got, ok := result.Statuses[a.Intent]
	if !ok {
		got = engine.StatusIdle
	}
	if got != engine.Status(a.Status) {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s is %s", a.Intent, a.Status),
			Actual:   string(got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceContains looks for a dispatch of a.Intent whose payload
// contains a.Payload.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	want, err := value.FromGo(a.Payload)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	for _, ev := range trace {
		if ev.Kind != engine.EventPending || ev.Intent != a.Intent {
			continue
		}
		if a.Payload == nil || matchSubset(ev.Payload, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with payload %s", a.Intent, render(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that intents were first dispatched in the
// given order. Other dispatches may come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Kind != engine.EventPending {
			continue
		}
		if _, seen := positions[ev.Intent]; !seen {
			positions[ev.Intent] = i + 1
		}
	}

	for _, typ := range a.Intents {
		if positions[typ] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all intents dispatched: %v", a.Intents),
				Actual:   fmt.Sprintf("missing intent: %s", typ),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Intents); i++ {
		prev, curr := a.Intents[i-1], a.Intents[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("intents in order: %v", a.Intents),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertCount(trace []TraceEvent, a Assertion, kind engine.EventKind) error {
	count := 0
	for _, ev := range trace {
		if ev.Kind == kind && ev.Intent == a.Intent {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s events for %s", a.Count, kind, a.Intent),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchSubset reports whether every key of want appears in got with an
// equal value. Nested objects match recursively; other values match
// exactly.
func matchSubset(got, want value.Value) bool {
	wantObj, ok := want.(value.Object)
	if !ok {
		return value.Equal(got, want)
	}
	gotObj, ok := got.(value.Object)
	if !ok {
		return false
	}
	for k, wv := range wantObj {
		gv, ok := gotObj[k]
		if !ok || !matchSubset(gv, wv) {
			return false
		}
	}
	return true
}

func render(v value.Value) string {
	if v == nil {
		return "absent"
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
