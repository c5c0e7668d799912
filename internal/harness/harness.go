package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/program"
	"github.com/roach88/intent/internal/testutil"
	"github.com/roach88/intent/internal/value"
)

// Harness runs one scenario against a fresh engine.
type Harness struct {
	eng      *engine.Engine[program.Effects]
	recorder *recorder
	out      *bytes.Buffer
}

// recorder is the engine observer that builds the trace.
type recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *recorder) Observe(_ context.Context, ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) since(n int) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Event(nil), r.events[n:]...)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Load and compile the program
// 2. Build an engine with deterministic clock, IDs and effects
// 3. Emit each step and check its expectation
// 4. Evaluate assertions against the trace and final state
//
// A failed expectation or assertion is reported in Result; the returned
// error is reserved for scenarios that cannot run.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := New(scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	h.collect(result)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// New builds a harness for scenario without running it.
func New(scenario *Scenario) (*Harness, error) {
	prog, errs := program.Load(scenario.Program, program.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load program %s: %w", scenario.Program, errs[0])
	}

	initial := prog.State
	if len(scenario.State) > 0 {
		initial = initial.Clone()
		for k, v := range scenario.State {
			val, err := value.FromGo(v)
			if err != nil {
				return nil, fmt.Errorf("state.%s: %w", k, err)
			}
			initial[k] = val
		}
	}
	prog.State = initial

	logger := testutil.DiscardLogger()
	now := testutil.NewDeterministicClock()
	out := &bytes.Buffer{}
	fx := program.Effects{Logger: logger, Out: out, Now: now.Next}

	rec := &recorder{}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs("dispatch")),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithObserver(rec),
		engine.WithMaxDepth(scenario.MaxDepth),
	}
	if scenario.Strict {
		opts = append(opts, engine.WithMissingHandlerPolicy(engine.MissingHandlerError))
	}

	eng, err := program.NewEngine(prog, fx, opts...)
	if err != nil {
		return nil, fmt.Errorf("install program: %w", err)
	}

	return &Harness{eng: eng, recorder: rec, out: out}, nil
}

// Engine returns the engine under test.
func (h *Harness) Engine() *engine.Engine[program.Effects] {
	return h.eng
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	in := engine.Intent{Type: step.Emit}
	if step.Payload != nil {
		p, err := value.FromGo(step.Payload)
		if err != nil {
			return fmt.Errorf("steps[%d]: payload: %w", i, err)
		}
		in.Payload = p
	}

	mark := h.recorder.len()
	err := h.eng.Emit(ctx, in)
	outcome := stepOutcome(h.recorder.since(mark), err)

	if step.Expect == nil {
		return nil
	}
	if outcome != step.Expect.Status {
		msg := fmt.Sprintf("steps[%d] %s: expected %s, got %s", i, step.Emit, step.Expect.Status, outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
		return nil
	}
	if step.Expect.Error != "" && !strings.Contains(err.Error(), step.Expect.Error) {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q",
			i, step.Emit, step.Expect.Error, err.Error()))
	}
	return nil
}

// stepOutcome classifies a top-level emission from the events it
// produced.
func stepOutcome(events []engine.Event, err error) string {
	for _, ev := range events {
		if ev.Depth == 0 && ev.Kind == engine.EventRejected {
			return OutcomeRejected
		}
	}
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

func (h *Harness) collect(result *Result) {
	for _, ev := range h.recorder.since(0) {
		result.Trace = append(result.Trace, traceEvent(ev))
	}
	result.State = h.eng.Store().GetState()
	result.Statuses = h.eng.Statuses()
	result.Output = h.out.String()
}
