package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/intent/internal/engine"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the program directory. LoadScenario resolves it
	// relative to the scenario file.
	Program string `yaml:"program"`

	// State replaces top-level keys of the program's initial state.
	State map[string]any `yaml:"state,omitempty"`

	// MaxDepth sets engine.WithMaxDepth. Zero means unlimited.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// Strict fails emissions of intents without a handler.
	Strict bool `yaml:"strict,omitempty"`

	// Steps are emitted in order at top level.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step emits one intent.
type Step struct {
	Emit    string  `yaml:"emit"`
	Payload any     `yaml:"payload,omitempty"`
	Expect  *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of one step.
type Expect struct {
	// Status is success, error or rejected.
	Status string `yaml:"status"`

	// Error must appear in the returned error's message.
	Error string `yaml:"error,omitempty"`
}

// Step outcomes. The first two match engine.StatusSuccess and
// engine.StatusError.
const (
	OutcomeSuccess  = string(engine.StatusSuccess)
	OutcomeError    = string(engine.StatusError)
	OutcomeRejected = string(engine.EventRejected)
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Path is the state path (state).
	Path string `yaml:"path,omitempty"`

	// Equals is the expected value (state). A zero node means no value
	// was given; an explicit null expects null.
	Equals yaml.Node `yaml:"equals,omitempty"`

	// Absent expects Path to be missing (state).
	Absent bool `yaml:"absent,omitempty"`

	// Intent is the intent type (status, trace_contains, trace_count,
	// rejected).
	Intent string `yaml:"intent,omitempty"`

	// Status is the expected status (status).
	Status string `yaml:"status,omitempty"`

	// Payload is matched as a subset (trace_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Intents is the expected dispatch order (trace_order).
	Intents []string `yaml:"intents,omitempty"`

	// Count is the expected number of events (trace_count, rejected).
	Count int `yaml:"count,omitempty"`

	// Kind selects the event kind counted by trace_count. Defaults to
	// pending, i.e. dispatches that passed their guard.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertState         = "state"
	AssertStatus        = "status"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRejected      = "rejected"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// program path relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative program path is joined
// to baseDir when baseDir is not empty.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && baseDir != "" {
		scenario.Program = filepath.Join(baseDir, scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program directory not found: %s", s.Program)
	}
	if s.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Emit == "" {
			return fmt.Errorf("steps[%d]: emit is required", i)
		}
		if step.Expect == nil {
			continue
		}
		switch step.Expect.Status {
		case OutcomeSuccess, OutcomeError, OutcomeRejected:
		case "":
			return fmt.Errorf("steps[%d].expect: status is required", i)
		default:
			return fmt.Errorf("steps[%d].expect: unknown status %q", i, step.Expect.Status)
		}
		if step.Expect.Error != "" && step.Expect.Status != OutcomeError {
			return fmt.Errorf("steps[%d].expect: error requires status error", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for state", index)
		}
		hasEquals := a.Equals.Kind != 0
		if hasEquals == a.Absent {
			return fmt.Errorf("assertions[%d]: state needs exactly one of equals or absent", index)
		}
	case AssertStatus:
		if a.Intent == "" {
			return fmt.Errorf("assertions[%d]: intent is required for status", index)
		}
		if !engine.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertTraceContains:
		if a.Intent == "" {
			return fmt.Errorf("assertions[%d]: intent is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Intents) == 0 {
			return fmt.Errorf("assertions[%d]: intents list is required for trace_order", index)
		}
	case AssertTraceCount, AssertRejected:
		if a.Intent == "" {
			return fmt.Errorf("assertions[%d]: intent is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		if a.Type == AssertTraceCount && a.Kind != "" {
			switch engine.EventKind(a.Kind) {
			case engine.EventRejected, engine.EventPending, engine.EventSuccess, engine.EventError:
			default:
				return fmt.Errorf("assertions[%d]: unknown kind %q", index, a.Kind)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
