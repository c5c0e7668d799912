package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/intent/internal/value"
)

// GoldenDir is where RunWithGolden keeps its fixtures, relative to the
// test's package directory.
const GoldenDir = "testdata/golden"

// Snapshot renders the parts of a run that must be reproducible as
// canonical JSON: the trace and the final state.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":         ev.Seq,
			"kind":        string(ev.Kind),
			"intent":      ev.Intent,
			"dispatch_id": ev.DispatchID,
			"depth":       ev.Depth,
		}
		if ev.ParentID != "" {
			m["parent_id"] = ev.ParentID
		}
		if ev.From != "" {
			m["from"] = string(ev.From)
		}
		if ev.To != "" {
			m["to"] = string(ev.To)
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.Payload != nil {
			m["payload"] = ev.Payload
		}
		trace[i] = m
	}

	state := result.State
	if state == nil {
		state = value.Object{}
	}

	return value.MarshalCanonical(map[string]any{
		"scenario": name,
		"trace":    trace,
		"state":    state,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// GoldenPath returns the golden file for a scenario loaded from
// scenariosDir.
func GoldenPath(scenariosDir, name string) string {
	return filepath.Join(scenariosDir, "golden", name+".golden")
}

// CompareGolden checks result against the golden file at path. A missing
// file reports ok with found false.
func CompareGolden(path, name string, result *Result) (ok, found bool, err error) {
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return true, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("read golden file: %w", err)
	}
	got, err := Snapshot(name, result)
	if err != nil {
		return false, true, err
	}
	return bytes.Equal(want, got), true, nil
}

// UpdateGolden writes result's snapshot to path.
func UpdateGolden(path, name string, result *Result) error {
	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
