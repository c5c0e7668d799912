package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const counterProgram = `
package counter

state: count: 0

intent: INC: {
	guard: [{path: "count", max: 2}]
	do: [
		{op: "incr", path: "count"},
		{op: "emit", intent: "LOGGED", from: "state.count"},
	]
}

intent: LOGGED: {
	do: [{op: "set", path: "last", from: "payload"}]
}

intent: NAME: {
	do: [
		{op: "set", path: "name", from: "payload.name"},
		{op: "effect", name: "print", message: "hello", path: "name"},
	]
}

intent: BREAK: {
	do: [{op: "fail", message: "broken on purpose"}]
}

intent: LOOP: {
	do: [{op: "emit", intent: "LOOP"}]
}
`

const counterScenario = `
name: counter
description: "INC counts to three and is refused after that"
program: ../program
steps:
  - emit: INC
  - emit: INC
  - emit: INC
  - emit: INC
    expect:
      status: rejected
assertions:
  - type: state
    path: count
    equals: 3
  - type: trace_order
    intents: [INC, LOGGED]
`

const failingScenario = `
name: failing
description: "asserts a count the program never reaches"
program: ../program
steps:
  - emit: INC
assertions:
  - type: state
    path: count
    equals: 5
`

// writeFile writes content to dir/name, creating dir.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// counterDir writes the counter program to a temp dir and returns the
// program directory.
func counterDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "program")
	writeFile(t, dir, "counter.cue", counterProgram)
	return dir
}

// workspace returns a temp dir holding program/ and scenarios/ with the
// given scenario files.
func workspace(t *testing.T, scenarios map[string]string) (root, scenariosDir string) {
	t.Helper()
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "program"), "counter.cue", counterProgram)
	scenariosDir = filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(scenariosDir, 0o755))
	for name, content := range scenarios {
		writeFile(t, scenariosDir, name, content)
	}
	return root, scenariosDir
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
