package program

import (
	"bytes"
	"log/slog"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/testutil"
)

func mustValue(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename("test.cue"))
	require.NoError(t, v.Err())
	return v
}

// newTestEngine compiles src and returns an engine running it with a
// fixed clock and captured print output.
func newTestEngine(t *testing.T, src string, opts ...engine.Option) (*engine.Engine[Effects], *bytes.Buffer) {
	t.Helper()
	prog, err := CompileString(src, "test.cue")
	require.NoError(t, err)

	var out bytes.Buffer
	fx := Effects{
		Logger: testutil.DiscardLogger(),
		Out:    &out,
		Now:    func() int64 { return 1700000000000 },
	}
	base := []engine.Option{
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("d")),
	}
	eng, err := NewEngine(prog, fx, append(base, opts...)...)
	require.NoError(t, err)
	return eng, &out
}

func discard() *slog.Logger {
	return testutil.DiscardLogger()
}
