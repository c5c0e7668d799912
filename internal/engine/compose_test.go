package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingMiddleware(name string, log *[]string) Middleware {
	return func(ctx context.Context, in Intent, next Next) error {
		*log = append(*log, name+"-before")
		err := next(ctx)
		*log = append(*log, name+"-after")
		return err
	}
}

func TestCompose_OnionOrder(t *testing.T) {
	var log []string
	chain := []Middleware{
		recordingMiddleware("A", &log),
		recordingMiddleware("B", &log),
	}
	terminal := func(context.Context) error {
		log = append(log, "H")
		return nil
	}

	require.NoError(t, Compose(chain, Intent{Type: "X"}, terminal)(context.Background()))
	assert.Equal(t, []string{"A-before", "B-before", "H", "B-after", "A-after"}, log)
}

func TestCompose_EmptyChainRunsTerminal(t *testing.T) {
	called := false
	err := Compose(nil, Intent{Type: "X"}, func(context.Context) error {
		called = true
		return nil
	})(context.Background())

	require.NoError(t, err)
	assert.True(t, called)
}

func TestCompose_ShortCircuit(t *testing.T) {
	var log []string
	block := func(ctx context.Context, in Intent, next Next) error {
		log = append(log, "block")
		return nil
	}
	chain := []Middleware{block, recordingMiddleware("inner", &log)}

	err := Compose(chain, Intent{Type: "X"}, func(context.Context) error {
		log = append(log, "H")
		return nil
	})(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"block"}, log)
}

func TestCompose_NextCalledTwiceRerunsInnerChain(t *testing.T) {
	calls := 0
	twice := func(ctx context.Context, in Intent, next Next) error {
		if err := next(ctx); err != nil {
			return err
		}
		return next(ctx)
	}

	err := Compose([]Middleware{twice}, Intent{Type: "X"}, func(context.Context) error {
		calls++
		return nil
	})(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCompose_ErrorPropagatesThroughMiddleware(t *testing.T) {
	boom := errors.New("boom")
	var log []string

	err := Compose(
		[]Middleware{recordingMiddleware("A", &log)},
		Intent{Type: "X"},
		func(context.Context) error { return boom },
	)(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A-before", "A-after"}, log)
}

func TestCompose_MiddlewareSeesIntent(t *testing.T) {
	var seen Intent
	spy := func(ctx context.Context, in Intent, next Next) error {
		seen = in
		return next(ctx)
	}
	in := Intent{Type: "ADD", Payload: map[string]any{"n": 2}}

	require.NoError(t, Compose([]Middleware{spy}, in, func(context.Context) error { return nil })(context.Background()))
	assert.Equal(t, in, seen)
}

func TestCompose_ContextFlowsInward(t *testing.T) {
	type key struct{}
	wrap := func(ctx context.Context, in Intent, next Next) error {
		return next(context.WithValue(ctx, key{}, "outer"))
	}

	var got any
	err := Compose([]Middleware{wrap}, Intent{Type: "X"}, func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "outer", got)
}

func TestCompose_CopiesChain(t *testing.T) {
	var log []string
	chain := []Middleware{recordingMiddleware("A", &log)}
	pipeline := Compose(chain, Intent{Type: "X"}, func(context.Context) error { return nil })

	chain[0] = recordingMiddleware("Z", &log)

	require.NoError(t, pipeline(context.Background()))
	assert.Equal(t, []string{"A-before", "A-after"}, log)
}

func TestCompose_Reusable(t *testing.T) {
	var log []string
	chain := []Middleware{recordingMiddleware("A", &log)}
	terminal := func(context.Context) error { return nil }

	require.NoError(t, Compose(chain, Intent{Type: "X"}, terminal)(context.Background()))
	first := append([]string(nil), log...)
	log = nil

	require.NoError(t, Compose(chain, Intent{Type: "X"}, terminal)(context.Background()))
	assert.Equal(t, first, log)
}
