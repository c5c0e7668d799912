package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intent/internal/state"
	"github.com/roach88/intent/internal/value"
)

func newContextOver(initial value.Object, emit EmitFunc) (*Context[testEffects], *state.Store[value.Object]) {
	store := state.New(initial)
	return NewContext(context.Background(), store, testEffects{Greeting: "yo"}, emit, "d-1"), store
}

func TestContext_GetMissingIsNil(t *testing.T) {
	c, _ := newContextOver(value.Object{"user": value.Object{}}, nil)

	assert.Nil(t, c.Get("user.name"))
	assert.Nil(t, c.Get("a.b.c"))

	_, ok := c.Lookup("user.name")
	assert.False(t, ok)

	v, ok := c.Lookup("user")
	assert.True(t, ok)
	assert.Equal(t, value.Object{}, v)
}

func TestContext_SetCreatesIntermediates(t *testing.T) {
	c, store := newContextOver(value.Object{}, nil)

	require.NoError(t, c.Set("user.profile.name", "ada"))
	assert.Equal(t, value.String("ada"), c.Get("user.profile.name"))
	assert.Equal(t, c.State(), store.GetState())
}

func TestContext_SetLeavesOtherFields(t *testing.T) {
	c, store := newContextOver(value.Object{
		"count": value.Int(1),
		"user":  value.Object{"name": value.String("ada")},
	}, nil)

	require.NoError(t, c.Set("user.age", 36))

	assert.Equal(t, value.Object{
		"count": value.Int(1),
		"user": value.Object{
			"name": value.String("ada"),
			"age":  value.Int(36),
		},
	}, store.GetState())
}

func TestContext_SetNotifiesSubscribers(t *testing.T) {
	c, store := newContextOver(value.Object{}, nil)
	calls := 0
	store.Subscribe(func() { calls++ })

	require.NoError(t, c.Set("a", 1))
	require.NoError(t, c.Set("b", 2))
	assert.Equal(t, 2, calls)
}

func TestContext_SetErrors(t *testing.T) {
	c, store := newContextOver(value.Object{"count": value.Int(1)}, nil)
	calls := 0
	store.Subscribe(func() { calls++ })

	err := c.Set("count.inner", 2)
	assert.True(t, value.IsPathError(err))

	err = c.Set("ratio", 0.5)
	assert.ErrorIs(t, err, value.ErrFloat)

	assert.Zero(t, calls)
	assert.Equal(t, value.Object{"count": value.Int(1)}, store.GetState())
}

func TestContext_Delete(t *testing.T) {
	c, store := newContextOver(value.Object{"a": value.Int(1), "b": value.Int(2)}, nil)
	calls := 0
	store.Subscribe(func() { calls++ })

	removed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, value.Object{"b": value.Int(2)}, store.GetState())

	removed, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, calls, "deleting a missing key does not notify")
}

func TestContext_EmitForwards(t *testing.T) {
	var got Intent
	var gotCtx context.Context
	c, _ := newContextOver(nil, func(ctx context.Context, in Intent) error {
		got, gotCtx = in, ctx
		return errors.New("forwarded")
	})

	err := c.Emit(Intent{Type: "CHILD"})
	assert.EqualError(t, err, "forwarded")
	assert.Equal(t, "CHILD", got.Type)
	assert.Equal(t, c.Context(), gotCtx)
}

func TestContext_EmitWithoutEngine(t *testing.T) {
	c, _ := newContextOver(nil, nil)
	assert.Error(t, c.Emit(Intent{Type: "X"}))
}

func TestContext_Accessors(t *testing.T) {
	c, _ := newContextOver(nil, nil)
	assert.Equal(t, "yo", c.Effects().Greeting)
	assert.Equal(t, "d-1", c.DispatchID())
	assert.NotNil(t, c.Context())
}

func TestContext_HandlerSeesMiddlewareContext(t *testing.T) {
	type key struct{}
	tag := func(ctx context.Context, in Intent, next Next) error {
		return next(context.WithValue(ctx, key{}, "tagged"))
	}
	e := newTestEngine(t, nil, WithMiddleware(tag))

	var got any
	e.On("X", func(in Intent, c *Context[testEffects]) error {
		got = c.Context().Value(key{})
		return nil
	})

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Equal(t, "tagged", got)
}
