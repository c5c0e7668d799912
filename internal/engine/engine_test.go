package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intent/internal/value"
)

func TestEngine_IncrementUpdatesStateAndStatus(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})

	var during Status
	e.On("INC", func(in Intent, c *Context[testEffects]) error {
		during = e.Status("INC")
		return incHandler(in, c)
	})

	assert.Equal(t, StatusIdle, e.Status("INC"))
	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))

	assert.Equal(t, StatusPending, during)
	assert.Equal(t, StatusSuccess, e.Status("INC"))
	assert.Equal(t, value.Object{"count": value.Int(1)}, e.Store().GetState())
}

func TestEngine_GuardRejectionIsSilent(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, value.Object{"count": value.Int(0)}, WithObserver(rec))

	handled := false
	e.On("INC", func(in Intent, c *Context[testEffects]) error {
		handled = true
		return incHandler(in, c)
	})
	e.Guard("INC", func(c *Context[testEffects]) bool { return false })

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))

	assert.False(t, handled)
	assert.Equal(t, int64(0), count(t, e))
	assert.Equal(t, StatusIdle, e.Status("INC"))
	assert.Equal(t, []EventKind{EventRejected}, rec.kinds())
}

func TestEngine_GuardRejectionKeepsPreviousStatus(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})
	e.On("INC", incHandler)

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	e.Guard("INC", func(c *Context[testEffects]) bool { return false })
	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))

	assert.Equal(t, StatusSuccess, e.Status("INC"))
	assert.Equal(t, int64(1), count(t, e))
}

func TestEngine_GuardReadsState(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})
	e.On("INC", incHandler)
	e.Guard("INC", func(c *Context[testEffects]) bool {
		n, _ := value.AsInt(c.Get("count"))
		return n < 2
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	}
	assert.Equal(t, int64(2), count(t, e))
}

func TestEngine_HandlerFailure(t *testing.T) {
	e := newTestEngine(t, nil)
	boom := errors.New("boom")
	e.On("FAIL", func(Intent, *Context[testEffects]) error { return boom })

	err := e.Emit(context.Background(), Intent{Type: "FAIL"})

	assert.Same(t, boom, err, "handler error must be returned unchanged")
	assert.Equal(t, StatusError, e.Status("FAIL"))
}

func TestEngine_FailureKeepsEarlierWrites(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})
	e.On("HALF", func(in Intent, c *Context[testEffects]) error {
		if err := c.Set("count", 5); err != nil {
			return err
		}
		return errors.New("after write")
	})

	require.Error(t, e.Emit(context.Background(), Intent{Type: "HALF"}))
	assert.Equal(t, int64(5), count(t, e))
}

func TestEngine_ErrorThenSuccess(t *testing.T) {
	e := newTestEngine(t, nil)
	fail := true
	e.On("FLAKY", func(Intent, *Context[testEffects]) error {
		if fail {
			return errors.New("first try")
		}
		return nil
	})

	require.Error(t, e.Emit(context.Background(), Intent{Type: "FLAKY"}))
	assert.Equal(t, StatusError, e.Status("FLAKY"))

	fail = false
	require.NoError(t, e.Emit(context.Background(), Intent{Type: "FLAKY"}))
	assert.Equal(t, StatusSuccess, e.Status("FLAKY"))
}

func TestEngine_MissingHandlerIsNoOpSuccess(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "NOBODY"}))
	assert.Equal(t, StatusSuccess, e.Status("NOBODY"))
}

func TestEngine_MissingHandlerStrict(t *testing.T) {
	e := newTestEngine(t, nil, WithMissingHandlerPolicy(MissingHandlerError))

	err := e.Emit(context.Background(), Intent{Type: "NOBODY"})

	require.Error(t, err)
	assert.True(t, IsMissingHandlerError(err))
	assert.Equal(t, StatusError, e.Status("NOBODY"))

	var me *MissingHandlerError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "NOBODY", me.Type)
	assert.Equal(t, "d-0001", me.DispatchID)
}

func TestEngine_MiddlewareOrderAroundHandler(t *testing.T) {
	var log []string
	e := newTestEngine(t, nil, WithMiddleware(
		recordingMiddleware("A", &log),
		recordingMiddleware("B", &log),
	))
	e.On("X", func(Intent, *Context[testEffects]) error {
		log = append(log, "H")
		return nil
	})

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Equal(t, []string{"A-before", "B-before", "H", "B-after", "A-after"}, log)
}

func TestEngine_MiddlewareAcrossOptionsKeepsOrder(t *testing.T) {
	var log []string
	e := newTestEngine(t, nil,
		WithMiddleware(recordingMiddleware("A", &log)),
		WithMiddleware(recordingMiddleware("B", &log)),
	)

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Equal(t, []string{"A-before", "B-before", "B-after", "A-after"}, log)
}

func TestEngine_MiddlewareShortCircuitStillSucceeds(t *testing.T) {
	block := func(ctx context.Context, in Intent, next Next) error { return nil }
	e := newTestEngine(t, value.Object{"count": value.Int(0)}, WithMiddleware(block))
	e.On("INC", incHandler)

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	assert.Equal(t, int64(0), count(t, e))
	assert.Equal(t, StatusSuccess, e.Status("INC"))
}

func TestEngine_MiddlewareErrorSetsErrorStatus(t *testing.T) {
	denied := errors.New("denied")
	deny := func(ctx context.Context, in Intent, next Next) error { return denied }
	e := newTestEngine(t, nil, WithMiddleware(deny))

	err := e.Emit(context.Background(), Intent{Type: "X"})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, StatusError, e.Status("X"))
}

func TestEngine_MiddlewareRetryRunsHandlerTwice(t *testing.T) {
	retry := func(ctx context.Context, in Intent, next Next) error {
		if err := next(ctx); err != nil {
			return next(ctx)
		}
		return nil
	}
	e := newTestEngine(t, value.Object{"count": value.Int(0)}, WithMiddleware(retry))

	attempts := 0
	e.On("INC", func(in Intent, c *Context[testEffects]) error {
		attempts++
		if err := incHandler(in, c); err != nil {
			return err
		}
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(2), count(t, e), "writes from both runs persist")
	assert.Equal(t, StatusSuccess, e.Status("INC"))
}

func TestEngine_LastRegistrationWins(t *testing.T) {
	e := newTestEngine(t, nil)
	var got string
	e.On("X", func(Intent, *Context[testEffects]) error { got = "first"; return nil })
	e.On("X", func(Intent, *Context[testEffects]) error { got = "second"; return nil })

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Equal(t, "second", got)
}

func TestEngine_NilRemovesRegistration(t *testing.T) {
	e := newTestEngine(t, nil, WithMissingHandlerPolicy(MissingHandlerError))
	e.On("X", func(Intent, *Context[testEffects]) error { return nil })
	e.Guard("X", func(*Context[testEffects]) bool { return false })

	e.On("X", nil)
	e.Guard("X", nil)

	err := e.Emit(context.Background(), Intent{Type: "X"})
	assert.True(t, IsMissingHandlerError(err), "guard removed, handler removed")
}

func TestEngine_LateRegistrationAffectsFutureEmits(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	assert.Equal(t, int64(0), count(t, e))

	e.On("INC", incHandler)
	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	assert.Equal(t, int64(1), count(t, e))
}

func TestEngine_HandlerLookedUpAfterMiddleware(t *testing.T) {
	e := newTestEngine(t, nil)
	var got string
	register := func(ctx context.Context, in Intent, next Next) error {
		e.On("X", func(Intent, *Context[testEffects]) error { got = "registered late"; return nil })
		return next(ctx)
	}
	e.middleware = []Middleware{register}

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Equal(t, "registered late", got)
}

func TestEngine_HandlerReceivesIntentAndEffects(t *testing.T) {
	e := newTestEngine(t, nil)
	var gotIntent Intent
	var gotEffects testEffects
	e.On("GREET", func(in Intent, c *Context[testEffects]) error {
		gotIntent = in
		gotEffects = c.Effects()
		return nil
	})

	in := Intent{Type: "GREET", Payload: map[string]any{"name": "ada"}}
	require.NoError(t, e.Emit(context.Background(), in))

	assert.Equal(t, in, gotIntent)
	assert.Equal(t, "hi", gotEffects.Greeting)
	assert.Equal(t, "hi", e.Effects().Greeting)
}

func TestEngine_NestedEmit(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, value.Object{"count": value.Int(0)}, WithObserver(rec))
	e.On("INC", incHandler)
	e.On("INC_TWICE", func(in Intent, c *Context[testEffects]) error {
		if err := c.Emit(Intent{Type: "INC"}); err != nil {
			return err
		}
		return c.Emit(Intent{Type: "INC"})
	})

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC_TWICE"}))
	assert.Equal(t, int64(2), count(t, e))
	assert.Equal(t, StatusSuccess, e.Status("INC"))
	assert.Equal(t, StatusSuccess, e.Status("INC_TWICE"))

	events := rec.snapshot()
	require.Len(t, events, 6)

	outer := events[0]
	assert.Equal(t, "d-0001", outer.DispatchID)
	assert.Empty(t, outer.ParentID)
	assert.Equal(t, 0, outer.Depth)

	for _, ev := range events[1:5] {
		assert.Equal(t, "INC", ev.Intent.Type)
		assert.Equal(t, "d-0001", ev.ParentID)
		assert.Equal(t, 1, ev.Depth)
	}
	assert.Equal(t, EventSuccess, events[5].Kind)
	assert.Equal(t, "INC_TWICE", events[5].Intent.Type)
}

func TestEngine_NestedFailurePropagates(t *testing.T) {
	e := newTestEngine(t, nil)
	boom := errors.New("inner")
	e.On("INNER", func(Intent, *Context[testEffects]) error { return boom })
	e.On("OUTER", func(in Intent, c *Context[testEffects]) error {
		return c.Emit(Intent{Type: "INNER"})
	})

	err := e.Emit(context.Background(), Intent{Type: "OUTER"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusError, e.Status("INNER"))
	assert.Equal(t, StatusError, e.Status("OUTER"))
}

func TestEngine_ObserverSequence(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, value.Object{"count": value.Int(0)}, WithObserver(rec))
	e.On("INC", incHandler)

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))

	events := rec.snapshot()
	require.Len(t, events, 4)

	assert.Equal(t, EventPending, events[0].Kind)
	assert.Equal(t, StatusIdle, events[0].From)
	assert.Equal(t, StatusPending, events[0].To)
	assert.Nil(t, events[0].State)

	assert.Equal(t, EventSuccess, events[1].Kind)
	assert.Equal(t, StatusPending, events[1].From)
	assert.Equal(t, value.Object{"count": value.Int(1)}, events[1].State)

	assert.Equal(t, StatusSuccess, events[2].From, "terminal status moves back to pending")

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestEngine_ObserverReceivesError(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, nil, WithObserver(rec))
	boom := errors.New("boom")
	e.On("FAIL", func(Intent, *Context[testEffects]) error { return boom })

	_ = e.Emit(context.Background(), Intent{Type: "FAIL"})

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Kind)
	assert.Equal(t, StatusError, events[1].To)
	assert.Same(t, boom, events[1].Err)
}

func TestEngine_MultipleObservers(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	e := newTestEngine(t, nil, WithObserver(a), WithObserver(nil), WithObserver(b))

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "X"}))
	assert.Len(t, a.snapshot(), 2)
	assert.Len(t, b.snapshot(), 2)
}

func TestEngine_SubscribersSeeHandlerWrites(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})
	e.On("INC", incHandler)

	var seen []int64
	unsub := e.Store().Subscribe(func() {
		n, _ := value.AsInt(e.Store().GetState()["count"])
		seen = append(seen, n)
	})
	defer unsub()

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "INC"}))
	require.NoError(t, e.Store().SetState(func(prev value.Object) (value.Object, error) {
		return value.Set(prev, "count", value.Int(10))
	}))

	assert.Equal(t, []int64{1, 10}, seen)
}

func TestEngine_NilInitialState(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.NotNil(t, e.Store().GetState())
	assert.Empty(t, e.Store().GetState())
}

func TestEngine_ConcurrentSameTypeSharesStatus(t *testing.T) {
	e := newTestEngine(t, value.Object{"count": value.Int(0)})

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	e.On("SLOW", func(in Intent, c *Context[testEffects]) error {
		started.Done()
		<-release
		return e.Store().SetState(func(prev value.Object) (value.Object, error) {
			n, _ := value.AsInt(prev["count"])
			return value.Set(prev, "count", value.Int(n+1))
		})
	})

	first := e.EmitAsync(context.Background(), Intent{Type: "SLOW"})
	second := e.EmitAsync(context.Background(), Intent{Type: "SLOW"})

	started.Wait()
	assert.Equal(t, StatusPending, e.Status("SLOW"))
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)

	assert.Equal(t, StatusSuccess, e.Status("SLOW"))
	assert.Equal(t, int64(2), count(t, e))
}

func TestEngine_LastTransitionWinsAcrossDispatches(t *testing.T) {
	e := newTestEngine(t, nil)

	gates := map[string]chan error{
		"a": make(chan error),
		"b": make(chan error),
		"c": make(chan error),
	}
	started := make(chan string)
	e.On("SLOW", func(in Intent, _ *Context[testEffects]) error {
		name := in.Payload.(string)
		started <- name
		return <-gates[name]
	})

	emit := func(name string) <-chan error {
		done := e.EmitAsync(context.Background(), Intent{Type: "SLOW", Payload: name})
		require.Equal(t, name, <-started)
		return done
	}

	a := emit("a")
	b := emit("b")

	boom := errors.New("boom")
	gates["a"] <- boom
	assert.ErrorIs(t, <-a, boom)
	assert.Equal(t, StatusError, e.Status("SLOW"), "b still in flight")

	c := emit("c")
	assert.Equal(t, StatusPending, e.Status("SLOW"), "new emit overwrites error")

	gates["b"] <- boom
	assert.ErrorIs(t, <-b, boom)
	assert.Equal(t, StatusError, e.Status("SLOW"), "c still in flight")

	gates["c"] <- nil
	require.NoError(t, <-c)
	assert.Equal(t, StatusSuccess, e.Status("SLOW"))
}

func TestEngine_UnrecoveredPanicLeavesErrorStatus(t *testing.T) {
	e := newTestEngine(t, nil)
	e.On("BOOM", func(Intent, *Context[testEffects]) error { panic("kaboom") })

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = e.Emit(context.Background(), Intent{Type: "BOOM"})
	})
	assert.Equal(t, StatusError, e.Status("BOOM"))
}

func TestEngine_EmitAsyncDeliversError(t *testing.T) {
	e := newTestEngine(t, nil)
	boom := errors.New("boom")
	e.On("FAIL", func(Intent, *Context[testEffects]) error { return boom })

	done := e.EmitAsync(context.Background(), Intent{Type: "FAIL"})
	assert.ErrorIs(t, <-done, boom)

	_, open := <-done
	assert.False(t, open)
}

func TestEngine_Statuses(t *testing.T) {
	e := newTestEngine(t, nil)
	e.On("FAIL", func(Intent, *Context[testEffects]) error { return errors.New("x") })

	require.NoError(t, e.Emit(context.Background(), Intent{Type: "OK"}))
	_ = e.Emit(context.Background(), Intent{Type: "FAIL"})

	assert.Equal(t, map[string]Status{
		"OK":   StatusSuccess,
		"FAIL": StatusError,
	}, e.Statuses())
}
