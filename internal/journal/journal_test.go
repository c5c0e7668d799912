package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/testutil"
	"github.com/roach88/intent/internal/value"
)

type noEffects struct{}

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func journaledEngine(t *testing.T, j *Journal, opts ...engine.Option) *engine.Engine[noEffects] {
	t.Helper()
	base := []engine.Option{
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("d")),
		engine.WithObserver(j),
	}
	return engine.New(value.Object{"count": value.Int(0)}, noEffects{}, append(base, opts...)...)
}

func incHandler(in engine.Intent, c *engine.Context[noEffects]) error {
	n, _ := value.AsInt(c.Get("count"))
	return c.Set("count", n+1)
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	var version int
	require.NoError(t, j.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	var mode string
	require.NoError(t, j.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, j.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.DB().Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_InMemory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	d, err := j.Dispatches(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestJournal_RecordsSuccessfulDispatch(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.On("INC", incHandler)
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, engine.Intent{Type: "INC", Payload: map[string]any{"by": 1}}))

	d, err := j.Dispatch(ctx, "d-0001")
	require.NoError(t, err)
	assert.Equal(t, "INC", d.IntentType)
	assert.Equal(t, "success", d.Outcome)
	assert.Equal(t, `{"by":1}`, d.Payload)
	assert.NotEmpty(t, d.PayloadHash)
	assert.Equal(t, value.MustStateHash(value.Object{"count": value.Int(1)}), d.StateHash)
	assert.Empty(t, d.ParentID)
	assert.Equal(t, int64(1), d.Seq, "seq of the first event")

	ts, err := j.Transitions(ctx, "d-0001")
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, Transition{Seq: 1, DispatchID: "d-0001", IntentType: "INC", Kind: "pending", From: "idle", To: "pending"}, ts[0])
	assert.Equal(t, "success", ts[1].Kind)
	assert.Equal(t, "pending", ts[1].From)
	assert.Equal(t, d.StateHash, ts[1].StateHash)
}

func TestJournal_RecordsFailure(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.On("FAIL", func(engine.Intent, *engine.Context[noEffects]) error {
		return errors.New("out of stock")
	})
	ctx := context.Background()

	require.Error(t, e.Emit(ctx, engine.Intent{Type: "FAIL"}))

	d, err := j.Dispatch(ctx, "d-0001")
	require.NoError(t, err)
	assert.Equal(t, "error", d.Outcome)
	assert.Equal(t, "out of stock", d.Error)
	assert.Empty(t, d.Payload)
}

func TestJournal_RecordsRejection(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.Guard("INC", func(*engine.Context[noEffects]) bool { return false })
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, engine.Intent{Type: "INC"}))

	rejected, err := j.Dispatches(ctx, Filter{Outcome: "rejected"})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Empty(t, rejected[0].StateHash)

	ts, err := j.Transitions(ctx, rejected[0].ID)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Empty(t, ts[0].From)
	assert.Empty(t, ts[0].To)
}

func TestJournal_NestedDispatchesAndAncestors(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.On("INC", incHandler)
	e.On("MIDDLE", func(in engine.Intent, c *engine.Context[noEffects]) error {
		return c.Emit(engine.Intent{Type: "INC"})
	})
	e.On("ROOT", func(in engine.Intent, c *engine.Context[noEffects]) error {
		return c.Emit(engine.Intent{Type: "MIDDLE"})
	})
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, engine.Intent{Type: "ROOT"}))

	all, err := j.Dispatches(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"ROOT", "MIDDLE", "INC"},
		[]string{all[0].IntentType, all[1].IntentType, all[2].IntentType})

	top, err := j.Dispatches(ctx, Filter{TopLevel: true})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "d-0001", top[0].ID)

	children, err := j.Dispatches(ctx, Filter{ParentID: "d-0001"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "MIDDLE", children[0].IntentType)
	assert.Equal(t, 1, children[0].Depth)

	anc, err := j.Ancestors(ctx, "d-0003")
	require.NoError(t, err)
	require.Len(t, anc, 2)
	assert.Equal(t, "d-0002", anc[0].ID)
	assert.Equal(t, "d-0001", anc[1].ID)

	anc, err = j.Ancestors(ctx, "d-0001")
	require.NoError(t, err)
	assert.Empty(t, anc)
}

func TestJournal_FilterByTypeAndLimit(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.On("INC", incHandler)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Emit(ctx, engine.Intent{Type: "INC"}))
	}
	require.NoError(t, e.Emit(ctx, engine.Intent{Type: "OTHER"}))

	inc, err := j.Dispatches(ctx, Filter{IntentType: "INC"})
	require.NoError(t, err)
	assert.Len(t, inc, 3)

	limited, err := j.Dispatches(ctx, Filter{IntentType: "INC", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	all, err := j.Transitions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestJournal_DispatchNotFound(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.Dispatch(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestJournal_LastSeqResumesClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j1, err := Open(path, WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	e1 := engine.New(nil, noEffects{},
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("first")),
		engine.WithObserver(j1),
	)
	require.NoError(t, e1.Emit(ctx, engine.Intent{Type: "A"}))
	require.NoError(t, j1.Close())

	j2, err := Open(path, WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	defer j2.Close()

	last, err := j2.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	e2 := engine.New(nil, noEffects{},
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("second")),
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithObserver(j2),
	)
	require.NoError(t, e2.Emit(ctx, engine.Intent{Type: "B"}))

	ts, err := j2.Transitions(ctx, "")
	require.NoError(t, err)
	require.Len(t, ts, 4)
	assert.Equal(t, []int64{1, 2, 3, 4}, []int64{ts[0].Seq, ts[1].Seq, ts[2].Seq, ts[3].Seq})
}

func TestJournal_Incomplete(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, engine.Event{
		Seq: 1, Kind: engine.EventPending, DispatchID: "crashed",
		Intent: engine.Intent{Type: "SAVE"}, From: engine.StatusIdle, To: engine.StatusPending,
	}))

	pending, err := j.Incomplete(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "crashed", pending[0].ID)
}

func TestJournal_RecordSameSeqTwice(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	ev := engine.Event{
		Seq: 7, Kind: engine.EventPending, DispatchID: "d-1",
		Intent: engine.Intent{Type: "X"}, From: engine.StatusIdle, To: engine.StatusPending,
	}

	require.NoError(t, j.Record(ctx, ev))
	require.NoError(t, j.Record(ctx, ev))

	ts, err := j.Transitions(ctx, "d-1")
	require.NoError(t, err)
	assert.Len(t, ts, 1)
}

func TestJournal_NonCanonicalPayload(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	type order struct {
		SKU   string  `json:"sku"`
		Price float64 `json:"price"`
	}
	require.NoError(t, j.Record(ctx, engine.Event{
		Seq: 1, Kind: engine.EventPending, DispatchID: "d-1",
		Intent: engine.Intent{Type: "BUY", Payload: order{SKU: "a", Price: 1.5}},
	}))

	d, err := j.Dispatch(ctx, "d-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku":"a","price":1.5}`, d.Payload)
	assert.Empty(t, d.PayloadHash)
}

func TestJournal_WriteFailureDoesNotFailDispatch(t *testing.T) {
	j := createTestJournal(t)
	e := journaledEngine(t, j)
	e.On("INC", incHandler)
	require.NoError(t, j.Close())

	require.NoError(t, e.Emit(context.Background(), engine.Intent{Type: "INC"}))
	assert.Equal(t, engine.StatusSuccess, e.Status("INC"))
}
