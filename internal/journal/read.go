package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dispatch is one row of the dispatches table.
type Dispatch struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id,omitempty"`
	IntentType  string `json:"intent_type"`
	Payload     string `json:"payload,omitempty"`
	PayloadHash string `json:"payload_hash,omitempty"`
	Depth       int    `json:"depth"`
	Seq         int64  `json:"seq"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
	StateHash   string `json:"state_hash,omitempty"`
}

// Transition is one row of the transitions table.
type Transition struct {
	Seq        int64  `json:"seq"`
	DispatchID string `json:"dispatch_id"`
	IntentType string `json:"intent_type"`
	Kind       string `json:"kind"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Error      string `json:"error,omitempty"`
	StateHash  string `json:"state_hash,omitempty"`
}

// Filter narrows Dispatches. Zero fields match everything.
type Filter struct {
	IntentType string
	ParentID   string
	Outcome    string

	// TopLevel keeps only dispatches without a parent.
	TopLevel bool

	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

const dispatchColumns = `id, parent_id, intent_type, payload, payload_hash, depth, seq, outcome, error, state_hash`

// Dispatches returns dispatches matching f ordered by seq, id.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) Dispatches(ctx context.Context, f Filter) ([]Dispatch, error) {
	var (
		where []string
		args  []any
	)
	if f.IntentType != "" {
		where = append(where, "intent_type = ?")
		args = append(args, f.IntentType)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.TopLevel {
		where = append(where, "parent_id IS NULL")
	}

	query := "SELECT " + dispatchColumns + " FROM dispatches"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	out := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return out, nil
}

// Dispatch returns a single dispatch. Returns sql.ErrNoRows if not found.
func (j *Journal) Dispatch(ctx context.Context, id string) (Dispatch, error) {
	row := j.db.QueryRowContext(ctx,
		"SELECT "+dispatchColumns+" FROM dispatches WHERE id = ?", id)
	return scanDispatch(row)
}

// Transitions returns the transitions of one dispatch, or of every
// dispatch when dispatchID is empty, ordered by seq.
func (j *Journal) Transitions(ctx context.Context, dispatchID string) ([]Transition, error) {
	query := `
		SELECT seq, dispatch_id, intent_type, kind, from_status, to_status, error, state_hash
		FROM transitions`
	var args []any
	if dispatchID != "" {
		query += " WHERE dispatch_id = ?"
		args = append(args, dispatchID)
	}
	query += " ORDER BY seq ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		var (
			t                            Transition
			from, to, errText, stateHash sql.NullString
		)
		if err := rows.Scan(&t.Seq, &t.DispatchID, &t.IntentType, &t.Kind,
			&from, &to, &errText, &stateHash); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From, t.To = from.String, to.String
		t.Error, t.StateHash = errText.String, stateHash.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Ancestors returns the chain of dispatches that led to id, nearest parent
// first. A top-level dispatch has no ancestors.
func (j *Journal) Ancestors(ctx context.Context, id string) ([]Dispatch, error) {
	rows, err := j.db.QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent_id, hops) AS (
			SELECT id, parent_id, 0 FROM dispatches WHERE id = ?
			UNION ALL
			SELECT d.id, d.parent_id, chain.hops + 1
			FROM dispatches d JOIN chain ON d.id = chain.parent_id
		)
		SELECT `+prefixed("d", dispatchColumns)+`
		FROM chain JOIN dispatches d ON d.id = chain.id
		WHERE chain.hops > 0
		ORDER BY chain.hops ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query ancestors: %w", err)
	}
	defer rows.Close()

	out := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ancestors: %w", err)
	}
	return out, nil
}

// Incomplete returns dispatches still marked pending, typically left by a
// process that exited mid-dispatch.
func (j *Journal) Incomplete(ctx context.Context) ([]Dispatch, error) {
	return j.Dispatches(ctx, Filter{Outcome: "pending"})
}

// LastSeq returns the highest seq recorded, or 0 for an empty journal.
// Start an engine clock here to keep seq unique across runs.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM transitions`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDispatch(s scanner) (Dispatch, error) {
	var (
		d                                     Dispatch
		parent, payload, payloadHash, errText sql.NullString
		stateHash                             sql.NullString
	)
	err := s.Scan(&d.ID, &parent, &d.IntentType, &payload, &payloadHash,
		&d.Depth, &d.Seq, &d.Outcome, &errText, &stateHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return Dispatch{}, err
		}
		return Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}
	d.ParentID = parent.String
	d.Payload = payload.String
	d.PayloadHash = payloadHash.String
	d.Error = errText.String
	d.StateHash = stateHash.String
	return d, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
