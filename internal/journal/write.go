package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/intent/internal/engine"
	"github.com/roach88/intent/internal/value"
)

// Observe implements engine.Observer. Write failures are logged and never
// reach the dispatch.
func (j *Journal) Observe(ctx context.Context, ev engine.Event) {
	if err := j.Record(ctx, ev); err != nil {
		j.logger.Warn("journal write failed",
			"intent", ev.Intent.Type,
			"dispatch_id", ev.DispatchID,
			"seq", ev.Seq,
			"error", err,
		)
	}
}

// Record writes one event: it upserts the dispatch row and appends a
// transition row, in one transaction.
//
// Recording the same seq twice is a no-op for the transition.
func (j *Journal) Record(ctx context.Context, ev engine.Event) error {
	var stateHash sql.NullString
	if ev.State != nil {
		h, err := value.StateHash(ev.State)
		if err != nil {
			return fmt.Errorf("record %s: %w", ev.DispatchID, err)
		}
		stateHash = sql.NullString{String: h, Valid: true}
	}

	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record %s: begin tx: %w", ev.DispatchID, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := upsertDispatch(ctx, tx, ev, errText, stateHash); err != nil {
		return fmt.Errorf("record %s: %w", ev.DispatchID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions
		(seq, dispatch_id, intent_type, kind, from_status, to_status, error, state_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		ev.DispatchID,
		ev.Intent.Type,
		string(ev.Kind),
		nullIfEmpty(string(ev.From)),
		nullIfEmpty(string(ev.To)),
		errText,
		stateHash,
	)
	if err != nil {
		return fmt.Errorf("record %s: insert transition: %w", ev.DispatchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record %s: commit: %w", ev.DispatchID, err)
	}
	return nil
}

// upsertDispatch inserts the dispatch on its first event and updates its
// outcome on later ones. Identity columns are never rewritten.
func upsertDispatch(ctx context.Context, tx *sql.Tx, ev engine.Event, errText, stateHash sql.NullString) error {
	payload, payloadHash := encodePayload(ev.Intent.Payload)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, parent_id, intent_type, payload, payload_hash, depth, seq, outcome, error, state_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			error = excluded.error,
			state_hash = COALESCE(excluded.state_hash, dispatches.state_hash)
	`,
		ev.DispatchID,
		nullIfEmpty(ev.ParentID),
		ev.Intent.Type,
		payload,
		payloadHash,
		ev.Depth,
		ev.Seq,
		string(ev.Kind),
		errText,
		stateHash,
	)
	if err != nil {
		return fmt.Errorf("upsert dispatch: %w", err)
	}
	return nil
}

// encodePayload renders a payload as canonical JSON when it is plain data.
// Payloads outside the value model fall back to encoding/json without a
// hash; payloads neither can encode are stored as NULL.
func encodePayload(payload any) (sql.NullString, sql.NullString) {
	if payload == nil {
		return sql.NullString{}, sql.NullString{}
	}
	if b, err := value.MarshalCanonical(payload); err == nil {
		h, _ := value.PayloadHash(payload)
		return sql.NullString{String: string(b), Valid: true}, sql.NullString{String: h, Valid: h != ""}
	}
	if b, err := json.Marshal(payload); err == nil {
		return sql.NullString{String: string(b), Valid: true}, sql.NullString{}
	}
	return sql.NullString{}, sql.NullString{}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
