package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ChangeRecord is one change_log row: the outcome of a single plan step
// within a request.
type ChangeRecord struct {
	RequestID string
	Seq       int64
	Step      int
	// ContentID is 0 when the request carried no content id.
	ContentID  int64
	Operation  string
	PlanType   string
	Resource   string
	Mode       string
	Skipped    bool
	Rows       int64
	Editor     string
	RecordedAt string
}

// WriteChange appends a change record inside the transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same
// (request_id, step) is silently ignored.
func (t *Tx) WriteChange(ctx context.Context, rec ChangeRecord) error {
	var contentID sql.NullInt64
	if rec.ContentID != 0 {
		contentID = sql.NullInt64{Int64: rec.ContentID, Valid: true}
	}
	skipped := 0
	if rec.Skipped {
		skipped = 1
	}

	_, err := t.tx.ExecContext(ctx, t.s.rebind(`
		INSERT INTO change_log
		(request_id, seq, step, content_id, operation, plan_type, resource, mode, skipped, rows_affected, editor, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id, step) DO NOTHING
	`),
		rec.RequestID,
		rec.Seq,
		rec.Step,
		contentID,
		rec.Operation,
		rec.PlanType,
		rec.Resource,
		rec.Mode,
		skipped,
		rec.Rows,
		rec.Editor,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}
