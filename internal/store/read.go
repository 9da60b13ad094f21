package store

import (
	"context"
	"database/sql"
	"fmt"
)

const changeColumns = `request_id, seq, step, content_id, operation, plan_type, resource, mode, skipped, rows_affected, editor, recorded_at`

// ReadChanges returns every change recorded for a content id.
// Results are ordered deterministically: ORDER BY seq ASC, step ASC.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ReadChanges(ctx context.Context, contentID int64) ([]ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+changeColumns+`
		FROM change_log
		WHERE content_id = ?
		ORDER BY seq ASC, step ASC
	`), contentID)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// ReadRequest returns the changes recorded by one request in step order.
func (s *Store) ReadRequest(ctx context.Context, requestID string) ([]ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+changeColumns+`
		FROM change_log
		WHERE request_id = ?
		ORDER BY step ASC
	`), requestID)
	if err != nil {
		return nil, fmt.Errorf("query request changes: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// LatestSeq returns the highest recorded seq, or 0 for an empty log.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM change_log`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query latest seq: %w", err)
	}
	return seq.Int64, nil
}

func scanChanges(rows *sql.Rows) ([]ChangeRecord, error) {
	records := []ChangeRecord{}
	for rows.Next() {
		var (
			rec       ChangeRecord
			contentID sql.NullInt64
			skipped   int
		)
		if err := rows.Scan(
			&rec.RequestID,
			&rec.Seq,
			&rec.Step,
			&contentID,
			&rec.Operation,
			&rec.PlanType,
			&rec.Resource,
			&rec.Mode,
			&skipped,
			&rec.Rows,
			&rec.Editor,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		rec.ContentID = contentID.Int64
		rec.Skipped = skipped != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return records, nil
}
