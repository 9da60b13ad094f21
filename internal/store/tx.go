package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is one database transaction. All statements of a request run through
// the same Tx so a failure leaves no partial writes.
type Tx struct {
	s  *Store
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{s: s, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// stmt returns a transaction-bound statement for query. Cached statements
// are rebound to the transaction; misses are prepared on the transaction and
// closed with it.
func (t *Tx) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if cached, ok := t.s.stmts.Get(query); ok {
		return t.tx.StmtContext(ctx, cached), nil
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare %q: %w", query, err)
	}
	return stmt, nil
}

// Exec runs a compiled write statement and returns the rows it affected.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := t.stmt(ctx, query)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// QueryRevision runs a compiled revision lookup. found is false when no row
// matches; a NULL revision reads as 0.
func (t *Tx) QueryRevision(ctx context.Context, query string, args ...any) (rev int64, found bool, err error) {
	stmt, err := t.stmt(ctx, query)
	if err != nil {
		return 0, false, err
	}
	var v sql.NullInt64
	if err := stmt.QueryRowContext(ctx, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query revision: %w", err)
	}
	return v.Int64, true, nil
}

// NextKey allocates the next value of a named key sequence. Sequences start
// at 1.
func (t *Tx) NextKey(ctx context.Context, sequence string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx,
		t.s.rebind(`INSERT INTO key_sequences (name, value) VALUES (?, 0) ON CONFLICT (name) DO NOTHING`),
		sequence); err != nil {
		return 0, fmt.Errorf("next key %s: %w", sequence, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		t.s.rebind(`UPDATE key_sequences SET value = value + 1 WHERE name = ?`),
		sequence); err != nil {
		return 0, fmt.Errorf("next key %s: %w", sequence, err)
	}
	var v int64
	if err := t.tx.QueryRowContext(ctx,
		t.s.rebind(`SELECT value FROM key_sequences WHERE name = ?`),
		sequence).Scan(&v); err != nil {
		return 0, fmt.Errorf("next key %s: %w", sequence, err)
	}
	return v, nil
}

// AdvanceKey raises a sequence so the next allocation is above floor.
// Submitted keys are reported through it so generated keys never collide
// with them.
func (t *Tx) AdvanceKey(ctx context.Context, sequence string, floor int64) error {
	if _, err := t.tx.ExecContext(ctx,
		t.s.rebind(`INSERT INTO key_sequences (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`),
		sequence, floor); err != nil {
		return fmt.Errorf("advance key %s: %w", sequence, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		t.s.rebind(`UPDATE key_sequences SET value = ? WHERE name = ? AND value < ?`),
		floor, sequence, floor); err != nil {
		return fmt.Errorf("advance key %s: %w", sequence, err)
	}
	return nil
}
