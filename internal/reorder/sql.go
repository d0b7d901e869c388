package reorder

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect holds the engine-specific statements a SQLStore needs.
type Dialect struct {
	// TryLock takes a transaction-scoped lock on the scene and returns
	// whether it was acquired. Empty skips locking.
	TryLock string
	// LockRows is appended to the step select to lock the rows.
	LockRows string
	// Defer defers unique checks to commit.
	Defer string
}

// Postgres serializes reorders with a transaction-scoped advisory lock keyed
// by scene ID and locks the step rows.
var Postgres = Dialect{
	TryLock:  `SELECT pg_try_advisory_xact_lock(hashtext($1))`,
	LockRows: ` FOR UPDATE`,
	Defer:    `SET CONSTRAINTS ALL DEFERRED`,
}

// SQLite relies on the database-level write lock SQLite takes for every
// write transaction.
var SQLite = Dialect{}

// SQLStore runs reorders against a scene_steps table.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

// Begin opens a transaction and takes the scene lock when the dialect has one.
func (s *SQLStore) Begin(ctx context.Context, sceneID string) (Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if s.Dialect.TryLock != "" {
		var ok bool
		if err := tx.QueryRowContext(ctx, s.Dialect.TryLock, sceneID).Scan(&ok); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("lock scene: %w", err)
		}
		if !ok {
			_ = tx.Rollback()
			return nil, fmt.Errorf("scene %q: %w", sceneID, ErrConcurrentReorder)
		}
	}
	return &sqlTx{tx: tx, sceneID: sceneID, dialect: s.Dialect}, nil
}

type sqlTx struct {
	tx      *sql.Tx
	sceneID string
	dialect Dialect
}

func (t *sqlTx) StepIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id FROM scene_steps WHERE scene_id = $1 ORDER BY step_number`+t.dialect.LockRows,
		t.sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqlTx) SetStepNumber(ctx context.Context, stepID string, n int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE scene_steps SET step_number = $1 WHERE id = $2 AND scene_id = $3`,
		n, stepID, t.sceneID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("step %q: %d rows updated", stepID, affected)
	}
	return nil
}

func (t *sqlTx) DeferConstraints(ctx context.Context) error {
	if t.dialect.Defer == "" {
		return fmt.Errorf("deferred constraints are not supported by this database")
	}
	_, err := t.tx.ExecContext(ctx, t.dialect.Defer)
	return err
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }
