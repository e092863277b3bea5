package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
)

// setClause is a column update applied together with a status change.
type setClause struct {
	expr string
	args []any
}

func set(expr string, args ...any) setClause { return setClause{expr: expr, args: args} }

// changeStatus moves the row from its current status to requested inside tx.
// The update is guarded on the status that was read so a concurrent change
// surfaces as an invalid transition instead of being overwritten.
func changeStatus(ctx context.Context, tx *sql.Tx, m *lifecycle.Machine, table string, id int64,
	requested string, extra ...setClause) (string, error) {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return "", &model.NotFoundError{Entity: m.Entity(), ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("reading %s status: %w", m.Entity(), err)
	}

	if err := m.Check(current, requested); err != nil {
		return current, err
	}

	query := `UPDATE ` + table + ` SET status = ?, updated_at = ?`
	args := []any{requested, now()}
	for _, a := range extra {
		query += `, ` + a.expr
		args = append(args, a.args...)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, current)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return current, fmt.Errorf("updating %s status: %w", m.Entity(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return current, &model.TransitionError{Entity: m.Entity(), Current: current, Requested: requested}
	}
	return current, nil
}

// transitionRow runs changeStatus in its own transaction.
func transitionRow(ctx context.Context, db *sql.DB, m *lifecycle.Machine, table string, id int64,
	requested string, extra ...setClause) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := changeStatus(ctx, tx, m, table, id, requested, extra...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s status: %w", m.Entity(), err)
	}
	return nil
}

// lockedStatus reads the status of a row and checks it with check, which is
// one of the machine's CheckEditable or CheckDeletable.
func lockedStatus(ctx context.Context, q querier, m *lifecycle.Machine, table string, id int64,
	check func(string) error) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return &model.NotFoundError{Entity: m.Entity(), ID: id}
	}
	if err != nil {
		return fmt.Errorf("reading %s status: %w", m.Entity(), err)
	}
	return check(status)
}
