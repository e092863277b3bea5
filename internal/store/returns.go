package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/garrison/internal/model"
)

func enqueueReturn(ctx context.Context, db *sql.DB, assignmentID, purchaseID int64, quantity int, cause error) error {
	ts := now()
	_, err := db.ExecContext(ctx,
		`INSERT INTO inventory_returns (assignment_id, purchase_id, quantity, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?)`,
		assignmentID, purchaseID, quantity, cause.Error(), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("queueing inventory return: %w", err)
	}
	return nil
}

// ListInventoryReturns returns the queued equipment returns, oldest first.
func ListInventoryReturns(ctx context.Context, db *sql.DB) ([]model.InventoryReturn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, assignment_id, purchase_id, quantity, attempts, last_error, created_at, updated_at
		 FROM inventory_returns ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing inventory returns: %w", err)
	}
	defer rows.Close()

	returns := []model.InventoryReturn{}
	for rows.Next() {
		var r model.InventoryReturn
		if err := rows.Scan(&r.ID, &r.AssignmentID, &r.PurchaseID, &r.Quantity, &r.Attempts,
			&r.LastError, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inventory return: %w", err)
		}
		returns = append(returns, r)
	}
	return returns, rows.Err()
}

// CountInventoryReturns returns the number of queued returns.
func CountInventoryReturns(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory_returns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting inventory returns: %w", err)
	}
	return n, nil
}

// RetryResult summarizes one pass over the return queue.
type RetryResult struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// RetryInventoryReturns applies every queued return. Each return is credited
// and removed from the queue in one transaction; failures stay queued with
// their attempt count raised.
func RetryInventoryReturns(ctx context.Context, db *sql.DB) (RetryResult, error) {
	var res RetryResult

	queued, err := ListInventoryReturns(ctx, db)
	if err != nil {
		return res, err
	}

	for _, r := range queued {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := applyReturn(ctx, db, r); err != nil {
			res.Failed++
			if _, uerr := db.ExecContext(ctx,
				`UPDATE inventory_returns SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
				err.Error(), now(), r.ID,
			); uerr != nil {
				return res, fmt.Errorf("recording failed return %d: %w", r.ID, uerr)
			}
			continue
		}
		res.Applied++
	}
	return res, nil
}

func applyReturn(ctx context.Context, db *sql.DB, r model.InventoryReturn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := returnEquipment(ctx, tx, r.PurchaseID, r.Quantity); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_returns WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("dequeuing inventory return: %w", err)
	}
	return tx.Commit()
}
