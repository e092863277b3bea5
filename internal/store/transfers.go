package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

// TransferBaseColumns are the columns transfer visibility is decided on.
var TransferBaseColumns = []string{"t.source_base", "t.destination_base"}

const transferSelect = `SELECT t.id, t.equipment, t.quantity, t.source_base, t.destination_base,
	t.expected_date, t.actual_date, t.description, t.status, t.requested_by, t.approved_by,
	t.created_at, t.updated_at,
	rq.first_name, rq.last_name, rq.username, ap.first_name, ap.last_name, ap.username
	FROM transfers t
	JOIN users rq ON rq.id = t.requested_by
	LEFT JOIN users ap ON ap.id = t.approved_by`

func scanTransfer(s scanner, t *model.Transfer) error {
	var requester, approver personName
	dest := []any{&t.ID, &t.Equipment, &t.Quantity, &t.SourceBase, &t.DestinationBase,
		&t.ExpectedDate, &t.ActualDate, &t.Description, &t.Status, &t.RequestedBy, &t.ApprovedBy,
		&t.CreatedAt, &t.UpdatedAt}
	dest = append(dest, requester.dest()...)
	dest = append(dest, approver.dest()...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	t.RequesterName = requester.String()
	t.ApproverName = approver.String()
	return nil
}

func validateTransfer(t *model.Transfer) error {
	t.Equipment = strings.TrimSpace(t.Equipment)
	t.SourceBase = strings.TrimSpace(t.SourceBase)
	t.DestinationBase = strings.TrimSpace(t.DestinationBase)
	if t.Equipment == "" {
		return model.Invalid("equipment", "is required")
	}
	if t.Quantity < 1 {
		return model.Invalid("quantity", "must be at least 1")
	}
	if t.SourceBase == "" || t.DestinationBase == "" {
		return model.Invalid("source_base", "and destination_base are required")
	}
	if t.SourceBase == t.DestinationBase {
		return model.Invalid("destination_base", "must differ from source_base")
	}
	return nil
}

// CreateTransfer records a new transfer in Pending status.
func CreateTransfer(ctx context.Context, db *sql.DB, t *model.Transfer) (*model.Transfer, error) {
	if err := validateTransfer(t); err != nil {
		return nil, err
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO transfers (equipment, quantity, source_base, destination_base, expected_date, description,
		 status, requested_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Equipment, t.Quantity, t.SourceBase, t.DestinationBase, utcPtr(t.ExpectedDate), t.Description,
		lifecycle.Transfer.Initial(), t.RequestedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("recording transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer id: %w", err)
	}
	return GetTransfer(ctx, db, id)
}

// GetTransfer returns a transfer by ID.
func GetTransfer(ctx context.Context, db *sql.DB, id int64) (*model.Transfer, error) {
	t := &model.Transfer{}
	err := scanTransfer(db.QueryRowContext(ctx, transferSelect+` WHERE t.id = ?`, id), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// TransferFilter narrows ListTransfers.
type TransferFilter struct {
	Status string
	// Base keeps transfers with Base at either end.
	Base  string
	From  *time.Time
	To    *time.Time
	Limit int
}

// ListTransfers returns the transfers visible to v, newest first.
func ListTransfers(ctx context.Context, db *sql.DB, v rbac.Visibility, f TransferFilter) ([]model.Transfer, error) {
	where, args := v.Where(TransferBaseColumns...)
	query := transferSelect + ` WHERE ` + where

	if f.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	if f.Base != "" {
		query += ` AND (t.source_base = ? OR t.destination_base = ?)`
		args = append(args, f.Base, f.Base)
	}
	query, args = window{f.From, f.To}.apply("t.created_at", query, args)
	query += ` ORDER BY t.created_at DESC, t.id DESC`
	query, args = limitClause(query, args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	transfers := []model.Transfer{}
	for rows.Next() {
		var t model.Transfer
		if err := scanTransfer(rows, &t); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// UpdateTransfer replaces the editable fields of a transfer.
func UpdateTransfer(ctx context.Context, db *sql.DB, t *model.Transfer) (*model.Transfer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Transfer, "transfers", t.ID, lifecycle.Transfer.CheckEditable); err != nil {
		return nil, err
	}
	if err := validateTransfer(t); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transfers SET equipment = ?, quantity = ?, source_base = ?, destination_base = ?,
		 expected_date = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		t.Equipment, t.Quantity, t.SourceBase, t.DestinationBase, utcPtr(t.ExpectedDate), t.Description, now(), t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}
	return GetTransfer(ctx, db, t.ID)
}

// DeleteTransfer removes a Pending transfer.
func DeleteTransfer(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Transfer, "transfers", id, lifecycle.Transfer.CheckDeletable); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting transfer: %w", err)
	}
	return tx.Commit()
}

// TransitionTransfer changes the status of a transfer. Completion stamps the
// arrival date and the approving user.
func TransitionTransfer(ctx context.Context, db *sql.DB, id int64, requested string, actorID int64) (*model.Transfer, error) {
	var extra []setClause
	if requested == model.TransferStatusCompleted {
		extra = append(extra, set("actual_date = ?", now()), set("approved_by = ?", actorID))
	}
	if err := transitionRow(ctx, db, lifecycle.Transfer, "transfers", id, requested, extra...); err != nil {
		return nil, err
	}
	return GetTransfer(ctx, db, id)
}
