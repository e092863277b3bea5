package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

// ExpenditureBaseColumns are the columns expenditure visibility is decided on.
var ExpenditureBaseColumns = []string{"rq.base"}

const expenditureSelect = `SELECT e.id, e.description, e.amount, e.category, e.department, e.status,
	e.requested_by, e.approved_by, e.payment_date, e.created_at, e.updated_at,
	rq.base, rq.first_name, rq.last_name, rq.username, ap.first_name, ap.last_name, ap.username
	FROM expenditures e
	JOIN users rq ON rq.id = e.requested_by
	LEFT JOIN users ap ON ap.id = e.approved_by`

func scanExpenditure(s scanner, e *model.Expenditure) error {
	var requester, approver personName
	dest := []any{&e.ID, &e.Description, &e.Amount, &e.Category, &e.Department, &e.Status,
		&e.RequestedBy, &e.ApprovedBy, &e.PaymentDate, &e.CreatedAt, &e.UpdatedAt, &e.RequesterBase}
	dest = append(dest, requester.dest()...)
	dest = append(dest, approver.dest()...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	e.RequesterName = requester.String()
	e.ApproverName = approver.String()
	return nil
}

func validateExpenditure(e *model.Expenditure) error {
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return model.Invalid("description", "is required")
	}
	if e.Amount <= 0 {
		return model.Invalid("amount", "must be greater than zero")
	}
	if !slices.Contains(model.ExpenditureCategories, e.Category) {
		return model.Invalid("category", "must be one of "+strings.Join(model.ExpenditureCategories, ", "))
	}
	return nil
}

// CreateExpenditure records a new expenditure in Pending status.
func CreateExpenditure(ctx context.Context, db *sql.DB, e *model.Expenditure) (*model.Expenditure, error) {
	if err := validateExpenditure(e); err != nil {
		return nil, err
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO expenditures (description, amount, category, department, status, requested_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Description, e.Amount, e.Category, e.Department, lifecycle.Expenditure.Initial(), e.RequestedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating expenditure: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting expenditure id: %w", err)
	}
	return GetExpenditure(ctx, db, id)
}

// GetExpenditure returns an expenditure by ID.
func GetExpenditure(ctx context.Context, db *sql.DB, id int64) (*model.Expenditure, error) {
	e := &model.Expenditure{}
	err := scanExpenditure(db.QueryRowContext(ctx, expenditureSelect+` WHERE e.id = ?`, id), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting expenditure: %w", err)
	}
	return e, nil
}

// ExpenditureFilter narrows ListExpenditures.
type ExpenditureFilter struct {
	Status     string
	Category   string
	Department string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// ListExpenditures returns the expenditures visible to v, newest first.
func ListExpenditures(ctx context.Context, db *sql.DB, v rbac.Visibility, f ExpenditureFilter) ([]model.Expenditure, error) {
	where, args := v.Where(ExpenditureBaseColumns...)
	query := expenditureSelect + ` WHERE ` + where

	if f.Status != "" {
		query += ` AND e.status = ?`
		args = append(args, f.Status)
	}
	if f.Category != "" {
		query += ` AND e.category = ?`
		args = append(args, f.Category)
	}
	if f.Department != "" {
		query += ` AND e.department = ?`
		args = append(args, f.Department)
	}
	query, args = window{f.From, f.To}.apply("e.created_at", query, args)
	query += ` ORDER BY e.created_at DESC, e.id DESC`
	query, args = limitClause(query, args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenditures: %w", err)
	}
	defer rows.Close()

	expenditures := []model.Expenditure{}
	for rows.Next() {
		var e model.Expenditure
		if err := scanExpenditure(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning expenditure: %w", err)
		}
		expenditures = append(expenditures, e)
	}
	return expenditures, rows.Err()
}

// UpdateExpenditure replaces the editable fields of an expenditure. Approved
// and terminal expenditures are locked.
func UpdateExpenditure(ctx context.Context, db *sql.DB, e *model.Expenditure) (*model.Expenditure, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Expenditure, "expenditures", e.ID, lifecycle.Expenditure.CheckEditable); err != nil {
		return nil, err
	}
	if err := validateExpenditure(e); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenditures SET description = ?, amount = ?, category = ?, department = ?, updated_at = ?
		 WHERE id = ?`,
		e.Description, e.Amount, e.Category, e.Department, now(), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating expenditure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing expenditure: %w", err)
	}
	return GetExpenditure(ctx, db, e.ID)
}

// DeleteExpenditure removes a Pending expenditure.
func DeleteExpenditure(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Expenditure, "expenditures", id, lifecycle.Expenditure.CheckDeletable); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expenditures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting expenditure: %w", err)
	}
	return tx.Commit()
}

// TransitionExpenditure changes the status of an expenditure. Approval
// records the approver; completion stamps the payment date.
func TransitionExpenditure(ctx context.Context, db *sql.DB, id int64, requested string, actorID int64) (*model.Expenditure, error) {
	var extra []setClause
	switch requested {
	case model.ExpenditureStatusApproved:
		extra = append(extra, set("approved_by = ?", actorID))
	case model.ExpenditureStatusCompleted:
		extra = append(extra, set("payment_date = ?", now()), set("approved_by = COALESCE(approved_by, ?)", actorID))
	}
	if err := transitionRow(ctx, db, lifecycle.Expenditure, "expenditures", id, requested, extra...); err != nil {
		return nil, err
	}
	return GetExpenditure(ctx, db, id)
}
