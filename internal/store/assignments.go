package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

// AssignmentBaseColumns are the columns assignment visibility is decided on:
// the assigned member's base and the assigning officer's base.
var AssignmentBaseColumns = []string{"pu.base", "asg.base"}

const assignmentSelect = `SELECT a.id, a.personnel_id, a.assignment, a.unit, a.location, a.priority,
	a.description, a.duties, a.equipment_purchase_id, a.equipment_quantity, a.start_date, a.end_date,
	a.status, a.assigned_by, a.approved_by, a.created_at, a.updated_at,
	pu.base, asg.base, COALESCE(eq.item, ''),
	pu.first_name, pu.last_name, pu.username, asg.first_name, asg.last_name, asg.username
	FROM assignments a
	JOIN users pu ON pu.id = a.personnel_id
	JOIN users asg ON asg.id = a.assigned_by
	LEFT JOIN purchases eq ON eq.id = a.equipment_purchase_id`

func scanAssignment(s scanner, a *model.Assignment) error {
	var personnel, assigner personName
	var duties string
	dest := []any{&a.ID, &a.PersonnelID, &a.Title, &a.Unit, &a.Location, &a.Priority,
		&a.Description, &duties, &a.EquipmentPurchaseID, &a.EquipmentQuantity, &a.StartDate, &a.EndDate,
		&a.Status, &a.AssignedBy, &a.ApprovedBy, &a.CreatedAt, &a.UpdatedAt,
		&a.PersonnelBase, &a.AssignerBase, &a.EquipmentItem}
	dest = append(dest, personnel.dest()...)
	dest = append(dest, assigner.dest()...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	a.PersonnelName = personnel.String()
	a.AssignerName = assigner.String()
	a.Duties = []string{}
	if duties != "" {
		if err := json.Unmarshal([]byte(duties), &a.Duties); err != nil {
			return fmt.Errorf("decoding duties: %w", err)
		}
	}
	return nil
}

func encodeDuties(duties []string) (string, error) {
	cleaned := make([]string, 0, len(duties))
	for _, d := range duties {
		if d = strings.TrimSpace(d); d != "" {
			cleaned = append(cleaned, d)
		}
	}
	b, err := json.Marshal(cleaned)
	if err != nil {
		return "", fmt.Errorf("encoding duties: %w", err)
	}
	return string(b), nil
}

// validateAssignment checks fields and references. The personnel must be an
// active user and the equipment lot, when named, must exist.
func validateAssignment(ctx context.Context, q querier, a *model.Assignment) error {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return model.Invalid("assignment", "is required")
	}
	if a.Priority == "" {
		a.Priority = model.PriorityMedium
	}
	if !model.ValidPriority(a.Priority) {
		return model.Invalid("priority", "must be one of Low, Medium, High, Critical")
	}
	if err := model.ValidateAssignmentDates(a.StartDate, a.EndDate); err != nil {
		return err
	}
	if a.EquipmentQuantity < 0 {
		return model.Invalid("equipment_quantity", "must not be negative")
	}
	if a.EquipmentQuantity > 0 && a.EquipmentPurchaseID == nil {
		return model.Invalid("equipment_purchase_id", "is required when equipment_quantity is set")
	}

	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND deleted_at IS NULL`, a.PersonnelID,
	).Scan(&n); err != nil {
		return fmt.Errorf("checking personnel: %w", err)
	}
	if n == 0 {
		return model.Invalid("personnel_id", "does not reference an active user")
	}

	if a.EquipmentPurchaseID != nil {
		var quantity int
		err := q.QueryRowContext(ctx,
			`SELECT quantity FROM purchases WHERE id = ?`, *a.EquipmentPurchaseID,
		).Scan(&quantity)
		if err == sql.ErrNoRows {
			return model.Invalid("equipment_purchase_id", "does not reference a purchase")
		}
		if err != nil {
			return fmt.Errorf("checking equipment purchase: %w", err)
		}
		if a.EquipmentQuantity > quantity {
			return model.Invalid("equipment_quantity", fmt.Sprintf("exceeds the purchased quantity of %d", quantity))
		}
	}
	return nil
}

// CreateAssignment records a new assignment in Pending status. No equipment
// is allocated until it is activated.
func CreateAssignment(ctx context.Context, db *sql.DB, a *model.Assignment) (*model.Assignment, error) {
	if err := validateAssignment(ctx, db, a); err != nil {
		return nil, err
	}
	duties, err := encodeDuties(a.Duties)
	if err != nil {
		return nil, err
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO assignments (personnel_id, assignment, unit, location, priority, description, duties,
		 equipment_purchase_id, equipment_quantity, start_date, end_date, status, assigned_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PersonnelID, a.Title, a.Unit, a.Location, a.Priority, a.Description, duties,
		a.EquipmentPurchaseID, a.EquipmentQuantity, a.StartDate.UTC(), a.EndDate.UTC(),
		lifecycle.Assignment.Initial(), a.AssignedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting assignment id: %w", err)
	}
	return GetAssignment(ctx, db, id)
}

// GetAssignment returns an assignment by ID.
func GetAssignment(ctx context.Context, db *sql.DB, id int64) (*model.Assignment, error) {
	a := &model.Assignment{}
	err := scanAssignment(db.QueryRowContext(ctx, assignmentSelect+` WHERE a.id = ?`, id), a)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return a, nil
}

// AssignmentFilter narrows ListAssignments.
type AssignmentFilter struct {
	PersonnelID int64
	PurchaseID  int64
	Status      string
	From        *time.Time
	To          *time.Time
	Limit       int
}

// ListAssignments returns the assignments visible to v, newest first.
func ListAssignments(ctx context.Context, db *sql.DB, v rbac.Visibility, f AssignmentFilter) ([]model.Assignment, error) {
	where, args := v.Where(AssignmentBaseColumns...)
	query := assignmentSelect + ` WHERE ` + where

	if f.PersonnelID > 0 {
		query += ` AND a.personnel_id = ?`
		args = append(args, f.PersonnelID)
	}
	if f.PurchaseID > 0 {
		query += ` AND a.equipment_purchase_id = ?`
		args = append(args, f.PurchaseID)
	}
	if f.Status != "" {
		query += ` AND a.status = ?`
		args = append(args, f.Status)
	}
	query, args = window{f.From, f.To}.apply("a.created_at", query, args)
	query += ` ORDER BY a.created_at DESC, a.id DESC`
	query, args = limitClause(query, args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	assignments := []model.Assignment{}
	for rows.Next() {
		var a model.Assignment
		if err := scanAssignment(rows, &a); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// UpdateAssignment replaces the editable fields of an assignment. The
// equipment allocation can only change while the assignment is Pending,
// since an active one already holds its units.
func UpdateAssignment(ctx context.Context, db *sql.DB, a *model.Assignment) (*model.Assignment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var purchaseID *int64
	var quantity int
	err = tx.QueryRowContext(ctx,
		`SELECT status, equipment_purchase_id, equipment_quantity FROM assignments WHERE id = ?`, a.ID,
	).Scan(&status, &purchaseID, &quantity)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Entity: "assignment", ID: a.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading assignment: %w", err)
	}
	if err := lifecycle.Assignment.CheckEditable(status); err != nil {
		return nil, err
	}
	if status != model.AssignmentStatusPending && (quantity != a.EquipmentQuantity || !sameID(purchaseID, a.EquipmentPurchaseID)) {
		return nil, &model.LockedError{Entity: "assignment", Status: status,
			Reason: "equipment can only change while the assignment is Pending"}
	}

	if err := validateAssignment(ctx, tx, a); err != nil {
		return nil, err
	}
	duties, err := encodeDuties(a.Duties)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE assignments SET personnel_id = ?, assignment = ?, unit = ?, location = ?, priority = ?,
		 description = ?, duties = ?, equipment_purchase_id = ?, equipment_quantity = ?, start_date = ?,
		 end_date = ?, updated_at = ?
		 WHERE id = ?`,
		a.PersonnelID, a.Title, a.Unit, a.Location, a.Priority, a.Description, duties,
		a.EquipmentPurchaseID, a.EquipmentQuantity, a.StartDate.UTC(), a.EndDate.UTC(), now(), a.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}
	return GetAssignment(ctx, db, a.ID)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteAssignment removes a Pending assignment.
func DeleteAssignment(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Assignment, "assignments", id, lifecycle.Assignment.CheckDeletable); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	return tx.Commit()
}

// AssignmentTransition is the outcome of a successful assignment status change.
type AssignmentTransition struct {
	Assignment *model.Assignment
	From       string
	// Returned is the number of units credited back to the equipment lot.
	Returned int
	// ReturnErr is set when the credit could not be applied. The status
	// change still holds and the return is queued for retry.
	ReturnErr *model.ReturnError
}

// TransitionAssignment changes the status of an assignment.
//
// Activation allocates the equipment in the same transaction as the status
// change, with a guarded decrement so concurrent activations cannot overdraw
// the lot. Completing, or cancelling an active assignment, gives the units
// back after the status change has been committed.
func TransitionAssignment(ctx context.Context, db *sql.DB, id int64, requested string, actorID int64) (*AssignmentTransition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var purchaseID *int64
	var quantity int
	err = tx.QueryRowContext(ctx,
		`SELECT equipment_purchase_id, equipment_quantity FROM assignments WHERE id = ?`, id,
	).Scan(&purchaseID, &quantity)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Entity: "assignment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading assignment: %w", err)
	}
	hasEquipment := purchaseID != nil && quantity > 0

	var extra []setClause
	if requested == model.AssignmentStatusCompleted {
		extra = append(extra, set("approved_by = ?", actorID))
	}
	from, err := changeStatus(ctx, tx, lifecycle.Assignment, "assignments", id, requested, extra...)
	if err != nil {
		return nil, err
	}

	if requested == model.AssignmentStatusActive && hasEquipment {
		if err := allocate(ctx, tx, *purchaseID, quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment status: %w", err)
	}

	res := &AssignmentTransition{From: from}
	releases := requested == model.AssignmentStatusCompleted ||
		(requested == model.AssignmentStatusCancelled && from == model.AssignmentStatusActive)
	if releases && hasEquipment {
		if err := returnEquipment(ctx, db, *purchaseID, quantity); err != nil {
			res.ReturnErr = &model.ReturnError{AssignmentID: id, PurchaseID: *purchaseID, Quantity: quantity, Err: err}
			if qerr := enqueueReturn(ctx, db, id, *purchaseID, quantity, err); qerr != nil {
				res.ReturnErr.Err = errors.Join(err, qerr)
			}
		} else {
			res.Returned = quantity
		}
	}

	res.Assignment, err = GetAssignment(ctx, db, id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// allocate takes quantity units from a delivered lot. The decrement only
// applies while enough units remain.
func allocate(ctx context.Context, tx *sql.Tx, purchaseID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE purchases SET quantity_available = quantity_available - ?, updated_at = ?
		 WHERE id = ? AND quantity_available >= ?`,
		quantity, now(), purchaseID, quantity,
	)
	if err != nil {
		return fmt.Errorf("allocating equipment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return nil
	}

	var available sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT quantity_available FROM purchases WHERE id = ?`, purchaseID).Scan(&available)
	if err == sql.ErrNoRows {
		return &model.NotFoundError{Entity: "purchase", ID: purchaseID}
	}
	if err != nil {
		return fmt.Errorf("reading available equipment: %w", err)
	}
	return &model.InventoryError{PurchaseID: purchaseID, Required: quantity, Available: int(available.Int64)}
}

// returnEquipment credits units back to a lot, never above its quantity.
func returnEquipment(ctx context.Context, q querier, purchaseID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE purchases SET quantity_available = MIN(quantity, COALESCE(quantity_available, 0) + ?), updated_at = ?
		 WHERE id = ?`,
		quantity, now(), purchaseID,
	)
	if err != nil {
		return fmt.Errorf("returning equipment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "purchase", ID: purchaseID}
	}
	return nil
}
