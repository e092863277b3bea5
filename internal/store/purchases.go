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

// PurchaseBaseColumns are the columns purchase visibility is decided on.
var PurchaseBaseColumns = []string{"rq.base"}

const purchaseSelect = `SELECT p.id, p.item, p.category, p.quantity, p.quantity_available, p.unit_price,
	p.supplier, p.department, p.required_date, p.justification, p.specifications, p.description,
	p.image_mime, p.status, p.requested_by, p.approved_by, p.created_at, p.updated_at,
	rq.base, rq.first_name, rq.last_name, rq.username, ap.first_name, ap.last_name, ap.username
	FROM purchases p
	JOIN users rq ON rq.id = p.requested_by
	LEFT JOIN users ap ON ap.id = p.approved_by`

func scanPurchase(s scanner, p *model.Purchase) error {
	var requester, approver personName
	dest := []any{&p.ID, &p.Item, &p.Category, &p.Quantity, &p.QuantityAvailable, &p.UnitPrice,
		&p.Supplier, &p.Department, &p.RequiredDate, &p.Justification, &p.Specifications, &p.Description,
		&p.ImageMime, &p.Status, &p.RequestedBy, &p.ApprovedBy, &p.CreatedAt, &p.UpdatedAt,
		&p.RequesterBase}
	dest = append(dest, requester.dest()...)
	dest = append(dest, approver.dest()...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	p.RequesterName = requester.String()
	p.ApproverName = approver.String()
	return nil
}

func validatePurchase(p *model.Purchase) error {
	p.Item = strings.TrimSpace(p.Item)
	if p.Item == "" {
		return model.Invalid("item", "is required")
	}
	if !slices.Contains(model.PurchaseCategories, p.Category) {
		return model.Invalid("category", "must be one of "+strings.Join(model.PurchaseCategories, ", "))
	}
	if p.Quantity < 1 {
		return model.Invalid("quantity", "must be at least 1")
	}
	if p.UnitPrice < 0 {
		return model.Invalid("unit_price", "must not be negative")
	}
	return nil
}

// CreatePurchase records a new purchase request in Pending status.
func CreatePurchase(ctx context.Context, db *sql.DB, p *model.Purchase) (*model.Purchase, error) {
	if err := validatePurchase(p); err != nil {
		return nil, err
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO purchases (item, category, quantity, unit_price, supplier, department, required_date,
		 justification, specifications, description, status, requested_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Item, p.Category, p.Quantity, p.UnitPrice, p.Supplier, p.Department, utcPtr(p.RequiredDate),
		p.Justification, p.Specifications, p.Description, lifecycle.Purchase.Initial(), p.RequestedBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating purchase: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting purchase id: %w", err)
	}
	return GetPurchase(ctx, db, id)
}

// GetPurchase returns a purchase by ID.
func GetPurchase(ctx context.Context, db *sql.DB, id int64) (*model.Purchase, error) {
	return getPurchase(ctx, db, id)
}

func getPurchase(ctx context.Context, q querier, id int64) (*model.Purchase, error) {
	p := &model.Purchase{}
	err := scanPurchase(q.QueryRowContext(ctx, purchaseSelect+` WHERE p.id = ?`, id), p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting purchase: %w", err)
	}
	return p, nil
}

// PurchaseFilter narrows ListPurchases.
type PurchaseFilter struct {
	Status     string
	Category   string
	Department string
	Search     string
	From       *time.Time
	To         *time.Time
	// AvailableOnly keeps delivered lots that still have unallocated units.
	AvailableOnly bool
	Limit         int
}

// ListPurchases returns the purchases visible to v, newest first.
func ListPurchases(ctx context.Context, db *sql.DB, v rbac.Visibility, f PurchaseFilter) ([]model.Purchase, error) {
	where, args := v.Where(PurchaseBaseColumns...)
	query := purchaseSelect + ` WHERE ` + where

	if f.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, f.Status)
	}
	if f.Category != "" {
		query += ` AND p.category = ?`
		args = append(args, f.Category)
	}
	if f.Department != "" {
		query += ` AND p.department = ?`
		args = append(args, f.Department)
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		query += ` AND (p.item LIKE ? ESCAPE '\' OR p.specifications LIKE ? ESCAPE '\' OR p.supplier LIKE ? ESCAPE '\')`
		args = append(args, pat, pat, pat)
	}
	if f.AvailableOnly {
		query += ` AND p.status = ? AND p.quantity_available > 0`
		args = append(args, model.PurchaseStatusDelivered)
	}
	query, args = window{f.From, f.To}.apply("p.created_at", query, args)
	query += ` ORDER BY p.created_at DESC, p.id DESC`
	query, args = limitClause(query, args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	defer rows.Close()

	purchases := []model.Purchase{}
	for rows.Next() {
		var p model.Purchase
		if err := scanPurchase(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// UpdatePurchase replaces the editable fields of a purchase. Status,
// availability and approval are only changed through TransitionPurchase.
func UpdatePurchase(ctx context.Context, db *sql.DB, p *model.Purchase) (*model.Purchase, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Purchase, "purchases", p.ID, lifecycle.Purchase.CheckEditable); err != nil {
		return nil, err
	}
	if err := validatePurchase(p); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE purchases SET item = ?, category = ?, quantity = ?, unit_price = ?, supplier = ?, department = ?,
		 required_date = ?, justification = ?, specifications = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		p.Item, p.Category, p.Quantity, p.UnitPrice, p.Supplier, p.Department, utcPtr(p.RequiredDate),
		p.Justification, p.Specifications, p.Description, now(), p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purchase: %w", err)
	}
	return GetPurchase(ctx, db, p.ID)
}

// DeletePurchase removes a Pending purchase that no assignment references.
func DeletePurchase(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Purchase, "purchases", id, lifecycle.Purchase.CheckDeletable); err != nil {
		return err
	}

	var refs int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE equipment_purchase_id = ?`, id,
	).Scan(&refs); err != nil {
		return fmt.Errorf("counting purchase references: %w", err)
	}
	if refs > 0 {
		return &model.LockedError{Entity: "purchase", Reason: fmt.Sprintf("referenced by %d assignment(s)", refs)}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting purchase: %w", err)
	}
	return tx.Commit()
}

// TransitionPurchase changes the status of a purchase. Approval records the
// approver; the first delivery makes the whole lot available.
func TransitionPurchase(ctx context.Context, db *sql.DB, id int64, requested string, actorID int64) (*model.Purchase, error) {
	var extra []setClause
	switch requested {
	case model.PurchaseStatusApproved:
		extra = append(extra, set("approved_by = ?", actorID))
	case model.PurchaseStatusDelivered:
		extra = append(extra, set("quantity_available = COALESCE(quantity_available, quantity)"))
	}
	if err := transitionRow(ctx, db, lifecycle.Purchase, "purchases", id, requested, extra...); err != nil {
		return nil, err
	}
	return GetPurchase(ctx, db, id)
}

// SetPurchaseImage stores the processed photo of a purchase. Locked
// purchases keep the photo they were closed with.
func SetPurchaseImage(ctx context.Context, db *sql.DB, id int64, data []byte, mime string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockedStatus(ctx, tx, lifecycle.Purchase, "purchases", id, lifecycle.Purchase.CheckEditable); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE purchases SET image = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		data, mime, now(), id,
	); err != nil {
		return fmt.Errorf("setting purchase image: %w", err)
	}
	return tx.Commit()
}

// GetPurchaseImage returns the stored photo, or nil data when none was uploaded.
func GetPurchaseImage(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var data []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM purchases WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", &model.NotFoundError{Entity: "purchase", ID: id}
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting purchase image: %w", err)
	}
	return data, mime, nil
}
