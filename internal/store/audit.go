package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/garrison/internal/model"
)

// AuditEntry is the recomputed allocation of one delivered lot.
type AuditEntry struct {
	PurchaseID int64  `json:"purchase_id"`
	Item       string `json:"item"`
	Quantity   int    `json:"quantity"`
	Available  int    `json:"quantity_available"`
	// Allocated sums equipment_quantity over Active assignments.
	Allocated int `json:"allocated"`
	// Queued sums returns waiting in the compensation queue.
	Queued int `json:"queued_returns"`
	// Consistent is Allocated + Available <= Quantity.
	Consistent bool `json:"consistent"`
	// Unaccounted is the number of units neither available, allocated nor queued.
	Unaccounted int `json:"unaccounted"`
}

// AuditInventory recomputes the allocation of every delivered purchase from
// the assignment rows. It only reads.
func AuditInventory(ctx context.Context, db *sql.DB) ([]AuditEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.item, p.quantity, COALESCE(p.quantity_available, 0),
		        COALESCE((SELECT SUM(a.equipment_quantity) FROM assignments a
		                  WHERE a.equipment_purchase_id = p.id AND a.status = ?), 0),
		        COALESCE((SELECT SUM(r.quantity) FROM inventory_returns r WHERE r.purchase_id = p.id), 0)
		 FROM purchases p
		 WHERE p.status = ?
		 ORDER BY p.id`,
		model.AssignmentStatusActive, model.PurchaseStatusDelivered,
	)
	if err != nil {
		return nil, fmt.Errorf("auditing inventory: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.PurchaseID, &e.Item, &e.Quantity, &e.Available, &e.Allocated, &e.Queued); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Consistent = e.Allocated+e.Available <= e.Quantity
		e.Unaccounted = max(e.Quantity-e.Allocated-e.Available-e.Queued, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
