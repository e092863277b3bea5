package model

import "time"

// Assignment links a member of personnel to a duty, optionally drawing
// equipment from a purchased lot.
type Assignment struct {
	ID                  int64     `json:"id"`
	PersonnelID         int64     `json:"personnel_id"`
	Title               string    `json:"assignment"`
	Unit                string    `json:"unit"`
	Location            string    `json:"location"`
	Priority            string    `json:"priority"`
	Description         string    `json:"description,omitempty"`
	Duties              []string  `json:"duties"`
	EquipmentPurchaseID *int64    `json:"equipment_purchase_id,omitempty"`
	EquipmentQuantity   int       `json:"equipment_quantity"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	Status              string    `json:"status"`
	AssignedBy          int64     `json:"assigned_by"`
	ApprovedBy          *int64    `json:"approved_by,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	PersonnelName string `json:"personnel_name,omitempty"`
	PersonnelBase string `json:"personnel_base,omitempty"`
	AssignerName  string `json:"assigner_name,omitempty"`
	AssignerBase  string `json:"assigner_base,omitempty"`
	EquipmentItem string `json:"equipment_item,omitempty"`
}

// HasEquipment reports whether the assignment draws units from a purchase.
func (a *Assignment) HasEquipment() bool {
	return a.EquipmentPurchaseID != nil && a.EquipmentQuantity > 0
}

// Assignment statuses.
const (
	AssignmentStatusPending   = "Pending"
	AssignmentStatusActive    = "Active"
	AssignmentStatusCompleted = "Completed"
	AssignmentStatusCancelled = "Cancelled"
)

// Assignment priorities.
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ValidateAssignmentDates enforces end > start.
func ValidateAssignmentDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return Invalid("start_date", "and end_date are required")
	}
	if !end.After(start) {
		return Invalid("end_date", "must be after start date")
	}
	return nil
}
