package model

import "time"

// Expenditure records consumption or loss of material.
type Expenditure struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	Category    string     `json:"category"`
	Department  string     `json:"department"`
	Status      string     `json:"status"`
	RequestedBy int64      `json:"requested_by"`
	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	RequesterName string `json:"requester_name,omitempty"`
	RequesterBase string `json:"requester_base,omitempty"`
	ApproverName  string `json:"approver_name,omitempty"`
}

// Expenditure statuses.
const (
	ExpenditureStatusPending    = "Pending"
	ExpenditureStatusProcessing = "Processing"
	ExpenditureStatusApproved   = "Approved"
	ExpenditureStatusCompleted  = "Completed"
	ExpenditureStatusRejected   = "Rejected"
)

// ExpenditureCategories lists the accepted expenditure categories.
var ExpenditureCategories = []string{
	"Fuel", "Ammunition", "Maintenance", "Training", "Medical", "Rations", "Equipment Loss", "Other",
}

// InventoryReturn is a queued equipment return that could not be applied
// when its assignment finished.
type InventoryReturn struct {
	ID           int64     `json:"id"`
	AssignmentID int64     `json:"assignment_id"`
	PurchaseID   int64     `json:"purchase_id"`
	Quantity     int       `json:"quantity"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
