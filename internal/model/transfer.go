package model

import "time"

// Transfer moves equipment between two bases.
type Transfer struct {
	ID              int64      `json:"id"`
	Equipment       string     `json:"equipment"`
	Quantity        int        `json:"quantity"`
	SourceBase      string     `json:"source_base"`
	DestinationBase string     `json:"destination_base"`
	ExpectedDate    *time.Time `json:"expected_date,omitempty"`
	ActualDate      *time.Time `json:"actual_date,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	RequestedBy     int64      `json:"requested_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	RequesterName string `json:"requester_name,omitempty"`
	ApproverName  string `json:"approver_name,omitempty"`
}

// Transfer statuses.
const (
	TransferStatusPending   = "Pending"
	TransferStatusInTransit = "In Transit"
	TransferStatusCompleted = "Completed"
	TransferStatusCancelled = "Cancelled"
)
