package model

import "time"

// Purchase is an acquired equipment lot.
//
// QuantityAvailable stays nil until the lot is first delivered. From then on
// it counts the units not allocated to an active assignment.
type Purchase struct {
	ID                int64      `json:"id"`
	Item              string     `json:"item"`
	Category          string     `json:"category"`
	Quantity          int        `json:"quantity"`
	QuantityAvailable *int       `json:"quantity_available"`
	UnitPrice         float64    `json:"unit_price"`
	Supplier          string     `json:"supplier"`
	Department        string     `json:"department"`
	RequiredDate      *time.Time `json:"required_date,omitempty"`
	Justification     string     `json:"justification,omitempty"`
	Specifications    string     `json:"specifications,omitempty"`
	Description       string     `json:"description,omitempty"`
	ImageMime         string     `json:"image_mime,omitempty"`
	Status            string     `json:"status"`
	RequestedBy       int64      `json:"requested_by"`
	ApprovedBy        *int64     `json:"approved_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	RequesterName string `json:"requester_name,omitempty"`
	RequesterBase string `json:"requester_base,omitempty"`
	ApproverName  string `json:"approver_name,omitempty"`
}

// Total is quantity times unit price.
func (p *Purchase) Total() float64 {
	return float64(p.Quantity) * p.UnitPrice
}

// Available returns the unallocated quantity, zero before delivery.
func (p *Purchase) Available() int {
	if p.QuantityAvailable == nil {
		return 0
	}
	return *p.QuantityAvailable
}

// Purchase statuses.
const (
	PurchaseStatusPending    = "Pending"
	PurchaseStatusApproved   = "Approved"
	PurchaseStatusProcessing = "Processing"
	PurchaseStatusDelivered  = "Delivered"
	PurchaseStatusCancelled  = "Cancelled"
)

// PurchaseCategories lists the accepted equipment categories.
var PurchaseCategories = []string{
	"Weapons", "Vehicles", "Communications", "Medical", "Protective", "Office Supplies", "Other",
}
