package report

import (
	"time"

	"github.com/erazemk/garrison/internal/model"
)

// MovementItem is one inbound or outbound equipment record.
type MovementItem struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Quantity int       `json:"quantity"`
	Amount   float64   `json:"amount"`
	Status   string    `json:"status"`
	Date     time.Time `json:"date"`
	User     string    `json:"user"`
}

// MovementTotals sums both directions.
type MovementTotals struct {
	InflowTotal  int     `json:"inflow_total"`
	InflowValue  float64 `json:"inflow_value"`
	OutflowTotal int     `json:"outflow_total"`
	OutflowValue float64 `json:"outflow_value"`
	NetQuantity  int     `json:"net_quantity"`
	NetValue     float64 `json:"net_value"`
}

// MovementDetail is the itemized net movement of a base.
type MovementDetail struct {
	Base    string         `json:"base"`
	Period  string         `json:"period"`
	Summary MovementTotals `json:"summary"`
	Inflow  []MovementItem `json:"inflow"`
	Outflow []MovementItem `json:"outflow"`
}

// NetMovement itemizes purchases and inbound transfers as inflow and outbound
// transfers as outflow. Without a base every transfer is listed both ways.
func NetMovement(base string, purchases []model.Purchase, transfers []model.Transfer) MovementDetail {
	d := MovementDetail{Base: base, Period: Period(nil, nil), Inflow: []MovementItem{}, Outflow: []MovementItem{}}

	for _, p := range purchases {
		d.Inflow = append(d.Inflow, MovementItem{
			ID: p.ID, Type: "purchase", Title: p.Item, Category: p.Category, Quantity: p.Quantity,
			Amount: p.Total(), Status: p.Status, Date: p.CreatedAt, User: p.RequesterName,
		})
	}
	for _, t := range transfers {
		if base == "" || t.DestinationBase == base {
			d.Inflow = append(d.Inflow, MovementItem{
				ID: t.ID, Type: "transfer_in", Title: "Transfer from " + t.SourceBase, Category: "Transfer",
				Quantity: t.Quantity, Status: t.Status, Date: t.CreatedAt, User: t.RequesterName,
			})
		}
		if base == "" || t.SourceBase == base {
			d.Outflow = append(d.Outflow, MovementItem{
				ID: t.ID, Type: "transfer_out", Title: "Transfer to " + t.DestinationBase, Category: "Transfer",
				Quantity: t.Quantity, Status: t.Status, Date: t.CreatedAt, User: t.RequesterName,
			})
		}
	}

	for _, it := range d.Inflow {
		d.Summary.InflowTotal += it.Quantity
		d.Summary.InflowValue += it.Amount
	}
	for _, it := range d.Outflow {
		d.Summary.OutflowTotal += it.Quantity
		d.Summary.OutflowValue += it.Amount
	}
	d.Summary.NetQuantity = d.Summary.InflowTotal - d.Summary.OutflowTotal
	d.Summary.NetValue = d.Summary.InflowValue - d.Summary.OutflowValue
	return d
}
