// Package report folds scoped record sets into the dashboard views and the
// spreadsheet export. Callers pass records already filtered by visibility.
package report

import (
	"sort"
	"time"

	"github.com/erazemk/garrison/internal/model"
)

// StatusStat aggregates the records of one status.
type StatusStat struct {
	Count    int     `json:"count"`
	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`
}

// Group aggregates one record kind.
type Group struct {
	Total         int                   `json:"total"`
	TotalAmount   float64               `json:"total_amount"`
	TotalQuantity int                   `json:"total_quantity"`
	ByStatus      map[string]StatusStat `json:"by_status"`
}

func (g *Group) add(status string, amount float64, quantity int) {
	if g.ByStatus == nil {
		g.ByStatus = map[string]StatusStat{}
	}
	s := g.ByStatus[status]
	s.Count++
	s.Amount += amount
	s.Quantity += quantity
	g.ByStatus[status] = s
	g.Total++
	g.TotalAmount += amount
	g.TotalQuantity += quantity
}

// Movement is the equipment balance of a base.
type Movement struct {
	FlowingIn  int `json:"flowing_in"`
	FlowingOut int `json:"flowing_out"`
	NetBalance int `json:"net_balance"`
}

// Summary holds the headline totals.
type Summary struct {
	TotalExpenditures float64 `json:"total_expenditures"`
	TotalPurchases    float64 `json:"total_purchases"`
	BasePersonnel     int     `json:"base_personnel"`
	Period            string  `json:"period"`
}

// Personnel counts users by department.
type Personnel struct {
	Total        int            `json:"total"`
	ByDepartment map[string]int `json:"by_department"`
}

// Dashboard is the canonical metrics view.
type Dashboard struct {
	Base         string    `json:"base"`
	Summary      Summary   `json:"summary"`
	NetMovement  Movement  `json:"net_movement"`
	Assignments  Group     `json:"assignments"`
	Expenditures Group     `json:"expenditures"`
	TransfersOut Group     `json:"transfers_out"`
	TransfersIn  Group     `json:"transfers_in"`
	Purchases    Group     `json:"purchases"`
	Personnel    Personnel `json:"personnel"`
}

// Input is the scoped record set a dashboard is built from.
type Input struct {
	// Base is the base the records were narrowed to, empty when unrestricted.
	Base         string
	From         *time.Time
	To           *time.Time
	Purchases    []model.Purchase
	Assignments  []model.Assignment
	Transfers    []model.Transfer
	Expenditures []model.Expenditure
	Users        []model.User
}

// Period describes the reporting window.
func Period(from, to *time.Time) string {
	const layout = "2006-01-02"
	switch {
	case from == nil && to == nil:
		return "All-time"
	case to == nil:
		return "Since " + from.Format(layout)
	case from == nil:
		return "Until " + to.Format(layout)
	}
	return from.Format(layout) + " to " + to.Format(layout)
}

// BuildDashboard folds the input into a Dashboard. Without a base, every
// transfer counts both as inbound and outbound.
func BuildDashboard(in Input) Dashboard {
	d := Dashboard{
		Base:         in.Base,
		Assignments:  Group{ByStatus: map[string]StatusStat{}},
		Expenditures: Group{ByStatus: map[string]StatusStat{}},
		TransfersOut: Group{ByStatus: map[string]StatusStat{}},
		TransfersIn:  Group{ByStatus: map[string]StatusStat{}},
		Purchases:    Group{ByStatus: map[string]StatusStat{}},
		Personnel:    Personnel{ByDepartment: map[string]int{}},
	}

	for _, a := range in.Assignments {
		d.Assignments.add(a.Status, 0, a.EquipmentQuantity)
	}
	for _, e := range in.Expenditures {
		d.Expenditures.add(e.Status, e.Amount, 0)
	}
	for _, p := range in.Purchases {
		d.Purchases.add(p.Status, p.Total(), p.Quantity)
	}
	for _, t := range in.Transfers {
		if in.Base == "" || t.SourceBase == in.Base {
			d.TransfersOut.add(t.Status, 0, t.Quantity)
		}
		if in.Base == "" || t.DestinationBase == in.Base {
			d.TransfersIn.add(t.Status, 0, t.Quantity)
		}
	}
	for _, u := range in.Users {
		d.Personnel.Total++
		d.Personnel.ByDepartment[u.Department]++
	}

	d.NetMovement = Movement{
		FlowingIn:  d.TransfersIn.TotalQuantity + d.Purchases.TotalQuantity,
		FlowingOut: d.TransfersOut.TotalQuantity,
	}
	d.NetMovement.NetBalance = d.NetMovement.FlowingIn - d.NetMovement.FlowingOut

	d.Summary = Summary{
		TotalExpenditures: d.Expenditures.TotalAmount,
		TotalPurchases:    d.Purchases.TotalAmount,
		BasePersonnel:     d.Personnel.Total,
		Period:            Period(in.From, in.To),
	}
	return d
}

// CategoryTotal is the expenditure total of one category in a department.
type CategoryTotal struct {
	Category    string  `json:"category"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

// DepartmentTotal groups expenditures of one department.
type DepartmentTotal struct {
	Department  string          `json:"department"`
	TotalAmount float64         `json:"total_amount"`
	Count       int             `json:"count"`
	Categories  []CategoryTotal `json:"categories"`
}

// DepartmentSummary groups expenditures by department then category, largest
// department first. Categories are ordered by name.
func DepartmentSummary(expenditures []model.Expenditure) []DepartmentTotal {
	type acc struct {
		total      DepartmentTotal
		categories map[string]*CategoryTotal
	}
	byDept := map[string]*acc{}
	for _, e := range expenditures {
		a, ok := byDept[e.Department]
		if !ok {
			a = &acc{total: DepartmentTotal{Department: e.Department}, categories: map[string]*CategoryTotal{}}
			byDept[e.Department] = a
		}
		a.total.TotalAmount += e.Amount
		a.total.Count++
		c, ok := a.categories[e.Category]
		if !ok {
			c = &CategoryTotal{Category: e.Category}
			a.categories[e.Category] = c
		}
		c.TotalAmount += e.Amount
		c.Count++
	}

	out := make([]DepartmentTotal, 0, len(byDept))
	for _, a := range byDept {
		for _, c := range a.categories {
			a.total.Categories = append(a.total.Categories, *c)
		}
		sort.Slice(a.total.Categories, func(i, j int) bool {
			return a.total.Categories[i].Category < a.total.Categories[j].Category
		})
		out = append(out, a.total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].Department < out[j].Department
	})
	return out
}
