package report

import (
	"sort"
	"time"

	"github.com/erazemk/garrison/internal/model"
)

// Activity is one entry of the recent activity feed.
type Activity struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	User       string    `json:"user"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	Category   string    `json:"category,omitempty"`
	Status     string    `json:"status"`
	Date       time.Time `json:"date"`
}

// PerKindLimit is how many records of each kind feed a list of limit entries.
func PerKindLimit(limit int) int {
	return max(limit/4, 1)
}

// RecentActivities merges the records into one feed, newest first, capped at limit.
func RecentActivities(limit int, purchases []model.Purchase, assignments []model.Assignment,
	transfers []model.Transfer, expenditures []model.Expenditure) []Activity {
	feed := make([]Activity, 0, len(purchases)+len(assignments)+len(transfers)+len(expenditures))

	for _, a := range assignments {
		feed = append(feed, Activity{
			ID: a.ID, Type: "assignment", Title: a.Title, User: a.PersonnelName,
			AssignedBy: a.AssignerName, Status: a.Status, Date: a.CreatedAt,
		})
	}
	for _, e := range expenditures {
		feed = append(feed, Activity{
			ID: e.ID, Type: "expenditure", Title: e.Description, User: e.RequesterName,
			Amount: e.Amount, Category: e.Category, Status: e.Status, Date: e.CreatedAt,
		})
	}
	for _, t := range transfers {
		feed = append(feed, Activity{
			ID: t.ID, Type: "transfer", Title: t.Equipment + ": " + t.SourceBase + " → " + t.DestinationBase,
			User: t.RequesterName, Status: t.Status, Date: t.CreatedAt,
		})
	}
	for _, p := range purchases {
		feed = append(feed, Activity{
			ID: p.ID, Type: "purchase", Title: p.Item, User: p.RequesterName,
			Amount: p.Total(), Category: p.Category, Status: p.Status, Date: p.CreatedAt,
		})
	}

	sort.SliceStable(feed, func(i, j int) bool { return feed[i].Date.After(feed[j].Date) })
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	return feed
}
