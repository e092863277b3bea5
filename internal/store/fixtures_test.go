package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/garrison/internal/model"
)

func mustUser(t *testing.T, db *sql.DB, username, role, base string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, &model.User{
		Username:     username,
		PasswordHash: "hash",
		FirstName:    username,
		LastName:     "Tester",
		Role:         role,
		Base:         base,
		Department:   "Logistics",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func mustPurchase(t *testing.T, db *sql.DB, requester *model.User, quantity int) *model.Purchase {
	t.Helper()
	p, err := CreatePurchase(context.Background(), db, &model.Purchase{
		Item:        "Radio set",
		Category:    "Communications",
		Quantity:    quantity,
		UnitPrice:   250,
		Supplier:    "Signal Corp",
		Department:  "Logistics",
		RequestedBy: requester.ID,
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	return p
}

// mustDelivered walks a new purchase through to Delivered.
func mustDelivered(t *testing.T, db *sql.DB, requester *model.User, quantity int) *model.Purchase {
	t.Helper()
	p := mustPurchase(t, db, requester, quantity)
	var err error
	for _, status := range []string{model.PurchaseStatusApproved, model.PurchaseStatusProcessing, model.PurchaseStatusDelivered} {
		p, err = TransitionPurchase(context.Background(), db, p.ID, status, requester.ID)
		if err != nil {
			t.Fatalf("TransitionPurchase(%s): %v", status, err)
		}
	}
	return p
}

func mustAssignment(t *testing.T, db *sql.DB, personnel, assigner *model.User, purchaseID *int64, quantity int) *model.Assignment {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a, err := CreateAssignment(context.Background(), db, &model.Assignment{
		PersonnelID:         personnel.ID,
		Title:               "Convoy escort",
		Unit:                "2nd Battalion",
		Location:            "Sector 4",
		Priority:            model.PriorityHigh,
		Duties:              []string{"Escort", " ", "Report"},
		EquipmentPurchaseID: purchaseID,
		EquipmentQuantity:   quantity,
		StartDate:           start,
		EndDate:             start.Add(30 * 24 * time.Hour),
		AssignedBy:          assigner.ID,
	})
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	return a
}

func mustTransfer(t *testing.T, db *sql.DB, requester *model.User, from, to string) *model.Transfer {
	t.Helper()
	tr, err := CreateTransfer(context.Background(), db, &model.Transfer{
		Equipment:       "Generators",
		Quantity:        2,
		SourceBase:      from,
		DestinationBase: to,
		RequestedBy:     requester.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	return tr
}

func mustExpenditure(t *testing.T, db *sql.DB, requester *model.User, amount float64, category, department string) *model.Expenditure {
	t.Helper()
	e, err := CreateExpenditure(context.Background(), db, &model.Expenditure{
		Description: "Diesel resupply",
		Amount:      amount,
		Category:    category,
		Department:  department,
		RequestedBy: requester.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpenditure: %v", err)
	}
	return e
}

func available(t *testing.T, db *sql.DB, purchaseID int64) int {
	t.Helper()
	p, err := GetPurchase(context.Background(), db, purchaseID)
	if err != nil || p == nil {
		t.Fatalf("GetPurchase(%d): %v", purchaseID, err)
	}
	return p.Available()
}
