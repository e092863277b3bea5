package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/garrison/internal/db"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

func TestExpenditureLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	officer := mustUser(t, database, "officer", model.RoleLogisticsOfficer, "Base A")
	cmdr := mustUser(t, database, "cmdr", model.RoleBaseCommander, "Base A")

	e := mustExpenditure(t, database, officer, 1200, "Fuel", "Transport")

	e, err := TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusApproved, cmdr.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if e.ApprovedBy == nil || *e.ApprovedBy != cmdr.ID {
		t.Error("approval should record the approver")
	}

	// Approved expenditures no longer take edits.
	e.Amount = 1
	if _, err := UpdateExpenditure(ctx, database, e); !errors.Is(err, model.ErrEntityLocked) {
		t.Errorf("expected approved expenditure to be locked, got %v", err)
	}

	if _, err := TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusCompleted, cmdr.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected Approved -> Completed to be rejected, got %v", err)
	}
	if _, err := TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusProcessing, cmdr.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	e, err = TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusCompleted, cmdr.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if e.PaymentDate == nil {
		t.Error("completion should stamp the payment date")
	}
}

func TestExpenditureCompletionSetsMissingApprover(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	officer := mustUser(t, database, "officer", model.RoleLogisticsOfficer, "Base A")
	cmdr := mustUser(t, database, "cmdr", model.RoleBaseCommander, "Base A")

	e := mustExpenditure(t, database, officer, 50, "Rations", "Supply")
	TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusProcessing, cmdr.ID)
	e, err := TransitionExpenditure(ctx, database, e.ID, model.ExpenditureStatusCompleted, cmdr.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if e.ApprovedBy == nil || *e.ApprovedBy != cmdr.ID {
		t.Error("completion without approval should record the approver")
	}
}

func TestExpenditureValidationAndDelete(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	officer := mustUser(t, database, "officer", model.RoleLogisticsOfficer, "Base A")

	bad := []model.Expenditure{
		{Description: "x", Amount: 0, Category: "Fuel"},
		{Description: "x", Amount: 10, Category: "Snacks"},
		{Description: " ", Amount: 10, Category: "Fuel"},
	}
	for _, e := range bad {
		e.RequestedBy = officer.ID
		if _, err := CreateExpenditure(ctx, database, &e); !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", e, err)
		}
	}

	e := mustExpenditure(t, database, officer, 10, "Training", "Ops")
	e.Amount = 15
	updated, err := UpdateExpenditure(ctx, database, e)
	if err != nil || updated.Amount != 15 {
		t.Fatalf("UpdateExpenditure: %v", err)
	}
	if err := DeleteExpenditure(ctx, database, e.ID); err != nil {
		t.Fatalf("DeleteExpenditure: %v", err)
	}
	if err := DeleteExpenditure(ctx, database, e.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListExpendituresFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alpha := mustUser(t, database, "alpha", model.RoleLogisticsOfficer, "Base A")
	bravo := mustUser(t, database, "bravo", model.RoleLogisticsOfficer, "Base B")

	mustExpenditure(t, database, alpha, 100, "Fuel", "Transport")
	mustExpenditure(t, database, alpha, 200, "Medical", "Clinic")
	mustExpenditure(t, database, bravo, 300, "Fuel", "Transport")

	baseA := rbac.Resolve(rbac.Principal{Role: model.RoleLogisticsOfficer, Base: "Base A"})
	list, err := ListExpenditures(ctx, database, baseA, ExpenditureFilter{})
	if err != nil {
		t.Fatalf("ListExpenditures: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("base A should see 2 expenditures, got %d", len(list))
	}

	fuel, _ := ListExpenditures(ctx, database, baseA, ExpenditureFilter{Category: "Fuel"})
	if len(fuel) != 1 || fuel[0].Amount != 100 {
		t.Errorf("expected one base A fuel expenditure, got %v", fuel)
	}

	future := time.Now().Add(48 * time.Hour)
	none, _ := ListExpenditures(ctx, database, baseA, ExpenditureFilter{From: &future})
	if len(none) != 0 {
		t.Errorf("expected no expenditures from the future, got %d", len(none))
	}

	past := time.Now().Add(-48 * time.Hour)
	windowed, _ := ListExpenditures(ctx, database, baseA, ExpenditureFilter{From: &past, To: &future, Department: "Clinic"})
	if len(windowed) != 1 {
		t.Errorf("expected one clinic expenditure in window, got %d", len(windowed))
	}
}
