package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/garrison/internal/db"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

func TestTransferCannotSkipTransit(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	cmdr := mustUser(t, database, "cmdr", model.RoleBaseCommander, "Base A")
	tr := mustTransfer(t, database, cmdr, "Base A", "Base B")

	_, err := TransitionTransfer(ctx, database, tr.ID, model.TransferStatusCompleted, cmdr.ID)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	got, _ := GetTransfer(ctx, database, tr.ID)
	if got.Status != model.TransferStatusPending {
		t.Errorf("status changed to %s", got.Status)
	}
	if got.ActualDate != nil {
		t.Error("actual date stamped on a rejected transition")
	}
}

func TestTransferCompletion(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	officer := mustUser(t, database, "officer", model.RoleLogisticsOfficer, "Base A")
	cmdr := mustUser(t, database, "cmdr", model.RoleBaseCommander, "Base A")
	tr := mustTransfer(t, database, officer, "Base A", "Base B")

	if _, err := TransitionTransfer(ctx, database, tr.ID, model.TransferStatusInTransit, cmdr.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	done, err := TransitionTransfer(ctx, database, tr.ID, model.TransferStatusCompleted, cmdr.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.ActualDate == nil {
		t.Error("expected actual date to be stamped")
	}
	if done.ApprovedBy == nil || *done.ApprovedBy != cmdr.ID {
		t.Errorf("expected approver %d, got %v", cmdr.ID, done.ApprovedBy)
	}

	done.Description = "late edit"
	if _, err := UpdateTransfer(ctx, database, done); !errors.Is(err, model.ErrEntityLocked) {
		t.Errorf("expected completed transfer to be locked, got %v", err)
	}
	// An invalid edit still reports the lock.
	done.Quantity = 0
	done.DestinationBase = done.SourceBase
	if _, err := UpdateTransfer(ctx, database, done); !errors.Is(err, model.ErrEntityLocked) {
		t.Errorf("expected lock before validation, got %v", err)
	}
	if err := DeleteTransfer(ctx, database, done.ID); !errors.Is(err, model.ErrEntityLocked) {
		t.Errorf("expected completed transfer delete to be locked, got %v", err)
	}
}

func TestCreateTransferValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	u := mustUser(t, database, "officer", model.RoleLogisticsOfficer, "Base A")

	tests := []struct {
		name string
		tr   model.Transfer
	}{
		{"same base", model.Transfer{Equipment: "x", Quantity: 1, SourceBase: "Base A", DestinationBase: " Base A "}},
		{"no quantity", model.Transfer{Equipment: "x", SourceBase: "Base A", DestinationBase: "Base B"}},
		{"no equipment", model.Transfer{Quantity: 1, SourceBase: "Base A", DestinationBase: "Base B"}},
		{"no destination", model.Transfer{Equipment: "x", Quantity: 1, SourceBase: "Base A"}},
	}
	for _, tt := range tests {
		tt.tr.RequestedBy = u.ID
		if _, err := CreateTransfer(ctx, database, &tt.tr); !errors.Is(err, model.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tt.name, err)
		}
	}
}

func TestBaseCommanderTransferVisibility(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	admin := mustUser(t, database, "admin", model.RoleAdmin, "")

	out := mustTransfer(t, database, admin, "Base A", "Base B")
	in := mustTransfer(t, database, admin, "Base C", "Base A")
	other := mustTransfer(t, database, admin, "Base B", "Base C")

	cmdr := rbac.Principal{ID: 42, Role: model.RoleBaseCommander, Base: "Base A"}
	v := rbac.Resolve(cmdr)

	list, err := ListTransfers(ctx, database, v, TransferFilter{})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	seen := map[int64]bool{}
	for _, tr := range list {
		seen[tr.ID] = true
		if !v.Admits(tr.SourceBase, tr.DestinationBase) {
			t.Errorf("SQL and in-memory visibility disagree on transfer %d", tr.ID)
		}
	}
	if !seen[out.ID] || !seen[in.ID] {
		t.Error("base A commander should see transfers to and from base A")
	}
	if seen[other.ID] {
		t.Error("base A commander must not see a B to C transfer")
	}

	// Admin sees a superset, and can narrow to a base.
	adminV := rbac.Resolve(rbac.Principal{Role: model.RoleAdmin})
	all, _ := ListTransfers(ctx, database, adminV, TransferFilter{})
	if len(all) != 3 {
		t.Errorf("admin should see all 3 transfers, got %d", len(all))
	}
	narrowed, _ := ListTransfers(ctx, database, adminV.Narrow("Base C"), TransferFilter{})
	if len(narrowed) != 2 {
		t.Errorf("admin narrowed to base C should see 2 transfers, got %d", len(narrowed))
	}
}

func TestTransferFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	admin := mustUser(t, database, "admin", model.RoleAdmin, "")
	all := rbac.Resolve(rbac.Principal{Role: model.RoleAdmin})

	a := mustTransfer(t, database, admin, "Base A", "Base B")
	mustTransfer(t, database, admin, "Base B", "Base C")
	TransitionTransfer(ctx, database, a.ID, model.TransferStatusCancelled, admin.ID)

	cancelled, _ := ListTransfers(ctx, database, all, TransferFilter{Status: model.TransferStatusCancelled})
	if len(cancelled) != 1 || cancelled[0].ID != a.ID {
		t.Errorf("expected only the cancelled transfer, got %v", cancelled)
	}

	limited, _ := ListTransfers(ctx, database, all, TransferFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}
