package rbac

import (
	"errors"
	"testing"

	"github.com/erazemk/garrison/internal/model"
)

func TestPermissionString(t *testing.T) {
	tests := []struct {
		perm Permission
		want string
	}{
		{P(VerbUpdate, ScopeOwn, ResourcePurchase), "update_own_purchase"},
		{P(VerbApprove, ScopeNone, ResourceTransfer), "approve_transfer"},
		{P(VerbView, ScopeAll, ResourceDashboard), "view_all_dashboard"},
		{P(VerbExport, ScopeNone, ResourceData), "export_data"},
	}
	for _, tt := range tests {
		if got := tt.perm.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCanPerform(t *testing.T) {
	admin := Principal{ID: 1, Role: model.RoleAdmin}
	commander := Principal{ID: 2, Role: model.RoleBaseCommander, Base: "Base A"}
	officer := Principal{ID: 3, Role: model.RoleLogisticsOfficer, Base: "Base A"}
	stranger := Principal{ID: 4, Role: "Quartermaster", Base: "Base A"}

	updateAny := P(VerbUpdate, ScopeAny, ResourcePurchase)

	tests := []struct {
		name    string
		p       Principal
		perm    Permission
		ownerID int64
		want    bool
	}{
		{"admin direct", admin, updateAny, 0, true},
		{"commander direct", commander, updateAny, 99, true},
		{"officer not owner", officer, updateAny, 99, false},
		{"officer no owner given", officer, updateAny, 0, false},
		{"officer owner", officer, updateAny, officer.ID, true},
		{"officer approve", officer, P(VerbApprove, ScopeNone, ResourcePurchase), officer.ID, false},
		{"officer create assignment", officer, P(VerbCreate, ScopeNone, ResourceAssignment), 0, false},
		{"officer create transfer", officer, P(VerbCreate, ScopeNone, ResourceTransfer), 0, true},
		{"unknown role", stranger, P(VerbView, ScopeBase, ResourcePurchase), stranger.ID, false},
		{"own perm only for any scope", officer, P(VerbUpdate, ScopeNone, ResourcePurchase), officer.ID, false},
	}

	for _, tt := range tests {
		if got := CanPerform(tt.p, tt.perm, tt.ownerID); got != tt.want {
			t.Errorf("%s: CanPerform(%s) = %v, want %v", tt.name, tt.perm, got, tt.want)
		}
	}
}

func TestOwnPermissionNeverGrantedToNonOwner(t *testing.T) {
	roles := []string{model.RoleAdmin, model.RoleBaseCommander, model.RoleLogisticsOfficer}
	resources := []Resource{ResourcePurchase, ResourceTransfer, ResourceAssignment, ResourceExpenditure}
	verbs := []Verb{VerbUpdate, VerbDelete}

	for _, role := range roles {
		p := Principal{ID: 10, Role: role, Base: "Base A"}
		for _, res := range resources {
			for _, verb := range verbs {
				perm := P(verb, ScopeAny, res)
				if Has(role, perm) {
					continue
				}
				if CanPerform(p, perm, 11) {
					t.Errorf("%s granted %s on a record owned by someone else", role, perm)
				}
			}
		}
	}
}

func TestUserMutationIsAdminOnly(t *testing.T) {
	for _, verb := range []Verb{VerbCreate, VerbUpdate, VerbDelete} {
		perm := P(verb, ScopeNone, ResourceUser)
		if !Has(model.RoleAdmin, perm) {
			t.Errorf("admin should hold %s", perm)
		}
		for _, role := range []string{model.RoleBaseCommander, model.RoleLogisticsOfficer} {
			if Has(role, perm) {
				t.Errorf("%s should not hold %s", role, perm)
			}
		}
	}
	if !Has(model.RoleBaseCommander, P(VerbView, ScopeBase, ResourceUser)) {
		t.Error("commander should view base users")
	}
}

func TestAuthorize(t *testing.T) {
	commander := Principal{ID: 2, Role: model.RoleBaseCommander, Base: "Base A"}
	officer := Principal{ID: 3, Role: model.RoleLogisticsOfficer, Base: "Base A"}
	perm := P(VerbUpdate, ScopeAny, ResourceTransfer)

	if err := Authorize(commander, perm, 50, true); err != nil {
		t.Errorf("commander in scope: %v", err)
	}
	if err := Authorize(commander, perm, 50, false); !errors.Is(err, model.ErrPermissionDenied) {
		t.Errorf("commander out of scope should be denied, got %v", err)
	}
	// Officer acts on own record even outside the base grant.
	if err := Authorize(officer, perm, officer.ID, false); err != nil {
		t.Errorf("officer own record: %v", err)
	}
	err := Authorize(officer, perm, 50, true)
	var pe *model.PermissionError
	if !errors.As(err, &pe) || pe.Permission != "update_any_transfer" {
		t.Errorf("expected permission error naming update_any_transfer, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		p    Principal
		all  bool
		none bool
		base string
	}{
		{Principal{Role: model.RoleAdmin, Base: "HQ"}, true, false, ""},
		{Principal{Role: model.RoleBaseCommander, Base: "Base A"}, false, false, "Base A"},
		{Principal{Role: model.RoleLogisticsOfficer, Base: "Base B"}, false, false, "Base B"},
		{Principal{Role: model.RoleLogisticsOfficer}, false, true, ""},
		{Principal{Role: "", Base: "Base A"}, false, true, ""},
		{Principal{Role: "Visitor", Base: "Base A"}, false, true, ""},
	}

	for _, tt := range tests {
		v := Resolve(tt.p)
		if v.All() != tt.all || v.None() != tt.none || v.Base() != tt.base {
			t.Errorf("Resolve(%+v) = all:%v none:%v base:%q", tt.p, v.All(), v.None(), v.Base())
		}
		if v != Resolve(tt.p) {
			t.Errorf("Resolve(%+v) not deterministic", tt.p)
		}
	}
}

func TestAdmits(t *testing.T) {
	admin := Resolve(Principal{Role: model.RoleAdmin})
	baseA := Resolve(Principal{Role: model.RoleBaseCommander, Base: "Base A"})
	none := Resolve(Principal{Role: "unknown"})

	records := [][]string{
		{"Base A", "Base B"},
		{"Base B", "Base A"},
		{"Base B", "Base C"},
		{"Base A"},
		{""},
	}
	wantA := []bool{true, true, false, true, false}

	for i, bases := range records {
		if !admin.Admits(bases...) {
			t.Errorf("admin should see %v", bases)
		}
		if got := baseA.Admits(bases...); got != wantA[i] {
			t.Errorf("base A Admits(%v) = %v, want %v", bases, got, wantA[i])
		}
		if none.Admits(bases...) {
			t.Errorf("unknown role should see nothing, saw %v", bases)
		}
	}
}

func TestNarrow(t *testing.T) {
	admin := Resolve(Principal{Role: model.RoleAdmin})
	if got := admin.Narrow("Base C"); got.All() || got.Base() != "Base C" {
		t.Errorf("admin narrowed to Base C, got base %q", got.Base())
	}
	if got := admin.Narrow(""); !got.All() {
		t.Error("empty narrow should keep everything visible")
	}

	baseA := Resolve(Principal{Role: model.RoleBaseCommander, Base: "Base A"})
	if got := baseA.Narrow("Base B"); got.Base() != "Base A" {
		t.Errorf("commander must not widen to another base, got %q", got.Base())
	}
}

func TestWhere(t *testing.T) {
	admin := Resolve(Principal{Role: model.RoleAdmin})
	if where, args := admin.Where("t.source_base", "t.destination_base"); where != "1=1" || len(args) != 0 {
		t.Errorf("admin Where = %q %v", where, args)
	}

	none := Resolve(Principal{Role: "unknown"})
	if where, _ := none.Where("u.base"); where != "1=0" {
		t.Errorf("unknown role Where = %q, want 1=0", where)
	}

	baseA := Resolve(Principal{Role: model.RoleLogisticsOfficer, Base: "Base A"})
	where, args := baseA.Where("t.source_base", "t.destination_base")
	if where != "(t.source_base = ? OR t.destination_base = ?)" {
		t.Errorf("unexpected predicate %q", where)
	}
	if len(args) != 2 || args[0] != "Base A" || args[1] != "Base A" {
		t.Errorf("unexpected args %v", args)
	}
}
