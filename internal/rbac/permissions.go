// Package rbac maps roles to permissions and callers to the records they can see.
package rbac

import (
	"strings"

	"github.com/erazemk/garrison/internal/model"
)

// Verb is the action part of a permission.
type Verb string

const (
	VerbView    Verb = "view"
	VerbCreate  Verb = "create"
	VerbUpdate  Verb = "update"
	VerbDelete  Verb = "delete"
	VerbApprove Verb = "approve"
	VerbExport  Verb = "export"
	VerbAccess  Verb = "access"
)

// Scope qualifies how far a permission reaches.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeAny  Scope = "any"
	ScopeOwn  Scope = "own"
	ScopeAll  Scope = "all"
	ScopeBase Scope = "base"
)

// Resource is the object of a permission.
type Resource string

const (
	ResourcePurchase      Resource = "purchase"
	ResourceTransfer      Resource = "transfer"
	ResourceAssignment    Resource = "assignment"
	ResourceExpenditure   Resource = "expenditure"
	ResourceUser          Resource = "user"
	ResourceDashboard     Resource = "dashboard"
	ResourceData          Resource = "data"
	ResourceSystemReports Resource = "system_reports"
	ResourceAdminPanel    Resource = "admin_panel"
)

// Permission is a structured permission descriptor. Descriptors are compared
// structurally; String renders the legacy token form for messages.
type Permission struct {
	Verb     Verb
	Scope    Scope
	Resource Resource
}

// P builds a Permission.
func P(verb Verb, scope Scope, resource Resource) Permission {
	return Permission{Verb: verb, Scope: scope, Resource: resource}
}

// String renders the permission as verb_scope_resource, e.g. update_own_purchase.
func (p Permission) String() string {
	parts := []string{string(p.Verb)}
	if p.Scope != ScopeNone {
		parts = append(parts, string(p.Scope))
	}
	parts = append(parts, string(p.Resource))
	return strings.Join(parts, "_")
}

// Own returns the owner-restricted variant of an any-scoped permission.
func (p Permission) Own() Permission {
	p.Scope = ScopeOwn
	return p
}

func grants(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func crud(resource Resource, scope Scope, viewScope Scope) []Permission {
	return []Permission{
		P(VerbView, viewScope, resource),
		P(VerbCreate, ScopeNone, resource),
		P(VerbUpdate, scope, resource),
		P(VerbDelete, scope, resource),
	}
}

func join(lists ...[]Permission) []Permission {
	var out []Permission
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// rolePermissions is built once and never mutated.
var rolePermissions = map[string]map[Permission]struct{}{
	model.RoleAdmin: grants(join(
		crud(ResourcePurchase, ScopeAny, ScopeAll),
		crud(ResourceTransfer, ScopeAny, ScopeAll),
		crud(ResourceAssignment, ScopeAny, ScopeAll),
		crud(ResourceExpenditure, ScopeAny, ScopeAll),
		[]Permission{
			P(VerbApprove, ScopeNone, ResourcePurchase),
			P(VerbApprove, ScopeNone, ResourceTransfer),
			P(VerbApprove, ScopeNone, ResourceAssignment),
			P(VerbApprove, ScopeNone, ResourceExpenditure),
			P(VerbView, ScopeAll, ResourceUser),
			P(VerbCreate, ScopeNone, ResourceUser),
			P(VerbUpdate, ScopeNone, ResourceUser),
			P(VerbDelete, ScopeNone, ResourceUser),
			P(VerbView, ScopeAll, ResourceDashboard),
			P(VerbAccess, ScopeNone, ResourceAdminPanel),
			P(VerbView, ScopeNone, ResourceSystemReports),
			P(VerbExport, ScopeNone, ResourceData),
		},
	)...),

	model.RoleBaseCommander: grants(join(
		crud(ResourcePurchase, ScopeAny, ScopeBase),
		crud(ResourceTransfer, ScopeAny, ScopeBase),
		crud(ResourceAssignment, ScopeAny, ScopeBase),
		crud(ResourceExpenditure, ScopeAny, ScopeBase),
		[]Permission{
			P(VerbApprove, ScopeNone, ResourcePurchase),
			P(VerbApprove, ScopeNone, ResourceTransfer),
			P(VerbApprove, ScopeNone, ResourceAssignment),
			P(VerbApprove, ScopeNone, ResourceExpenditure),
			P(VerbView, ScopeBase, ResourceUser),
			P(VerbView, ScopeBase, ResourceDashboard),
			P(VerbExport, ScopeNone, ResourceData),
		},
	)...),

	model.RoleLogisticsOfficer: grants(join(
		crud(ResourcePurchase, ScopeOwn, ScopeBase),
		crud(ResourceTransfer, ScopeOwn, ScopeBase),
		crud(ResourceExpenditure, ScopeOwn, ScopeBase),
		[]Permission{
			P(VerbView, ScopeBase, ResourceAssignment),
			P(VerbView, ScopeBase, ResourceUser),
			P(VerbView, ScopeBase, ResourceDashboard),
		},
	)...),
}

// Has reports whether role is granted perm directly.
func Has(role string, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}

// CanPerform reports whether the caller may perform perm. When ownerID is the
// caller's own id, an any-scoped permission is also satisfied by its own-scoped
// variant.
func CanPerform(p Principal, perm Permission, ownerID int64) bool {
	if Has(p.Role, perm) {
		return true
	}
	if ownerID != 0 && ownerID == p.ID && perm.Scope == ScopeAny {
		return Has(p.Role, perm.Own())
	}
	return false
}

// CanView reports whether the caller may list the resource at all.
func CanView(p Principal, resource Resource) bool {
	return Has(p.Role, P(VerbView, ScopeAll, resource)) || Has(p.Role, P(VerbView, ScopeBase, resource))
}

// Authorize checks a mutation on a record created by ownerID. A direct grant
// only applies to records inside the caller's visibility; the own variant
// applies to the caller's records wherever they are.
func Authorize(p Principal, perm Permission, ownerID int64, visible bool) error {
	if visible && Has(p.Role, perm) {
		return nil
	}
	if ownerID != 0 && ownerID == p.ID && perm.Scope == ScopeAny && Has(p.Role, perm.Own()) {
		return nil
	}
	return &model.PermissionError{Permission: perm.String()}
}

// Require checks a permission that is not tied to a record.
func Require(p Principal, perm Permission) error {
	if Has(p.Role, perm) {
		return nil
	}
	return &model.PermissionError{Permission: perm.String()}
}
