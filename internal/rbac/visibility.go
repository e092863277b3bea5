package rbac

import (
	"strings"

	"github.com/erazemk/garrison/internal/model"
)

// Principal is the acting user of a request.
type Principal struct {
	ID       int64
	Username string
	Role     string
	Base     string
}

type reach int

const (
	reachNone reach = iota
	reachBase
	reachAll
)

// Visibility is the record filter of a caller. The zero value matches nothing.
type Visibility struct {
	reach reach
	base  string
}

// Resolve computes the visibility of a caller from role and home base.
// Unknown roles, and base-scoped roles without a base, see nothing.
func Resolve(p Principal) Visibility {
	switch p.Role {
	case model.RoleAdmin:
		return Visibility{reach: reachAll}
	case model.RoleBaseCommander, model.RoleLogisticsOfficer:
		if p.Base == "" {
			return Visibility{}
		}
		return Visibility{reach: reachBase, base: p.Base}
	}
	return Visibility{}
}

// All is true when nothing is filtered.
func (v Visibility) All() bool { return v.reach == reachAll }

// None is true when nothing is visible.
func (v Visibility) None() bool { return v.reach == reachNone }

// Base returns the base records are restricted to, empty unless base-scoped.
func (v Visibility) Base() string { return v.base }

// Narrow restricts an unrestricted visibility to one base. A base-scoped
// visibility is returned unchanged.
func (v Visibility) Narrow(base string) Visibility {
	if base == "" || v.reach != reachAll {
		return v
	}
	return Visibility{reach: reachBase, base: base}
}

// Admits reports whether a record owned by the given bases is visible. A
// record is visible when any of its owning bases matches; transfers pass both
// ends, assignments the personnel's and the assigning officer's base.
func (v Visibility) Admits(bases ...string) bool {
	switch v.reach {
	case reachAll:
		return true
	case reachBase:
		for _, b := range bases {
			if b == v.base {
				return true
			}
		}
	}
	return false
}

// Where renders the visibility as a SQL predicate over the given base columns,
// using the same any-column-matches rule as Admits.
func (v Visibility) Where(cols ...string) (string, []any) {
	switch {
	case v.reach == reachAll:
		return "1=1", nil
	case v.reach == reachNone || len(cols) == 0:
		return "1=0", nil
	}
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = c + " = ?"
		args[i] = v.base
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
