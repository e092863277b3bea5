// Package lifecycle holds the status machines of the logistics records.
package lifecycle

import (
	"slices"

	"github.com/erazemk/garrison/internal/model"
)

// Machine is the static status table of one entity type.
type Machine struct {
	entity  string
	initial string
	next    map[string][]string
	// locked statuses forbid field edits. Terminal statuses are always locked.
	locked map[string]bool
}

func newMachine(entity, initial string, next map[string][]string, extraLocked ...string) *Machine {
	m := &Machine{entity: entity, initial: initial, next: next, locked: map[string]bool{}}
	for status, targets := range next {
		if len(targets) == 0 {
			m.locked[status] = true
		}
	}
	for _, s := range extraLocked {
		m.locked[s] = true
	}
	return m
}

var (
	Assignment = newMachine("assignment", model.AssignmentStatusPending, map[string][]string{
		model.AssignmentStatusPending:   {model.AssignmentStatusActive, model.AssignmentStatusCancelled},
		model.AssignmentStatusActive:    {model.AssignmentStatusCompleted, model.AssignmentStatusCancelled},
		model.AssignmentStatusCompleted: {},
		model.AssignmentStatusCancelled: {},
	})

	Transfer = newMachine("transfer", model.TransferStatusPending, map[string][]string{
		model.TransferStatusPending:   {model.TransferStatusInTransit, model.TransferStatusCancelled},
		model.TransferStatusInTransit: {model.TransferStatusCompleted, model.TransferStatusCancelled},
		model.TransferStatusCompleted: {},
		model.TransferStatusCancelled: {},
	})

	Purchase = newMachine("purchase", model.PurchaseStatusPending, map[string][]string{
		model.PurchaseStatusPending:    {model.PurchaseStatusApproved, model.PurchaseStatusCancelled},
		model.PurchaseStatusApproved:   {model.PurchaseStatusProcessing, model.PurchaseStatusCancelled},
		model.PurchaseStatusProcessing: {model.PurchaseStatusDelivered, model.PurchaseStatusCancelled},
		model.PurchaseStatusDelivered:  {},
		model.PurchaseStatusCancelled:  {},
	})

	// Approved expenditures are already committed for payment and no longer editable.
	Expenditure = newMachine("expenditure", model.ExpenditureStatusPending, map[string][]string{
		model.ExpenditureStatusPending:    {model.ExpenditureStatusApproved, model.ExpenditureStatusRejected, model.ExpenditureStatusProcessing},
		model.ExpenditureStatusApproved:   {model.ExpenditureStatusProcessing, model.ExpenditureStatusRejected},
		model.ExpenditureStatusProcessing: {model.ExpenditureStatusCompleted, model.ExpenditureStatusRejected},
		model.ExpenditureStatusCompleted:  {},
		model.ExpenditureStatusRejected:   {},
	}, model.ExpenditureStatusApproved)
)

// Entity returns the entity label used in errors.
func (m *Machine) Entity() string { return m.entity }

// Initial returns the status new records start in.
func (m *Machine) Initial() string { return m.initial }

// Valid reports whether status belongs to the machine.
func (m *Machine) Valid(status string) bool {
	_, ok := m.next[status]
	return ok
}

// Terminal reports whether no transition leaves status.
func (m *Machine) Terminal(status string) bool {
	targets, ok := m.next[status]
	return ok && len(targets) == 0
}

// Next returns the statuses reachable from status.
func (m *Machine) Next(status string) []string {
	return slices.Clone(m.next[status])
}

// Check validates current -> requested. Staying in the same status is not a
// transition and is rejected as well.
func (m *Machine) Check(current, requested string) error {
	if slices.Contains(m.next[current], requested) {
		return nil
	}
	return &model.TransitionError{Entity: m.entity, Current: current, Requested: requested}
}

// CheckEditable rejects field edits on locked records.
func (m *Machine) CheckEditable(status string) error {
	if m.locked[status] {
		return &model.LockedError{Entity: m.entity, Status: status}
	}
	return nil
}

// CheckDeletable only lets records in the initial status be deleted.
func (m *Machine) CheckDeletable(status string) error {
	if status != m.initial {
		return &model.LockedError{Entity: m.entity, Status: status, Reason: "only " + m.initial + " records can be deleted"}
	}
	return nil
}
