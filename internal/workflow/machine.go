// Package workflow implements the approval state machines for cash counts,
// withdrawals and custom payments, plus balance recomputation.
//
// Transition functions take records by value and return the next record.
// On error the caller's record is untouched.
package workflow

import (
	"fmt"
	"slices"
	"time"

	"kasirkas/backend/internal/domain"
)

// gate decides whether actor may fire a transition. subjectID is the user the
// record is about: the first signer of a cash count, the requester of a
// withdrawal, or the payee of a custom payment.
type gate struct {
	allow func(actor domain.Actor, subjectID string) bool
	desc  string
}

var (
	anyMember = gate{
		allow: func(a domain.Actor, _ string) bool { return isMember(a) },
		desc:  "an authenticated team member",
	}
	supervisor = gate{
		allow: func(a domain.Actor, _ string) bool { return a.IsSupervisor() },
		desc:  "an owner or manager",
	}
	ownerOnly = gate{
		allow: func(a domain.Actor, _ string) bool { return a.IsOwner() },
		desc:  "the owner",
	}
	subjectOnly = gate{
		allow: func(a domain.Actor, subject string) bool { return a.ID != "" && a.ID == subject },
		desc:  "the user the record belongs to",
	}
	otherMember = gate{
		allow: func(a domain.Actor, subject string) bool { return isMember(a) && a.ID != subject },
		desc:  "a team member other than the first signer",
	}
)

type rule struct {
	from string
	to   string
	gate gate
}

// Machine is a named table of events. Each event moves a record from exactly
// one status to another, subject to an actor gate.
type Machine struct {
	name  string
	rules map[string]rule
	order []string
}

func newMachine(name string, events ...eventRule) Machine {
	m := Machine{name: name, rules: make(map[string]rule, len(events))}
	for _, e := range events {
		m.rules[e.event] = e.rule
		m.order = append(m.order, e.event)
	}
	return m
}

type eventRule struct {
	event string
	rule
}

func on(event, from, to string, g gate) eventRule {
	return eventRule{event: event, rule: rule{from: from, to: to, gate: g}}
}

func (m Machine) Name() string {
	return m.name
}

// Next resolves the status an event leads to from current.
func (m Machine) Next(event string, current string, actor domain.Actor, subjectID string) (string, error) {
	r, ok := m.rules[event]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %q transition", ErrInvalidStateTransition, m.name, event)
	}
	if current != r.from {
		return "", fmt.Errorf("%w: %s cannot %s from %s", ErrInvalidStateTransition, m.name, event, current)
	}
	if !r.gate.allow(actor, subjectID) {
		return "", fmt.Errorf("%w: %s %s requires %s", ErrInvalidStateTransition, m.name, event, r.gate.desc)
	}
	return r.to, nil
}

// Available lists the events actor may fire from current, in declaration order.
func (m Machine) Available(current string, actor domain.Actor, subjectID string) []string {
	events := make([]string, 0, len(m.order))
	for _, event := range m.order {
		r := m.rules[event]
		if r.from == current && r.gate.allow(actor, subjectID) {
			events = append(events, event)
		}
	}
	return events
}

// IsTerminal reports whether no event leaves status.
func (m Machine) IsTerminal(status string) bool {
	for _, r := range m.rules {
		if r.from == status {
			return false
		}
	}
	return true
}

func checkExpectation(recordID string, version int, status string, exp domain.Expectation) error {
	if exp.ExpectedStatus != "" && exp.ExpectedStatus != status {
		return &StaleStateError{RecordID: recordID, ExpectedVersion: exp.ExpectedVersion, ActualVersion: version, ExpectedStatus: exp.ExpectedStatus, ActualStatus: status}
	}
	if exp.ExpectedVersion != 0 && exp.ExpectedVersion != version {
		return &StaleStateError{RecordID: recordID, ExpectedVersion: exp.ExpectedVersion, ActualVersion: version, ExpectedStatus: exp.ExpectedStatus, ActualStatus: status}
	}
	return nil
}

// appendEntry returns a new history slice; the input backing array is never
// written to.
func appendEntry(history []domain.AuditEntry, entry domain.AuditEntry) []domain.AuditEntry {
	out := slices.Clone(history)
	return append(out, entry)
}

func newEntry(at time.Time, actor domain.Actor, action, from, to, note string) domain.AuditEntry {
	return domain.AuditEntry{
		At:         at,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  actor.Role,
		Action:     action,
		FromStatus: from,
		Status:     to,
		Note:       note,
	}
}

func isMember(a domain.Actor) bool {
	if a.ID == "" {
		return false
	}
	switch a.Role {
	case domain.RoleOwner, domain.RoleManager, domain.RoleStaff:
		return true
	default:
		return false
	}
}

func noteOr(note, fallback string) string {
	if note == "" {
		return fallback
	}
	return note
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}
