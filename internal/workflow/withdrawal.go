package workflow

import (
	"fmt"
	"strings"
	"time"

	"kasirkas/backend/internal/domain"
)

const (
	EventApprove = "approve"
	EventReject  = "reject"
	EventPay     = "pay"
	EventConfirm = "confirm"
)

// Withdrawals: pending -> approved -> paid -> completed, or pending -> rejected.
var Withdrawals = newMachine("withdrawal",
	on(EventApprove, domain.WithdrawalPending, domain.WithdrawalApproved, supervisor),
	on(EventReject, domain.WithdrawalPending, domain.WithdrawalRejected, supervisor),
	on(EventPay, domain.WithdrawalApproved, domain.WithdrawalPaid, supervisor),
	on(EventConfirm, domain.WithdrawalPaid, domain.WithdrawalCompleted, subjectOnly),
)

var withdrawalNotes = map[string]string{
	EventApprove: "Withdrawal approved",
	EventReject:  "Withdrawal rejected",
	EventPay:     "Withdrawal paid out",
	EventConfirm: "Receipt confirmed",
}

func NewWithdrawal(id string, requester domain.Actor, amountCents int64, notes string, at time.Time) (domain.Withdrawal, error) {
	if !anyMember.allow(requester, "") {
		return domain.Withdrawal{}, fmt.Errorf("%w: withdrawal requires %s", ErrInvalidStateTransition, anyMember.desc)
	}
	if strings.TrimSpace(id) == "" {
		return domain.Withdrawal{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if amountCents <= 0 {
		return domain.Withdrawal{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	at = stamp(at)
	return domain.Withdrawal{
		ID:          id,
		UserID:      requester.ID,
		UserName:    requester.Name,
		AmountCents: amountCents,
		Status:      domain.WithdrawalPending,
		Notes:       strings.TrimSpace(notes),
		History: []domain.AuditEntry{
			newEntry(at, requester, "request", "", domain.WithdrawalPending, "Withdrawal requested"),
		},
		Version:     1,
		RequestedAt: at,
		UpdatedAt:   at,
	}, nil
}

// TransitionWithdrawal fires event on w. Only the requester may confirm receipt.
func TransitionWithdrawal(w domain.Withdrawal, event string, actor domain.Actor, exp domain.Expectation, note string, at time.Time) (domain.Withdrawal, error) {
	if err := checkExpectation(w.ID, w.Version, w.Status, exp); err != nil {
		return domain.Withdrawal{}, err
	}
	next, err := Withdrawals.Next(event, w.Status, actor, w.UserID)
	if err != nil {
		return domain.Withdrawal{}, err
	}

	at = stamp(at)
	out := w
	out.Status = next
	out.History = appendEntry(w.History, newEntry(at, actor, event, w.Status, next, noteOr(strings.TrimSpace(note), withdrawalNotes[event])))
	out.Version = w.Version + 1
	out.UpdatedAt = at
	return out, nil
}
