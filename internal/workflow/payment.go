package workflow

import (
	"fmt"
	"strings"
	"time"

	"kasirkas/backend/internal/domain"
)

const (
	EventAccept  = "accept"
	EventDecline = "decline"
)

// CustomPayments: pending_user_approval -> approved_by_user | rejected_by_user,
// then approved_by_user -> paid -> completed.
var CustomPayments = newMachine("custom_payment",
	on(EventAccept, domain.PaymentPendingUserApproval, domain.PaymentApprovedByUser, subjectOnly),
	on(EventDecline, domain.PaymentPendingUserApproval, domain.PaymentRejectedByUser, subjectOnly),
	on(EventPay, domain.PaymentApprovedByUser, domain.PaymentPaid, supervisor),
	on(EventConfirm, domain.PaymentPaid, domain.PaymentCompleted, subjectOnly),
)

var paymentNotes = map[string]string{
	EventAccept:  "Payment accepted by payee",
	EventDecline: "Payment declined by payee",
	EventPay:     "Payment paid out",
	EventConfirm: "Receipt confirmed",
}

type Payee struct {
	ID   string
	Name string
}

// NewCustomPayment is raised by a supervisor on behalf of a payee, who must
// then accept it.
func NewCustomPayment(id string, creator domain.Actor, payee Payee, amountCents int64, description string, at time.Time) (domain.CustomPayment, error) {
	if !supervisor.allow(creator, "") {
		return domain.CustomPayment{}, fmt.Errorf("%w: custom payment requires %s", ErrInvalidStateTransition, supervisor.desc)
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(payee.ID) == "" {
		return domain.CustomPayment{}, fmt.Errorf("%w: id and payee are required", ErrInvalidInput)
	}
	if amountCents <= 0 {
		return domain.CustomPayment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.CustomPayment{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}

	at = stamp(at)
	return domain.CustomPayment{
		ID:            id,
		PayeeID:       payee.ID,
		PayeeName:     payee.Name,
		CreatedByID:   creator.ID,
		CreatedByName: creator.Name,
		Description:   description,
		AmountCents:   amountCents,
		Status:        domain.PaymentPendingUserApproval,
		History: []domain.AuditEntry{
			newEntry(at, creator, "create", "", domain.PaymentPendingUserApproval, "Payment created"),
		},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

func TransitionCustomPayment(p domain.CustomPayment, event string, actor domain.Actor, exp domain.Expectation, note string, at time.Time) (domain.CustomPayment, error) {
	if err := checkExpectation(p.ID, p.Version, p.Status, exp); err != nil {
		return domain.CustomPayment{}, err
	}
	next, err := CustomPayments.Next(event, p.Status, actor, p.PayeeID)
	if err != nil {
		return domain.CustomPayment{}, err
	}

	at = stamp(at)
	out := p
	out.Status = next
	out.History = appendEntry(p.History, newEntry(at, actor, event, p.Status, next, noteOr(strings.TrimSpace(note), paymentNotes[event])))
	out.Version = p.Version + 1
	out.UpdatedAt = at
	return out, nil
}
