package workflow

import (
	"fmt"
	"strings"
	"time"

	"kasirkas/backend/internal/domain"
)

const (
	CashCountSecondSign = "second_sign"
	CashCountAccept     = "accept"
	CashCountReject     = "reject"
)

// CashCounts is the dual-signature reconciliation machine:
// first_signed -> second_signed -> accepted | rejected.
var CashCounts = newMachine("cash_count",
	on(CashCountSecondSign, domain.CashCountFirstSigned, domain.CashCountSecondSigned, otherMember),
	on(CashCountAccept, domain.CashCountSecondSigned, domain.CashCountAccepted, ownerOnly),
	on(CashCountReject, domain.CashCountSecondSigned, domain.CashCountRejected, ownerOnly),
)

type CashCountInput struct {
	ID                string
	Date              string
	CountedTotalCents int64
	SystemTotalCents  int64
	Notes             string
}

// NewCashCount records a physical count with the submitter as first signer.
func NewCashCount(in CashCountInput, actor domain.Actor, at time.Time) (domain.CashCount, error) {
	if !anyMember.allow(actor, "") {
		return domain.CashCount{}, fmt.Errorf("%w: cash count requires %s", ErrInvalidStateTransition, anyMember.desc)
	}
	if strings.TrimSpace(in.ID) == "" {
		return domain.CashCount{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if _, err := time.Parse(domain.DateLayout, in.Date); err != nil {
		return domain.CashCount{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if in.CountedTotalCents < 0 {
		return domain.CashCount{}, fmt.Errorf("%w: counted total must not be negative", ErrInvalidInput)
	}

	at = stamp(at)
	return domain.CashCount{
		ID:                in.ID,
		Date:              in.Date,
		CountedTotalCents: in.CountedTotalCents,
		SystemTotalCents:  in.SystemTotalCents,
		DifferenceCents:   in.CountedTotalCents - in.SystemTotalCents,
		Status:            domain.CashCountFirstSigned,
		FirstSignature:    signatureOf(actor, at),
		Notes:             strings.TrimSpace(in.Notes),
		History: []domain.AuditEntry{
			newEntry(at, actor, "create", "", domain.CashCountFirstSigned, "Initial count submitted"),
		},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

// SecondSign attests the count with a second, distinct identity.
func SecondSign(cc domain.CashCount, actor domain.Actor, exp domain.Expectation, note string, at time.Time) (domain.CashCount, error) {
	if err := checkExpectation(cc.ID, cc.Version, cc.Status, exp); err != nil {
		return domain.CashCount{}, err
	}
	next, err := CashCounts.Next(CashCountSecondSign, cc.Status, actor, cc.FirstSignature.UserID)
	if err != nil {
		return domain.CashCount{}, err
	}

	at = stamp(at)
	second := signatureOf(actor, at)
	out := cc
	out.SecondSignature = &second
	out.Status = next
	out.History = appendEntry(cc.History, newEntry(at, actor, CashCountSecondSign, cc.Status, next, noteOr(note, "Second signature recorded")))
	out.Version = cc.Version + 1
	out.UpdatedAt = at
	return out, nil
}

// OwnerReview finalizes a second-signed count as accepted or rejected.
func OwnerReview(cc domain.CashCount, actor domain.Actor, decision string, exp domain.Expectation, note string, at time.Time) (domain.CashCount, error) {
	var event string
	switch decision {
	case domain.CashCountAccepted:
		event = CashCountAccept
	case domain.CashCountRejected:
		event = CashCountReject
	default:
		return domain.CashCount{}, fmt.Errorf("%w: decision must be accepted or rejected", ErrInvalidInput)
	}
	if err := checkExpectation(cc.ID, cc.Version, cc.Status, exp); err != nil {
		return domain.CashCount{}, err
	}
	next, err := CashCounts.Next(event, cc.Status, actor, cc.FirstSignature.UserID)
	if err != nil {
		return domain.CashCount{}, err
	}

	at = stamp(at)
	out := cc
	out.OwnerAudit = &domain.OwnerAudit{
		UserID:     actor.ID,
		UserName:   actor.Name,
		Status:     next,
		Note:       strings.TrimSpace(note),
		ReviewedAt: at,
	}
	out.Status = next
	out.History = appendEntry(cc.History, newEntry(at, actor, event, cc.Status, next, "Final audit: "+next))
	out.Version = cc.Version + 1
	out.UpdatedAt = at
	return out, nil
}

func signatureOf(actor domain.Actor, at time.Time) domain.Signature {
	return domain.Signature{UserID: actor.ID, UserName: actor.Name, Role: actor.Role, SignedAt: at}
}
