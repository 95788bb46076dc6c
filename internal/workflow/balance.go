package workflow

import (
	"fmt"
	"time"

	"kasirkas/backend/internal/domain"
)

// WithdrawalCommitted reports whether a withdrawal in status reduces the
// requester's available balance.
func WithdrawalCommitted(status string) bool {
	switch status {
	case domain.WithdrawalApproved, domain.WithdrawalPaid, domain.WithdrawalCompleted:
		return true
	default:
		return false
	}
}

func PaymentCommitted(status string) bool {
	switch status {
	case domain.PaymentApprovedByUser, domain.PaymentPaid, domain.PaymentCompleted:
		return true
	default:
		return false
	}
}

// ComputeBalance replays the full history for userID. Earnings are the
// commissions of completed sales the user sold; committed withdrawals and
// payments are subtracted. The result is never clamped.
func ComputeBalance(userID string, sales []domain.Sale, withdrawals []domain.Withdrawal, payments []domain.CustomPayment, at time.Time) domain.Balance {
	b := domain.Balance{UserID: userID, ComputedAt: stamp(at)}
	for _, s := range sales {
		if s.Status == domain.SaleStatusCompleted && s.SellerID == userID {
			b.TotalEarningsCents += s.TotalCommissionCents
		}
	}
	for _, w := range withdrawals {
		if w.UserID == userID && WithdrawalCommitted(w.Status) {
			b.WithdrawalsCents += w.AmountCents
		}
	}
	for _, p := range payments {
		if p.PayeeID == userID && PaymentCommitted(p.Status) {
			b.CustomPaymentsCents += p.AmountCents
		}
	}
	b.AvailableCents = b.TotalEarningsCents - b.WithdrawalsCents - b.CustomPaymentsCents
	b.Negative = b.AvailableCents < 0
	return b
}

// CheckWithdrawal rejects requests larger than the available balance.
func CheckWithdrawal(b domain.Balance, amountCents int64) error {
	if amountCents > b.AvailableCents {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amountCents, b.AvailableCents)
	}
	return nil
}

// SystemCashTotal sums completed cash sales whose calendar day in loc is date.
func SystemCashTotal(date string, loc *time.Location, sales []domain.Sale) domain.SystemCashTotal {
	filter := domain.SalesFilter{Date: date, Location: loc, Status: domain.SaleStatusCompleted, PaymentMethod: domain.PaymentCash}
	total := domain.SystemCashTotal{Date: date}
	for _, s := range sales {
		if filter.Match(s) {
			total.TotalCents += s.TotalCents
			total.SaleCount++
		}
	}
	return total
}
