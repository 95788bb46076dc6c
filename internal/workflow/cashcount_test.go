package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirkas/backend/internal/domain"
)

var (
	owner   = domain.Actor{ID: "owner", Name: "Bu Rina", Role: domain.RoleOwner}
	manager = domain.Actor{ID: "manager", Name: "Pak Dodi", Role: domain.RoleManager}
	staff   = domain.Actor{ID: "staff", Name: "Sari", Role: domain.RoleStaff}
	day     = time.Date(2026, 5, 4, 21, 0, 0, 0, time.UTC)
)

func newCount(t *testing.T, by domain.Actor) domain.CashCount {
	t.Helper()
	cc, err := NewCashCount(CashCountInput{
		ID:                "cc-1",
		Date:              "2026-05-04",
		CountedTotalCents: 50000,
		SystemTotalCents:  48000,
		Notes:             "laci 1",
	}, by, day)
	require.NoError(t, err)
	return cc
}

func TestNewCashCount(t *testing.T) {
	cc := newCount(t, staff)

	require.Equal(t, domain.CashCountFirstSigned, cc.Status)
	require.Equal(t, int64(2000), cc.DifferenceCents)
	require.Equal(t, "staff", cc.FirstSignature.UserID)
	require.Equal(t, domain.RoleStaff, cc.FirstSignature.Role)
	require.Nil(t, cc.SecondSignature)
	require.Equal(t, 1, cc.Version)
	require.Len(t, cc.History, 1)
	require.Equal(t, domain.CashCountFirstSigned, cc.History[0].Status)
	require.Equal(t, "Initial count submitted", cc.History[0].Note)
}

func TestNewCashCountValidates(t *testing.T) {
	_, err := NewCashCount(CashCountInput{ID: "cc", Date: "04/05/2026"}, staff, day)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewCashCount(CashCountInput{ID: "cc", Date: "2026-05-04", CountedTotalCents: -1}, staff, day)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewCashCount(CashCountInput{ID: "cc", Date: "2026-05-04"}, domain.Actor{}, day)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSecondSignBySameUserIsRejected(t *testing.T) {
	cc := newCount(t, staff)

	_, err := SecondSign(cc, staff, domain.Expectation{}, "", day)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	require.Equal(t, domain.CashCountFirstSigned, cc.Status)
	require.Len(t, cc.History, 1)
}

func TestFullCashCountLifecycle(t *testing.T) {
	cc := newCount(t, staff)

	signed, err := SecondSign(cc, manager, domain.Expectation{ExpectedVersion: 1, ExpectedStatus: domain.CashCountFirstSigned}, "", day.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.CashCountSecondSigned, signed.Status)
	require.Equal(t, "manager", signed.SecondSignature.UserID)
	require.Equal(t, cc.FirstSignature, signed.FirstSignature)
	require.Equal(t, 2, signed.Version)
	require.Len(t, signed.History, 2)
	require.Len(t, cc.History, 1)

	reviewed, err := OwnerReview(signed, owner, domain.CashCountRejected, domain.Expectation{}, "selisih belum jelas", day.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.CashCountRejected, reviewed.Status)
	require.NotNil(t, reviewed.OwnerAudit)
	require.Equal(t, domain.CashCountRejected, reviewed.OwnerAudit.Status)
	require.Equal(t, "owner", reviewed.OwnerAudit.UserID)
	require.Len(t, reviewed.History, 3)
	last := reviewed.History[2]
	require.Equal(t, "Final audit: rejected", last.Note)
	require.Equal(t, domain.CashCountRejected, last.Status)
	require.True(t, CashCounts.IsTerminal(reviewed.Status))
}

func TestOwnerReviewPreconditions(t *testing.T) {
	cc := newCount(t, staff)

	_, err := OwnerReview(cc, owner, domain.CashCountAccepted, domain.Expectation{}, "", day)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	signed, err := SecondSign(cc, owner, domain.Expectation{}, "", day)
	require.NoError(t, err)

	_, err = OwnerReview(signed, manager, domain.CashCountAccepted, domain.Expectation{}, "", day)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = OwnerReview(signed, owner, "maybe", domain.Expectation{}, "", day)
	require.ErrorIs(t, err, ErrInvalidInput)

	accepted, err := OwnerReview(signed, owner, domain.CashCountAccepted, domain.Expectation{}, "", day)
	require.NoError(t, err)

	again, err := OwnerReview(accepted, owner, domain.CashCountAccepted, domain.Expectation{}, "", day)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	require.Equal(t, domain.CashCount{}, again)
	require.Len(t, accepted.History, 3)
}

func TestCashCountStaleState(t *testing.T) {
	cc := newCount(t, staff)

	_, err := SecondSign(cc, manager, domain.Expectation{ExpectedVersion: 5}, "", day)
	require.ErrorIs(t, err, ErrStaleState)

	var stale *StaleStateError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, 1, stale.ActualVersion)

	_, err = SecondSign(cc, manager, domain.Expectation{ExpectedStatus: domain.CashCountSecondSigned}, "", day)
	require.ErrorIs(t, err, ErrStaleState)
}

func TestEveryTransitionAppendsOneMatchingEntry(t *testing.T) {
	cc := newCount(t, manager)
	steps := []func(domain.CashCount) (domain.CashCount, error){
		func(c domain.CashCount) (domain.CashCount, error) {
			return SecondSign(c, staff, domain.Expectation{}, "", day)
		},
		func(c domain.CashCount) (domain.CashCount, error) {
			return OwnerReview(c, owner, domain.CashCountAccepted, domain.Expectation{}, "", day)
		},
	}
	for _, step := range steps {
		before := len(cc.History)
		next, err := step(cc)
		require.NoError(t, err)
		require.Len(t, next.History, before+1)
		require.Equal(t, next.Status, next.History[len(next.History)-1].Status)
		cc = next
	}
}

func TestAvailableTransitions(t *testing.T) {
	cc := newCount(t, staff)
	require.Empty(t, CashCounts.Available(cc.Status, staff, cc.FirstSignature.UserID))
	require.Equal(t, []string{CashCountSecondSign}, CashCounts.Available(cc.Status, manager, cc.FirstSignature.UserID))
	require.Equal(t, []string{CashCountAccept, CashCountReject}, CashCounts.Available(domain.CashCountSecondSigned, owner, cc.FirstSignature.UserID))
}
