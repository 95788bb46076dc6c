package sale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirkas/backend/internal/cart"
	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/pricing"
)

func testCart(t *testing.T) *cart.Cart {
	t.Helper()
	products := map[string]domain.Product{
		"a": {ID: "a", Name: "Alpha", Type: domain.ProductTypeSimple, PriceCents: 6000, CostPriceCents: 4000, CommissionPercent: 5, Stock: 10, Active: true},
		"b": {
			ID: "b", Name: "Beta", Type: domain.ProductTypeVariable, CommissionPercent: 10, Active: true,
			Variants: []domain.Variant{{ID: "b-red", Name: "Red", PriceCents: 4000, Stock: 3}},
		},
	}
	c, err := cart.FromInputs(products, []domain.CartLineInput{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", VariantID: "b-red", Quantity: 1},
	})
	require.NoError(t, err)
	return c
}

func TestBuildCompletedCashSale(t *testing.T) {
	seller := domain.Actor{ID: "staff", Name: "Sari", Role: domain.RoleStaff}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	record, err := Build(testCart(t), Options{
		ID:                "sale-1",
		Status:            domain.SaleStatusCompleted,
		Seller:            &seller,
		PaymentMethod:     "Cash",
		DiscountCents:     1000,
		TaxRatePercent:    10,
		CashReceivedCents: 10000,
		CreatedAt:         at,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCash, record.PaymentMethod)
	require.Equal(t, int64(10000), record.SubtotalCents)
	require.Equal(t, int64(900), record.TaxCents)
	require.Equal(t, int64(9900), record.TotalCents)
	require.Equal(t, 10.0, record.DiscountPercent)
	require.Equal(t, int64(630), record.TotalCommissionCents)
	require.Equal(t, int64(10000), record.CashReceivedCents)
	require.Equal(t, int64(100), record.ChangeCents)
	require.Equal(t, "staff", record.SellerID)
	require.Equal(t, at, record.CreatedAt)

	require.Len(t, record.Lines, 2)
	require.Equal(t, "b-red", record.Lines[1].VariantID)
	require.Equal(t, "Red", record.Lines[1].VariantName)
	require.Equal(t, int64(270), record.Lines[0].CommissionCents)
	require.Equal(t, int64(360), record.Lines[1].CommissionCents)
}

func TestBuildRejectsShortCash(t *testing.T) {
	_, err := Build(testCart(t), Options{Status: domain.SaleStatusCompleted, PaymentMethod: domain.PaymentCash, CashReceivedCents: 500})
	require.ErrorIs(t, err, ErrInsufficientCash)
}

func TestBuildNonCashHasNoCashFields(t *testing.T) {
	record, err := Build(testCart(t), Options{Status: domain.SaleStatusCompleted, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)
	require.Zero(t, record.CashReceivedCents)
	require.Zero(t, record.ChangeCents)
}

func TestBuildProformaSkipsCashCheck(t *testing.T) {
	record, err := Build(testCart(t), Options{Status: domain.SaleStatusProforma, PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusProforma, record.Status)
	require.Zero(t, record.CashReceivedCents)
}

func TestBuildRejectsNegativeTotal(t *testing.T) {
	_, err := Build(testCart(t), Options{Status: domain.SaleStatusProforma, DiscountCents: 20000})
	require.ErrorIs(t, err, ErrNegativeTotal)
}

func TestBuildValidatesInputs(t *testing.T) {
	_, err := Build(cart.New(), Options{Status: domain.SaleStatusCompleted})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = Build(testCart(t), Options{Status: domain.SaleStatusRejected})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = Build(testCart(t), Options{Status: domain.SaleStatusCompleted, PaymentMethod: "barter"})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = Build(testCart(t), Options{Status: domain.SaleStatusProforma, DiscountCents: -5})
	require.ErrorIs(t, err, pricing.ErrInvalidAdjustment)
}

func TestIsReviewable(t *testing.T) {
	require.True(t, IsReviewable(domain.SaleStatusPendingApproval))
	require.True(t, IsReviewable(domain.SaleStatusClientOrder))
	require.False(t, IsReviewable(domain.SaleStatusCompleted))
	require.False(t, IsReviewable(domain.SaleStatusProforma))
}
