package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kasirkas/backend/internal/cart"
	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/metrics"
	"kasirkas/backend/internal/sale"
	"kasirkas/backend/internal/store"
	"kasirkas/backend/internal/store/memory"
	"kasirkas/backend/internal/workflow"
)

var (
	owner   = domain.Actor{ID: "owner", Name: "Pemilik Toko", Role: domain.RoleOwner}
	manager = domain.Actor{ID: "manager", Name: "Manajer Toko", Role: domain.RoleManager}
	staff   = domain.Actor{ID: "staff", Name: "Kasir Utama", Role: domain.RoleStaff}
	staff2  = domain.Actor{ID: "staff2", Name: "Kasir Kedua", Role: domain.RoleStaff}
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, Options{
		Metrics:                 metrics.New(),
		StaffMaxDiscountPercent: 10,
		Now:                     func() time.Time { return fixedNow },
	})
	return svc, repo
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func kopiCheckout(qty int, discount int64, cash int64) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		Lines:             []domain.CartLineInput{{ProductID: "prd-kopi", Quantity: qty}},
		DiscountCents:     discount,
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: cash,
	}
}

func stock(t *testing.T, repo *memory.Store, productID, variantID string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.AvailableStock(variantID)
}

func TestQuoteUsesTierAndCommission(t *testing.T) {
	svc, _ := newTestService(t)

	q, err := svc.Quote(context.Background(), domain.QuoteRequest{
		Lines: []domain.CartLineInput{
			{ProductID: "prd-kopi", Quantity: 10},
			{ProductID: "prd-kaos", VariantID: "prd-kaos-l", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, q.Lines, 2)
	require.Equal(t, int64(2400), q.Lines[0].UnitPriceCents)
	require.Equal(t, "prd-kaos-l", q.Lines[1].Key)
	require.Equal(t, int64(24000+57500), q.SubtotalCents)
	require.Equal(t, int64(1200+4600), q.TotalCommissionCents)
	require.False(t, q.NegativeTotal)
}

func TestQuoteRejectsVariableProductWithoutVariant(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Quote(context.Background(), domain.QuoteRequest{
		Lines: []domain.CartLineInput{{ProductID: "prd-kaos", Quantity: 1}},
	})
	require.Error(t, err)
	require.Equal(t, "invalid_input", ErrorCode(err))
}

func TestCheckoutDeductsStockAndRecordsChange(t *testing.T) {
	svc, repo := newTestService(t)
	before := stock(t, repo, "prd-kopi", "")

	created, err := svc.Checkout(as(staff), kopiCheckout(10, 0, 30000))
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, created.Status)
	require.Equal(t, "staff", created.SellerID)
	require.Equal(t, int64(24000), created.TotalCents)
	require.Equal(t, int64(6000), created.ChangeCents)
	require.Equal(t, int64(1200), created.TotalCommissionCents)
	require.Equal(t, before-10, stock(t, repo, "prd-kopi", ""))
}

func TestCheckoutRequiresActor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(context.Background(), kopiCheckout(1, 0, 5000))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCheckoutErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(as(staff), kopiCheckout(1, 0, 100))
	require.ErrorIs(t, err, sale.ErrInsufficientCash)

	_, err = svc.Checkout(as(manager), kopiCheckout(1, 5000, 0))
	require.ErrorIs(t, err, sale.ErrNegativeTotal)

	_, err = svc.Checkout(as(staff), kopiCheckout(201, 0, 10_000_000))
	require.ErrorIs(t, err, cart.ErrInsufficientStock)
	require.Equal(t, "insufficient_stock", ErrorCode(err))

	_, err = svc.Checkout(as(staff), domain.CheckoutRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidInput)
}

func TestStaffDiscountAboveCeilingNeedsApproval(t *testing.T) {
	svc, repo := newTestService(t)
	before := stock(t, repo, "prd-kopi", "")

	pending, err := svc.Checkout(as(staff), kopiCheckout(10, 3600, 20400))
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusPendingApproval, pending.Status)
	require.Equal(t, before, stock(t, repo, "prd-kopi", ""))

	_, err = svc.ReviewSale(as(staff), pending.ID, domain.SaleReviewRequest{Decision: domain.SaleStatusCompleted})
	require.ErrorIs(t, err, ErrForbidden)

	approved, err := svc.ReviewSale(as(manager), pending.ID, domain.SaleReviewRequest{Decision: domain.SaleStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, approved.Status)
	require.Equal(t, pending.TotalCents, approved.TotalCents)
	require.Equal(t, before-10, stock(t, repo, "prd-kopi", ""))

	_, err = svc.ReviewSale(as(manager), pending.ID, domain.SaleReviewRequest{Decision: domain.SaleStatusRejected})
	require.ErrorIs(t, err, workflow.ErrInvalidStateTransition)

	managerSale, err := svc.Checkout(as(manager), kopiCheckout(10, 3600, 20400))
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusCompleted, managerSale.Status)
}

func TestProformaHasNoStockOrCashEffect(t *testing.T) {
	svc, repo := newTestService(t)
	before := stock(t, repo, "prd-kopi", "")

	pf, err := svc.CreateProforma(as(staff), kopiCheckout(5, 0, 99999))
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusProforma, pf.Status)
	require.Zero(t, pf.CashReceivedCents)
	require.Zero(t, pf.ChangeCents)
	require.Equal(t, before, stock(t, repo, "prd-kopi", ""))

	b, err := svc.Balance(as(staff), "staff")
	require.NoError(t, err)
	require.Zero(t, b.TotalEarningsCents)
}

func TestStorefrontOrderAndCatalog(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	catalog, err := svc.StorefrontCatalog(ctx)
	require.NoError(t, err)
	var kaos *domain.StorefrontProduct
	for i := range catalog.Products {
		if catalog.Products[i].ID == "prd-kaos" {
			kaos = &catalog.Products[i]
		}
	}
	require.NotNil(t, kaos)
	require.Len(t, kaos.Variants, 3)
	require.False(t, kaos.Variants[2].InStock)

	_, err = svc.PlaceStorefrontOrder(ctx, domain.StorefrontOrderRequest{
		Lines: []domain.CartLineInput{{ProductID: "prd-kaos", VariantID: "prd-kaos-m", Quantity: 2}},
	})
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	order, err := svc.PlaceStorefrontOrder(ctx, domain.StorefrontOrderRequest{
		Lines:         []domain.CartLineInput{{ProductID: "prd-kaos", VariantID: "prd-kaos-m", Quantity: 2}},
		Customer:      domain.CustomerRef{Name: "Budi", Phone: "0812"},
		PaymentMethod: domain.PaymentTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusClientOrder, order.Status)
	require.Empty(t, order.SellerID)
	require.Equal(t, "Budi", order.Customer.Name)
	require.Equal(t, 12, stock(t, repo, "prd-kaos", "prd-kaos-m"))

	_, err = svc.ReviewSale(as(owner), order.ID, domain.SaleReviewRequest{Decision: domain.SaleStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 10, stock(t, repo, "prd-kaos", "prd-kaos-m"))
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	before := stock(t, repo, "prd-kopi", "")

	created, err := svc.Checkout(as(staff), kopiCheckout(3, 0, 10000))
	require.NoError(t, err)

	_, err = svc.DeleteSale(as(staff), created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.DeleteSale(as(owner), created.ID)
	require.NoError(t, err)
	require.Equal(t, before, stock(t, repo, "prd-kopi", ""))

	_, err = svc.GetSale(as(owner), created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCashCountLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(as(staff), kopiCheckout(10, 0, 24000))
	require.NoError(t, err)
	_, err = svc.Checkout(as(staff), domain.CheckoutRequest{
		Lines:         []domain.CartLineInput{{ProductID: "prd-sabun", Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	total, err := svc.SystemCashTotal(as(staff), "2026-05-04")
	require.NoError(t, err)
	require.Equal(t, int64(24000), total.TotalCents)
	require.Equal(t, 1, total.SaleCount)

	cc, err := svc.CreateCashCount(as(staff), domain.CashCountCreateRequest{Date: "2026-05-04", CountedTotalCents: 23500})
	require.NoError(t, err)
	require.Equal(t, domain.CashCountFirstSigned, cc.Status)
	require.Equal(t, int64(-500), cc.DifferenceCents)

	_, err = svc.SecondSignCashCount(as(staff), cc.ID, domain.TransitionRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidStateTransition)

	_, err = svc.SecondSignCashCount(as(staff2), cc.ID, domain.TransitionRequest{Expectation: domain.Expectation{ExpectedVersion: 4}})
	require.ErrorIs(t, err, workflow.ErrStaleState)

	signed, err := svc.SecondSignCashCount(as(staff2), cc.ID, domain.TransitionRequest{Expectation: domain.Expectation{ExpectedVersion: 1}})
	require.NoError(t, err)
	require.Equal(t, domain.CashCountSecondSigned, signed.Status)
	require.Equal(t, 2, signed.Version)

	_, err = svc.OwnerReviewCashCount(as(manager), cc.ID, domain.CashCountReviewRequest{Decision: domain.CashCountAccepted})
	require.ErrorIs(t, err, ErrForbidden)

	reviewed, err := svc.OwnerReviewCashCount(as(owner), cc.ID, domain.CashCountReviewRequest{Decision: domain.CashCountAccepted, Note: "selisih kecil"})
	require.NoError(t, err)
	require.Equal(t, domain.CashCountAccepted, reviewed.Status)
	require.Len(t, reviewed.History, 3)

	stored, err := svc.GetCashCount(as(staff), cc.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Version)
}

func TestWithdrawalsCheckBalanceAtRequestAndApproval(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(as(staff), kopiCheckout(10, 0, 24000))
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(as(staff), domain.WithdrawalCreateRequest{AmountCents: 1500})
	require.ErrorIs(t, err, workflow.ErrInsufficientBalance)

	first, err := svc.RequestWithdrawal(as(staff), domain.WithdrawalCreateRequest{AmountCents: 1000})
	require.NoError(t, err)
	second, err := svc.RequestWithdrawal(as(staff), domain.WithdrawalCreateRequest{AmountCents: 500})
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(as(staff), first.ID, domain.TransitionRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidStateTransition)

	_, err = svc.ApproveWithdrawal(as(manager), first.ID, domain.TransitionRequest{})
	require.NoError(t, err)
	_, err = svc.ApproveWithdrawal(as(manager), second.ID, domain.TransitionRequest{})
	require.ErrorIs(t, err, workflow.ErrInsufficientBalance)

	b, err := svc.Balance(as(staff), "staff")
	require.NoError(t, err)
	require.Equal(t, int64(200), b.AvailableCents)

	_, err = svc.MarkWithdrawalPaid(as(owner), first.ID, domain.TransitionRequest{})
	require.NoError(t, err)
	_, err = svc.ConfirmWithdrawal(as(manager), first.ID, domain.TransitionRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidStateTransition)
	done, err := svc.ConfirmWithdrawal(as(staff), first.ID, domain.TransitionRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, done.Status)
	require.Len(t, done.History, 4)

	mine, err := svc.ListWithdrawals(as(staff2), domain.RecordFilter{})
	require.NoError(t, err)
	require.Empty(t, mine)

	_, err = svc.Balance(as(staff2), "staff")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCustomPaymentMayDriveBalanceNegative(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateCustomPayment(as(staff), domain.CustomPaymentCreateRequest{PayeeID: "staff2", AmountCents: 100, Description: "bonus"})
	require.ErrorIs(t, err, ErrForbidden)

	p, err := svc.CreateCustomPayment(as(manager), domain.CustomPaymentCreateRequest{PayeeID: "staff", AmountCents: 5000, Description: "kasbon"})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPendingUserApproval, p.Status)
	require.Equal(t, "Kasir Utama", p.PayeeName)

	_, err = svc.RespondCustomPayment(as(staff2), p.ID, true, domain.TransitionRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidStateTransition)

	accepted, err := svc.RespondCustomPayment(as(staff), p.ID, true, domain.TransitionRequest{Expectation: domain.Expectation{ExpectedStatus: domain.PaymentPendingUserApproval}})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentApprovedByUser, accepted.Status)

	b, err := svc.Balance(as(owner), "staff")
	require.NoError(t, err)
	require.Equal(t, int64(-5000), b.AvailableCents)
	require.True(t, b.Negative)

	_, err = svc.MarkCustomPaymentPaid(as(manager), p.ID, domain.TransitionRequest{})
	require.NoError(t, err)
	done, err := svc.ConfirmCustomPayment(as(staff), p.ID, domain.TransitionRequest{})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, done.Status)

	_, err = svc.CreateCustomPayment(as(owner), domain.CustomPaymentCreateRequest{PayeeID: "ghost", AmountCents: 1, Description: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsersAndAuditLog(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(as(manager), domain.UserCreateRequest{Username: "kasir3", Name: "Kasir Tiga", Password: "rahasia1", Role: domain.RoleStaff})
	require.ErrorIs(t, err, ErrForbidden)

	user, err := svc.CreateUser(as(owner), domain.UserCreateRequest{Username: "Kasir3", Name: "Kasir Tiga", Password: "rahasia1", Role: domain.RoleStaff})
	require.NoError(t, err)
	require.Equal(t, "kasir3", user.ID)
	require.Empty(t, user.Password)

	_, err = svc.CreateUser(as(owner), domain.UserCreateRequest{Username: "kasir3", Name: "Lagi", Password: "rahasia1", Role: domain.RoleStaff})
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	users, err := svc.ListUsers(as(manager))
	require.NoError(t, err)
	require.Len(t, users, 5)

	logs, err := svc.ListAuditLogs(as(owner), "2026-05-04", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	require.Equal(t, "user_create", logs[0].Action)

	_, err = svc.ListAuditLogs(as(manager), "", 10)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateProductValidatesCatalogEntry(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(as(owner), domain.ProductCreateRequest{
		SKU: "sku-x", Name: "Kemeja", Category: "apparel", Type: domain.ProductTypeVariable,
		Variants: []domain.Variant{{ID: "v1", PriceCents: 100}, {ID: "v1", PriceCents: 200}},
	})
	require.ErrorIs(t, err, workflow.ErrInvalidInput)

	p, err := svc.CreateProduct(as(manager), domain.ProductCreateRequest{
		SKU: "sku-gula", Name: "Gula", Category: "grocery", PriceCents: 15000, Stock: 5,
		TieredPricing: []domain.TieredPrice{{MinQuantity: 3, UnitPriceCents: 14000}, {MinQuantity: 10, UnitPriceCents: 13000}},
	})
	require.NoError(t, err)
	require.Equal(t, "SKU-GULA", p.SKU)
	require.Equal(t, 10, p.TieredPricing[0].MinQuantity)

	_, err = svc.CreateProduct(as(staff), domain.ProductCreateRequest{SKU: "a", Name: "b", Category: "c", PriceCents: 1})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentSecondSignHasOneWinner(t *testing.T) {
	svc, _ := newTestService(t)

	cc, err := svc.CreateCashCount(as(staff), domain.CashCountCreateRequest{Date: "2026-05-04", CountedTotalCents: 0})
	require.NoError(t, err)

	signers := []domain.Actor{staff2, manager, owner}
	errs := make([]error, len(signers))
	var wg sync.WaitGroup
	for i, signer := range signers {
		wg.Add(1)
		go func(i int, signer domain.Actor) {
			defer wg.Done()
			_, errs[i] = svc.SecondSignCashCount(as(signer), cc.ID, domain.TransitionRequest{Expectation: domain.Expectation{ExpectedVersion: 1}})
		}(i, signer)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, workflow.ErrStaleState)
	}
	require.Equal(t, 1, wins)

	stored, err := svc.GetCashCount(as(owner), cc.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
}
