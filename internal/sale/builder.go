// Package sale turns a priced cart into an immutable sale snapshot.
package sale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kasirkas/backend/internal/cart"
	"kasirkas/backend/internal/domain"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNegativeTotal        = errors.New("discount exceeds subtotal")
	ErrInsufficientCash     = errors.New("cash received is less than total")
	ErrInvalidStatus        = errors.New("invalid sale status")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

type Options struct {
	ID                string
	Status            string
	Seller            *domain.Actor
	Customer          *domain.CustomerRef
	PaymentMethod     string
	DiscountCents     int64
	TaxRatePercent    float64
	CashReceivedCents int64
	Notes             string
	CreatedAt         time.Time
}

// Build prices the cart and snapshots it into a sale. Line prices, totals and
// commission are frozen at this point.
func Build(c *cart.Cart, opts Options) (domain.Sale, error) {
	if !IsCreatableStatus(opts.Status) {
		return domain.Sale{}, fmt.Errorf("%w: %q", ErrInvalidStatus, opts.Status)
	}
	if c == nil || c.IsEmpty() {
		return domain.Sale{}, ErrEmptyCart
	}

	method := strings.ToLower(strings.TrimSpace(opts.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	if !IsSupportedPaymentMethod(method) {
		return domain.Sale{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}

	quote, err := c.Quote(opts.DiscountCents, opts.TaxRatePercent)
	if err != nil {
		return domain.Sale{}, err
	}
	if quote.NegativeTotal {
		return domain.Sale{}, fmt.Errorf("%w: subtotal %d, discount %d", ErrNegativeTotal, quote.SubtotalCents, quote.DiscountCents)
	}

	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := domain.Sale{
		ID:                   opts.ID,
		Status:               opts.Status,
		PaymentMethod:        method,
		SubtotalCents:        quote.SubtotalCents,
		DiscountCents:        quote.DiscountCents,
		DiscountPercent:      quote.DiscountPercent,
		TaxRatePercent:       opts.TaxRatePercent,
		TaxCents:             quote.TaxCents,
		TotalCents:           quote.TotalCents,
		TotalCommissionCents: quote.CommissionCents,
		Notes:                strings.TrimSpace(opts.Notes),
		CreatedAt:            createdAt,
	}
	if opts.Seller != nil {
		record.SellerID = opts.Seller.ID
		record.SellerName = opts.Seller.Name
	}
	if opts.Customer != nil {
		customer := *opts.Customer
		record.Customer = &customer
	}

	if method == domain.PaymentCash && takesPayment(opts.Status) {
		if opts.CashReceivedCents < quote.TotalCents {
			return domain.Sale{}, fmt.Errorf("%w: received %d, total %d", ErrInsufficientCash, opts.CashReceivedCents, quote.TotalCents)
		}
		record.CashReceivedCents = opts.CashReceivedCents
		record.ChangeCents = opts.CashReceivedCents - quote.TotalCents
	}

	lines := c.Lines()
	record.Lines = make([]domain.SaleLine, 0, len(lines))
	for i, line := range lines {
		sl := domain.SaleLine{
			ProductID:         line.Product.ID,
			ProductName:       line.Product.Name,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents(),
			LineTotalCents:    line.SubtotalCents(),
			CostPriceCents:    line.Product.CostPriceCents,
			CommissionPercent: line.Product.CommissionPercent,
			CommissionCents:   quote.Lines[i].Commission.Round(0).IntPart(),
		}
		if line.Variant != nil {
			sl.VariantID = line.Variant.ID
			sl.VariantName = line.Variant.Name
		}
		record.Lines = append(record.Lines, sl)
	}

	return record, nil
}

// IsCreatableStatus reports whether a sale may be created in status.
func IsCreatableStatus(status string) bool {
	switch status {
	case domain.SaleStatusCompleted, domain.SaleStatusPendingApproval, domain.SaleStatusProforma, domain.SaleStatusClientOrder:
		return true
	default:
		return false
	}
}

// IsReviewable reports whether a supervisor may still complete or reject the sale.
func IsReviewable(status string) bool {
	return status == domain.SaleStatusPendingApproval || status == domain.SaleStatusClientOrder
}

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentQRIS:
		return true
	default:
		return false
	}
}

func takesPayment(status string) bool {
	return status == domain.SaleStatusCompleted || status == domain.SaleStatusPendingApproval
}
