// Package pricing computes unit prices, cart totals and commissions.
//
// Amounts are int64 minor units (cents). Proportional discount allocation,
// tax and commission are computed with decimal arithmetic and rounded half
// away from zero to whole cents at the end of each computation.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"kasirkas/backend/internal/domain"
)

var (
	ErrInvalidLineItem   = errors.New("invalid line item")
	ErrInvalidAdjustment = errors.New("invalid adjustment")
)

var hundred = decimal.NewFromInt(100)

// Line is a priced cart line: a product, its variant for variable products,
// and a quantity.
type Line struct {
	Product  domain.Product
	Variant  *domain.Variant
	Quantity int
}

// Key identifies the line inside a cart: the variant id when present,
// otherwise the product id.
func (l Line) Key() string {
	if l.Variant != nil {
		return l.Variant.ID
	}
	return l.Product.ID
}

func (l Line) UnitPriceCents() int64 {
	return EffectiveUnitPrice(l.Product, l.Quantity, l.Variant)
}

func (l Line) SubtotalCents() int64 {
	return l.UnitPriceCents() * int64(l.Quantity)
}

// EffectiveUnitPrice returns the variant price when a variant is given.
// Otherwise the first tier (by minimum quantity, largest first) whose
// threshold the quantity meets wins, falling back to the base price.
func EffectiveUnitPrice(product domain.Product, quantity int, variant *domain.Variant) int64 {
	if variant != nil {
		return variant.PriceCents
	}
	for _, tier := range SortTiers(product.TieredPricing) {
		if quantity >= tier.MinQuantity {
			return tier.UnitPriceCents
		}
	}
	return product.PriceCents
}

// SortTiers returns a copy of tiers ordered by MinQuantity descending.
// Tiers sharing a threshold are ordered cheapest first.
func SortTiers(tiers []domain.TieredPrice) []domain.TieredPrice {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b domain.TieredPrice) int {
		if a.MinQuantity != b.MinQuantity {
			return b.MinQuantity - a.MinQuantity
		}
		switch {
		case a.UnitPriceCents < b.UnitPriceCents:
			return -1
		case a.UnitPriceCents > b.UnitPriceCents:
			return 1
		}
		return 0
	})
	return sorted
}

func ValidateLine(line Line) error {
	p := line.Product
	if p.ID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidLineItem)
	}
	if line.Quantity < 1 {
		return fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidLineItem, p.ID)
	}
	if p.PriceCents < 0 || p.CostPriceCents < 0 {
		return fmt.Errorf("%w: product %s has a negative price", ErrInvalidLineItem, p.ID)
	}
	if math.IsNaN(p.CommissionPercent) || p.CommissionPercent < 0 || p.CommissionPercent > 100 {
		return fmt.Errorf("%w: commission for %s must be between 0 and 100", ErrInvalidLineItem, p.ID)
	}
	for _, tier := range p.TieredPricing {
		if tier.MinQuantity < 1 || tier.UnitPriceCents < 0 {
			return fmt.Errorf("%w: product %s has an invalid price tier", ErrInvalidLineItem, p.ID)
		}
	}

	if p.IsVariable() {
		if line.Variant == nil {
			return fmt.Errorf("%w: product %s requires a variant", ErrInvalidLineItem, p.ID)
		}
		if _, ok := p.FindVariant(line.Variant.ID); !ok {
			return fmt.Errorf("%w: variant %s does not belong to product %s", ErrInvalidLineItem, line.Variant.ID, p.ID)
		}
		if line.Variant.PriceCents < 0 {
			return fmt.Errorf("%w: variant %s has a negative price", ErrInvalidLineItem, line.Variant.ID)
		}
	} else if line.Variant != nil {
		return fmt.Errorf("%w: product %s has no variants", ErrInvalidLineItem, p.ID)
	}
	return nil
}

func ValidateLines(lines []Line) error {
	for _, line := range lines {
		if err := ValidateLine(line); err != nil {
			return err
		}
	}
	return nil
}

type Totals struct {
	SubtotalCents              int64 `json:"subtotal_cents"`
	DiscountCents              int64 `json:"discount_cents"`
	SubtotalAfterDiscountCents int64 `json:"subtotal_after_discount_cents"`
	TaxCents                   int64 `json:"tax_cents"`
	TotalCents                 int64 `json:"total_cents"`
	// NegativeTotal is set when the discount exceeds the subtotal. The
	// amounts are reported as computed; callers decide whether to accept them.
	NegativeTotal bool `json:"negative_total"`
}

// ComputeTotals sums line subtotals, subtracts the discount and charges tax
// only on a positive discounted subtotal.
func ComputeTotals(lines []Line, discountCents int64, taxRatePercent float64) (Totals, error) {
	if err := validateAdjustments(discountCents, taxRatePercent); err != nil {
		return Totals{}, err
	}
	if err := ValidateLines(lines); err != nil {
		return Totals{}, err
	}

	subtotal := int64(0)
	for _, line := range lines {
		subtotal += line.SubtotalCents()
	}
	afterDiscount := subtotal - discountCents

	tax := int64(0)
	if afterDiscount > 0 {
		tax = decimal.NewFromInt(afterDiscount).
			Mul(decimal.NewFromFloat(taxRatePercent)).
			Div(hundred).
			Round(0).
			IntPart()
	}

	return Totals{
		SubtotalCents:              subtotal,
		DiscountCents:              discountCents,
		SubtotalAfterDiscountCents: afterDiscount,
		TaxCents:                   tax,
		TotalCents:                 afterDiscount + tax,
		NegativeTotal:              afterDiscount < 0,
	}, nil
}

// LineCommission is the commission breakdown of one line. Decimal fields are
// unrounded.
type LineCommission struct {
	Key               string
	SubtotalCents     int64
	AllocatedDiscount decimal.Decimal
	Commissionable    decimal.Decimal
	Percent           float64
	Commission        decimal.Decimal
}

// AllocateCommission spreads the cart discount across lines in proportion to
// each line subtotal and applies each product's commission percentage to the
// remainder.
func AllocateCommission(lines []Line, discountCents int64) ([]LineCommission, error) {
	if discountCents < 0 {
		return nil, fmt.Errorf("%w: discount must not be negative", ErrInvalidAdjustment)
	}
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}

	subtotal := int64(0)
	for _, line := range lines {
		subtotal += line.SubtotalCents()
	}

	discount := decimal.NewFromInt(discountCents)
	result := make([]LineCommission, 0, len(lines))
	for _, line := range lines {
		itemSubtotal := line.SubtotalCents()
		allocated := decimal.Zero
		if subtotal != 0 {
			allocated = discount.Mul(decimal.NewFromInt(itemSubtotal)).Div(decimal.NewFromInt(subtotal))
		}
		commissionable := decimal.NewFromInt(itemSubtotal).Sub(allocated)
		percent := line.Product.CommissionPercent
		result = append(result, LineCommission{
			Key:               line.Key(),
			SubtotalCents:     itemSubtotal,
			AllocatedDiscount: allocated,
			Commissionable:    commissionable,
			Percent:           percent,
			Commission:        commissionable.Mul(decimal.NewFromFloat(percent)).Div(hundred),
		})
	}
	return result, nil
}

// ComputeCommission returns the cart commission rounded once to whole cents.
func ComputeCommission(lines []Line, discountCents int64) (int64, error) {
	breakdown, err := AllocateCommission(lines, discountCents)
	if err != nil {
		return 0, err
	}
	return sumCommission(breakdown), nil
}

// Quote is everything an interactive cart editor needs in one pass.
type Quote struct {
	Totals
	DiscountPercent float64
	CommissionCents int64
	Lines           []LineCommission
}

func BuildQuote(lines []Line, discountCents int64, taxRatePercent float64) (Quote, error) {
	totals, err := ComputeTotals(lines, discountCents, taxRatePercent)
	if err != nil {
		return Quote{}, err
	}
	breakdown, err := AllocateCommission(lines, discountCents)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Totals:          totals,
		DiscountPercent: DiscountPercent(totals.SubtotalCents, discountCents),
		CommissionCents: sumCommission(breakdown),
		Lines:           breakdown,
	}, nil
}

// DiscountPercent expresses the discount as a percentage of the subtotal,
// rounded to two decimals. A zero subtotal yields zero.
func DiscountPercent(subtotalCents int64, discountCents int64) float64 {
	if subtotalCents == 0 {
		return 0
	}
	pct := decimal.NewFromInt(discountCents).Mul(hundred).Div(decimal.NewFromInt(subtotalCents)).Round(2)
	return pct.InexactFloat64()
}

func sumCommission(breakdown []LineCommission) int64 {
	total := decimal.Zero
	for _, line := range breakdown {
		total = total.Add(line.Commission)
	}
	return total.Round(0).IntPart()
}

func validateAdjustments(discountCents int64, taxRatePercent float64) error {
	if discountCents < 0 {
		return fmt.Errorf("%w: discount must not be negative", ErrInvalidAdjustment)
	}
	if math.IsNaN(taxRatePercent) || taxRatePercent < 0 || taxRatePercent > 100 {
		return fmt.Errorf("%w: tax rate must be between 0 and 100", ErrInvalidAdjustment)
	}
	return nil
}
