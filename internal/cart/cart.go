// Package cart holds the ordered line items of a sale in progress.
package cart

import (
	"errors"
	"fmt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/pricing"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Cart keeps at most one line per identity key (variant id, else product id)
// in insertion order.
type Cart struct {
	lines []pricing.Line
}

func New() *Cart {
	return &Cart{}
}

// FromInputs resolves request lines against a product catalog. Repeated keys
// are merged by adding their quantities.
func FromInputs(products map[string]domain.Product, inputs []domain.CartLineInput) (*Cart, error) {
	c := New()
	for _, in := range inputs {
		product, ok := products[in.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: unknown product %s", pricing.ErrInvalidLineItem, in.ProductID)
		}
		var variant *domain.Variant
		if in.VariantID != "" {
			v, ok := product.FindVariant(in.VariantID)
			if !ok {
				return nil, fmt.Errorf("%w: variant %s does not belong to product %s", pricing.ErrInvalidLineItem, in.VariantID, product.ID)
			}
			variant = &v
		}
		if err := c.Add(product, variant, in.Quantity); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add increases the quantity of an existing line or appends a new one.
func (c *Cart) Add(product domain.Product, variant *domain.Variant, qty int) error {
	key := lineKey(product, variant)
	if i := c.indexOf(key); i >= 0 {
		return c.SetQuantity(product, variant, c.lines[i].Quantity+qty)
	}
	return c.SetQuantity(product, variant, qty)
}

// SetQuantity replaces the quantity of the line identified by product and
// variant. A quantity of zero removes the line.
func (c *Cart) SetQuantity(product domain.Product, variant *domain.Variant, qty int) error {
	key := lineKey(product, variant)
	if qty == 0 {
		c.Remove(key)
		return nil
	}

	line := pricing.Line{Product: product, Variant: variant, Quantity: qty}
	if variant != nil {
		// Stock and price come from the product's own copy of the variant.
		if own, ok := product.FindVariant(variant.ID); ok {
			line.Variant = &own
		}
	}
	if err := pricing.ValidateLine(line); err != nil {
		return err
	}

	variantID := ""
	if line.Variant != nil {
		variantID = line.Variant.ID
	}
	if available := product.AvailableStock(variantID); qty > available {
		return fmt.Errorf("%w: %s has %d available, requested %d", ErrInsufficientStock, key, available, qty)
	}

	if i := c.indexOf(key); i >= 0 {
		c.lines[i] = line
		return nil
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *Cart) Remove(key string) bool {
	i := c.indexOf(key)
	if i < 0 {
		return false
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return true
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []pricing.Line {
	out := make([]pricing.Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Quote(discountCents int64, taxRatePercent float64) (pricing.Quote, error) {
	return pricing.BuildQuote(c.lines, discountCents, taxRatePercent)
}

func (c *Cart) indexOf(key string) int {
	for i, line := range c.lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

func lineKey(product domain.Product, variant *domain.Variant) string {
	if variant != nil {
		return variant.ID
	}
	return product.ID
}
