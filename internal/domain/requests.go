package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=32,excludesall= \t\r\n"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=manager staff"`
}

type ProductCreateRequest struct {
	SKU               string        `json:"sku" validate:"required"`
	Name              string        `json:"name" validate:"required"`
	Category          string        `json:"category" validate:"required"`
	Type              string        `json:"type" validate:"omitempty,oneof=simple variable"`
	PriceCents        int64         `json:"price_cents" validate:"gte=0"`
	CostPriceCents    int64         `json:"cost_price_cents" validate:"gte=0"`
	CommissionPercent float64       `json:"commission_percent" validate:"gte=0,lte=100"`
	Stock             int           `json:"stock" validate:"gte=0"`
	TieredPricing     []TieredPrice `json:"tiered_pricing,omitempty" validate:"dive"`
	Variants          []Variant     `json:"variants,omitempty" validate:"dive"`
}

type QuoteRequest struct {
	Lines          []CartLineInput `json:"lines" validate:"required,min=1,dive"`
	DiscountCents  int64           `json:"discount_cents" validate:"gte=0"`
	TaxRatePercent float64         `json:"tax_rate_percent" validate:"gte=0,lte=100"`
}

type QuoteLine struct {
	Key               string  `json:"key"`
	ProductID         string  `json:"product_id"`
	VariantID         string  `json:"variant_id,omitempty"`
	Quantity          int     `json:"quantity"`
	UnitPriceCents    int64   `json:"unit_price_cents"`
	LineTotalCents    int64   `json:"line_total_cents"`
	CommissionPercent float64 `json:"commission_percent"`
	CommissionCents   int64   `json:"commission_cents"`
}

type QuoteResponse struct {
	Lines                      []QuoteLine `json:"lines"`
	SubtotalCents              int64       `json:"subtotal_cents"`
	DiscountCents              int64       `json:"discount_cents"`
	DiscountPercent            float64     `json:"discount_percent"`
	SubtotalAfterDiscountCents int64       `json:"subtotal_after_discount_cents"`
	TaxCents                   int64       `json:"tax_cents"`
	TotalCents                 int64       `json:"total_cents"`
	TotalCommissionCents       int64       `json:"total_commission_cents"`
	NegativeTotal              bool        `json:"negative_total"`
}

type CheckoutRequest struct {
	Lines             []CartLineInput `json:"lines" validate:"required,min=1,dive"`
	DiscountCents     int64           `json:"discount_cents" validate:"gte=0"`
	TaxRatePercent    float64         `json:"tax_rate_percent" validate:"gte=0,lte=100"`
	PaymentMethod     string          `json:"payment_method" validate:"omitempty,oneof=cash card transfer qris"`
	CashReceivedCents int64           `json:"cash_received_cents" validate:"gte=0"`
	Customer          *CustomerRef    `json:"customer,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

type StorefrontOrderRequest struct {
	Lines         []CartLineInput `json:"lines" validate:"required,min=1,dive"`
	Customer      CustomerRef     `json:"customer"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=cash card transfer qris"`
	Notes         string          `json:"notes,omitempty"`
}

type SaleReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=completed rejected"`
	Note     string `json:"note,omitempty"`
}

// Expectation carries the caller's view of a record for optimistic concurrency.
// Zero values skip the corresponding check.
type Expectation struct {
	ExpectedVersion int    `json:"expected_version,omitempty" validate:"gte=0"`
	ExpectedStatus  string `json:"expected_status,omitempty"`
}

type TransitionRequest struct {
	Expectation
	Note string `json:"note,omitempty"`
}

type CashCountCreateRequest struct {
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	CountedTotalCents int64  `json:"counted_total_cents" validate:"gte=0"`
	Notes             string `json:"notes,omitempty"`
}

type CashCountReviewRequest struct {
	Expectation
	Decision string `json:"decision" validate:"required,oneof=accepted rejected"`
	Note     string `json:"note,omitempty"`
}

type SystemCashTotal struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
	SaleCount  int    `json:"sale_count"`
}

type WithdrawalCreateRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Notes       string `json:"notes,omitempty"`
}

type CustomPaymentCreateRequest struct {
	PayeeID     string `json:"payee_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Description string `json:"description" validate:"required"`
}

type StorefrontVariant struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Attributes []VariantAttribute `json:"attributes,omitempty"`
	PriceCents int64              `json:"price_cents"`
	InStock    bool               `json:"in_stock"`
}

type StorefrontProduct struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Category      string              `json:"category"`
	Type          string              `json:"type"`
	PriceCents    int64               `json:"price_cents"`
	TieredPricing []TieredPrice       `json:"tiered_pricing,omitempty"`
	Variants      []StorefrontVariant `json:"variants,omitempty"`
	InStock       bool                `json:"in_stock"`
}

type StorefrontCatalog struct {
	Products    []StorefrontProduct `json:"products"`
	GeneratedAt time.Time           `json:"generated_at"`
}
