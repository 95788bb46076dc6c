package domain

import (
	"time"
)

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleSystem  = "system"
)

const (
	ProductTypeSimple   = "simple"
	ProductTypeVariable = "variable"
)

const (
	SaleStatusCompleted       = "completed"
	SaleStatusPendingApproval = "pending_approval"
	SaleStatusProforma        = "proforma"
	SaleStatusClientOrder     = "client_order"
	SaleStatusRejected        = "rejected"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentQRIS     = "qris"
)

const (
	CashCountFirstSigned  = "first_signed"
	CashCountSecondSigned = "second_signed"
	CashCountAccepted     = "accepted"
	CashCountRejected     = "rejected"
)

const (
	WithdrawalPending   = "pending"
	WithdrawalApproved  = "approved"
	WithdrawalRejected  = "rejected"
	WithdrawalPaid      = "paid"
	WithdrawalCompleted = "completed"
)

const (
	PaymentPendingUserApproval = "pending_user_approval"
	PaymentApprovedByUser      = "approved_by_user"
	PaymentRejectedByUser      = "rejected_by_user"
	PaymentPaid                = "paid"
	PaymentCompleted           = "completed"
)

// DateLayout is the calendar-day format used for sale dates and cash counts.
const DateLayout = "2006-01-02"

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

func (a Actor) IsSupervisor() bool {
	return a.Role == RoleOwner || a.Role == RoleManager
}

type TieredPrice struct {
	MinQuantity    int   `json:"min_quantity" validate:"gte=1"`
	UnitPriceCents int64 `json:"unit_price_cents" validate:"gte=1"`
}

type VariantAttribute struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type Variant struct {
	ID         string             `json:"id" validate:"required"`
	Name       string             `json:"name"`
	SKU        string             `json:"sku,omitempty"`
	Attributes []VariantAttribute `json:"attributes,omitempty" validate:"dive"`
	PriceCents int64              `json:"price_cents" validate:"gte=1"`
	Stock      int                `json:"stock" validate:"gte=0"`
}

type Product struct {
	ID                string        `json:"id"`
	SKU               string        `json:"sku"`
	Name              string        `json:"name"`
	Category          string        `json:"category"`
	Type              string        `json:"type"`
	PriceCents        int64         `json:"price_cents"`
	CostPriceCents    int64         `json:"cost_price_cents"`
	CommissionPercent float64       `json:"commission_percent"`
	Stock             int           `json:"stock"`
	TieredPricing     []TieredPrice `json:"tiered_pricing,omitempty"`
	Variants          []Variant     `json:"variants,omitempty"`
	Active            bool          `json:"active"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (p Product) IsVariable() bool {
	return p.Type == ProductTypeVariable
}

func (p Product) FindVariant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// AvailableStock returns the stock of the variant when variantID is set,
// otherwise the product-level stock.
func (p Product) AvailableStock(variantID string) int {
	if variantID == "" {
		return p.Stock
	}
	v, ok := p.FindVariant(variantID)
	if !ok {
		return 0
	}
	return v.Stock
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Delta     int    `json:"delta"`
}

type CartLineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type CustomerRef struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty"`
}

type SaleLine struct {
	ProductID         string  `json:"product_id"`
	ProductName       string  `json:"product_name"`
	VariantID         string  `json:"variant_id,omitempty"`
	VariantName       string  `json:"variant_name,omitempty"`
	Quantity          int     `json:"quantity"`
	UnitPriceCents    int64   `json:"unit_price_cents"`
	LineTotalCents    int64   `json:"line_total_cents"`
	CostPriceCents    int64   `json:"cost_price_cents"`
	CommissionPercent float64 `json:"commission_percent"`
	CommissionCents   int64   `json:"commission_cents"`
}

type Sale struct {
	ID                   string       `json:"id"`
	Status               string       `json:"status"`
	Lines                []SaleLine   `json:"lines"`
	Customer             *CustomerRef `json:"customer,omitempty"`
	SellerID             string       `json:"seller_id,omitempty"`
	SellerName           string       `json:"seller_name,omitempty"`
	PaymentMethod        string       `json:"payment_method"`
	SubtotalCents        int64        `json:"subtotal_cents"`
	DiscountCents        int64        `json:"discount_cents"`
	DiscountPercent      float64      `json:"discount_percent"`
	TaxRatePercent       float64      `json:"tax_rate_percent"`
	TaxCents             int64        `json:"tax_cents"`
	TotalCents           int64        `json:"total_cents"`
	TotalCommissionCents int64        `json:"total_commission_cents"`
	CashReceivedCents    int64        `json:"cash_received_cents,omitempty"`
	ChangeCents          int64        `json:"change_cents,omitempty"`
	Notes                string       `json:"notes,omitempty"`
	ReviewedBy           string       `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// StockAdjustments returns the deductions a completed sale applies to inventory.
func (s Sale) StockAdjustments(sign int) []StockAdjustment {
	adjustments := make([]StockAdjustment, 0, len(s.Lines))
	for _, line := range s.Lines {
		adjustments = append(adjustments, StockAdjustment{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Delta:     sign * line.Quantity,
		})
	}
	return adjustments
}

type SalesFilter struct {
	Date          string
	Location      *time.Location
	Status        string
	PaymentMethod string
	SellerID      string
}

// Match reports whether the sale satisfies every non-empty filter field.
func (f SalesFilter) Match(sale Sale) bool {
	if f.Status != "" && sale.Status != f.Status {
		return false
	}
	if f.PaymentMethod != "" && sale.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.SellerID != "" && sale.SellerID != f.SellerID {
		return false
	}
	if f.Date != "" {
		loc := f.Location
		if loc == nil {
			loc = time.UTC
		}
		if sale.CreatedAt.In(loc).Format(DateLayout) != f.Date {
			return false
		}
	}
	return true
}

type AuditEntry struct {
	At         time.Time `json:"at"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status,omitempty"`
	Status     string    `json:"status"`
	Note       string    `json:"note"`
}

type Signature struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Role     string    `json:"role"`
	SignedAt time.Time `json:"signed_at"`
}

type OwnerAudit struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

type CashCount struct {
	ID                string       `json:"id"`
	Date              string       `json:"date"`
	CountedTotalCents int64        `json:"counted_total_cents"`
	SystemTotalCents  int64        `json:"system_total_cents"`
	DifferenceCents   int64        `json:"difference_cents"`
	Status            string       `json:"status"`
	FirstSignature    Signature    `json:"first_signature"`
	SecondSignature   *Signature   `json:"second_signature,omitempty"`
	OwnerAudit        *OwnerAudit  `json:"owner_audit,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	History           []AuditEntry `json:"history"`
	Version           int          `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type Withdrawal struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	UserName    string       `json:"user_name"`
	AmountCents int64        `json:"amount_cents"`
	Status      string       `json:"status"`
	Notes       string       `json:"notes,omitempty"`
	History     []AuditEntry `json:"history"`
	Version     int          `json:"version"`
	RequestedAt time.Time    `json:"requested_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type CustomPayment struct {
	ID            string       `json:"id"`
	PayeeID       string       `json:"payee_id"`
	PayeeName     string       `json:"payee_name"`
	CreatedByID   string       `json:"created_by_id"`
	CreatedByName string       `json:"created_by_name"`
	Description   string       `json:"description"`
	AmountCents   int64        `json:"amount_cents"`
	Status        string       `json:"status"`
	History       []AuditEntry `json:"history"`
	Version       int          `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type RecordFilter struct {
	Status string
	UserID string
}

type Balance struct {
	UserID              string    `json:"user_id"`
	TotalEarningsCents  int64     `json:"total_earnings_cents"`
	WithdrawalsCents    int64     `json:"withdrawals_cents"`
	CustomPaymentsCents int64     `json:"custom_payments_cents"`
	AvailableCents      int64     `json:"available_cents"`
	Negative            bool      `json:"negative"`
	ComputedAt          time.Time `json:"computed_at"`
}

type UserAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
