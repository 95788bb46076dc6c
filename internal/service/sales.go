package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kasirkas/backend/internal/cart"
	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/sale"
	"kasirkas/backend/internal/workflow"
	"kasirkas/backend/internal/xid"
)

func (s *Service) loadCart(ctx context.Context, inputs []domain.CartLineInput) (*cart.Cart, error) {
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return cart.FromInputs(products, inputs)
}

// Quote prices a cart without persisting anything.
func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	if err := s.check(req); err != nil {
		return domain.QuoteResponse{}, err
	}
	c, err := s.loadCart(ctx, req.Lines)
	if err != nil {
		return domain.QuoteResponse{}, err
	}
	q, err := c.Quote(req.DiscountCents, req.TaxRatePercent)
	if err != nil {
		return domain.QuoteResponse{}, err
	}

	resp := domain.QuoteResponse{
		Lines:                      make([]domain.QuoteLine, 0, c.Len()),
		SubtotalCents:              q.SubtotalCents,
		DiscountCents:              q.DiscountCents,
		DiscountPercent:            q.DiscountPercent,
		SubtotalAfterDiscountCents: q.SubtotalAfterDiscountCents,
		TaxCents:                   q.TaxCents,
		TotalCents:                 q.TotalCents,
		TotalCommissionCents:       q.CommissionCents,
		NegativeTotal:              q.NegativeTotal,
	}
	for i, line := range c.Lines() {
		ql := domain.QuoteLine{
			Key:               line.Key(),
			ProductID:         line.Product.ID,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents(),
			LineTotalCents:    line.SubtotalCents(),
			CommissionPercent: line.Product.CommissionPercent,
			CommissionCents:   q.Lines[i].Commission.Round(0).IntPart(),
		}
		if line.Variant != nil {
			ql.VariantID = line.Variant.ID
		}
		resp.Lines = append(resp.Lines, ql)
	}
	return resp, nil
}

// Checkout records a sale paid at the counter. A staff discount above the
// configured ceiling parks the sale in pending_approval without touching stock.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	c, err := s.loadCart(ctx, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	status := domain.SaleStatusCompleted
	if actor.Role == domain.RoleStaff && req.DiscountCents > 0 {
		q, err := c.Quote(req.DiscountCents, req.TaxRatePercent)
		if err != nil {
			return domain.Sale{}, err
		}
		if q.DiscountPercent > s.staffMaxDiscount {
			status = domain.SaleStatusPendingApproval
		}
	}

	return s.recordSale(ctx, c, sale.Options{
		ID:                xid.New("sale"),
		Status:            status,
		Seller:            &actor,
		Customer:          req.Customer,
		PaymentMethod:     req.PaymentMethod,
		DiscountCents:     req.DiscountCents,
		TaxRatePercent:    req.TaxRatePercent,
		CashReceivedCents: req.CashReceivedCents,
		Notes:             req.Notes,
		CreatedAt:         s.now(),
	})
}

// CreateProforma records a quotation. It carries no cash fields and never
// moves stock.
func (s *Service) CreateProforma(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	c, err := s.loadCart(ctx, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.recordSale(ctx, c, sale.Options{
		ID:             xid.New("pf"),
		Status:         domain.SaleStatusProforma,
		Seller:         &actor,
		Customer:       req.Customer,
		PaymentMethod:  req.PaymentMethod,
		DiscountCents:  req.DiscountCents,
		TaxRatePercent: req.TaxRatePercent,
		Notes:          req.Notes,
		CreatedAt:      s.now(),
	})
}

// PlaceStorefrontOrder records a public order as a client_order awaiting
// review. It has no seller.
func (s *Service) PlaceStorefrontOrder(ctx context.Context, req domain.StorefrontOrderRequest) (domain.Sale, error) {
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	c, err := s.loadCart(ctx, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}
	customer := req.Customer
	return s.recordSale(ctx, c, sale.Options{
		ID:            xid.New("order"),
		Status:        domain.SaleStatusClientOrder,
		Customer:      &customer,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		CreatedAt:     s.now(),
	})
}

func (s *Service) recordSale(ctx context.Context, c *cart.Cart, opts sale.Options) (domain.Sale, error) {
	record, err := sale.Build(c, opts)
	if err != nil {
		return domain.Sale{}, err
	}
	created, err := s.repo.CreateSale(ctx, record)
	if err != nil {
		return domain.Sale{}, err
	}

	s.metrics.ObserveSale(created.Status)
	if created.Status == domain.SaleStatusCompleted {
		s.invalidateCatalog(ctx)
	}
	s.logAudit(ctx, "sale_create", "sale", created.ID,
		fmt.Sprintf("status=%s,total=%d,commission=%d,method=%s", created.Status, created.TotalCents, created.TotalCommissionCents, created.PaymentMethod))
	s.log.Info("sale recorded",
		zap.String("sale_id", created.ID),
		zap.String("status", created.Status),
		zap.Int64("total_cents", created.TotalCents))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Sale{}, err
	}
	record, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *record, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if filter.Date != "" {
		if err := validateDate(filter.Date); err != nil {
			return nil, err
		}
	}
	filter.Location = s.loc
	return s.repo.ListSales(ctx, filter)
}

// ReviewSale completes or rejects a pending_approval or client_order sale.
// Only the status changes; lines and totals stay as recorded.
func (s *Service) ReviewSale(ctx context.Context, id string, req domain.SaleReviewRequest) (domain.Sale, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}

	var reviewed domain.Sale
	err = s.transition(ctx, "sale", id, "review_"+req.Decision, func(ctx context.Context) error {
		current, err := s.repo.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if !sale.IsReviewable(current.Status) {
			return fmt.Errorf("%w: sale %s is %s", workflow.ErrInvalidStateTransition, id, current.Status)
		}
		updated, err := s.repo.ReviewSale(ctx, id, current.Status, req.Decision, actor.ID, s.now())
		if err != nil {
			return err
		}
		reviewed = *updated
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if reviewed.Status == domain.SaleStatusCompleted {
		s.invalidateCatalog(ctx)
	}
	s.logAudit(ctx, "sale_review", "sale", id, fmt.Sprintf("status=%s,note=%s", reviewed.Status, req.Note))
	return reviewed, nil
}

// DeleteSale removes a sale, putting stock back if it had been completed.
func (s *Service) DeleteSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := requireSupervisor(ctx); err != nil {
		return domain.Sale{}, err
	}

	var deleted domain.Sale
	err := s.transition(ctx, "sale", id, "delete", func(ctx context.Context) error {
		removed, err := s.repo.DeleteSale(ctx, id)
		if err != nil {
			return err
		}
		deleted = *removed
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if deleted.Status == domain.SaleStatusCompleted {
		s.invalidateCatalog(ctx)
	}
	s.logAudit(ctx, "sale_delete", "sale", id, fmt.Sprintf("status=%s,total=%d", deleted.Status, deleted.TotalCents))
	return deleted, nil
}

func validateDate(date string) error {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", workflow.ErrInvalidInput)
	}
	return nil
}
