package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/pricing"
	"kasirkas/backend/internal/workflow"
	"kasirkas/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireSupervisor(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:                xid.New("prd"),
		SKU:               strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:              strings.TrimSpace(req.Name),
		Category:          strings.TrimSpace(req.Category),
		Type:              req.Type,
		PriceCents:        req.PriceCents,
		CostPriceCents:    req.CostPriceCents,
		CommissionPercent: req.CommissionPercent,
		Stock:             req.Stock,
		TieredPricing:     pricing.SortTiers(req.TieredPricing),
		Variants:          req.Variants,
		Active:            true,
	}
	if product.Type == "" {
		product.Type = domain.ProductTypeSimple
	}
	if err := validateCatalogEntry(product); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,price=%d,type=%s,variants=%d", created.SKU, created.PriceCents, created.Type, len(created.Variants)))
	return *created, nil
}

func validateCatalogEntry(p domain.Product) error {
	if p.IsVariable() {
		if len(p.Variants) == 0 {
			return fmt.Errorf("%w: variable product needs at least one variant", workflow.ErrInvalidInput)
		}
		if p.Stock != 0 {
			return fmt.Errorf("%w: variable product stock lives on its variants", workflow.ErrInvalidInput)
		}
		seen := make(map[string]struct{}, len(p.Variants))
		for _, v := range p.Variants {
			if _, dup := seen[v.ID]; dup {
				return fmt.Errorf("%w: duplicate variant id %s", workflow.ErrInvalidInput, v.ID)
			}
			seen[v.ID] = struct{}{}
		}
	} else {
		if len(p.Variants) > 0 {
			return fmt.Errorf("%w: simple product cannot have variants", workflow.ErrInvalidInput)
		}
		if p.PriceCents < 1 {
			return fmt.Errorf("%w: price must be positive", workflow.ErrInvalidInput)
		}
	}
	return nil
}

// StorefrontCatalog returns the public catalog of active, in-stock products.
// Cost price and commission never leave the back office.
func (s *Service) StorefrontCatalog(ctx context.Context) (domain.StorefrontCatalog, error) {
	if cached, ok, err := s.catalog.Get(ctx); err == nil && ok {
		s.metrics.ObserveCache(true)
		return *cached, nil
	} else if err != nil {
		s.log.Warn("storefront cache read failed", zap.Error(err))
	}
	s.metrics.ObserveCache(false)

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.StorefrontCatalog{}, err
	}

	catalog := domain.StorefrontCatalog{
		Products:    make([]domain.StorefrontProduct, 0, len(products)),
		GeneratedAt: s.now(),
	}
	for _, p := range products {
		entry := domain.StorefrontProduct{
			ID:            p.ID,
			Name:          p.Name,
			Category:      p.Category,
			Type:          p.Type,
			PriceCents:    p.PriceCents,
			TieredPricing: pricing.SortTiers(p.TieredPricing),
			InStock:       p.Stock > 0,
		}
		for _, v := range p.Variants {
			entry.Variants = append(entry.Variants, domain.StorefrontVariant{
				ID:         v.ID,
				Name:       v.Name,
				Attributes: v.Attributes,
				PriceCents: v.PriceCents,
				InStock:    v.Stock > 0,
			})
			if v.Stock > 0 {
				entry.InStock = true
			}
		}
		if entry.InStock {
			catalog.Products = append(catalog.Products, entry)
		}
	}

	if err := s.catalog.Set(ctx, &catalog, s.catalogTTL); err != nil {
		s.log.Warn("storefront cache write failed", zap.Error(err))
	}
	return catalog, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		s.log.Warn("storefront cache invalidate failed", zap.Error(err))
	}
}
