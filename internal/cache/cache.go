package cache

import (
	"context"
	"time"

	"kasirkas/backend/internal/domain"
)

// CatalogKey is the single key the storefront catalog snapshot lives under.
const CatalogKey = "storefront:catalog"

type CatalogCache interface {
	Get(ctx context.Context) (*domain.StorefrontCatalog, bool, error)
	Set(ctx context.Context, value *domain.StorefrontCatalog, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context) (*domain.StorefrontCatalog, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ *domain.StorefrontCatalog, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
