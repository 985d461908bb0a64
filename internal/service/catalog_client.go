package service

import (
	"context"
	"fmt"
	"time"

	"table-service/internal/models"
	"table-service/internal/util"

	"go.uber.org/zap"
)

// ProductSource is the authoritative product catalog
type ProductSource interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// ProductCache is a best-effort read-through cache in front of the catalog
type ProductCache interface {
	GetCachedProduct(ctx context.Context, id string) (*models.Product, error)
	CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
}

// CatalogClient resolves products (fast path via cache, fallback to the store)
type CatalogClient struct {
	source  ProductSource
	cache   ProductCache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewCatalogClient creates a new catalog client; cache may be nil
func NewCatalogClient(source ProductSource, cache ProductCache, ttl, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		logger:  util.ComponentLogger("catalog"),
	}
}

// Lookup returns the product or nil when it does not exist
func (cc *CatalogClient) Lookup(ctx context.Context, productID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogClient.Lookup")
	defer span.End()

	if cc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cc.timeout)
		defer cancel()
	}

	if cc.cache != nil {
		product, err := cc.cache.GetCachedProduct(ctx, productID)
		if err != nil {
			cc.logger.Warn("Product cache read failed, falling back to store",
				zap.String("product_id", productID),
				zap.Error(err))
		} else if product != nil {
			util.ProductCacheHitsTotal.WithLabelValues("hit").Inc()
			return product, nil
		}
		util.ProductCacheHitsTotal.WithLabelValues("miss").Inc()
	}

	product, err := cc.source.GetProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	if product == nil {
		return nil, nil
	}

	if cc.cache != nil {
		cached := *product
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := cc.cache.CacheProduct(ctx, &cached, cc.ttl); err != nil {
				cc.logger.Error("Failed to cache product",
					zap.String("product_id", cached.ID),
					zap.Error(err))
			}
		}()
	}

	return product, nil
}
