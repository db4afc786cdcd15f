package stock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"distrihub-sync-api/internal/cache"
	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/remote"
)

const (
	stockCacheKey = "stock:levels"

	// Cached levels are kept for a long time on purpose: while offline
	// the last-known snapshot is all the validator has to work with.
	stockCacheTTL = 7 * 24 * time.Hour
)

// CachedStockProvider serves stock levels from the remote backend and
// falls back to the last successful fetch when the backend is
// unreachable. Every successful fetch refreshes the cached copy.
type CachedStockProvider struct {
	api   remote.API
	cache cache.Cache
	log   *logrus.Logger
}

func NewCachedStockProvider(api remote.API, c cache.Cache, log *logrus.Logger) *CachedStockProvider {
	if api == nil || c == nil || log == nil {
		return nil
	}
	return &CachedStockProvider{api: api, cache: c, log: log}
}

// StockLevels returns the stock level per requested product. Products
// absent from both the backend response and the cached copy are simply
// missing from the result; the resolver treats them as zero stock.
func (p *CachedStockProvider) StockLevels(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error) {
	levels, err := p.api.ProductStocks(ctx, productoIDs)
	if err == nil {
		p.store(ctx, levels)
		return levels, nil
	}

	if !remote.IsRetryable(err) {
		return nil, err
	}

	cached, cacheErr := p.load(ctx)
	if cacheErr != nil {
		p.log.WithError(err).Warn("stock fetch failed and no cached levels available")
		return nil, err
	}

	p.log.WithError(err).Info("stock fetch failed, serving last-known levels")

	result := make(map[string]model.ProductStock, len(productoIDs))
	for _, id := range productoIDs {
		if s, ok := cached[id]; ok {
			result[id] = s
		}
	}
	return result, nil
}

// store merges fresh levels into the cached map so products queried at
// different times all survive offline.
func (p *CachedStockProvider) store(ctx context.Context, levels map[string]model.ProductStock) {
	merged, err := p.load(ctx)
	if err != nil {
		merged = make(map[string]model.ProductStock, len(levels))
	}
	for id, s := range levels {
		merged[id] = s
	}

	data, err := json.Marshal(merged)
	if err != nil {
		p.log.WithError(err).Warn("failed to encode stock levels for cache")
		return
	}
	if err := p.cache.Set(ctx, stockCacheKey, data, stockCacheTTL); err != nil {
		p.log.WithError(err).Warn("failed to cache stock levels")
	}
}

func (p *CachedStockProvider) load(ctx context.Context) (map[string]model.ProductStock, error) {
	data, err := p.cache.Get(ctx, stockCacheKey)
	if err != nil {
		return nil, err
	}
	var levels map[string]model.ProductStock
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

var _ StockProvider = (*CachedStockProvider)(nil)
