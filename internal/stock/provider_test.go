package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distrihub-sync-api/internal/cache"
	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/remote"
)

type flakyStockAPI struct {
	remote.API

	levels map[string]model.ProductStock
	fail   bool
	calls  int
}

func (f *flakyStockAPI) ProductStocks(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error) {
	f.calls++
	if f.fail {
		return nil, &remote.Error{Code: "UNREACHABLE", Message: "connection refused", Retryable: true}
	}
	result := make(map[string]model.ProductStock)
	for _, id := range productoIDs {
		if s, ok := f.levels[id]; ok {
			result[id] = s
		}
	}
	return result, nil
}

func newCachedProvider(t *testing.T, api remote.API) *CachedStockProvider {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	p := NewCachedStockProvider(api, c, log)
	require.NotNil(t, p)
	return p
}

func TestCachedProviderFetchesFromRemote(t *testing.T) {
	api := &flakyStockAPI{levels: map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Nombre: "Harina 1kg", Stock: 12},
	}}
	p := newCachedProvider(t, api)

	levels, err := p.StockLevels(context.Background(), []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, 12, levels["prod-1"].Stock)
}

func TestCachedProviderFallsBackWhenOffline(t *testing.T) {
	api := &flakyStockAPI{levels: map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Nombre: "Harina 1kg", Stock: 12},
	}}
	p := newCachedProvider(t, api)
	ctx := context.Background()

	_, err := p.StockLevels(ctx, []string{"prod-1"})
	require.NoError(t, err)

	api.fail = true

	levels, err := p.StockLevels(ctx, []string{"prod-1"})
	require.NoError(t, err)
	assert.Equal(t, 12, levels["prod-1"].Stock)
	assert.Equal(t, "Harina 1kg", levels["prod-1"].Nombre)
}

func TestCachedProviderMergesAcrossFetches(t *testing.T) {
	api := &flakyStockAPI{levels: map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Stock: 12},
		"prod-2": {ProductoID: "prod-2", Stock: 3},
	}}
	p := newCachedProvider(t, api)
	ctx := context.Background()

	_, err := p.StockLevels(ctx, []string{"prod-1"})
	require.NoError(t, err)
	_, err = p.StockLevels(ctx, []string{"prod-2"})
	require.NoError(t, err)

	api.fail = true

	levels, err := p.StockLevels(ctx, []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	assert.Equal(t, 12, levels["prod-1"].Stock)
	assert.Equal(t, 3, levels["prod-2"].Stock)
}

func TestCachedProviderErrorsWithEmptyCache(t *testing.T) {
	api := &flakyStockAPI{fail: true}
	p := newCachedProvider(t, api)

	_, err := p.StockLevels(context.Background(), []string{"prod-1"})
	require.Error(t, err)

	var remoteErr *remote.Error
	assert.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 1, api.calls)
}

func TestCachedProviderDoesNotMaskPermanentErrors(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	api := &permanentStockAPI{}
	p := NewCachedStockProvider(api, c, log)

	_, err := p.StockLevels(context.Background(), []string{"prod-1"})
	require.Error(t, err)
	assert.False(t, remote.IsRetryable(err))
}

type permanentStockAPI struct {
	remote.API
}

func (p *permanentStockAPI) ProductStocks(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error) {
	return nil, &remote.Error{Code: "FORBIDDEN", Message: "bad api key", Status: 403, Retryable: false}
}
