package stock

import (
	"context"
	"testing"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStockProvider struct {
	levels map[string]model.ProductStock
	err    error
}

func (s *stubStockProvider) StockLevels(ctx context.Context, ids []string) (map[string]model.ProductStock, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]model.ProductStock, len(ids))
	for _, id := range ids {
		if level, ok := s.levels[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

func enqueueOrder(t *testing.T, repo repository.QueueRepository, clienteID string, items ...model.OrderItem) {
	t.Helper()

	payload := &model.CreateOrderPayload{ClienteID: clienteID, Items: items}
	for _, item := range items {
		payload.Total += float64(item.Cantidad) * item.PrecioUnitario
	}
	raw, err := model.EncodePayload(payload)
	require.NoError(t, err)
	fp, err := model.Fingerprint(payload)
	require.NoError(t, err)

	_, err = repo.Enqueue(context.Background(), &model.PendingOperation{
		Type: model.OpCreateOrder, Payload: raw, Fingerprint: fp,
	})
	require.NoError(t, err)
}

func TestValidateAcceptsWithinStock(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	provider := &stubStockProvider{levels: map[string]model.ProductStock{
		"x": {ProductoID: "x", Nombre: "Agua 20L", Stock: 10},
	}}
	resolver := NewResolver(repo, provider)

	snapshot, shortages, err := resolver.Validate(context.Background(),
		[]model.OrderItem{{ProductoID: "x", Cantidad: 10}})
	require.NoError(t, err)
	assert.Empty(t, shortages)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, 10, snapshot.Items[0].StockAlMomento)
	assert.Equal(t, 0, snapshot.Items[0].ReservadoOffline)
	assert.Equal(t, 10, snapshot.Items[0].Disponible)
}

func TestValidateRejectsWhenPendingOrdersConsumeStock(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	provider := &stubStockProvider{levels: map[string]model.ProductStock{
		"x": {ProductoID: "x", Nombre: "Agua 20L", Stock: 10},
	}}
	resolver := NewResolver(repo, provider)

	// First offline order takes all 10 units
	enqueueOrder(t, repo, "client-a", model.OrderItem{ProductoID: "x", Cantidad: 10, PrecioUnitario: 8})

	// Second order for 5 more must be rejected with the exact shortage
	snapshot, shortages, err := resolver.Validate(context.Background(),
		[]model.OrderItem{{ProductoID: "x", Cantidad: 5}})
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	require.Len(t, shortages, 1)
	assert.Equal(t, "x", shortages[0].ProductoID)
	assert.Equal(t, 5, shortages[0].Solicitado)
	assert.Equal(t, 0, shortages[0].Disponible)
}

func TestValidateAvailabilityFormula(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	provider := &stubStockProvider{levels: map[string]model.ProductStock{
		"x": {ProductoID: "x", Stock: 20},
		"y": {ProductoID: "y", Stock: 5},
	}}
	resolver := NewResolver(repo, provider)

	enqueueOrder(t, repo, "client-a",
		model.OrderItem{ProductoID: "x", Cantidad: 4},
		model.OrderItem{ProductoID: "y", Cantidad: 2})
	enqueueOrder(t, repo, "client-b",
		model.OrderItem{ProductoID: "x", Cantidad: 6})

	snapshot, shortages, err := resolver.Validate(context.Background(), []model.OrderItem{
		{ProductoID: "x", Cantidad: 10},
		{ProductoID: "y", Cantidad: 3},
	})
	require.NoError(t, err)
	assert.Empty(t, shortages)
	require.NotNil(t, snapshot)

	byProduct := make(map[string]model.StockSnapshotEntry)
	for _, entry := range snapshot.Items {
		byProduct[entry.ProductoID] = entry
	}
	assert.Equal(t, 10, byProduct["x"].ReservadoOffline)
	assert.Equal(t, 10, byProduct["x"].Disponible)
	assert.Equal(t, 2, byProduct["y"].ReservadoOffline)
	assert.Equal(t, 3, byProduct["y"].Disponible)
}

func TestValidateIgnoresNonOrderOperations(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	provider := &stubStockProvider{levels: map[string]model.ProductStock{
		"x": {ProductoID: "x", Stock: 5},
	}}
	resolver := NewResolver(repo, provider)

	// A queued write-off for the same product does not reserve sale stock
	writeOff := &model.CreateStockWriteOffPayload{ProductoID: "x", Cantidad: 5, Motivo: "rotura"}
	raw, err := model.EncodePayload(writeOff)
	require.NoError(t, err)
	fp, err := model.Fingerprint(writeOff)
	require.NoError(t, err)
	_, err = repo.Enqueue(context.Background(), &model.PendingOperation{
		Type: model.OpCreateStockWriteOff, Payload: raw, Fingerprint: fp,
	})
	require.NoError(t, err)

	_, shortages, err := resolver.Validate(context.Background(),
		[]model.OrderItem{{ProductoID: "x", Cantidad: 5}})
	require.NoError(t, err)
	assert.Empty(t, shortages)
}

func TestValidateUnknownProductReadsAsZeroStock(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	resolver := NewResolver(repo, &stubStockProvider{levels: map[string]model.ProductStock{}})

	_, shortages, err := resolver.Validate(context.Background(),
		[]model.OrderItem{{ProductoID: "ghost", Nombre: "Descatalogado", Cantidad: 1}})
	require.NoError(t, err)
	require.Len(t, shortages, 1)
	assert.Equal(t, "ghost", shortages[0].ProductoID)
	assert.Equal(t, "Descatalogado", shortages[0].Nombre)
	assert.Equal(t, 0, shortages[0].Disponible)
}

func TestValidateSumsDuplicateLines(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	provider := &stubStockProvider{levels: map[string]model.ProductStock{
		"x": {ProductoID: "x", Stock: 5},
	}}
	resolver := NewResolver(repo, provider)

	_, shortages, err := resolver.Validate(context.Background(), []model.OrderItem{
		{ProductoID: "x", Cantidad: 3},
		{ProductoID: "x", Cantidad: 3},
	})
	require.NoError(t, err)
	require.Len(t, shortages, 1)
	assert.Equal(t, 6, shortages[0].Solicitado)
	assert.Equal(t, 5, shortages[0].Disponible)
}

func TestValidateRejectsInvalidInput(t *testing.T) {
	repo := repository.NewMemoryQueueRepository()
	resolver := NewResolver(repo, &stubStockProvider{})

	_, _, err := resolver.Validate(context.Background(), nil)
	assert.Error(t, err)

	_, _, err = resolver.Validate(context.Background(),
		[]model.OrderItem{{ProductoID: "x", Cantidad: 0}})
	assert.Error(t, err)
}
