package stock

import (
	"context"
	"fmt"
	"time"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// reservation scan covers every queued order; the queue is small by
// design (a field device accumulates tens of operations, not thousands)
const pendingScanLimit = 1000

// StockProvider supplies the last-known server stock level per product.
type StockProvider interface {
	StockLevels(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error)
}

// Resolver decides, at enqueue time, whether a new order is safe to
// accept locally: per product, disponible = stockAlMomento minus what
// other still-pending queued orders already reserve. Advisory only; the
// remote atomic procedure remains the source of truth at replay time.
type Resolver struct {
	repo   repository.QueueRepository
	stocks StockProvider
	log    *logrus.Entry
}

// NewResolver creates a stock snapshot resolver.
func NewResolver(repo repository.QueueRepository, stocks StockProvider) *Resolver {
	return &Resolver{
		repo:   repo,
		stocks: stocks,
		log:    logrus.WithField("component", "stock-resolver"),
	}
}

// Validate checks the requested items against local availability.
// On acceptance it returns the snapshot to attach to the queued payload;
// on rejection it returns the structured shortage list and nothing is
// enqueued. Duplicate lines for the same product are summed.
func (r *Resolver) Validate(ctx context.Context, items []model.OrderItem) (*model.StockSnapshot, []model.ItemSinStock, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("order has no items")
	}

	requested := make(map[string]int, len(items))
	nombres := make(map[string]string, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Cantidad <= 0 {
			return nil, nil, fmt.Errorf("invalid quantity %d for product %s", item.Cantidad, item.ProductoID)
		}
		if _, seen := requested[item.ProductoID]; !seen {
			ids = append(ids, item.ProductoID)
		}
		requested[item.ProductoID] += item.Cantidad
		if item.Nombre != "" {
			nombres[item.ProductoID] = item.Nombre
		}
	}

	levels, err := r.stocks.StockLevels(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load stock levels: %w", err)
	}

	reserved, err := r.reservedOffline(ctx, requested)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute offline reservations: %w", err)
	}

	snapshot := &model.StockSnapshot{TomadoEn: time.Now().UTC()}
	var shortages []model.ItemSinStock
	for _, id := range ids {
		level := levels[id] // unknown product reads as zero stock
		nombre := nombres[id]
		if nombre == "" {
			nombre = level.Nombre
		}

		disponible := level.Stock - reserved[id]
		if disponible < 0 {
			disponible = 0
		}

		snapshot.Items = append(snapshot.Items, model.StockSnapshotEntry{
			ProductoID:       id,
			Nombre:           nombre,
			StockAlMomento:   level.Stock,
			ReservadoOffline: reserved[id],
			Disponible:       disponible,
		})

		if requested[id] > disponible {
			shortages = append(shortages, model.ItemSinStock{
				ProductoID: id,
				Nombre:     nombre,
				Solicitado: requested[id],
				Disponible: disponible,
			})
		}
	}

	if len(shortages) > 0 {
		r.log.WithField("items_sin_stock", len(shortages)).Info("order rejected by local stock check")
		return nil, shortages, nil
	}
	return snapshot, nil, nil
}

// reservedOffline sums, per requested product, the quantities held by
// every queued order that has not reached the remote system yet.
func (r *Resolver) reservedOffline(ctx context.Context, requested map[string]int) (map[string]int, error) {
	ops, err := r.repo.ListPending(ctx, pendingScanLimit)
	if err != nil {
		return nil, err
	}

	reserved := make(map[string]int, len(requested))
	for _, op := range ops {
		if op.Type != model.OpCreateOrder {
			continue
		}
		decoded, err := op.DecodePayload()
		if err != nil {
			r.log.WithError(err).WithField("operation_id", op.ID).Warn("skipping undecodable queued order")
			continue
		}
		order := decoded.(*model.CreateOrderPayload)
		for _, item := range order.Items {
			if _, wanted := requested[item.ProductoID]; wanted {
				reserved[item.ProductoID] += item.Cantidad
			}
		}
	}
	return reserved, nil
}
