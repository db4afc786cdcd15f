package remote

import (
	"context"
	"errors"
	"fmt"

	"distrihub-sync-api/internal/model"
)

// MutationResult is what the hosted backend returns for a create-style
// atomic procedure.
type MutationResult struct {
	ID     string   `json:"id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// API is the narrow contract to the hosted backend's mutation
// endpoints. Each procedure tolerates an occasional duplicate replay via
// the idempotency key carried in the payload; the queue's own
// de-duplication is best-effort and local.
type API interface {
	CreateOrderAtomic(ctx context.Context, payload *model.CreateOrderPayload) (*MutationResult, error)
	UpdateOrder(ctx context.Context, pedidoID string, patch map[string]interface{}) error
	DeleteOrderAtomic(ctx context.Context, pedidoID string) error
	CreateClient(ctx context.Context, payload *model.CreateClientPayload) (*MutationResult, error)
	UpdateClient(ctx context.Context, clienteID string, patch map[string]interface{}) error
	CreateStockWriteOff(ctx context.Context, payload *model.CreateStockWriteOffPayload) (*MutationResult, error)
	UpdateProduct(ctx context.Context, productoID string, patch map[string]interface{}) error
	CreatePayment(ctx context.Context, payload *model.SyncPaymentPayload) (*MutationResult, error)

	// ProductStocks returns the last-known stock level per product,
	// feeding the local availability check.
	ProductStocks(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error)

	// Ping reports whether the backend is reachable; the connectivity
	// prober uses it to derive online/offline transitions.
	Ping(ctx context.Context) error
}

// Error is a failure reported by the hosted backend. Retryable failures
// (timeouts, 5xx, connectivity) may succeed on a later pass; structural
// rejections (validation, missing references, insufficient stock at
// replay time) will not.
type Error struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsRetryable reports whether a replay failure is worth a later attempt.
// Unknown error shapes (transport failures, context deadlines) count as
// retryable.
func IsRetryable(err error) bool {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Retryable
	}
	return true
}
