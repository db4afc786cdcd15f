package syncengine

import (
	"context"
	"fmt"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/remote"
)

// ProcessorFunc replays one stored operation against the remote system.
// Processors must not assume any client context beyond the payload: the
// replay may run long after the session that enqueued it.
type ProcessorFunc func(ctx context.Context, op *model.PendingOperation) error

// Registry maps each operation type to the single remote call that
// fulfills it.
type Registry struct {
	api        remote.API
	processors map[model.OperationType]ProcessorFunc
}

// NewRegistry builds the processor table over the remote API.
func NewRegistry(api remote.API) *Registry {
	r := &Registry{api: api}
	r.processors = map[model.OperationType]ProcessorFunc{
		model.OpCreateOrder:         r.createOrder,
		model.OpUpdateOrder:         r.updateOrder,
		model.OpDeleteOrder:         r.deleteOrder,
		model.OpCreateClient:        r.createClient,
		model.OpUpdateClient:        r.updateClient,
		model.OpCreateStockWriteOff: r.createStockWriteOff,
		model.OpUpdateProduct:       r.updateProduct,
		model.OpSyncPayment:         r.syncPayment,
	}
	return r
}

// Process dispatches op to its processor. An unknown type is a
// structural failure, not worth retrying.
func (r *Registry) Process(ctx context.Context, op *model.PendingOperation) error {
	processor, ok := r.processors[op.Type]
	if !ok {
		return &remote.Error{Code: "UNKNOWN_TYPE", Message: fmt.Sprintf("no processor for %q", op.Type)}
	}
	return processor(ctx, op)
}

func decodeAs[T model.Payload](op *model.PendingOperation) (T, error) {
	var zero T
	decoded, err := op.DecodePayload()
	if err != nil {
		return zero, &remote.Error{Code: "BAD_PAYLOAD", Message: err.Error()}
	}
	typed, ok := decoded.(T)
	if !ok {
		return zero, &remote.Error{Code: "BAD_PAYLOAD", Message: fmt.Sprintf("payload type mismatch for %q", op.Type)}
	}
	return typed, nil
}

func (r *Registry) createOrder(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.CreateOrderPayload](op)
	if err != nil {
		return err
	}
	result, err := r.api.CreateOrderAtomic(ctx, payload)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return &remote.Error{Code: "ORDER_REJECTED", Message: fmt.Sprintf("%v", result.Errors)}
	}
	return nil
}

func (r *Registry) updateOrder(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.UpdateOrderPayload](op)
	if err != nil {
		return err
	}
	return r.api.UpdateOrder(ctx, payload.PedidoID, payload.Patch)
}

func (r *Registry) deleteOrder(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.DeleteOrderPayload](op)
	if err != nil {
		return err
	}
	return r.api.DeleteOrderAtomic(ctx, payload.PedidoID)
}

func (r *Registry) createClient(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.CreateClientPayload](op)
	if err != nil {
		return err
	}
	_, err = r.api.CreateClient(ctx, payload)
	return err
}

func (r *Registry) updateClient(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.UpdateClientPayload](op)
	if err != nil {
		return err
	}
	return r.api.UpdateClient(ctx, payload.ClienteID, payload.Patch)
}

func (r *Registry) createStockWriteOff(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.CreateStockWriteOffPayload](op)
	if err != nil {
		return err
	}
	_, err = r.api.CreateStockWriteOff(ctx, payload)
	return err
}

func (r *Registry) updateProduct(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.UpdateProductPayload](op)
	if err != nil {
		return err
	}
	return r.api.UpdateProduct(ctx, payload.ProductoID, payload.Patch)
}

func (r *Registry) syncPayment(ctx context.Context, op *model.PendingOperation) error {
	payload, err := decodeAs[*model.SyncPaymentPayload](op)
	if err != nil {
		return err
	}
	_, err = r.api.CreatePayment(ctx, payload)
	return err
}
