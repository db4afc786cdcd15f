package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType identifies the remote mutation a queued operation replays.
type OperationType string

const (
	OpCreateOrder         OperationType = "create_order"
	OpUpdateOrder         OperationType = "update_order"
	OpDeleteOrder         OperationType = "delete_order"
	OpCreateClient        OperationType = "create_client"
	OpUpdateClient        OperationType = "update_client"
	OpCreateStockWriteOff OperationType = "create_stock_writeoff"
	OpUpdateProduct       OperationType = "update_product"
	OpSyncPayment         OperationType = "sync_payment"
)

// OperationTypes lists every supported operation type.
var OperationTypes = []OperationType{
	OpCreateOrder,
	OpUpdateOrder,
	OpDeleteOrder,
	OpCreateClient,
	OpUpdateClient,
	OpCreateStockWriteOff,
	OpUpdateProduct,
	OpSyncPayment,
}

// Valid reports whether t is one of the supported operation types.
func (t OperationType) Valid() bool {
	for _, known := range OperationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OperationStatus is the lifecycle state of a queued operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Terminal reports whether the status is an end state of a sync pass.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PendingOperation is a durably stored mutation intent awaiting replay
// against the hosted backend. The queue store owns its authoritative
// state; everything UI-facing is a projection rebuilt from the store.
type PendingOperation struct {
	ID          int64           `json:"id"`
	Type        OperationType   `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      OperationStatus `json:"status"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	UserID      string          `json:"user_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DecodePayload unmarshals the stored payload into its concrete type.
func (op *PendingOperation) DecodePayload() (Payload, error) {
	var target Payload
	switch op.Type {
	case OpCreateOrder:
		target = &CreateOrderPayload{}
	case OpUpdateOrder:
		target = &UpdateOrderPayload{}
	case OpDeleteOrder:
		target = &DeleteOrderPayload{}
	case OpCreateClient:
		target = &CreateClientPayload{}
	case OpUpdateClient:
		target = &UpdateClientPayload{}
	case OpCreateStockWriteOff:
		target = &CreateStockWriteOffPayload{}
	case OpUpdateProduct:
		target = &UpdateProductPayload{}
	case OpSyncPayment:
		target = &SyncPaymentPayload{}
	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}

	if err := json.Unmarshal(op.Payload, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", op.Type, err)
	}
	return target, nil
}

// QueueCounts aggregates operations by status for UI badges.
type QueueCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// Total returns the number of operations still owed to the remote system.
func (c QueueCounts) Total() int64 {
	return c.Pending + c.Processing + c.Failed
}
