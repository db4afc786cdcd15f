package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Payload is the type-specific record carried by a PendingOperation.
// It must be sufficient to replay the operation without any client
// state preserved from enqueue time.
//
// DedupMaterial returns the canonical bytes hashed into the operation's
// idempotency fingerprint. Two enqueue attempts with equal material are
// treated as the same logical action.
type Payload interface {
	OperationType() OperationType
	DedupMaterial() ([]byte, error)
}

// Fingerprint computes the idempotency fingerprint for a payload:
// SHA-256 over the operation type and the payload's dedup material.
func Fingerprint(p Payload) (string, error) {
	material, err := p.DedupMaterial()
	if err != nil {
		return "", fmt.Errorf("failed to build dedup material: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(p.OperationType()))
	h.Write([]byte{0})
	h.Write(material)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// OrderItem is one line of an order: a product and the quantity requested.
type OrderItem struct {
	ProductoID     string  `json:"productoId"`
	Nombre         string  `json:"nombre,omitempty"`
	Cantidad       int     `json:"cantidad"`
	PrecioUnitario float64 `json:"precioUnitario,omitempty"`
}

// CreateOrderPayload queues a new order taken in the field.
type CreateOrderPayload struct {
	ClienteID      string         `json:"clienteId"`
	Items          []OrderItem    `json:"items"`
	Total          float64        `json:"total"`
	Notas          string         `json:"notas,omitempty"`
	RutaID         string         `json:"rutaId,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Snapshot       *StockSnapshot `json:"stockSnapshot,omitempty"`
}

func (p *CreateOrderPayload) OperationType() OperationType { return OpCreateOrder }

// DedupMaterial hashes clienteId + ordered (productoId, cantidad) pairs +
// total. The advisory stock snapshot, notes and timestamps are excluded,
// so re-submitting the identical order is suppressed while any change in
// quantities or total counts as a new operation.
func (p *CreateOrderPayload) DedupMaterial() ([]byte, error) {
	type line struct {
		ProductoID string `json:"productoId"`
		Cantidad   int    `json:"cantidad"`
	}
	lines := make([]line, len(p.Items))
	for i, item := range p.Items {
		lines[i] = line{ProductoID: item.ProductoID, Cantidad: item.Cantidad}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductoID < lines[j].ProductoID })

	return json.Marshal(struct {
		ClienteID string  `json:"clienteId"`
		Items     []line  `json:"items"`
		Total     float64 `json:"total"`
	}{p.ClienteID, lines, p.Total})
}

// UpdateOrderPayload queues a patch against an existing order.
type UpdateOrderPayload struct {
	PedidoID string                 `json:"pedidoId"`
	Patch    map[string]interface{} `json:"patch"`
}

func (p *UpdateOrderPayload) OperationType() OperationType { return OpUpdateOrder }
func (p *UpdateOrderPayload) DedupMaterial() ([]byte, error) {
	return json.Marshal(p)
}

// DeleteOrderPayload queues the removal of an order (stock is restored
// atomically by the remote procedure).
type DeleteOrderPayload struct {
	PedidoID string `json:"pedidoId"`
}

func (p *DeleteOrderPayload) OperationType() OperationType { return OpDeleteOrder }
func (p *DeleteOrderPayload) DedupMaterial() ([]byte, error) {
	return json.Marshal(p)
}

// CreateClientPayload queues a new client record.
type CreateClientPayload struct {
	Nombre         string `json:"nombre"`
	Documento      string `json:"documento,omitempty"`
	Telefono       string `json:"telefono,omitempty"`
	Direccion      string `json:"direccion,omitempty"`
	RutaID         string `json:"rutaId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func (p *CreateClientPayload) OperationType() OperationType { return OpCreateClient }
func (p *CreateClientPayload) DedupMaterial() ([]byte, error) {
	// The idempotency key is minted per logical action, keep it out.
	clone := *p
	clone.IdempotencyKey = ""
	return json.Marshal(&clone)
}

// UpdateClientPayload queues a patch against an existing client.
type UpdateClientPayload struct {
	ClienteID string                 `json:"clienteId"`
	Patch     map[string]interface{} `json:"patch"`
}

func (p *UpdateClientPayload) OperationType() OperationType { return OpUpdateClient }
func (p *UpdateClientPayload) DedupMaterial() ([]byte, error) {
	return json.Marshal(p)
}

// CreateStockWriteOffPayload queues a merma: stock written off for
// spoilage, breakage or loss, recorded by a driver in the field.
type CreateStockWriteOffPayload struct {
	ProductoID     string  `json:"productoId"`
	Nombre         string  `json:"nombre,omitempty"`
	Cantidad       int     `json:"cantidad"`
	Motivo         string  `json:"motivo"`
	CostoUnitario  float64 `json:"costoUnitario,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

func (p *CreateStockWriteOffPayload) OperationType() OperationType { return OpCreateStockWriteOff }
func (p *CreateStockWriteOffPayload) DedupMaterial() ([]byte, error) {
	clone := *p
	clone.IdempotencyKey = ""
	return json.Marshal(&clone)
}

// UpdateProductPayload queues a patch against a product (price, name).
type UpdateProductPayload struct {
	ProductoID string                 `json:"productoId"`
	Patch      map[string]interface{} `json:"patch"`
}

func (p *UpdateProductPayload) OperationType() OperationType { return OpUpdateProduct }
func (p *UpdateProductPayload) DedupMaterial() ([]byte, error) {
	return json.Marshal(p)
}

// SyncPaymentPayload queues a payment collected against an order.
type SyncPaymentPayload struct {
	PedidoID       string  `json:"pedidoId"`
	Monto          float64 `json:"monto"`
	Metodo         string  `json:"metodo,omitempty"`
	FechaPago      string  `json:"fechaPago,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

func (p *SyncPaymentPayload) OperationType() OperationType { return OpSyncPayment }
func (p *SyncPaymentPayload) DedupMaterial() ([]byte, error) {
	clone := *p
	clone.IdempotencyKey = ""
	return json.Marshal(&clone)
}

// EncodePayload marshals a payload for storage.
func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.OperationType(), err)
	}
	return raw, nil
}
