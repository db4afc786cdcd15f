package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"distrihub-sync-api/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// HTTPClient talks JSON to the hosted backend's RPC endpoints. It does
// not retry structural rejections; transient transport failures get a
// short exponential backoff before being reported to the sync engine.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
	log        *logrus.Entry
}

// ClientConfig holds settings for the HTTP backend client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
}

// NewHTTPClient creates a backend client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		log:        logrus.WithField("component", "remote-client"),
	}
}

type rpcEnvelope struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// call posts body to path and decodes the envelope, retrying transient
// transport failures with exponential backoff.
func (c *HTTPClient) call(ctx context.Context, path, idempotencyKey string, body interface{}) (*rpcEnvelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var envelope *rpcEnvelope
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// transport failure, eligible for backoff
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		var decoded rpcEnvelope
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("backend returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(c.asError(resp.StatusCode, &decoded))
		}

		if !decoded.Success && decoded.Error != nil {
			// a 200 envelope can still carry a structural rejection
			return backoff.Permanent(c.asError(resp.StatusCode, &decoded))
		}
		envelope = &decoded
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var remoteErr *Error
		if errors.As(err, &remoteErr) {
			return nil, remoteErr
		}
		return nil, &Error{Code: "UNREACHABLE", Message: err.Error(), Retryable: true}
	}
	return envelope, nil
}

func (c *HTTPClient) asError(status int, envelope *rpcEnvelope) *Error {
	remoteErr := &Error{Status: status, Retryable: false}
	if envelope != nil && envelope.Error != nil {
		remoteErr.Code = envelope.Error.Code
		remoteErr.Message = envelope.Error.Message
	}
	if remoteErr.Message == "" {
		remoteErr.Message = http.StatusText(status)
	}
	if status == http.StatusRequestTimeout {
		remoteErr.Retryable = true
	}
	return remoteErr
}

func (c *HTTPClient) result(envelope *rpcEnvelope) *MutationResult {
	return &MutationResult{ID: envelope.ID, Errors: envelope.Errors}
}

// CreateOrderAtomic creates an order and decrements stock in a single
// remote transaction.
func (c *HTTPClient) CreateOrderAtomic(ctx context.Context, payload *model.CreateOrderPayload) (*MutationResult, error) {
	envelope, err := c.call(ctx, "/rpc/create_order_atomic", payload.IdempotencyKey, payload)
	if err != nil {
		return nil, err
	}
	return c.result(envelope), nil
}

// UpdateOrder applies a patch to an existing order.
func (c *HTTPClient) UpdateOrder(ctx context.Context, pedidoID string, patch map[string]interface{}) error {
	body := map[string]interface{}{"pedidoId": pedidoID, "patch": patch}
	_, err := c.call(ctx, "/rpc/update_order", "", body)
	return err
}

// DeleteOrderAtomic removes an order and restores its stock in a single
// remote transaction.
func (c *HTTPClient) DeleteOrderAtomic(ctx context.Context, pedidoID string) error {
	_, err := c.call(ctx, "/rpc/delete_order_atomic", "", map[string]interface{}{"pedidoId": pedidoID})
	return err
}

// CreateClient creates a client record.
func (c *HTTPClient) CreateClient(ctx context.Context, payload *model.CreateClientPayload) (*MutationResult, error) {
	envelope, err := c.call(ctx, "/rpc/create_client", payload.IdempotencyKey, payload)
	if err != nil {
		return nil, err
	}
	return c.result(envelope), nil
}

// UpdateClient applies a patch to an existing client.
func (c *HTTPClient) UpdateClient(ctx context.Context, clienteID string, patch map[string]interface{}) error {
	body := map[string]interface{}{"clienteId": clienteID, "patch": patch}
	_, err := c.call(ctx, "/rpc/update_client", "", body)
	return err
}

// CreateStockWriteOff records a merma against product stock.
func (c *HTTPClient) CreateStockWriteOff(ctx context.Context, payload *model.CreateStockWriteOffPayload) (*MutationResult, error) {
	envelope, err := c.call(ctx, "/rpc/create_stock_writeoff", payload.IdempotencyKey, payload)
	if err != nil {
		return nil, err
	}
	return c.result(envelope), nil
}

// UpdateProduct applies a patch to a product.
func (c *HTTPClient) UpdateProduct(ctx context.Context, productoID string, patch map[string]interface{}) error {
	body := map[string]interface{}{"productoId": productoID, "patch": patch}
	_, err := c.call(ctx, "/rpc/update_product", "", body)
	return err
}

// CreatePayment records a payment against an order.
func (c *HTTPClient) CreatePayment(ctx context.Context, payload *model.SyncPaymentPayload) (*MutationResult, error) {
	envelope, err := c.call(ctx, "/rpc/create_payment", payload.IdempotencyKey, payload)
	if err != nil {
		return nil, err
	}
	return c.result(envelope), nil
}

// ProductStocks fetches last-known stock levels for the given products.
func (c *HTTPClient) ProductStocks(ctx context.Context, productoIDs []string) (map[string]model.ProductStock, error) {
	envelope, err := c.call(ctx, "/rpc/product_stocks", "", map[string]interface{}{"productoIds": productoIDs})
	if err != nil {
		return nil, err
	}

	var stocks []model.ProductStock
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &stocks); err != nil {
			return nil, fmt.Errorf("failed to decode stock levels: %w", err)
		}
	}
	out := make(map[string]model.ProductStock, len(stocks))
	for _, s := range stocks {
		out[s.ProductoID] = s
	}
	return out, nil
}

// Ping probes the backend health endpoint without retries; the caller
// interprets failure as offline.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend health returned %d", resp.StatusCode)
	}
	return nil
}

var _ API = (*HTTPClient)(nil)
