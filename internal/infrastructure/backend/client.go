// Package backend is the HTTP client for the storefront backend API, which
// owns products, prices, customers and payment-intent creation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxErrorBody    = 4 << 10
	maxResponseBody = 1 << 20
)

// IntentRequest is the input for creating a payment intent.
type IntentRequest struct {
	Amount             int64
	Currency           string
	PaymentMethodTypes []string
	CustomerID         string
	Metadata           map[string]string
}

// Client talks to the backend API. Every call is a single attempt guarded by
// a circuit breaker; failures are never retried here.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records per-operation call metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}

	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.CircuitBreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Lookups of unknown ids and rejected intents are answers, not outages.
		// A 5xx at intent creation wraps ErrNetwork too and counts as a failure.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !errors.Is(err, domainErrors.ErrNetwork) &&
				(errors.Is(err, domainErrors.ErrNotFound) || errors.Is(err, domainErrors.ErrIntentCreation))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return c, nil
}

// ListProducts fetches the catalog. The backend answers with a mapping of
// product id to product and prices.
func (c *Client) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	body, err := c.do(ctx, "list_products", http.MethodGet, "/api/products", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp map[string]productEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainErrors.Network("decode product list", err)
	}

	products := make([]*catalog.Product, 0, len(resp))
	for key, env := range resp {
		products = append(products, env.toDomain(key))
	}
	sortProducts(products)
	return products, nil
}

// GetProduct fetches one product with its prices.
func (c *Client) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if id == "" {
		return nil, domainErrors.NewValidationError("productId", "is required")
	}

	q := url.Values{"productId": {id}}
	body, err := c.do(ctx, "get_product", http.MethodGet, "/api/product_details", q, nil)
	if err != nil {
		return nil, err
	}

	var env productEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domainErrors.Network("decode product detail", err)
	}
	if env.Product == nil {
		return nil, fmt.Errorf("product %q: %w", id, domainErrors.ErrNotFound)
	}
	return env.toDomain(id), nil
}

// CreateCustomer resolves a backend customer id for the buyer.
func (c *Client) CreateCustomer(ctx context.Context, rec checkout.CustomerRecord) (string, error) {
	body, err := c.do(ctx, "get_customer", http.MethodPost, "/api/get_customer", nil, customerRequest{
		Name:    rec.Name,
		Email:   rec.Email,
		Address: rec.Address,
	})
	if err != nil {
		return "", err
	}

	var resp customerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domainErrors.Network("decode customer", err)
	}
	if resp.CustomerID == "" {
		return "", domainErrors.NewDomainError("customer_failed", "backend returned no customer id", domainErrors.ErrIntentCreation)
	}
	return resp.CustomerID, nil
}

// CreatePaymentIntent asks the backend for a payment intent and returns its handle.
func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*checkout.PaymentIntentHandle, error) {
	body, err := c.do(ctx, "create_payment_intent", http.MethodPost, "/api/create_payment_intent", nil, intentRequest{
		Amount:             req.Amount,
		Currency:           req.Currency,
		PaymentMethodTypes: req.PaymentMethodTypes,
		CustomerID:         req.CustomerID,
		Metadata:           req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	var resp intentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domainErrors.Network("decode payment intent", err)
	}
	return checkout.NewPaymentIntentHandle(resp.ClientSecret, resp.PaymentIntentID)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	start := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, path, query, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domainErrors.Network(op, err)
	}

	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		c.metrics.BackendRequests.WithLabelValues(op, resultLabel(err)).Inc()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", op).Msg("Backend call failed")
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	u := *c.baseURL
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domainErrors.Network(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, domainErrors.Network(op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(op, resp.StatusCode, data)
}

// statusError converts a non-2xx backend response into the error taxonomy.
func statusError(op string, status int, body []byte) error {
	msg := http.StatusText(status)
	var eb errorBody
	if len(body) > 0 && len(body) <= maxErrorBody && json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
		if len(eb.MissingParams) > 0 {
			msg += " (missing: " + strings.Join(eb.MissingParams, ", ") + ")"
		}
	}

	switch {
	case status == http.StatusNotFound:
		return domainErrors.NewDomainError("not_found", msg, domainErrors.ErrNotFound)
	case op == "create_payment_intent" || op == "get_customer":
		if status < 500 {
			return domainErrors.NewDomainError("intent_creation_failed", msg, domainErrors.ErrIntentCreation)
		}
		return domainErrors.NewDomainError("intent_creation_failed", msg, errors.Join(domainErrors.ErrIntentCreation, domainErrors.ErrNetwork))
	default:
		return domainErrors.Network(op, fmt.Errorf("status %d: %s", status, msg))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domainErrors.ErrNetwork):
		return "error"
	case errors.Is(err, domainErrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, domainErrors.ErrIntentCreation):
		return "rejected"
	default:
		return "error"
	}
}
