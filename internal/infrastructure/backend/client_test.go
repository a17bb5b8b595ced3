package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `{
  "2": {"product": {"id": "2", "name": "Mug"}, "prices": [{"id": "price_2", "unit_amount": 1999, "currency": "usd"}]},
  "1": {"product": {"id": 1, "name": "T-shirt", "images": ["t.png"]}, "prices": [{"id": "price_1", "unit_amount": 1999, "currency": "usd"}]},
  "10": {"product": {"id": "10", "name": "Poster"}, "prices": []}
}`

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.BackendConfig{
		BaseURL:                 srv.URL,
		Timeout:                 2 * time.Second,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   time.Minute,
	}, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(config.BackendConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestClient_ListProducts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products", r.URL.Path)
		w.Write([]byte(catalogJSON))
	}))

	products, err := c.ListProducts(t.Context())
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, "T-shirt", products[0].Name)
	assert.Equal(t, []string{"t.png"}, products[0].Images)
	assert.Equal(t, int64(1999), products[0].Prices[0].UnitAmount)
	assert.Equal(t, "usd", products[0].Prices[0].Currency)
	assert.Equal(t, "2", products[1].ID)
	assert.Equal(t, "10", products[2].ID)
	assert.False(t, products[2].Purchasable())
}

func TestClient_ListProducts_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))

	_, err := c.ListProducts(t.Context())
	assert.ErrorIs(t, err, domainErrors.ErrNetwork)
}

func TestClient_ListProducts_Unreachable(t *testing.T) {
	c, err := NewClient(config.BackendConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.ListProducts(t.Context())
	assert.ErrorIs(t, err, domainErrors.ErrNetwork)
}

func TestClient_ListProducts_BadJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[not json`))
	}))

	_, err := c.ListProducts(t.Context())
	assert.ErrorIs(t, err, domainErrors.ErrNetwork)
}

func TestClient_GetProduct(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/product_details", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("productId"))
		w.Write([]byte(`{"product": {"id": "1", "name": "T-shirt"}, "prices": [{"unit_amount": 1999, "currency": "usd"}]}`))
	}))

	p, err := c.GetProduct(t.Context(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	q, err := p.DefaultQuote()
	require.NoError(t, err)
	assert.Equal(t, int64(1999), q.UnitAmount)
}

func TestClient_GetProduct_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"404", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"No such product"}`))
		}},
		{"null product", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"product": null, "prices": []}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)

			_, err := c.GetProduct(t.Context(), "999")
			assert.ErrorIs(t, err, domainErrors.ErrNotFound)
			assert.NotErrorIs(t, err, domainErrors.ErrNetwork)
		})
	}
}

func TestClient_GetProduct_EmptyID(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.GetProduct(t.Context(), "")
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_CreateCustomer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/get_customer", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ann", body["name"])
		assert.Equal(t, "ann@example.com", body["email"])
		assert.Equal(t, "1 Main St", body["address"])

		w.Write([]byte(`{"customer_id":"cus_123"}`))
	}))

	id, err := c.CreateCustomer(t.Context(), checkout.CustomerRecord{Name: "Ann", Email: "ann@example.com", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", id)
}

func TestClient_CreatePaymentIntent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/create_payment_intent", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, float64(1999), body["amount"])
		assert.Equal(t, "usd", body["currency"])
		assert.Equal(t, []any{"card"}, body["payment_method_types"])
		assert.NotContains(t, body, "customer_id")

		w.Write([]byte(`{"client_secret":"pi_1_secret_abc"}`))
	}))

	h, err := c.CreatePaymentIntent(t.Context(), IntentRequest{Amount: 1999, Currency: "usd", PaymentMethodTypes: []string{"card"}})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_abc", h.ClientSecret)
	assert.Equal(t, "pi_1", h.IntentID)
}

func TestClient_CreatePaymentIntent_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing required parameters","missing_params":["amount"]}`))
	}))

	_, err := c.CreatePaymentIntent(t.Context(), IntentRequest{Currency: "usd"})
	require.ErrorIs(t, err, domainErrors.ErrIntentCreation)
	assert.Contains(t, err.Error(), "missing: amount")
}

func TestClient_CreatePaymentIntent_MissingSecret(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := c.CreatePaymentIntent(t.Context(), IntentRequest{Amount: 1, Currency: "usd"})
	assert.ErrorIs(t, err, domainErrors.ErrIntentCreation)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), WithMetrics(metrics))

	for i := 0; i < 5; i++ {
		_, err := c.ListProducts(t.Context())
		assert.ErrorIs(t, err, domainErrors.ErrNetwork)
	}

	assert.Equal(t, int32(3), calls.Load(), "breaker should stop calls after the threshold")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("backend")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.BackendRequests.WithLabelValues("list_products", "error")))
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	for i := 0; i < 5; i++ {
		_, err := c.GetProduct(t.Context(), "missing")
		assert.ErrorIs(t, err, domainErrors.ErrNotFound)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_IntentCreationOutageTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 6; i++ {
		_, err := c.CreatePaymentIntent(t.Context(), IntentRequest{Amount: 1999, Currency: "usd"})
		assert.ErrorIs(t, err, domainErrors.ErrNetwork)
	}
	assert.Equal(t, int32(3), calls.Load(), "5xx answers at intent creation are outages")
}

func TestClient_RejectedIntentDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing required parameters","missing_params":["currency"]}`))
	}))

	for i := 0; i < 6; i++ {
		_, err := c.CreatePaymentIntent(t.Context(), IntentRequest{Amount: 1999})
		assert.ErrorIs(t, err, domainErrors.ErrIntentCreation)
		assert.NotErrorIs(t, err, domainErrors.ErrNetwork)
	}
	assert.Equal(t, int32(6), calls.Load())
}

func TestClient_OversizedResponseIsCapped(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"1": {"product": {"id": "1", "name": "`))
		pad := make([]byte, 64<<10)
		for i := range pad {
			pad[i] = 'x'
		}
		for i := 0; i < 32; i++ {
			w.Write(pad)
		}
		w.Write([]byte(`"}, "prices": []}}`))
	}))

	_, err := c.ListProducts(t.Context())
	assert.ErrorIs(t, err, domainErrors.ErrNetwork, "a body past the cap is truncated and fails to decode")
}
