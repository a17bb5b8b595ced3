package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPProcessor(t *testing.T, handler http.HandlerFunc) *HTTPProcessor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewHTTPProcessor(config.ProcessorConfig{
		Name:           "http",
		BaseURL:        srv.URL,
		PublishableKey: "pk_test_123",
		Timeout:        time.Second,
	}, srv.Client())
	require.NoError(t, err)
	return p
}

func TestHTTPProcessor_ConfirmPayment(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_1/confirm", r.URL.Path)
		assert.Equal(t, "Bearer pk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1_secret_abc", r.PostForm.Get("client_secret"))
		assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
		assert.Equal(t, []string{"card"}, r.PostForm["payment_method_types[]"])
		assert.Equal(t, "https://shop.example.com/status", r.PostForm.Get("return_url"))

		w.Write([]byte(`{"id":"pi_1","status":"succeeded","payment_method_types":["card"]}`))
	})

	result, err := p.ConfirmPayment(context.Background(), ConfirmRequest{
		IntentID:          "pi_1",
		ClientSecret:      "pi_1_secret_abc",
		PaymentMethod:     "pm_card_visa",
		PaymentMethodType: "card",
		ReturnURL:         "https://shop.example.com/status",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", result.ID)
	assert.Equal(t, checkout.IntentSucceeded, result.Status)
	assert.Equal(t, "card", result.PaymentMethodType)
}

func TestHTTPProcessor_ConfirmPayment_Declined(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"code":"card_declined","message":"card declined",
			"payment_intent":{"id":"pi_1","status":"requires_payment_method"}}}`))
	})

	result, err := p.ConfirmPayment(context.Background(), ConfirmRequest{IntentID: "pi_1", ClientSecret: "pi_1_secret_abc", PaymentMethodType: "card"})
	require.ErrorIs(t, err, domainErrors.ErrConfirmation)
	assert.Contains(t, err.Error(), "card declined")
	require.NotNil(t, result)
	assert.Equal(t, checkout.IntentRequiresPaymentMethod, result.Status)
	assert.Equal(t, "card_declined", result.ErrorCode)
}

func TestHTTPProcessor_ConfirmPayment_ServerError(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.ConfirmPayment(context.Background(), ConfirmRequest{IntentID: "pi_1", ClientSecret: "pi_1_secret_abc"})
	assert.ErrorIs(t, err, domainErrors.ErrConfirmation)
	assert.ErrorIs(t, err, domainErrors.ErrProcessorUnavailable)
}

func TestHTTPProcessor_ConfirmPayment_Timeout(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ConfirmPayment(ctx, ConfirmRequest{IntentID: "pi_1", ClientSecret: "pi_1_secret_abc"})
	assert.ErrorIs(t, err, domainErrors.ErrConfirmation)
	assert.ErrorIs(t, err, domainErrors.ErrProcessorTimeout)
}

func TestHTTPProcessor_ConfirmPayment_MissingHandle(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.ConfirmPayment(context.Background(), ConfirmRequest{IntentID: "pi_1"})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestHTTPProcessor_RetrieveIntent(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		assert.Equal(t, "pi_9_secret_x", r.URL.Query().Get("client_secret"))

		w.Write([]byte(`{"id":"pi_9","status":"processing","payment_method_types":["sepa_debit"]}`))
	})

	result, err := p.RetrieveIntent(context.Background(), "pi_9", "pi_9_secret_x")
	require.NoError(t, err)
	assert.Equal(t, checkout.IntentProcessing, result.Status)
	assert.Equal(t, "sepa_debit", result.PaymentMethodType)
}

func TestHTTPProcessor_RetrieveIntent_NotFound(t *testing.T) {
	p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No such payment_intent"}}`))
	})

	_, err := p.RetrieveIntent(context.Background(), "pi_missing", "pi_missing_secret_x")
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestNewHTTPProcessor_Validation(t *testing.T) {
	_, err := NewHTTPProcessor(config.ProcessorConfig{BaseURL: "::bad", PublishableKey: "pk"}, nil)
	assert.Error(t, err)

	_, err = NewHTTPProcessor(config.ProcessorConfig{BaseURL: "https://api.example.com"}, nil)
	assert.Error(t, err)
}

func TestHTTPProcessor_MethodTypeMustBeAllowedByIntent(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		intent    string
		want      string
	}{
		{"allowed type kept", "sepa_debit", `["card","sepa_debit"]`, "sepa_debit"},
		{"type outside intent replaced", "sepa_debit", `["card"]`, "card"},
		{"no types reported", "card", `[]`, "card"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestHTTPProcessor(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id":"pi_1","status":"processing","payment_method_types":` + tt.intent + `}`))
			})

			result, err := p.ConfirmPayment(context.Background(), ConfirmRequest{
				IntentID:          "pi_1",
				ClientSecret:      "pi_1_secret_abc",
				PaymentMethodType: tt.requested,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.PaymentMethodType)
		})
	}
}
