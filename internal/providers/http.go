package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPProcessor confirms intents against a Stripe-compatible processor API
// with the publishable key, the way the browser payment widget does.
type HTTPProcessor struct {
	name    string
	baseURL *url.URL
	key     string
	http    *http.Client
}

func NewHTTPProcessor(cfg config.ProcessorConfig, hc *http.Client) (*HTTPProcessor, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid processor base url %q", cfg.BaseURL)
	}
	if cfg.PublishableKey == "" {
		return nil, errors.New("processor publishable key is required")
	}
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	name := cfg.Name
	if name == "" {
		name = "http"
	}
	return &HTTPProcessor{name: name, baseURL: u, key: cfg.PublishableKey, http: hc}, nil
}

func (p *HTTPProcessor) Name() string { return p.name }

func (p *HTTPProcessor) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*IntentResult, error) {
	if req.IntentID == "" || req.ClientSecret == "" {
		return nil, domainErrors.NewValidationError("client_secret", "intent handle is required")
	}

	form := url.Values{}
	form.Set("client_secret", req.ClientSecret)
	if req.PaymentMethod != "" {
		form.Set("payment_method", req.PaymentMethod)
	}
	if req.PaymentMethodType != "" {
		form.Add("payment_method_types[]", req.PaymentMethodType)
	}
	if req.ReturnURL != "" {
		form.Set("return_url", req.ReturnURL)
	}

	path := "/v1/payment_intents/" + url.PathEscape(req.IntentID) + "/confirm"
	httpReq, err := p.newRequest(ctx, http.MethodPost, path, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.send(httpReq, req.PaymentMethodType)
}

func (p *HTTPProcessor) RetrieveIntent(ctx context.Context, intentID, clientSecret string) (*IntentResult, error) {
	if intentID == "" || clientSecret == "" {
		return nil, domainErrors.NewValidationError("client_secret", "intent handle is required")
	}

	q := url.Values{"client_secret": {clientSecret}}
	httpReq, err := p.newRequest(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), q, nil)
	if err != nil {
		return nil, err
	}
	return p.send(httpReq, "")
}

func (p *HTTPProcessor) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *p.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.key)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (p *HTTPProcessor) send(req *http.Request, methodType string) (*IntentResult, error) {
	resp, err := p.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, domainErrors.Confirmation("confirmation timed out", errors.Join(domainErrors.ErrProcessorTimeout, err))
		}
		return nil, domainErrors.Confirmation("processor unreachable", errors.Join(domainErrors.ErrProcessorUnavailable, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domainErrors.Confirmation("read processor response", errors.Join(domainErrors.ErrProcessorUnavailable, err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var intent intentDTO
		if err := json.Unmarshal(data, &intent); err != nil {
			return nil, domainErrors.Confirmation("decode processor response", errors.Join(domainErrors.ErrProcessorUnavailable, err))
		}
		return intent.toResult(methodType), nil
	}

	return p.statusError(resp.StatusCode, data, methodType)
}

// statusError maps a non-2xx processor answer. Declines carry the intent and
// a buyer-facing message; 5xx answers mean the processor is unavailable.
func (p *HTTPProcessor) statusError(status int, data []byte, methodType string) (*IntentResult, error) {
	var body errorEnvelope
	_ = json.Unmarshal(data, &body)

	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, domainErrors.NewDomainError("not_found", msg, domainErrors.ErrNotFound)
	case status >= 500:
		return nil, domainErrors.Confirmation(msg, domainErrors.ErrProcessorUnavailable)
	}

	var result *IntentResult
	if body.Error.PaymentIntent != nil {
		result = body.Error.PaymentIntent.toResult(methodType)
	} else {
		result = &IntentResult{Status: "requires_payment_method", PaymentMethodType: methodType}
	}
	result.ErrorCode = body.Error.Code
	result.ErrorMessage = msg
	return result, domainErrors.Confirmation(msg, nil)
}

type intentDTO struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	PaymentMethodTypes []string `json:"payment_method_types"`
	LastPaymentError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// toResult trusts the requested method type only when the intent allows it;
// otherwise the processor's own list decides.
func (d intentDTO) toResult(requested string) *IntentResult {
	methodType := requested
	if len(d.PaymentMethodTypes) > 0 && !slices.Contains(d.PaymentMethodTypes, requested) {
		methodType = d.PaymentMethodTypes[0]
	}
	r := &IntentResult{ID: d.ID, Status: d.Status, PaymentMethodType: methodType}
	if d.LastPaymentError != nil {
		r.ErrorCode = d.LastPaymentError.Code
		r.ErrorMessage = d.LastPaymentError.Message
	}
	return r
}

type errorEnvelope struct {
	Error struct {
		Code          string     `json:"code"`
		Message       string     `json:"message"`
		PaymentIntent *intentDTO `json:"payment_intent"`
	} `json:"error"`
}
