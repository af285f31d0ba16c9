package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StripeConfig holds the REST client settings.
type StripeConfig struct {
	BaseURL   string // default https://api.stripe.com
	SecretKey string
	Timeout   time.Duration
}

// StripeClient implements Processor against the Stripe REST API.
// Requests are form-encoded; idempotency is carried in the Idempotency-Key
// header, which Stripe scopes to the request body for 24 hours.
type StripeClient struct {
	baseURL   string
	secretKey string
	hc        *http.Client
}

// NewStripeClient creates a StripeClient.
func NewStripeClient(cfg StripeConfig) *StripeClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.stripe.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeClient{
		baseURL:   strings.TrimRight(base, "/"),
		secretKey: cfg.SecretKey,
		hc:        &http.Client{Timeout: timeout},
	}
}

// FindOrCreateCustomer resolves the Stripe customer for a platform user:
// search by the user_id metadata first, create only when none exists. The
// create carries a user-scoped idempotency key so two racing first bids
// still produce one customer; the key cannot serve as the lookup because
// Stripe expires idempotency keys after 24 hours, and a fresh create would
// return a new customer with no payment methods attached.
func (c *StripeClient) FindOrCreateCustomer(ctx context.Context, userID uuid.UUID) (*Customer, error) {
	existing, err := c.searchCustomer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("stripe.FindOrCreateCustomer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	form := url.Values{}
	form.Set("metadata[user_id]", userID.String())

	var cust Customer
	if err := c.post(ctx, "/v1/customers", form, "customer-"+userID.String(), &cust); err != nil {
		return nil, fmt.Errorf("stripe.FindOrCreateCustomer: %w", err)
	}
	return &cust, nil
}

// searchCustomer looks up the customer previously created for this user.
// Returns nil (no error) when none exists yet.
func (c *StripeClient) searchCustomer(ctx context.Context, userID uuid.UUID) (*Customer, error) {
	query := fmt.Sprintf("metadata['user_id']:'%s'", userID)
	endpoint := c.baseURL + "/v1/customers/search?limit=1&query=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: %w", parseStripeError(body))
	}

	var list struct {
		Data []Customer `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

// DefaultMethod returns the customer's first stored card, or
// ErrNoPaymentMethod when none exists.
func (c *StripeClient) DefaultMethod(ctx context.Context, customerID string) (*Method, error) {
	endpoint := fmt.Sprintf("%s/v1/customers/%s/payment_methods?type=card&limit=1", c.baseURL, url.PathEscape(customerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe.DefaultMethod: build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe.DefaultMethod: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe.DefaultMethod: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe.DefaultMethod: %w", parseStripeError(body))
	}

	var list struct {
		Data []struct {
			ID   string `json:"id"`
			Card struct {
				Brand string `json:"brand"`
				Last4 string `json:"last4"`
			} `json:"card"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("stripe.DefaultMethod: decode: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, ErrNoPaymentMethod
	}
	pm := list.Data[0]
	return &Method{ID: pm.ID, Brand: pm.Card.Brand, Last4: pm.Card.Last4}, nil
}

// CreateCharge creates and confirms an off-session PaymentIntent. Amounts are
// whole currency units; Stripe wants the minor unit, so pounds become pence.
func (c *StripeClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	minor := req.Amount.Mul(decimal.NewFromInt(100))

	form := url.Values{}
	form.Set("amount", minor.StringFixed(0))
	form.Set("currency", req.Currency)
	form.Set("customer", req.CustomerID)
	form.Set("payment_method", req.MethodID)
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/v1/payment_intents", form, req.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	if intent.Status != "succeeded" {
		return nil, &ChargeError{
			Code:     intent.Status,
			Message:  "payment intent did not succeed",
			IntentID: intent.ID,
		}
	}
	return &Charge{ID: intent.ID, Status: intent.Status}, nil
}

// post sends a form-encoded POST with basic auth and the optional
// Idempotency-Key header, decoding a 2xx JSON body into out.
func (c *StripeClient) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseStripeError(body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// parseStripeError converts Stripe's error envelope into a ChargeError,
// preserving the partial payment_intent id for reconciliation.
func parseStripeError(body []byte) error {
	var envelope struct {
		Error struct {
			Code          string `json:"code"`
			Message       string `json:"message"`
			PaymentIntent struct {
				ID string `json:"id"`
			} `json:"payment_intent"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return &ChargeError{Code: "api_error", Message: strings.TrimSpace(string(body))}
	}
	return &ChargeError{
		Code:     envelope.Error.Code,
		Message:  envelope.Error.Message,
		IntentID: envelope.Error.PaymentIntent.ID,
	}
}
