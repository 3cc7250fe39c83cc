// Package payments creates hosted payment-setup sessions for leads via the
// Stripe API.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StripeClient is a minimal form-encoded client for the two Stripe endpoints
// this service needs: customer lookup/create and setup-mode checkout sessions.
type StripeClient struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewStripeClient creates a client against the live Stripe API.
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey: secretKey,
		baseURL:   "https://api.stripe.com",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeCustomerList struct {
	Data []stripeCustomer `json:"data"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FindOrCreateCustomer returns the Stripe customer ID for an email address,
// creating the customer when none exists yet.
func (s *StripeClient) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "1")

	var list stripeCustomerList
	if err := s.do(ctx, http.MethodGet, "/v1/customers?"+query.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}

	var created stripeCustomer
	if err := s.do(ctx, http.MethodPost, "/v1/customers", form, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateSetupSession creates a setup-mode checkout session for the customer,
// restricted to the given payment method types, and returns its hosted URL.
func (s *StripeClient) CreateSetupSession(ctx context.Context, customerID string, paymentMethods []string, successURL, cancelURL string) (string, error) {
	form := url.Values{}
	form.Set("mode", "setup")
	form.Set("customer", customerID)
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	for i, method := range paymentMethods {
		form.Set(fmt.Sprintf("payment_method_types[%d]", i), method)
	}

	var session stripeCheckoutSession
	if err := s.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", fmt.Errorf("stripe session %s has no hosted url", session.ID)
	}
	return session.URL, nil
}

func (s *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var stripeErr stripeErrorBody
		if json.Unmarshal(data, &stripeErr) == nil && stripeErr.Error.Message != "" {
			return fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.StatusCode, stripeErr.Error.Message)
		}
		return fmt.Errorf("stripe %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	return json.Unmarshal(data, out)
}
