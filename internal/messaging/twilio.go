package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peachhaus_crm_backend/platform/config"
)

// TwilioProvider is the first SMS fallback, using Twilio's form-encoded
// Messages API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
}

// NewTwilioProvider creates the Twilio fallback provider, or nil when no
// credentials are configured.
func NewTwilioProvider(cfg config.MessagingConfig) *TwilioProvider {
	if cfg.GetTwilioAccountSID() == "" || cfg.GetTwilioAuthToken() == "" {
		return nil
	}
	return &TwilioProvider{
		accountSID: cfg.GetTwilioAccountSID(),
		authToken:  cfg.GetTwilioAuthToken(),
		fromNumber: cfg.GetTwilioFromNumber(),
		baseURL:    "https://api.twilio.com",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioProvider) Name() string { return "twilio" }

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

func (t *TwilioProvider) SendSMS(ctx context.Context, msg SMS) (Receipt, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", t.fromNumber)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Receipt{}, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, err
	}

	var parsed twilioMessageResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		if parsed.Message != "" {
			return Receipt{}, fmt.Errorf("twilio returned %d: %s", resp.StatusCode, parsed.Message)
		}
		return Receipt{}, fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return Receipt{Provider: t.Name(), MessageID: parsed.SID}, nil
}
