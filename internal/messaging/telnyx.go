package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"peachhaus_crm_backend/platform/config"
)

// TelnyxProvider is the last SMS fallback, using Telnyx's JSON Messages API.
type TelnyxProvider struct {
	apiKey     string
	fromNumber string
	baseURL    string
	client     *http.Client
}

// NewTelnyxProvider creates the Telnyx fallback provider, or nil when no API
// key is configured.
func NewTelnyxProvider(cfg config.MessagingConfig) *TelnyxProvider {
	if cfg.GetTelnyxAPIKey() == "" {
		return nil
	}
	return &TelnyxProvider{
		apiKey:     cfg.GetTelnyxAPIKey(),
		fromNumber: cfg.GetTelnyxFromNumber(),
		baseURL:    "https://api.telnyx.com",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelnyxProvider) Name() string { return "telnyx" }

type telnyxMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type telnyxMessageResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (t *TelnyxProvider) SendSMS(ctx context.Context, msg SMS) (Receipt, error) {
	body, err := json.Marshal(telnyxMessageRequest{
		From: t.fromNumber,
		To:   msg.To,
		Text: msg.Body,
	})
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v2/messages", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("telnyx request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Receipt{}, fmt.Errorf("telnyx returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed telnyxMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Receipt{}, err
	}

	return Receipt{Provider: t.Name(), MessageID: parsed.Data.ID}, nil
}
