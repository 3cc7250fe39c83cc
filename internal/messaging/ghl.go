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
	"peachhaus_crm_backend/platform/logger"
)

// GHLProvider sends through the GoHighLevel conversations API. A send is
// three calls: upsert the contact, clear its do-not-disturb flags, post the
// message. Upsert and DND failures are logged and skipped; only the final
// message post decides success.
type GHLProvider struct {
	apiKey     string
	locationID string
	baseURL    string
	client     *http.Client
	log        *logger.Logger
}

// NewGHLProvider creates the primary conversation-platform provider, or nil
// when no API key is configured.
func NewGHLProvider(cfg config.MessagingConfig, log *logger.Logger) *GHLProvider {
	if cfg.GetGHLAPIKey() == "" {
		return nil
	}
	return &GHLProvider{
		apiKey:     cfg.GetGHLAPIKey(),
		locationID: cfg.GetGHLLocationID(),
		baseURL:    "https://services.leadconnectorhq.com",
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (g *GHLProvider) Name() string { return "ghl" }

type ghlUpsertRequest struct {
	Phone      string `json:"phone"`
	LocationID string `json:"locationId"`
}

type ghlUpsertResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

type ghlDNDRequest struct {
	DND bool `json:"dnd"`
}

type ghlMessageRequest struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Message   string `json:"message"`
}

type ghlMessageResponse struct {
	MessageID string `json:"messageId"`
}

func (g *GHLProvider) SendSMS(ctx context.Context, msg SMS) (Receipt, error) {
	contactID, err := g.upsertContact(ctx, msg.To)
	if err != nil {
		g.log.Warn("ghl contact upsert failed", "error", err)
	}

	if contactID != "" {
		if err := g.resetDND(ctx, contactID); err != nil {
			g.log.Warn("ghl dnd reset failed", "contact_id", contactID, "error", err)
		}
	}

	if contactID == "" {
		return Receipt{}, fmt.Errorf("ghl send skipped: no contact id for %s", msg.To)
	}

	var resp ghlMessageResponse
	err = g.do(ctx, http.MethodPost, "/conversations/messages", ghlMessageRequest{
		Type:      "SMS",
		ContactID: contactID,
		Message:   msg.Body,
	}, &resp)
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{Provider: g.Name(), MessageID: resp.MessageID}, nil
}

func (g *GHLProvider) upsertContact(ctx context.Context, phone string) (string, error) {
	var resp ghlUpsertResponse
	err := g.do(ctx, http.MethodPost, "/contacts/upsert", ghlUpsertRequest{
		Phone:      phone,
		LocationID: g.locationID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Contact.ID == "" {
		return "", fmt.Errorf("ghl upsert returned no contact id")
	}
	return resp.Contact.ID, nil
}

func (g *GHLProvider) resetDND(ctx context.Context, contactID string) error {
	return g.do(ctx, http.MethodPut, "/contacts/"+contactID, ghlDNDRequest{DND: false}, nil)
}

func (g *GHLProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Version", "2021-07-28")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("ghl request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ghl %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
