// Package notify posts side-effect notifications to downstream webhook
// endpoints: follow-up sequence scheduling, CRM sync, and ops handoff.
// Deliveries are driven from the automation outbox, so each call may run
// more than once for the same transition.
package notify

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

	"github.com/google/uuid"
)

// Client posts lead notifications to the configured downstream endpoints.
// Endpoints without a configured URL are skipped silently.
type Client struct {
	followUpURL   string
	crmSyncURL    string
	opsHandoffURL string
	http          *http.Client
	log           *logger.Logger
}

// NewClient creates a notifier from config.
func NewClient(cfg config.NotifierConfig, log *logger.Logger) *Client {
	return &Client{
		followUpURL:   cfg.GetFollowUpWebhookURL(),
		crmSyncURL:    cfg.GetCRMSyncWebhookURL(),
		opsHandoffURL: cfg.GetOpsHandoffWebhookURL(),
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

// StagePayload is the body posted to every downstream endpoint.
type StagePayload struct {
	LeadID        uuid.UUID `json:"leadId"`
	NewStage      string    `json:"newStage"`
	PreviousStage string    `json:"previousStage,omitempty"`
}

// ScheduleFollowUp asks the follow-up service to schedule its sequences for
// the lead's new stage.
func (c *Client) ScheduleFollowUp(ctx context.Context, payload StagePayload) error {
	return c.post(ctx, "follow_up", c.followUpURL, payload)
}

// SyncCRM pushes the stage change to the external CRM.
func (c *Client) SyncCRM(ctx context.Context, payload StagePayload) error {
	return c.post(ctx, "crm_sync", c.crmSyncURL, payload)
}

// TriggerOpsHandoff notifies the operations system that a lead completed
// onboarding.
func (c *Client) TriggerOpsHandoff(ctx context.Context, payload StagePayload) error {
	return c.post(ctx, "ops_handoff", c.opsHandoffURL, payload)
}

func (c *Client) post(ctx context.Context, name, url string, payload StagePayload) error {
	if url == "" {
		c.log.Debug("notifier endpoint not configured, skipping", "endpoint", name)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s endpoint returned %d: %s", name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return nil
}
