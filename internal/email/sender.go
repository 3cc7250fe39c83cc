package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"peachhaus_crm_backend/platform/config"
)

// Attachment represents a file attachment for an email.
type Attachment struct {
	Content  []byte // raw file bytes (base64-encoded on the wire)
	FileName string // e.g. "peachhaus-w9.pdf"
	MIMEType string // e.g. "application/pdf"
}

// Sender delivers rendered HTML emails. Stage content is data-driven (the
// registry picks subject and body), so a single generic send method is enough.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error
}

// NoopSender is used when no email transport is configured.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	return nil
}

// ResendSender delivers via the Resend HTTP API.
type ResendSender struct {
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

type resendAttachment struct {
	Content  string `json:"content"` // base64-encoded file content
	Filename string `json:"filename"`
}

type resendEmailRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// NewSender builds a Sender from config: Resend when an API key is present,
// SMTP when a host is configured, noop otherwise.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	switch cfg.GetEmailTransport() {
	case "resend":
		return &ResendSender{
			apiKey:    cfg.GetResendAPIKey(),
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
			client:    &http.Client{Timeout: 10 * time.Second},
		}, nil
	case "smtp":
		return NewSMTPSender(
			cfg.GetSMTPHost(),
			cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(),
			cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(),
			cfg.GetEmailFromName(),
		), nil
	default:
		return NoopSender{}, nil
	}
}

func (r *ResendSender) Send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	payload := resendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", r.fromName, r.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		HTML:    htmlContent,
	}

	for _, att := range attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Content:  base64.StdEncoding.EncodeToString(att.Content),
			Filename: att.FileName,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.resend.com/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend send failed: status %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
