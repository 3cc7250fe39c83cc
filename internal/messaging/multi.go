package messaging

import (
	"context"
	"errors"
	"fmt"

	"peachhaus_crm_backend/platform/config"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/phone"
)

// MultiSender tries each provider in order and stops at the first success.
// There is no backoff between attempts; providers run back-to-back in the
// same call.
type MultiSender struct {
	providers []Provider
	log       *logger.Logger
}

// NewMultiSender assembles the provider chain from config: GHL, then Twilio,
// then Telnyx. Providers without credentials are simply absent from the chain.
func NewMultiSender(cfg config.MessagingConfig, log *logger.Logger) *MultiSender {
	var providers []Provider
	if p := NewGHLProvider(cfg, log); p != nil {
		providers = append(providers, p)
	}
	if p := NewTwilioProvider(cfg); p != nil {
		providers = append(providers, p)
	}
	if p := NewTelnyxProvider(cfg); p != nil {
		providers = append(providers, p)
	}
	return NewMultiSenderWithProviders(log, providers...)
}

// NewMultiSenderWithProviders builds a sender over an explicit chain.
func NewMultiSenderWithProviders(log *logger.Logger, providers ...Provider) *MultiSender {
	return &MultiSender{providers: providers, log: log}
}

// Send normalizes the destination number and walks the provider chain,
// returning the receipt of the first provider that succeeds. Failed attempts
// are logged as they happen; if every provider fails the returned error joins
// the whole chain.
func (m *MultiSender) Send(ctx context.Context, to, body string) (Receipt, error) {
	if len(m.providers) == 0 {
		return Receipt{}, fmt.Errorf("no sms providers configured")
	}

	normalized := phone.NormalizeE164(to)
	if !phone.IsValid(normalized) {
		// Malformed numbers pass through unchanged; providers get the final say.
		m.log.Warn("sms destination failed validation", "to", normalized)
	}

	msg := SMS{To: normalized, Body: body}

	var attemptErrs []error
	for _, p := range m.providers {
		receipt, err := p.SendSMS(ctx, msg)
		if err == nil {
			m.log.SendAttempt("sms", p.Name(), "", true, "")
			return receipt, nil
		}
		m.log.SendAttempt("sms", p.Name(), "", false, err.Error())
		attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	return Receipt{}, fmt.Errorf("all sms providers failed: %w", errors.Join(attemptErrs...))
}
