// Package messaging sends outbound SMS through a fixed chain of provider
// adapters: the conversation platform first, then plain SMS gateways as
// fallbacks.
package messaging

import "context"

// SMS is one outbound text message.
type SMS struct {
	To   string // E.164, normalized by the caller
	Body string
}

// Receipt identifies a successful send.
type Receipt struct {
	Provider  string
	MessageID string
}

// Provider is one SMS delivery adapter in the fallback chain.
type Provider interface {
	Name() string
	SendSMS(ctx context.Context, msg SMS) (Receipt, error)
}
