package service

import (
	"context"
	"strings"

	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/platform/ai/moonshot"
	"peachhaus_crm_backend/platform/logger"
)

// Personalizer rewrites an already-rendered message for a specific lead.
// Implementations never fail the send: when personalization is unavailable
// or errors, the original message comes back unchanged.
type Personalizer interface {
	Personalize(ctx context.Context, message string, lead repository.Lead) string
}

// NoopPersonalizer returns every message unchanged. Used when no LLM API key
// is configured.
type NoopPersonalizer struct{}

func (NoopPersonalizer) Personalize(_ context.Context, message string, _ repository.Lead) string {
	return message
}

const personalizeSystemPrompt = `You personalize outreach messages for PeachHaus, a short-term-rental property management company.
Rewrite the message to feel personal to the recipient while preserving its structure, meaning, links, and calls to action exactly.
Do not add new claims, offers, or placeholders. Return only the rewritten message text.`

// MoonshotPersonalizer personalizes messages through the Moonshot
// chat-completion endpoint.
type MoonshotPersonalizer struct {
	model *moonshot.KimiModel
	log   *logger.Logger
}

func NewMoonshotPersonalizer(model *moonshot.KimiModel, log *logger.Logger) *MoonshotPersonalizer {
	return &MoonshotPersonalizer{model: model, log: log}
}

func (p *MoonshotPersonalizer) Personalize(ctx context.Context, message string, lead repository.Lead) string {
	prompt := "Recipient: " + strings.TrimSpace(lead.FirstName+" "+lead.LastName) + "\n" +
		"Property: " + lead.PropertyAddress + "\n" +
		"Service: " + lead.ServiceType + "\n" +
		"Pipeline stage: " + lead.Stage + "\n\n" +
		"Message to personalize:\n" + message

	personalized, err := p.model.Complete(ctx, personalizeSystemPrompt, prompt)
	if err != nil {
		p.log.Warn("personalization failed, using original message", "lead_id", lead.ID, "error", err)
		return message
	}
	personalized = strings.TrimSpace(personalized)
	if personalized == "" {
		return message
	}
	return personalized
}
