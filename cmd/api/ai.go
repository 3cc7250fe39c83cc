package main

import (
	"peachhaus_crm_backend/internal/automation/agent"
	autoservice "peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/internal/leads"
	"peachhaus_crm_backend/platform/ai/moonshot"
	"peachhaus_crm_backend/platform/config"
	"peachhaus_crm_backend/platform/logger"
)

func newPersonalizer(cfg *config.Config, log *logger.Logger) autoservice.Personalizer {
	model := moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey()})
	return autoservice.NewMoonshotPersonalizer(model, log)
}

func newQualifier(cfg *config.Config, leadsModule *leads.Module) (autoservice.Qualifier, error) {
	return agent.NewQualifier(cfg.GetMoonshotAPIKey(), leadsModule.Repository())
}
