package automation

import (
	"context"
	_ "embed"
	"fmt"

	"peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/platform/logger"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	TriggerStage    string  `yaml:"trigger_stage"`
	ActionType      string  `yaml:"action_type"`
	TemplateContent string  `yaml:"template_content"`
	TemplateSubject *string `yaml:"template_subject"`
	DelayMinutes    int     `yaml:"delay_minutes"`
	AIEnabled       bool    `yaml:"ai_enabled"`
}

// SeedDefaultRules installs the default automation set on first boot. A
// non-empty rule table means an operator already curated rules, so nothing
// is touched.
func SeedDefaultRules(ctx context.Context, repo *repository.Repository, log *logger.Logger) error {
	count, err := repo.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("count automation rules: %w", err)
	}
	if count > 0 {
		return nil
	}

	var file seedFile
	if err := yaml.Unmarshal(seedYAML, &file); err != nil {
		return fmt.Errorf("parse automation seed: %w", err)
	}

	for _, r := range file.Rules {
		_, err := repo.Create(ctx, repository.UpsertRuleParams{
			TriggerStage:    r.TriggerStage,
			ActionType:      r.ActionType,
			TemplateContent: r.TemplateContent,
			TemplateSubject: r.TemplateSubject,
			DelayMinutes:    r.DelayMinutes,
			IsActive:        true,
			AIEnabled:       r.AIEnabled,
		})
		if err != nil {
			return fmt.Errorf("seed rule for stage %s: %w", r.TriggerStage, err)
		}
	}

	log.Info("seeded default automation rules", "count", len(file.Rules))
	return nil
}
