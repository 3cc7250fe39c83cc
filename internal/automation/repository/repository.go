// Package repository provides persistence for automation rules.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("automation rule not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Rule configures one message to send when a lead enters a stage.
type Rule struct {
	ID              uuid.UUID
	TriggerStage    string
	ActionType      string // "sms", "email" or "ai_qualify"
	TemplateContent string
	TemplateSubject *string
	DelayMinutes    int
	IsActive        bool
	AIEnabled       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const ruleColumns = `id, trigger_stage, action_type, template_content, template_subject,
	delay_minutes, is_active, ai_enabled, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.TriggerStage, &r.ActionType, &r.TemplateContent, &r.TemplateSubject,
		&r.DelayMinutes, &r.IsActive, &r.AIEnabled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return r, err
}

// ListActiveByStage returns active rules for a stage ordered by delay,
// shortest first. Rules with the same delay keep insertion order.
func (r *Repository) ListActiveByStage(ctx context.Context, stage string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE trigger_stage = $1 AND is_active = TRUE
		ORDER BY delay_minutes ASC, created_at ASC`,
		stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Rule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	return scanRule(row)
}

func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		ORDER BY trigger_stage, delay_minutes, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

type UpsertRuleParams struct {
	TriggerStage    string
	ActionType      string
	TemplateContent string
	TemplateSubject *string
	DelayMinutes    int
	IsActive        bool
	AIEnabled       bool
}

func (r *Repository) Create(ctx context.Context, p UpsertRuleParams) (Rule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO automation_rules
			(trigger_stage, action_type, template_content, template_subject, delay_minutes, is_active, ai_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ruleColumns,
		p.TriggerStage, p.ActionType, p.TemplateContent, p.TemplateSubject, p.DelayMinutes, p.IsActive, p.AIEnabled)
	return scanRule(row)
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpsertRuleParams) (Rule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE automation_rules
		SET trigger_stage = $2, action_type = $3, template_content = $4, template_subject = $5,
			delay_minutes = $6, is_active = $7, ai_enabled = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, p.TriggerStage, p.ActionType, p.TemplateContent, p.TemplateSubject, p.DelayMinutes, p.IsActive, p.AIEnabled)
	return scanRule(row)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAll reports the total number of rules, used to decide whether the
// default seed set should be installed.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM automation_rules`).Scan(&count)
	return count, err
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	items := make([]Rule, 0)
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.TriggerStage, &rule.ActionType, &rule.TemplateContent, &rule.TemplateSubject,
			&rule.DelayMinutes, &rule.IsActive, &rule.AIEnabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}
