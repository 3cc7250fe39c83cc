package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID               uuid.UUID
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	PropertyAddress  string
	ServiceType      string
	Stage            string
	Notes            string
	AISummary        *string
	StripeCustomerID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CreateLeadParams struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	PropertyAddress string
	ServiceType     string
	Notes           string
}

const leadColumns = `id, first_name, last_name, email, phone, property_address,
	service_type, stage, notes, ai_summary, stripe_customer_id, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.PropertyAddress,
		&l.ServiceType, &l.Stage, &l.Notes, &l.AISummary, &l.StripeCustomerID, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

func (r *Repository) Create(ctx context.Context, p CreateLeadParams) (Lead, error) {
	serviceType := p.ServiceType
	if serviceType == "" {
		serviceType = "full_service"
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (first_name, last_name, email, phone, property_address, service_type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+leadColumns,
		p.FirstName, p.LastName, p.Email, p.Phone, p.PropertyAddress, serviceType, p.Notes)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// UpdateStage moves the lead to a new stage and returns the previous one.
func (r *Repository) UpdateStage(ctx context.Context, id uuid.UUID, newStage string) (previousStage string, err error) {
	err = r.pool.QueryRow(ctx, `
		UPDATE leads l
		SET stage = $2, updated_at = now()
		FROM (SELECT stage FROM leads WHERE id = $1) old
		WHERE l.id = $1
		RETURNING old.stage`,
		id, newStage).Scan(&previousStage)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return previousStage, err
}

func (r *Repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, customerID)
	return err
}

func (r *Repository) SetAISummary(ctx context.Context, id uuid.UUID, summary string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET ai_summary = $2, updated_at = now() WHERE id = $1`,
		id, summary)
	return err
}

// DiscoveryCall is the record of a discovery conversation with a lead.
type DiscoveryCall struct {
	ID               uuid.UUID
	LeadID           uuid.UUID
	CurrentSituation string
	ScheduledFor     *time.Time
	Notes            string
	CreatedAt        time.Time
}

// LatestDiscoveryCall returns the most recent discovery call for a lead, or
// (nil, nil) when none exists.
func (r *Repository) LatestDiscoveryCall(ctx context.Context, leadID uuid.UUID) (*DiscoveryCall, error) {
	var dc DiscoveryCall
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, current_situation, scheduled_for, notes, created_at
		FROM discovery_calls
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		leadID).Scan(&dc.ID, &dc.LeadID, &dc.CurrentSituation, &dc.ScheduledFor, &dc.Notes, &dc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// TimelineEvent is one append-only audit entry on a lead.
type TimelineEvent struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	ActorType string
	EventType string
	Title     string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

type InsertTimelineParams struct {
	LeadID    uuid.UUID
	ActorType string // defaults to "system"
	EventType string
	Title     string
	Metadata  any
}

func (r *Repository) InsertTimelineEvent(ctx context.Context, p InsertTimelineParams) error {
	actorType := p.ActorType
	if actorType == "" {
		actorType = "system"
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO lead_timeline_events (lead_id, actor_type, event_type, title, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		p.LeadID, actorType, p.EventType, p.Title, payload)
	return err
}

func (r *Repository) ListTimeline(ctx context.Context, leadID uuid.UUID, limit int) ([]TimelineEvent, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, actor_type, event_type, title, metadata, created_at
		FROM lead_timeline_events
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]TimelineEvent, 0)
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.LeadID, &ev.ActorType, &ev.EventType, &ev.Title, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	return items, rows.Err()
}

// Communication is one outbound message attempt recorded against a lead.
type Communication struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	AutomationRuleID  *uuid.UUID
	Channel           string
	Direction         string
	Body              string
	Subject           *string
	Status            string
	Provider          *string
	ProviderMessageID *string
	ErrorMessage      *string
	CreatedAt         time.Time
}

type InsertCommunicationParams struct {
	LeadID            uuid.UUID
	AutomationRuleID  *uuid.UUID
	Channel           string // "sms" or "email"
	Body              string
	Subject           *string
	Status            string // "sent" or "failed"
	Provider          *string
	ProviderMessageID *string
	ErrorMessage      *string
}

func (r *Repository) InsertCommunication(ctx context.Context, p InsertCommunicationParams) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_communications
			(lead_id, automation_rule_id, channel, direction, body, subject, status, provider, provider_message_id, error_message)
		VALUES ($1, $2, $3, 'outbound', $4, $5, $6, $7, $8, $9)`,
		p.LeadID, p.AutomationRuleID, p.Channel, p.Body, p.Subject, p.Status, p.Provider, p.ProviderMessageID, p.ErrorMessage)
	return err
}

func (r *Repository) ListCommunications(ctx context.Context, leadID uuid.UUID, limit int) ([]Communication, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, automation_rule_id, channel, direction, body, subject, status,
			provider, provider_message_id, error_message, created_at
		FROM lead_communications
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Communication, 0)
	for rows.Next() {
		var c Communication
		if err := rows.Scan(&c.ID, &c.LeadID, &c.AutomationRuleID, &c.Channel, &c.Direction, &c.Body, &c.Subject,
			&c.Status, &c.Provider, &c.ProviderMessageID, &c.ErrorMessage, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
