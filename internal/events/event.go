// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"peachhaus_crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new lead enters the pipeline.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	ServiceType string    `json:"serviceType"`
	Source      string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// PipelineStageChanged is published when a lead moves to a new pipeline stage.
// The automation module subscribes to it and runs the stage dispatcher.
type PipelineStageChanged struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	PreviousStage string    `json:"previousStage"`
	NewStage      string    `json:"newStage"`
	AutoTriggered bool      `json:"autoTriggered"`
	TriggerSource string    `json:"triggerSource,omitempty"`
}

func (e PipelineStageChanged) EventName() string { return "leads.pipeline.changed" }

// =============================================================================
// Automation Domain Events
// =============================================================================

// AutomationOutboxDue is published by the scheduler when an automation outbox
// record should be processed.
type AutomationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	LeadID   uuid.UUID `json:"leadId"`
	Kind     string    `json:"kind"`
}

func (e AutomationOutboxDue) EventName() string { return "automation.outbox.due" }
