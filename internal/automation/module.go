// Package automation wires the stage-change automation bounded context:
// the dispatcher, the rule table, the outbox, and their HTTP surface.
package automation

import (
	"context"
	"fmt"

	"peachhaus_crm_backend/internal/automation/handler"
	"peachhaus_crm_backend/internal/automation/outbox"
	"peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/internal/events"
	apphttp "peachhaus_crm_backend/internal/http"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the automation dispatcher with its repositories and routes.
type Module struct {
	dispatcher *service.Dispatcher
	rules      *repository.Repository
	outbox     *outbox.Repository
	handler    *handler.Handler
	log        *logger.Logger
}

var _ apphttp.Module = (*Module)(nil)

// NewModule builds the automation module around an existing dispatcher
// dependency set. Rules and outbox repositories are created here; the rest
// comes from the composition root.
func NewModule(pool *pgxpool.Pool, deps service.Deps, val *validator.Validator, log *logger.Logger) *Module {
	rules := repository.New(pool)
	outboxRepo := outbox.New(pool)

	deps.Rules = rules
	deps.Outbox = outboxRepo
	deps.Logger = log

	dispatcher := service.NewDispatcher(deps)

	return &Module{
		dispatcher: dispatcher,
		rules:      rules,
		outbox:     outboxRepo,
		handler:    handler.New(dispatcher, rules, val),
		log:        log,
	}
}

func (m *Module) Name() string { return "automation" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterTrigger(ctx.V1.Group("/automation"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/automations"))
}

// Dispatcher exposes the dispatcher for the worker binary.
func (m *Module) Dispatcher() *service.Dispatcher { return m.dispatcher }

// OutboxRepository exposes the outbox for the scheduler.
func (m *Module) OutboxRepository() *outbox.Repository { return m.outbox }

// RuleRepository exposes the rule table for seeding.
func (m *Module) RuleRepository() *repository.Repository { return m.rules }

// SubscribeEvents registers the module's event handlers: stage changes run
// the dispatcher, and due outbox rows are executed with status bookkeeping.
func (m *Module) SubscribeEvents(bus events.Bus) {
	bus.Subscribe(events.PipelineStageChanged{}.EventName(), events.HandlerFunc(m.onStageChanged))
	bus.Subscribe(events.AutomationOutboxDue{}.EventName(), events.HandlerFunc(m.onOutboxDue))
}

func (m *Module) onStageChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PipelineStageChanged)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	processed, err := m.dispatcher.ProcessStageChange(ctx, service.StageChange{
		LeadID:        e.LeadID,
		NewStage:      e.NewStage,
		PreviousStage: e.PreviousStage,
		AutoTriggered: e.AutoTriggered,
		TriggerSource: e.TriggerSource,
	})
	if err != nil {
		return err
	}

	m.log.Info("stage automations processed",
		"lead_id", e.LeadID, "stage", e.NewStage, "count", processed)
	return nil
}

func (m *Module) onOutboxDue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.AutomationOutboxDue)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	rec, err := m.outbox.GetByID(ctx, e.OutboxID)
	if err != nil {
		return fmt.Errorf("load outbox record %s: %w", e.OutboxID, err)
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark outbox record processing: %w", err)
	}

	if err := m.dispatcher.ProcessOutboxRecord(ctx, rec); err != nil {
		if markErr := m.outbox.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			m.log.DatabaseError("mark outbox record failed", markErr)
		}
		return err
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}
