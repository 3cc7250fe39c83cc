package scheduler

import (
	"context"
	"testing"

	"peachhaus_crm_backend/internal/events"
	"peachhaus_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func TestHandleAutomationOutboxDueRepublishesEvent(t *testing.T) {
	bus := &recordingBus{}
	w := &Worker{bus: bus, log: logger.New("development")}

	outboxID := uuid.New()
	leadID := uuid.New()
	task, err := NewAutomationOutboxDueTask(AutomationOutboxDuePayload{
		OutboxID: outboxID.String(),
		LeadID:   leadID.String(),
		Kind:     "payment_setup_email",
	})
	if err != nil {
		t.Fatalf("NewAutomationOutboxDueTask: %v", err)
	}

	if err := w.handleAutomationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf("handleAutomationOutboxDue: %v", err)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(bus.published))
	}
	due, ok := bus.published[0].(events.AutomationOutboxDue)
	if !ok {
		t.Fatalf("published event type = %T", bus.published[0])
	}
	if due.OutboxID != outboxID || due.LeadID != leadID || due.Kind != "payment_setup_email" {
		t.Errorf("event = %+v", due)
	}
}

func TestHandleAutomationOutboxDueRejectsBadPayload(t *testing.T) {
	w := &Worker{bus: &recordingBus{}, log: logger.New("development")}

	task := asynq.NewTask(TaskAutomationOutboxDue, []byte(`{"outboxId":"nope"`))
	if err := w.handleAutomationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	task = asynq.NewTask(TaskAutomationOutboxDue, []byte(`{"outboxId":"not-a-uuid","leadId":"also-not"}`))
	if err := w.handleAutomationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected error for non-uuid ids")
	}
}
