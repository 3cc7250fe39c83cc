package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAutomationOutboxDue = "automation.outbox.due"

type AutomationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	LeadID   string `json:"leadId"`
	Kind     string `json:"kind"`
}

func NewAutomationOutboxDueTask(payload AutomationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationOutboxDue, data), nil
}

func ParseAutomationOutboxDuePayload(task *asynq.Task) (AutomationOutboxDuePayload, error) {
	var payload AutomationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AutomationOutboxDuePayload{}, err
	}
	return payload, nil
}
