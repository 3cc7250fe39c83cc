// Package service implements the stage-change automation dispatcher: direct
// stage emails, configurable automation rules, and deferred side effects.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"peachhaus_crm_backend/internal/automation/outbox"
	autorepo "peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/internal/documents"
	"peachhaus_crm_backend/internal/email"
	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/internal/messaging"
	"peachhaus_crm_backend/internal/notify"
	"peachhaus_crm_backend/internal/payments"
	"peachhaus_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the slice of the leads repository the dispatcher needs.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	LatestDiscoveryCall(ctx context.Context, leadID uuid.UUID) (*repository.DiscoveryCall, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	SetAISummary(ctx context.Context, id uuid.UUID, summary string) error
	InsertTimelineEvent(ctx context.Context, p repository.InsertTimelineParams) error
	InsertCommunication(ctx context.Context, p repository.InsertCommunicationParams) error
}

// RuleStore loads automation rules.
type RuleStore interface {
	ListActiveByStage(ctx context.Context, stage string) ([]autorepo.Rule, error)
	GetByID(ctx context.Context, id uuid.UUID) (autorepo.Rule, error)
}

// OutboxStore appends deferred work.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// SMSSender delivers a text message, falling back across providers.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (messaging.Receipt, error)
}

// PaymentLinker produces payment-setup URLs for leads.
type PaymentLinker interface {
	SetupLink(ctx context.Context, req payments.SetupLinkRequest) payments.SetupLinkResult
	FallbackURL(leadID uuid.UUID) string
}

// Notifier posts side-effect notifications downstream.
type Notifier interface {
	ScheduleFollowUp(ctx context.Context, payload notify.StagePayload) error
	SyncCRM(ctx context.Context, payload notify.StagePayload) error
	TriggerOpsHandoff(ctx context.Context, payload notify.StagePayload) error
}

// Qualifier produces an AI summary of a lead for ai_qualify rules.
type Qualifier interface {
	Qualify(ctx context.Context, lead repository.Lead) (string, error)
}

// StageChange is one pipeline transition to run automations for.
type StageChange struct {
	LeadID        uuid.UUID
	NewStage      string
	PreviousStage string
	AutoTriggered bool
	TriggerSource string
}

// Dispatcher runs the automation set for a stage change. Each run is
// stateless: re-running the same transition re-sends every automation and
// writes a fresh set of communication records. Dedup is a deliberate
// non-feature for now; see the runner tests.
type Dispatcher struct {
	leads        LeadStore
	rules        RuleStore
	outbox       OutboxStore
	email        email.Sender
	sms          SMSSender
	payments     PaymentLinker
	notifier     Notifier
	personalizer Personalizer
	qualifier    Qualifier
	docs         documents.Store
	baseURL      string
	log          *logger.Logger

	now func() time.Time
}

type Deps struct {
	Leads        LeadStore
	Rules        RuleStore
	Outbox       OutboxStore
	Email        email.Sender
	SMS          SMSSender
	Payments     PaymentLinker
	Notifier     Notifier
	Personalizer Personalizer
	Qualifier    Qualifier // optional
	Documents    documents.Store
	BaseURL      string
	Logger       *logger.Logger
}

func NewDispatcher(d Deps) *Dispatcher {
	personalizer := d.Personalizer
	if personalizer == nil {
		personalizer = NoopPersonalizer{}
	}
	return &Dispatcher{
		leads:        d.Leads,
		rules:        d.Rules,
		outbox:       d.Outbox,
		email:        d.Email,
		sms:          d.SMS,
		payments:     d.Payments,
		notifier:     d.Notifier,
		personalizer: personalizer,
		qualifier:    d.Qualifier,
		docs:         d.Documents,
		baseURL:      d.BaseURL,
		log:          d.Logger,
		now:          time.Now,
	}
}

// Outbox payload shapes.
type ruleSendPayload struct {
	RuleID uuid.UUID `json:"ruleId"`
}

type stageChangePayload struct {
	NewStage      string `json:"newStage"`
	PreviousStage string `json:"previousStage,omitempty"`
}

// ProcessStageChange runs all automations for a lead's stage transition and
// returns the number of automation rules processed. Per-rule failures are
// logged and skipped; only missing leads and rule-query failures abort the
// whole run.
func (d *Dispatcher) ProcessStageChange(ctx context.Context, sc StageChange) (int, error) {
	lead, err := d.leads.GetByID(ctx, sc.LeadID)
	if err != nil {
		return 0, fmt.Errorf("load lead %s: %w", sc.LeadID, err)
	}

	if err := d.leads.InsertTimelineEvent(ctx, repository.InsertTimelineParams{
		LeadID:    lead.ID,
		EventType: "automation_run",
		Title:     "Stage automations for " + sc.NewStage,
		Metadata: map[string]any{
			"newStage":      sc.NewStage,
			"previousStage": sc.PreviousStage,
			"triggerSource": sc.TriggerSource,
			"autoTriggered": sc.AutoTriggered,
		},
	}); err != nil {
		d.log.DatabaseError("insert timeline event", err)
	}

	d.sendDirectStageEmail(ctx, lead, sc.NewStage)

	rules, err := d.rules.ListActiveByStage(ctx, sc.NewStage)
	if err != nil {
		return 0, fmt.Errorf("load automations for stage %s: %w", sc.NewStage, err)
	}

	processed := 0
	for _, rule := range rules {
		if rule.DelayMinutes > 0 {
			d.deferRule(ctx, lead, rule)
			processed++
			continue
		}
		if err := d.runRule(ctx, lead, rule); err != nil {
			d.log.Error("automation rule failed",
				"lead_id", lead.ID, "rule_id", rule.ID, "action", rule.ActionType, "error", err)
		}
		processed++
	}

	d.enqueueSideEffects(ctx, lead, sc)

	if sc.NewStage == "contract_signed" {
		d.sendW9Email(ctx, lead)
		d.scheduleDelayedPaymentEmail(ctx, lead, sc)
	}

	return processed, nil
}

// sendDirectStageEmail sends the hardcoded email tied to the stage itself,
// independent of the automation rule table.
func (d *Dispatcher) sendDirectStageEmail(ctx context.Context, lead repository.Lead, stage string) {
	se, ok := email.ForStage(stage)
	if !ok || lead.Email == "" {
		return
	}

	if se.ShouldSuppress != nil {
		dc, err := d.leads.LatestDiscoveryCall(ctx, lead.ID)
		if err != nil {
			d.log.DatabaseError("load latest discovery call", err)
		}
		sctx := email.SuppressionContext{HasDiscoveryCall: dc != nil}
		if dc != nil {
			sctx.CurrentSituation = dc.CurrentSituation
		}
		if se.ShouldSuppress(sctx) {
			d.log.Info("direct stage email suppressed", "lead_id", lead.ID, "stage", stage)
			return
		}
	}

	fields := email.Fields{
		FirstName:       lead.FirstName,
		PropertyAddress: lead.PropertyAddress,
		ServiceType:     lead.ServiceType,
		BaseURL:         d.baseURL,
	}

	if stage == "contract_sent" || stage == "payment_setup" {
		fields.PaymentURL = d.paymentLink(ctx, lead)
	}

	html, err := se.Render(fields)
	if err != nil {
		d.log.Error("render stage email failed", "lead_id", lead.ID, "stage", stage, "error", err)
		return
	}

	var attachments []email.Attachment
	if stage == "payment_setup" {
		attachments = d.qrAttachment(lead, fields.PaymentURL)
	}

	d.deliverEmail(ctx, lead, nil, se.Subject, html, attachments...)
}

// qrAttachment renders the payment link as a QR code PNG so owners can finish
// setup from their phone. A render failure just drops the attachment.
func (d *Dispatcher) qrAttachment(lead repository.Lead, link string) []email.Attachment {
	if link == "" {
		return nil
	}
	png, err := payments.LinkQRCode(link)
	if err != nil {
		d.log.Warn("payment qr code failed", "lead_id", lead.ID, "error", err)
		return nil
	}
	return []email.Attachment{{
		Content:  png,
		FileName: "payment-setup-qr.png",
		MIMEType: "image/png",
	}}
}

// paymentLink resolves a hosted payment-setup URL, degrading to the static
// in-app link on any payment API failure.
func (d *Dispatcher) paymentLink(ctx context.Context, lead repository.Lead) string {
	result := d.payments.SetupLink(ctx, payments.SetupLinkRequest{
		LeadID:      lead.ID,
		Email:       lead.Email,
		Name:        lead.FirstName + " " + lead.LastName,
		ServiceType: lead.ServiceType,
	})
	if result.StripeCustomerID != "" {
		if err := d.leads.SetStripeCustomerID(ctx, lead.ID, result.StripeCustomerID); err != nil {
			d.log.DatabaseError("save stripe customer id", err)
		}
	}
	return result.URL
}

// deferRule appends a delayed rule send to the outbox; the worker executes
// it once run_at passes.
func (d *Dispatcher) deferRule(ctx context.Context, lead repository.Lead, rule autorepo.Rule) {
	runAt := d.now().UTC().Add(time.Duration(rule.DelayMinutes) * time.Minute)
	_, err := d.outbox.Insert(ctx, outbox.InsertParams{
		LeadID:  lead.ID,
		Kind:    outbox.KindRuleSend,
		Payload: ruleSendPayload{RuleID: rule.ID},
		RunAt:   runAt,
	})
	if err != nil {
		d.log.Error("defer automation rule failed", "lead_id", lead.ID, "rule_id", rule.ID, "error", err)
		return
	}
	d.log.Info("automation rule deferred",
		"lead_id", lead.ID, "rule_id", rule.ID, "run_at", runAt)
}

// runRule renders and dispatches one automation rule immediately.
func (d *Dispatcher) runRule(ctx context.Context, lead repository.Lead, rule autorepo.Rule) error {
	body := RenderPlaceholders(rule.TemplateContent, lead)
	if rule.AIEnabled {
		body = d.personalizer.Personalize(ctx, body, lead)
	}

	switch rule.ActionType {
	case "sms":
		return d.dispatchSMS(ctx, lead, rule, body)
	case "email":
		return d.dispatchRuleEmail(ctx, lead, rule, body)
	case "ai_qualify":
		return d.dispatchQualify(ctx, lead, rule)
	default:
		return fmt.Errorf("unknown action type %q", rule.ActionType)
	}
}

func (d *Dispatcher) dispatchSMS(ctx context.Context, lead repository.Lead, rule autorepo.Rule, body string) error {
	ruleID := rule.ID
	if lead.Phone == "" {
		d.recordCommunication(ctx, lead, &ruleID, "sms", body, nil, messaging.Receipt{}, fmt.Errorf("lead has no phone number"))
		return fmt.Errorf("lead %s has no phone number", lead.ID)
	}

	receipt, err := d.sms.Send(ctx, lead.Phone, body)
	d.recordCommunication(ctx, lead, &ruleID, "sms", body, nil, receipt, err)
	return err
}

func (d *Dispatcher) dispatchRuleEmail(ctx context.Context, lead repository.Lead, rule autorepo.Rule, body string) error {
	if lead.Email == "" {
		return fmt.Errorf("lead %s has no email address", lead.ID)
	}

	subject := email.SubjectGeneric
	if rule.TemplateSubject != nil && *rule.TemplateSubject != "" {
		subject = *rule.TemplateSubject
	}

	html, err := email.RenderGeneric(body)
	if err != nil {
		return fmt.Errorf("render generic email: %w", err)
	}

	ruleID := rule.ID
	return d.deliverEmail(ctx, lead, &ruleID, subject, html)
}

func (d *Dispatcher) dispatchQualify(ctx context.Context, lead repository.Lead, rule autorepo.Rule) error {
	if d.qualifier == nil {
		d.log.Debug("ai qualification not configured, skipping", "lead_id", lead.ID)
		return nil
	}

	summary, err := d.qualifier.Qualify(ctx, lead)
	if err != nil {
		return fmt.Errorf("qualify lead: %w", err)
	}
	if err := d.leads.SetAISummary(ctx, lead.ID, summary); err != nil {
		return fmt.Errorf("save ai summary: %w", err)
	}

	if err := d.leads.InsertTimelineEvent(ctx, repository.InsertTimelineParams{
		LeadID:    lead.ID,
		ActorType: "ai",
		EventType: "ai_qualified",
		Title:     "AI qualification summary updated",
		Metadata:  map[string]any{"ruleId": rule.ID},
	}); err != nil {
		d.log.DatabaseError("insert timeline event", err)
	}
	return nil
}

// deliverEmail sends html to the lead and records the attempt.
func (d *Dispatcher) deliverEmail(ctx context.Context, lead repository.Lead, ruleID *uuid.UUID, subject, html string, attachments ...email.Attachment) error {
	err := d.email.Send(ctx, lead.Email, subject, html, attachments...)
	d.log.SendAttempt("email", "email", lead.ID.String(), err == nil, errText(err))

	status := "sent"
	var errMsg *string
	if err != nil {
		status = "failed"
		msg := err.Error()
		errMsg = &msg
	}
	if dbErr := d.leads.InsertCommunication(ctx, repository.InsertCommunicationParams{
		LeadID:           lead.ID,
		AutomationRuleID: ruleID,
		Channel:          "email",
		Body:             html,
		Subject:          &subject,
		Status:           status,
		ErrorMessage:     errMsg,
	}); dbErr != nil {
		d.log.DatabaseError("insert communication", dbErr)
	}
	if dbErr := d.leads.InsertTimelineEvent(ctx, repository.InsertTimelineParams{
		LeadID:    lead.ID,
		EventType: "email_" + status,
		Title:     subject,
		Metadata:  map[string]any{"channel": "email", "status": status},
	}); dbErr != nil {
		d.log.DatabaseError("insert timeline event", dbErr)
	}
	return err
}

// recordCommunication writes exactly one communication record and one
// timeline entry for an SMS attempt, whatever the provider chain did.
func (d *Dispatcher) recordCommunication(ctx context.Context, lead repository.Lead, ruleID *uuid.UUID, channel, body string, subject *string, receipt messaging.Receipt, sendErr error) {
	status := "sent"
	var errMsg, provider, providerMessageID *string
	if sendErr != nil {
		status = "failed"
		msg := sendErr.Error()
		errMsg = &msg
	}
	if receipt.Provider != "" {
		provider = &receipt.Provider
	}
	if receipt.MessageID != "" {
		providerMessageID = &receipt.MessageID
	}

	if err := d.leads.InsertCommunication(ctx, repository.InsertCommunicationParams{
		LeadID:            lead.ID,
		AutomationRuleID:  ruleID,
		Channel:           channel,
		Body:              body,
		Subject:           subject,
		Status:            status,
		Provider:          provider,
		ProviderMessageID: providerMessageID,
		ErrorMessage:      errMsg,
	}); err != nil {
		d.log.DatabaseError("insert communication", err)
	}
	if err := d.leads.InsertTimelineEvent(ctx, repository.InsertTimelineParams{
		LeadID:    lead.ID,
		EventType: channel + "_" + status,
		Title:     "Automation " + channel + " " + status,
		Metadata:  map[string]any{"channel": channel, "status": status},
	}); err != nil {
		d.log.DatabaseError("insert timeline event", err)
	}
}

// enqueueSideEffects appends the downstream notifications to the outbox so
// the worker delivers them at least once: follow-up scheduling and CRM sync
// on every transition, ops handoff only when the lead reaches ops_handoff.
func (d *Dispatcher) enqueueSideEffects(ctx context.Context, lead repository.Lead, sc StageChange) {
	payload := stageChangePayload{NewStage: sc.NewStage, PreviousStage: sc.PreviousStage}

	kinds := []string{outbox.KindFollowUp, outbox.KindCRMSync}
	if sc.NewStage == "ops_handoff" {
		kinds = append(kinds, outbox.KindOpsHandoff)
	}
	for _, kind := range kinds {
		if _, err := d.outbox.Insert(ctx, outbox.InsertParams{
			LeadID:  lead.ID,
			Kind:    kind,
			Payload: payload,
		}); err != nil {
			d.log.Error("enqueue side effect failed", "lead_id", lead.ID, "kind", kind, "error", err)
		}
	}
}

// sendW9Email sends the W9 tax form right after contract signing, attaching
// the PDF when object storage has it and linking the hosted copy otherwise.
func (d *Dispatcher) sendW9Email(ctx context.Context, lead repository.Lead) {
	if lead.Email == "" {
		return
	}

	var attachments []email.Attachment
	hasAttachment := false
	documentURL := d.baseURL + "/documents/w9"

	pdf, err := d.docs.FetchW9(ctx)
	if err != nil {
		d.log.Warn("w9 document unavailable, linking hosted copy", "lead_id", lead.ID, "error", err)
	} else {
		hasAttachment = true
		attachments = append(attachments, email.Attachment{
			Content:  pdf,
			FileName: "peachhaus-w9.pdf",
			MIMEType: "application/pdf",
		})
	}

	html, err := email.RenderW9(lead.FirstName, documentURL, hasAttachment)
	if err != nil {
		d.log.Error("render w9 email failed", "lead_id", lead.ID, "error", err)
		return
	}

	if err := d.deliverEmail(ctx, lead, nil, email.W9Subject(), html, attachments...); err != nil {
		d.log.Error("w9 email failed", "lead_id", lead.ID, "error", err)
	}
}

// scheduleDelayedPaymentEmail queues the payment-setup email for one hour
// after contract signing.
func (d *Dispatcher) scheduleDelayedPaymentEmail(ctx context.Context, lead repository.Lead, sc StageChange) {
	_, err := d.outbox.Insert(ctx, outbox.InsertParams{
		LeadID:  lead.ID,
		Kind:    outbox.KindPaymentSetupEmail,
		Payload: stageChangePayload{NewStage: sc.NewStage, PreviousStage: sc.PreviousStage},
		RunAt:   d.now().UTC().Add(time.Hour),
	})
	if err != nil {
		d.log.Error("schedule payment setup email failed", "lead_id", lead.ID, "error", err)
	}
}

// ProcessOutboxRecord executes one claimed outbox row. Returning an error
// leaves the row eligible for redelivery, so every branch must tolerate
// running more than once.
func (d *Dispatcher) ProcessOutboxRecord(ctx context.Context, rec outbox.Record) error {
	lead, err := d.leads.GetByID(ctx, rec.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", rec.LeadID, err)
	}

	switch rec.Kind {
	case outbox.KindRuleSend:
		var payload ruleSendPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return fmt.Errorf("decode rule_send payload: %w", err)
		}
		rule, err := d.rules.GetByID(ctx, payload.RuleID)
		if err != nil {
			return fmt.Errorf("load rule %s: %w", payload.RuleID, err)
		}
		return d.runRule(ctx, lead, rule)

	case outbox.KindPaymentSetupEmail:
		return d.sendPaymentSetupEmail(ctx, lead)

	case outbox.KindFollowUp, outbox.KindCRMSync, outbox.KindOpsHandoff:
		var payload stageChangePayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return fmt.Errorf("decode side effect payload: %w", err)
		}
		return d.deliverSideEffect(ctx, rec.Kind, notify.StagePayload{
			LeadID:        lead.ID,
			NewStage:      payload.NewStage,
			PreviousStage: payload.PreviousStage,
		})

	default:
		return fmt.Errorf("unknown outbox kind %q", rec.Kind)
	}
}

func (d *Dispatcher) sendPaymentSetupEmail(ctx context.Context, lead repository.Lead) error {
	if lead.Email == "" {
		return nil
	}

	se, ok := email.ForStage("payment_setup")
	if !ok {
		return fmt.Errorf("payment_setup stage email missing")
	}

	paymentURL := d.paymentLink(ctx, lead)
	html, err := se.Render(email.Fields{
		FirstName:       lead.FirstName,
		PropertyAddress: lead.PropertyAddress,
		ServiceType:     lead.ServiceType,
		BaseURL:         d.baseURL,
		PaymentURL:      paymentURL,
	})
	if err != nil {
		return fmt.Errorf("render payment setup email: %w", err)
	}

	return d.deliverEmail(ctx, lead, nil, se.Subject, html, d.qrAttachment(lead, paymentURL)...)
}

func (d *Dispatcher) deliverSideEffect(ctx context.Context, kind string, payload notify.StagePayload) error {
	switch kind {
	case outbox.KindFollowUp:
		return d.notifier.ScheduleFollowUp(ctx, payload)
	case outbox.KindCRMSync:
		return d.notifier.SyncCRM(ctx, payload)
	case outbox.KindOpsHandoff:
		return d.notifier.TriggerOpsHandoff(ctx, payload)
	default:
		return fmt.Errorf("unknown side effect %q", kind)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
