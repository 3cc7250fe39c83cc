package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"peachhaus_crm_backend/internal/automation/outbox"
	autorepo "peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/internal/email"
	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/internal/messaging"
	"peachhaus_crm_backend/internal/notify"
	"peachhaus_crm_backend/internal/payments"
	"peachhaus_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	lead      repository.Lead
	discovery *repository.DiscoveryCall
	comms     []repository.InsertCommunicationParams
	timeline  []repository.InsertTimelineParams
	summaries map[uuid.UUID]string
	stripeIDs map[uuid.UUID]string
}

func newFakeLeadStore(lead repository.Lead) *fakeLeadStore {
	return &fakeLeadStore{
		lead:      lead,
		summaries: make(map[uuid.UUID]string),
		stripeIDs: make(map[uuid.UUID]string),
	}
}

func (f *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	if id != f.lead.ID {
		return repository.Lead{}, repository.ErrNotFound
	}
	return f.lead, nil
}

func (f *fakeLeadStore) LatestDiscoveryCall(context.Context, uuid.UUID) (*repository.DiscoveryCall, error) {
	return f.discovery, nil
}

func (f *fakeLeadStore) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) error {
	f.stripeIDs[id] = customerID
	return nil
}

func (f *fakeLeadStore) SetAISummary(_ context.Context, id uuid.UUID, summary string) error {
	f.summaries[id] = summary
	return nil
}

func (f *fakeLeadStore) InsertTimelineEvent(_ context.Context, p repository.InsertTimelineParams) error {
	f.timeline = append(f.timeline, p)
	return nil
}

func (f *fakeLeadStore) InsertCommunication(_ context.Context, p repository.InsertCommunicationParams) error {
	f.comms = append(f.comms, p)
	return nil
}

type fakeRuleStore struct {
	rules []autorepo.Rule
}

func (f *fakeRuleStore) ListActiveByStage(_ context.Context, stage string) ([]autorepo.Rule, error) {
	var out []autorepo.Rule
	for _, r := range f.rules {
		if r.TriggerStage == stage && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) GetByID(_ context.Context, id uuid.UUID) (autorepo.Rule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return autorepo.Rule{}, autorepo.ErrNotFound
}

type fakeOutbox struct {
	inserted []outbox.InsertParams
}

func (f *fakeOutbox) Insert(_ context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	f.inserted = append(f.inserted, p)
	return uuid.New(), nil
}

func (f *fakeOutbox) byKind(kind string) []outbox.InsertParams {
	var out []outbox.InsertParams
	for _, p := range f.inserted {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type sentEmail struct {
	to          string
	subject     string
	html        string
	attachments []email.Attachment
}

type fakeEmailSender struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmailSender) Send(_ context.Context, to, subject, html string, attachments ...email.Attachment) error {
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, html: html, attachments: attachments})
	return f.err
}

type fakeSMSSender struct {
	sent    []string
	receipt messaging.Receipt
	err     error
}

func (f *fakeSMSSender) Send(_ context.Context, to, body string) (messaging.Receipt, error) {
	f.sent = append(f.sent, body)
	if f.err != nil {
		return messaging.Receipt{}, f.err
	}
	return f.receipt, nil
}

type fakePaymentLinker struct {
	sessionURL string
	baseURL    string
	customerID string
}

func (f *fakePaymentLinker) SetupLink(_ context.Context, req payments.SetupLinkRequest) payments.SetupLinkResult {
	if f.sessionURL == "" {
		return payments.SetupLinkResult{URL: f.FallbackURL(req.LeadID)}
	}
	return payments.SetupLinkResult{URL: f.sessionURL, StripeCustomerID: f.customerID}
}

func (f *fakePaymentLinker) FallbackURL(leadID uuid.UUID) string {
	return f.baseURL + "/payment-setup?lead=" + leadID.String()
}

type fakeNotifier struct {
	followUps   []notify.StagePayload
	crmSyncs    []notify.StagePayload
	opsHandoffs []notify.StagePayload
	err         error
}

func (f *fakeNotifier) ScheduleFollowUp(_ context.Context, p notify.StagePayload) error {
	f.followUps = append(f.followUps, p)
	return f.err
}

func (f *fakeNotifier) SyncCRM(_ context.Context, p notify.StagePayload) error {
	f.crmSyncs = append(f.crmSyncs, p)
	return f.err
}

func (f *fakeNotifier) TriggerOpsHandoff(_ context.Context, p notify.StagePayload) error {
	f.opsHandoffs = append(f.opsHandoffs, p)
	return f.err
}

type fakeQualifier struct {
	summary string
	err     error
}

func (f *fakeQualifier) Qualify(context.Context, repository.Lead) (string, error) {
	return f.summary, f.err
}

type fakeDocStore struct {
	pdf []byte
	err error
}

func (f *fakeDocStore) FetchW9(context.Context) ([]byte, error) {
	return f.pdf, f.err
}

type upperPersonalizer struct{}

func (upperPersonalizer) Personalize(_ context.Context, message string, _ repository.Lead) string {
	return strings.ToUpper(message)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	leads      *fakeLeadStore
	rules      *fakeRuleStore
	outbox     *fakeOutbox
	email      *fakeEmailSender
	sms        *fakeSMSSender
	notifier   *fakeNotifier
	docs       *fakeDocStore
	now        time.Time
}

func testLead() repository.Lead {
	return repository.Lead{
		ID:              uuid.New(),
		FirstName:       "Dana",
		LastName:        "Whitfield",
		Email:           "dana@example.com",
		Phone:           "+14045551234",
		PropertyAddress: "12 Peachtree Ln, Atlanta GA",
		ServiceType:     "full_service",
		Stage:           "new_lead",
	}
}

func newFixture(t *testing.T, lead repository.Lead, rules []autorepo.Rule) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		leads:    newFakeLeadStore(lead),
		rules:    &fakeRuleStore{rules: rules},
		outbox:   &fakeOutbox{},
		email:    &fakeEmailSender{},
		sms:      &fakeSMSSender{receipt: messaging.Receipt{Provider: "twilio", MessageID: "SM123"}},
		notifier: &fakeNotifier{},
		docs:     &fakeDocStore{pdf: []byte("%PDF-1.4 test")},
		now:      time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}

	f.dispatcher = NewDispatcher(Deps{
		Leads:     f.leads,
		Rules:     f.rules,
		Outbox:    f.outbox,
		Email:     f.email,
		SMS:       f.sms,
		Payments:  &fakePaymentLinker{baseURL: "https://app.peachhaus.com"},
		Notifier:  f.notifier,
		Documents: f.docs,
		BaseURL:   "https://app.peachhaus.com",
		Logger:    logger.New("development"),
	})
	f.dispatcher.now = func() time.Time { return f.now }
	return f
}

func smsRule(stage string, delay int) autorepo.Rule {
	return autorepo.Rule{
		ID:              uuid.New(),
		TriggerStage:    stage,
		ActionType:      "sms",
		TemplateContent: "Hi {{first_name}}, update about {{property_address}}.",
		DelayMinutes:    delay,
		IsActive:        true,
	}
}

func emailRule(stage string, subject *string) autorepo.Rule {
	return autorepo.Rule{
		ID:              uuid.New(),
		TriggerStage:    stage,
		ActionType:      "email",
		TemplateContent: "Hello {{name}}, your property {{property_address}} moved forward.",
		TemplateSubject: subject,
		IsActive:        true,
	}
}

func TestProcessStageChangeRendersPlaceholders(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, []autorepo.Rule{smsRule("qualified", 0)})

	processed, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "qualified", PreviousStage: "discovery_completed",
	})
	if err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if len(f.sms.sent) != 1 {
		t.Fatalf("sms sent = %d, want 1", len(f.sms.sent))
	}
	want := "Hi Dana, update about 12 Peachtree Ln, Atlanta GA."
	if f.sms.sent[0] != want {
		t.Errorf("sms body = %q, want %q", f.sms.sent[0], want)
	}
}

func TestProcessStageChangeWritesOneCommunicationPerRule(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, []autorepo.Rule{smsRule("go_live", 0)})

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "go_live",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	var ruleComms []repository.InsertCommunicationParams
	for _, c := range f.leads.comms {
		if c.AutomationRuleID != nil {
			ruleComms = append(ruleComms, c)
		}
	}
	if len(ruleComms) != 1 {
		t.Fatalf("rule communications = %d, want 1", len(ruleComms))
	}
	c := ruleComms[0]
	if c.Status != "sent" || c.Channel != "sms" {
		t.Errorf("communication = %+v, want sent sms", c)
	}
	if c.Provider == nil || *c.Provider != "twilio" {
		t.Errorf("provider = %v, want twilio", c.Provider)
	}
	if c.ProviderMessageID == nil || *c.ProviderMessageID != "SM123" {
		t.Errorf("provider message id = %v, want SM123", c.ProviderMessageID)
	}
}

// Re-running the dispatcher for the same transition re-sends everything.
// There is no dedup key; this test pins that down so a future fix is a
// visible behavior change.
func TestProcessStageChangeIsNotIdempotent(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, []autorepo.Rule{smsRule("go_live", 0)})

	sc := StageChange{LeadID: lead.ID, NewStage: "go_live", PreviousStage: "payment_setup"}
	for i := 0; i < 2; i++ {
		if _, err := f.dispatcher.ProcessStageChange(context.Background(), sc); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	if len(f.sms.sent) != 2 {
		t.Errorf("sms sends = %d, want 2 (duplicate transitions are not deduplicated)", len(f.sms.sent))
	}

	var ruleComms int
	for _, c := range f.leads.comms {
		if c.AutomationRuleID != nil {
			ruleComms++
		}
	}
	if ruleComms != 2 {
		t.Errorf("rule communications = %d, want 2", ruleComms)
	}
}

func TestRuleFailureDoesNotAbortBatch(t *testing.T) {
	lead := testLead()
	subject := "Custom subject"
	f := newFixture(t, lead, []autorepo.Rule{
		smsRule("contacted", 0),
		emailRule("contacted", &subject),
	})
	f.sms.err = errors.New("all sms providers failed")

	processed, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "contacted",
	})
	if err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2 (failed rule still counts)", processed)
	}

	var failed, sent int
	for _, c := range f.leads.comms {
		if c.AutomationRuleID == nil {
			continue
		}
		switch c.Status {
		case "failed":
			failed++
		case "sent":
			sent++
		}
	}
	if failed != 1 || sent != 1 {
		t.Errorf("failed=%d sent=%d, want 1 and 1", failed, sent)
	}
}

func TestDelayedRuleGoesToOutbox(t *testing.T) {
	lead := testLead()
	rule := smsRule("proposal_sent", 60)
	f := newFixture(t, lead, []autorepo.Rule{rule})

	processed, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "proposal_sent",
	})
	if err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(f.sms.sent) != 0 {
		t.Errorf("sms sent immediately = %d, want 0", len(f.sms.sent))
	}

	deferred := f.outbox.byKind(outbox.KindRuleSend)
	if len(deferred) != 1 {
		t.Fatalf("deferred rule sends = %d, want 1", len(deferred))
	}
	wantRunAt := f.now.Add(60 * time.Minute)
	if !deferred[0].RunAt.Equal(wantRunAt) {
		t.Errorf("run_at = %v, want %v", deferred[0].RunAt, wantRunAt)
	}
}

func TestRuleEmailUsesGenericWrapperAndSubjectFallback(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, []autorepo.Rule{emailRule("some_future_stage", nil)})

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "some_future_stage",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(f.email.sent))
	}
	msg := f.email.sent[0]
	if msg.subject != email.SubjectGeneric {
		t.Errorf("subject = %q, want %q", msg.subject, email.SubjectGeneric)
	}
	if !strings.Contains(msg.html, "Hello Dana Whitfield") {
		t.Errorf("generic wrapper does not contain rule text: %q", msg.html)
	}
}

func TestRuleEmailPrefersRuleSubject(t *testing.T) {
	lead := testLead()
	subject := "A note about your listing"
	f := newFixture(t, lead, []autorepo.Rule{emailRule("some_future_stage", &subject)})

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "some_future_stage",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(f.email.sent))
	}
	if f.email.sent[0].subject != subject {
		t.Errorf("subject = %q, want %q", f.email.sent[0].subject, subject)
	}
}

func TestDirectStageEmailSent(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "onboarding",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(f.email.sent))
	}
	se, _ := email.ForStage("onboarding")
	if f.email.sent[0].subject != se.Subject {
		t.Errorf("subject = %q, want %q", f.email.sent[0].subject, se.Subject)
	}
}

func TestPhotosWalkthroughSuppression(t *testing.T) {
	cases := []struct {
		name      string
		discovery *repository.DiscoveryCall
		wantSent  bool
	}{
		{"self managing owner", &repository.DiscoveryCall{CurrentSituation: "self_managing"}, false},
		{"new property owner", &repository.DiscoveryCall{CurrentSituation: "new_property"}, true},
		{"no discovery call", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lead := testLead()
			f := newFixture(t, lead, nil)
			f.leads.discovery = tc.discovery

			if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
				LeadID: lead.ID, NewStage: "photos_walkthrough",
			}); err != nil {
				t.Fatalf("ProcessStageChange: %v", err)
			}

			sent := len(f.email.sent) > 0
			if sent != tc.wantSent {
				t.Errorf("email sent = %v, want %v", sent, tc.wantSent)
			}
		})
	}
}

func TestPaymentSetupEmailCarriesFallbackLinkOnAPIFailure(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)
	// fakePaymentLinker with no session URL behaves like a failed payment API:
	// every link degrades to the static fallback.

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "payment_setup",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(f.email.sent))
	}
	want := "/payment-setup?lead=" + lead.ID.String()
	if !strings.Contains(f.email.sent[0].html, want) {
		t.Errorf("email html missing fallback link %q", want)
	}
	if atts := f.email.sent[0].attachments; len(atts) != 1 || atts[0].FileName != "payment-setup-qr.png" {
		t.Errorf("attachments = %+v, want the QR code PNG", atts)
	}
}

func TestStripeCustomerIDSavedOnRealSession(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)
	f.dispatcher.payments = &fakePaymentLinker{
		sessionURL: "https://checkout.stripe.com/c/pay/cs_test_123",
		baseURL:    "https://app.peachhaus.com",
		customerID: "cus_123",
	}

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "payment_setup",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if f.leads.stripeIDs[lead.ID] != "cus_123" {
		t.Errorf("stripe customer id = %q, want cus_123", f.leads.stripeIDs[lead.ID])
	}
	if !strings.Contains(f.email.sent[0].html, "checkout.stripe.com") {
		t.Errorf("email html missing session URL")
	}
}

func TestSideEffectsEnqueued(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "qualified", PreviousStage: "discovery_completed",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if n := len(f.outbox.byKind(outbox.KindFollowUp)); n != 1 {
		t.Errorf("follow_up entries = %d, want 1", n)
	}
	if n := len(f.outbox.byKind(outbox.KindCRMSync)); n != 1 {
		t.Errorf("crm_sync entries = %d, want 1", n)
	}
	if n := len(f.outbox.byKind(outbox.KindOpsHandoff)); n != 0 {
		t.Errorf("ops_handoff entries = %d, want 0 for non-handoff stage", n)
	}
}

func TestOpsHandoffEnqueuedOnlyForOpsHandoffStage(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "ops_handoff", PreviousStage: "go_live",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if n := len(f.outbox.byKind(outbox.KindOpsHandoff)); n != 1 {
		t.Errorf("ops_handoff entries = %d, want 1", n)
	}
}

func TestContractSignedSendsW9WithAttachment(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "contract_signed",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	// Direct contract_signed email plus the W9 email.
	if len(f.email.sent) != 2 {
		t.Fatalf("emails sent = %d, want 2", len(f.email.sent))
	}
	w9 := f.email.sent[1]
	if w9.subject != email.W9Subject() {
		t.Errorf("subject = %q, want %q", w9.subject, email.W9Subject())
	}
	if len(w9.attachments) != 1 || w9.attachments[0].FileName != "peachhaus-w9.pdf" {
		t.Errorf("attachments = %+v, want the W9 PDF", w9.attachments)
	}

	delayed := f.outbox.byKind(outbox.KindPaymentSetupEmail)
	if len(delayed) != 1 {
		t.Fatalf("payment_setup_email entries = %d, want 1", len(delayed))
	}
	if want := f.now.Add(time.Hour); !delayed[0].RunAt.Equal(want) {
		t.Errorf("run_at = %v, want %v (one hour later)", delayed[0].RunAt, want)
	}
}

func TestContractSignedW9FallsBackToLink(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)
	f.docs.pdf = nil
	f.docs.err = errors.New("bucket unavailable")

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "contract_signed",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.email.sent) != 2 {
		t.Fatalf("emails sent = %d, want 2", len(f.email.sent))
	}
	w9 := f.email.sent[1]
	if len(w9.attachments) != 0 {
		t.Errorf("attachments = %d, want 0 when storage is down", len(w9.attachments))
	}
	if !strings.Contains(w9.html, "/documents/w9") {
		t.Errorf("w9 email missing hosted document link")
	}
}

func TestAIEnabledRulePersonalizes(t *testing.T) {
	lead := testLead()
	rule := smsRule("qualified", 0)
	rule.AIEnabled = true
	f := newFixture(t, lead, []autorepo.Rule{rule})
	f.dispatcher.personalizer = upperPersonalizer{}

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "qualified",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if len(f.sms.sent) != 1 {
		t.Fatalf("sms sent = %d, want 1", len(f.sms.sent))
	}
	if f.sms.sent[0] != strings.ToUpper("Hi Dana, update about 12 Peachtree Ln, Atlanta GA.") {
		t.Errorf("sms body not personalized: %q", f.sms.sent[0])
	}
}

func TestAIQualifyRuleSavesSummary(t *testing.T) {
	lead := testLead()
	rule := autorepo.Rule{
		ID: uuid.New(), TriggerStage: "discovery_completed", ActionType: "ai_qualify", IsActive: true,
	}
	f := newFixture(t, lead, []autorepo.Rule{rule})
	f.dispatcher.qualifier = &fakeQualifier{summary: "Strong fit for full service."}

	if _, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: lead.ID, NewStage: "discovery_completed",
	}); err != nil {
		t.Fatalf("ProcessStageChange: %v", err)
	}

	if got := f.leads.summaries[lead.ID]; got != "Strong fit for full service." {
		t.Errorf("ai summary = %q", got)
	}
}

func TestUnknownLeadFailsWholeRun(t *testing.T) {
	f := newFixture(t, testLead(), nil)

	_, err := f.dispatcher.ProcessStageChange(context.Background(), StageChange{
		LeadID: uuid.New(), NewStage: "qualified",
	})
	if err == nil {
		t.Fatal("expected error for unknown lead")
	}
}

func TestProcessOutboxRecordRuleSend(t *testing.T) {
	lead := testLead()
	rule := smsRule("proposal_sent", 60)
	f := newFixture(t, lead, []autorepo.Rule{rule})

	payload, _ := json.Marshal(ruleSendPayload{RuleID: rule.ID})
	err := f.dispatcher.ProcessOutboxRecord(context.Background(), outbox.Record{
		ID: uuid.New(), LeadID: lead.ID, Kind: outbox.KindRuleSend, Payload: payload,
	})
	if err != nil {
		t.Fatalf("ProcessOutboxRecord: %v", err)
	}
	if len(f.sms.sent) != 1 {
		t.Errorf("sms sent = %d, want 1", len(f.sms.sent))
	}
}

func TestProcessOutboxRecordSideEffects(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	payload, _ := json.Marshal(stageChangePayload{NewStage: "ops_handoff", PreviousStage: "go_live"})
	for _, kind := range []string{outbox.KindFollowUp, outbox.KindCRMSync, outbox.KindOpsHandoff} {
		err := f.dispatcher.ProcessOutboxRecord(context.Background(), outbox.Record{
			ID: uuid.New(), LeadID: lead.ID, Kind: kind, Payload: payload,
		})
		if err != nil {
			t.Fatalf("ProcessOutboxRecord(%s): %v", kind, err)
		}
	}

	if len(f.notifier.followUps) != 1 || len(f.notifier.crmSyncs) != 1 || len(f.notifier.opsHandoffs) != 1 {
		t.Errorf("notifier calls = %d/%d/%d, want 1/1/1",
			len(f.notifier.followUps), len(f.notifier.crmSyncs), len(f.notifier.opsHandoffs))
	}
	if f.notifier.opsHandoffs[0].NewStage != "ops_handoff" {
		t.Errorf("ops handoff payload stage = %q", f.notifier.opsHandoffs[0].NewStage)
	}
}

func TestProcessOutboxRecordPaymentSetupEmail(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	err := f.dispatcher.ProcessOutboxRecord(context.Background(), outbox.Record{
		ID: uuid.New(), LeadID: lead.ID, Kind: outbox.KindPaymentSetupEmail, Payload: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("ProcessOutboxRecord: %v", err)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(f.email.sent))
	}
	if !strings.Contains(f.email.sent[0].html, "/payment-setup?lead="+lead.ID.String()) {
		t.Errorf("payment setup email missing link")
	}
}

func TestProcessOutboxRecordUnknownKind(t *testing.T) {
	lead := testLead()
	f := newFixture(t, lead, nil)

	err := f.dispatcher.ProcessOutboxRecord(context.Background(), outbox.Record{
		ID: uuid.New(), LeadID: lead.ID, Kind: "mystery", Payload: json.RawMessage(`{}`),
	})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
