package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"peachhaus_crm_backend/internal/automation/outbox"
	autorepo "peachhaus_crm_backend/internal/automation/repository"
	"peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/internal/email"
	leadrepo "peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/internal/messaging"
	"peachhaus_crm_backend/internal/notify"
	"peachhaus_crm_backend/internal/payments"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubLeadStore struct {
	lead leadrepo.Lead
}

func (s *stubLeadStore) GetByID(_ context.Context, id uuid.UUID) (leadrepo.Lead, error) {
	if id != s.lead.ID {
		return leadrepo.Lead{}, leadrepo.ErrNotFound
	}
	return s.lead, nil
}

func (s *stubLeadStore) LatestDiscoveryCall(context.Context, uuid.UUID) (*leadrepo.DiscoveryCall, error) {
	return nil, nil
}

func (s *stubLeadStore) SetStripeCustomerID(context.Context, uuid.UUID, string) error { return nil }
func (s *stubLeadStore) SetAISummary(context.Context, uuid.UUID, string) error        { return nil }
func (s *stubLeadStore) InsertTimelineEvent(context.Context, leadrepo.InsertTimelineParams) error {
	return nil
}
func (s *stubLeadStore) InsertCommunication(context.Context, leadrepo.InsertCommunicationParams) error {
	return nil
}

type stubRuleStore struct {
	rules []autorepo.Rule
}

func (s *stubRuleStore) ListActiveByStage(_ context.Context, stage string) ([]autorepo.Rule, error) {
	var out []autorepo.Rule
	for _, r := range s.rules {
		if r.TriggerStage == stage {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRuleStore) GetByID(context.Context, uuid.UUID) (autorepo.Rule, error) {
	return autorepo.Rule{}, autorepo.ErrNotFound
}

type stubOutbox struct{}

func (stubOutbox) Insert(context.Context, outbox.InsertParams) (uuid.UUID, error) {
	return uuid.New(), nil
}

type stubEmail struct{}

func (stubEmail) Send(context.Context, string, string, string, ...email.Attachment) error {
	return nil
}

type stubSMS struct {
	sent int
}

func (s *stubSMS) Send(context.Context, string, string) (messaging.Receipt, error) {
	s.sent++
	return messaging.Receipt{Provider: "ghl", MessageID: "msg-1"}, nil
}

type stubPayments struct{}

func (stubPayments) SetupLink(_ context.Context, req payments.SetupLinkRequest) payments.SetupLinkResult {
	return payments.SetupLinkResult{URL: "https://app.peachhaus.com/payment-setup?lead=" + req.LeadID.String()}
}

func (stubPayments) FallbackURL(leadID uuid.UUID) string {
	return "https://app.peachhaus.com/payment-setup?lead=" + leadID.String()
}

type stubNotifier struct{}

func (stubNotifier) ScheduleFollowUp(context.Context, notify.StagePayload) error  { return nil }
func (stubNotifier) SyncCRM(context.Context, notify.StagePayload) error           { return nil }
func (stubNotifier) TriggerOpsHandoff(context.Context, notify.StagePayload) error { return nil }

type stubDocs struct{}

func (stubDocs) FetchW9(context.Context) ([]byte, error) { return []byte("%PDF"), nil }

func newTestEngine(t *testing.T, lead leadrepo.Lead, rules []autorepo.Rule) (*gin.Engine, *stubSMS) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sms := &stubSMS{}
	dispatcher := service.NewDispatcher(service.Deps{
		Leads:     &stubLeadStore{lead: lead},
		Rules:     &stubRuleStore{rules: rules},
		Outbox:    stubOutbox{},
		Email:     stubEmail{},
		SMS:       sms,
		Payments:  stubPayments{},
		Notifier:  stubNotifier{},
		Documents: stubDocs{},
		BaseURL:   "https://app.peachhaus.com",
		Logger:    logger.New("development"),
	})

	h := New(dispatcher, &autorepo.Repository{}, validator.New())
	engine := gin.New()
	h.RegisterTrigger(engine.Group("/api/v1/automation"))
	return engine, sms
}

func postStageChange(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/process-stage-change", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestProcessStageChangeEndpoint(t *testing.T) {
	lead := leadrepo.Lead{ID: uuid.New(), FirstName: "Dana", Email: "dana@example.com", Phone: "+14045551234"}
	rule := autorepo.Rule{
		ID: uuid.New(), TriggerStage: "qualified", ActionType: "sms",
		TemplateContent: "Hi {{first_name}}", IsActive: true,
	}
	engine, sms := newTestEngine(t, lead, []autorepo.Rule{rule})

	rec := postStageChange(engine, `{"leadId":"`+lead.ID.String()+`","newStage":"qualified","previousStage":"discovery_completed"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success              bool `json:"success"`
		AutomationsProcessed int  `json:"automationsProcessed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.AutomationsProcessed != 1 {
		t.Errorf("response = %+v, want success with 1 automation", resp)
	}
	if sms.sent != 1 {
		t.Errorf("sms sent = %d, want 1", sms.sent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestProcessStageChangeEndpointErrors(t *testing.T) {
	lead := leadrepo.Lead{ID: uuid.New(), Email: "dana@example.com"}
	engine, _ := newTestEngine(t, lead, nil)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"leadId":`},
		{"missing lead id", `{"newStage":"qualified"}`},
		{"missing stage", `{"leadId":"` + lead.ID.String() + `"}`},
		{"lead id not a uuid", `{"leadId":"42","newStage":"qualified"}`},
		{"unknown lead", `{"leadId":"` + uuid.NewString() + `","newStage":"qualified"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postStageChange(engine, tc.body)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if _, ok := resp["error"]; !ok {
				t.Errorf("response missing error field: %s", rec.Body.String())
			}
		})
	}
}

func TestProcessStageChangePreflight(t *testing.T) {
	engine, _ := newTestEngine(t, leadrepo.Lead{ID: uuid.New()}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/automation/process-stage-change", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", rec.Body.String())
	}
}
