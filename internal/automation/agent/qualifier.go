// Package agent hosts the AI lead qualifier used by ai_qualify automation
// rules. It runs a small ADK agent over the Moonshot model that reads the
// lead's details and recent activity and writes back a qualification summary.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"github.com/google/uuid"

	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/platform/ai/moonshot"
)

// ActivityReader loads the recent history the qualifier reasons over.
type ActivityReader interface {
	ListCommunications(ctx context.Context, leadID uuid.UUID, limit int) ([]repository.Communication, error)
	LatestDiscoveryCall(ctx context.Context, leadID uuid.UUID) (*repository.DiscoveryCall, error)
}

// Qualifier scores and summarizes leads with an LLM.
type Qualifier struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	activity       ActivityReader
	deps           *qualifierToolDeps
	runMu          sync.Mutex
}

type qualifierToolDeps struct {
	mu      sync.Mutex
	summary string
	saved   bool
}

func (d *qualifierToolDeps) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.summary = ""
	d.saved = false
}

func (d *qualifierToolDeps) save(summary string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.summary = summary
	d.saved = true
}

func (d *qualifierToolDeps) result() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary, d.saved
}

// NewQualifier builds the qualification agent around the Moonshot model.
func NewQualifier(apiKey string, activity ActivityReader) (*Qualifier, error) {
	kimi := moonshot.NewModel(moonshot.Config{APIKey: apiKey})

	q := &Qualifier{
		appName:        "lead_qualifier",
		sessionService: session.InMemoryService(),
		activity:       activity,
		deps:           &qualifierToolDeps{},
	}

	saveTool, err := buildSaveSummaryTool(q.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build qualifier tools: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "LeadQualifier",
		Model:       kimi,
		Description: "Reads a property-management lead's profile and activity and produces a short qualification summary.",
		Instruction: qualifierSystemPrompt,
		Tools:       []tool.Tool{saveTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qualifier agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        q.appName,
		Agent:          adkAgent,
		SessionService: q.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qualifier runner: %w", err)
	}

	q.agent = adkAgent
	q.runner = r
	return q, nil
}

const qualifierSystemPrompt = `You are a lead qualification assistant for PeachHaus, a short-term-rental property management company.

Read the lead profile and activity provided, then call SaveSummary exactly once with a concise qualification summary covering:
- Fit: does the property and owner situation suit full-service management or cohosting?
- Intent: how engaged is the lead based on stage and communications?
- Next step: one concrete recommended action for the sales team.

Keep the summary under 120 words. Do not invent facts not present in the input.`

type saveSummaryInput struct {
	Summary string `json:"summary"` // The qualification summary text
}

type saveSummaryOutput struct {
	Success bool `json:"success"`
}

func buildSaveSummaryTool(deps *qualifierToolDeps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        "SaveSummary",
		Description: "Saves the qualification summary for the lead. Call exactly once with the final summary.",
	}, func(ctx tool.Context, input saveSummaryInput) (saveSummaryOutput, error) {
		summary := strings.TrimSpace(input.Summary)
		if summary == "" {
			return saveSummaryOutput{Success: false}, fmt.Errorf("summary is empty")
		}
		deps.save(summary)
		return saveSummaryOutput{Success: true}, nil
	})
}

// Qualify runs the agent for one lead and returns the saved summary.
func (q *Qualifier) Qualify(ctx context.Context, lead repository.Lead) (string, error) {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	q.deps.reset()

	prompt, err := q.buildPrompt(ctx, lead)
	if err != nil {
		return "", err
	}

	sessionID := uuid.New().String()
	userID := lead.ID.String()

	outputText, err := q.executeAgentRun(ctx, userID, sessionID, prompt)
	if err != nil {
		return "", err
	}

	if summary, ok := q.deps.result(); ok {
		return summary, nil
	}

	// Model answered without calling the tool; fall back to its raw output.
	outputText = strings.TrimSpace(outputText)
	if outputText == "" {
		return "", fmt.Errorf("qualifier produced no summary")
	}
	return outputText, nil
}

func (q *Qualifier) buildPrompt(ctx context.Context, lead repository.Lead) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead profile:\n")
	fmt.Fprintf(&b, "- Name: %s %s\n", lead.FirstName, lead.LastName)
	fmt.Fprintf(&b, "- Property: %s\n", lead.PropertyAddress)
	fmt.Fprintf(&b, "- Service type: %s\n", lead.ServiceType)
	fmt.Fprintf(&b, "- Pipeline stage: %s\n", lead.Stage)
	if lead.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", lead.Notes)
	}

	if dc, err := q.activity.LatestDiscoveryCall(ctx, lead.ID); err == nil && dc != nil {
		fmt.Fprintf(&b, "\nLatest discovery call:\n- Current situation: %s\n", dc.CurrentSituation)
		if dc.Notes != "" {
			fmt.Fprintf(&b, "- Notes: %s\n", dc.Notes)
		}
	}

	comms, err := q.activity.ListCommunications(ctx, lead.ID, 10)
	if err != nil {
		return "", fmt.Errorf("load communications: %w", err)
	}
	if len(comms) > 0 {
		fmt.Fprintf(&b, "\nRecent communications (newest first):\n")
		for _, c := range comms {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", c.Channel, c.Status, truncate(c.Body, 200))
		}
	}

	b.WriteString("\nProduce the qualification summary now and save it with SaveSummary.")
	return b.String(), nil
}

// executeAgentRun creates an ephemeral session, runs the agent, and returns
// the concatenated text output.
func (q *Qualifier) executeAgentRun(ctx context.Context, userID, sessionID, promptText string) (string, error) {
	_, err := q.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   q.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		_ = q.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   q.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: promptText}},
	}

	runConfig := agent.RunConfig{
		StreamingMode: agent.StreamingModeNone,
	}

	var outputText string
	for event, err := range q.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("qualifier run failed: %w", err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				outputText += part.Text
			}
		}
	}

	return outputText, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
