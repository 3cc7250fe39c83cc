package email

import (
	"strings"
	"testing"
)

func TestForStageSubjects(t *testing.T) {
	cases := []struct {
		stage   string
		subject string
	}{
		{"new_lead", "Welcome to PeachHaus — let's get started"},
		{"contacted", "Great connecting with you"},
		{"discovery_scheduled", "Your discovery call is confirmed"},
		{"discovery_completed", "Thanks for the great conversation"},
		{"qualified", "You're a great fit for PeachHaus"},
		{"proposal_sent", "Your PeachHaus proposal is ready"},
		{"contract_sent", "Your PeachHaus agreement is ready to sign"},
		{"contract_signed", "Welcome aboard — here's what happens next"},
		{"photos_walkthrough", "Let's schedule your photos and walkthrough"},
		{"onboarding", "Your onboarding is underway"},
		{"payment_setup", "Set up your payment method"},
		{"go_live", "Your property is live"},
		{"ops_handoff", "Meet your PeachHaus operations team"},
	}

	for _, tc := range cases {
		t.Run(tc.stage, func(t *testing.T) {
			se, ok := ForStage(tc.stage)
			if !ok {
				t.Fatalf("expected stage %q to have a direct email", tc.stage)
			}
			if se.Subject != tc.subject {
				t.Fatalf("subject = %q, want %q", se.Subject, tc.subject)
			}
			html, err := se.Render(Fields{FirstName: "Ana", PropertyAddress: "12 Peachtree St"})
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(html, "PeachHaus") {
				t.Fatalf("rendered email missing brand wrapper:\n%s", html)
			}
		})
	}
}

func TestForStageUnrecognized(t *testing.T) {
	if _, ok := ForStage("some_future_stage"); ok {
		t.Fatal("unrecognized stage should not resolve to a direct email")
	}
}

func TestRenderGenericWrapsRawText(t *testing.T) {
	html, err := RenderGeneric("Hi there, quick check-in from the team.")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Hi there, quick check-in from the team.") {
		t.Fatal("generic wrapper should contain the raw automation text")
	}
	if !strings.Contains(html, "PeachHaus") {
		t.Fatal("generic wrapper should carry the brand shell")
	}
}

func TestGenericSubjectFallback(t *testing.T) {
	if SubjectGeneric != "Message from PeachHaus" {
		t.Fatalf("generic subject = %q", SubjectGeneric)
	}
}

func TestPhotosWalkthroughSuppression(t *testing.T) {
	se, ok := ForStage("photos_walkthrough")
	if !ok {
		t.Fatal("photos_walkthrough should have a direct email")
	}

	cases := []struct {
		name     string
		ctx      SuppressionContext
		suppress bool
	}{
		{"self managing owner", SuppressionContext{HasDiscoveryCall: true, CurrentSituation: "self_managing"}, true},
		{"new property owner", SuppressionContext{HasDiscoveryCall: true, CurrentSituation: "new_property"}, false},
		{"no discovery call on record", SuppressionContext{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := se.ShouldSuppress(tc.ctx); got != tc.suppress {
				t.Fatalf("ShouldSuppress(%+v) = %v, want %v", tc.ctx, got, tc.suppress)
			}
		})
	}
}

func TestOtherStagesNeverSuppress(t *testing.T) {
	for _, stage := range KnownStages() {
		if stage == "photos_walkthrough" {
			continue
		}
		se, _ := ForStage(stage)
		if se.ShouldSuppress != nil {
			t.Fatalf("stage %q should have no suppression rule", stage)
		}
	}
}

func TestPaymentSetupEmailCarriesLink(t *testing.T) {
	se, _ := ForStage("payment_setup")
	html, err := se.Render(Fields{FirstName: "Ana", PaymentURL: "https://app.peachhaus.com/payment-setup?lead=abc"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "https://app.peachhaus.com/payment-setup?lead=abc") {
		t.Fatal("payment setup email should embed the payment URL")
	}
}

func TestW9EmailFallsBackToLink(t *testing.T) {
	html, err := RenderW9("Ana", "https://app.peachhaus.com/docs/w9", false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "https://app.peachhaus.com/docs/w9") {
		t.Fatal("w9 email without attachment should link to the hosted document")
	}

	attached, err := RenderW9("Ana", "", true)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(attached, "attached to this email") {
		t.Fatal("w9 email with attachment should mention the attachment")
	}
}
