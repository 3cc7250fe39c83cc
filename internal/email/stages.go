package email

// SuppressionContext carries the lead-side data a stage may consult to decide
// whether its direct email should be skipped.
type SuppressionContext struct {
	HasDiscoveryCall bool
	CurrentSituation string
}

// StageEmail describes the direct email for one pipeline stage: a subject, a
// renderer, and an optional suppression rule evaluated before sending.
type StageEmail struct {
	Subject        string
	Render         func(Fields) (string, error)
	ShouldSuppress func(SuppressionContext) bool // nil means never suppressed
}

// Owners who already self-manage a short-term rental have listing photos, so
// the photos/walkthrough email would be noise for them.
func suppressForSelfManaging(sc SuppressionContext) bool {
	return sc.HasDiscoveryCall && sc.CurrentSituation == "self_managing"
}

func stageRenderer(file string, subject string) func(Fields) (string, error) {
	return func(f Fields) (string, error) {
		return renderEmailTemplate(file, stageTemplateData{Fields: f, Title: subject})
	}
}

var stageEmails = map[string]StageEmail{
	"new_lead": {
		Subject: subjectNewLead,
		Render:  stageRenderer("new_lead.html", subjectNewLead),
	},
	"contacted": {
		Subject: subjectContacted,
		Render:  stageRenderer("contacted.html", subjectContacted),
	},
	"discovery_scheduled": {
		Subject: subjectDiscoveryScheduled,
		Render:  stageRenderer("discovery_scheduled.html", subjectDiscoveryScheduled),
	},
	"discovery_completed": {
		Subject: subjectDiscoveryCompleted,
		Render:  stageRenderer("discovery_completed.html", subjectDiscoveryCompleted),
	},
	"qualified": {
		Subject: subjectQualified,
		Render:  stageRenderer("qualified.html", subjectQualified),
	},
	"proposal_sent": {
		Subject: subjectProposalSent,
		Render:  stageRenderer("proposal_sent.html", subjectProposalSent),
	},
	"contract_sent": {
		Subject: subjectContractSent,
		Render:  stageRenderer("contract_sent.html", subjectContractSent),
	},
	"contract_signed": {
		Subject: subjectContractSigned,
		Render:  stageRenderer("contract_signed.html", subjectContractSigned),
	},
	"photos_walkthrough": {
		Subject:        subjectPhotosWalkthrough,
		Render:         stageRenderer("photos_walkthrough.html", subjectPhotosWalkthrough),
		ShouldSuppress: suppressForSelfManaging,
	},
	"onboarding": {
		Subject: subjectOnboarding,
		Render:  stageRenderer("onboarding.html", subjectOnboarding),
	},
	"payment_setup": {
		Subject: subjectPaymentSetup,
		Render:  stageRenderer("payment_setup.html", subjectPaymentSetup),
	},
	"go_live": {
		Subject: subjectGoLive,
		Render:  stageRenderer("go_live.html", subjectGoLive),
	},
	"ops_handoff": {
		Subject: subjectOpsHandoff,
		Render:  stageRenderer("ops_handoff.html", subjectOpsHandoff),
	},
}

// ForStage returns the direct email definition for a pipeline stage.
// Unrecognized stages return false; callers fall back to the generic wrapper.
func ForStage(stage string) (StageEmail, bool) {
	se, ok := stageEmails[stage]
	return se, ok
}

// KnownStages returns the stage names that have a dedicated email.
func KnownStages() []string {
	names := make([]string, 0, len(stageEmails))
	for name := range stageEmails {
		names = append(names, name)
	}
	return names
}
