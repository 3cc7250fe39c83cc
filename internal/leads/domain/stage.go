// Package domain holds the core lead types shared across modules.
package domain

// Pipeline stages a lead moves through, from first contact to steady-state
// operations. Stage strings are stored as-is; unknown values are tolerated
// downstream (automations still run, direct emails fall back to the generic
// wrapper).
const (
	StageNewLead            = "new_lead"
	StageContacted          = "contacted"
	StageDiscoveryScheduled = "discovery_scheduled"
	StageDiscoveryCompleted = "discovery_completed"
	StageQualified          = "qualified"
	StageProposalSent       = "proposal_sent"
	StageContractSent       = "contract_sent"
	StageContractSigned     = "contract_signed"
	StagePhotosWalkthrough  = "photos_walkthrough"
	StageOnboarding         = "onboarding"
	StagePaymentSetup       = "payment_setup"
	StageGoLive             = "go_live"
	StageOpsHandoff         = "ops_handoff"
)

var pipelineOrder = []string{
	StageNewLead,
	StageContacted,
	StageDiscoveryScheduled,
	StageDiscoveryCompleted,
	StageQualified,
	StageProposalSent,
	StageContractSent,
	StageContractSigned,
	StagePhotosWalkthrough,
	StageOnboarding,
	StagePaymentSetup,
	StageGoLive,
	StageOpsHandoff,
}

// AllStages returns the pipeline stages in their canonical order.
func AllStages() []string {
	return append([]string(nil), pipelineOrder...)
}

// IsKnownStage reports whether the stage is one of the canonical pipeline
// stages.
func IsKnownStage(stage string) bool {
	for _, s := range pipelineOrder {
		if s == stage {
			return true
		}
	}
	return false
}
