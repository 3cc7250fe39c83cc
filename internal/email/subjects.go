package email

const (
	subjectNewLead            = "Welcome to PeachHaus — let's get started"
	subjectContacted          = "Great connecting with you"
	subjectDiscoveryScheduled = "Your discovery call is confirmed"
	subjectDiscoveryCompleted = "Thanks for the great conversation"
	subjectQualified          = "You're a great fit for PeachHaus"
	subjectProposalSent       = "Your PeachHaus proposal is ready"
	subjectContractSent       = "Your PeachHaus agreement is ready to sign"
	subjectContractSigned     = "Welcome aboard — here's what happens next"
	subjectPhotosWalkthrough  = "Let's schedule your photos and walkthrough"
	subjectOnboarding         = "Your onboarding is underway"
	subjectPaymentSetup       = "Set up your payment method"
	subjectGoLive             = "Your property is live"
	subjectOpsHandoff         = "Meet your PeachHaus operations team"

	subjectW9 = "Your W9 form from PeachHaus"

	// SubjectGeneric is used for automation emails on unrecognized stages
	// when the rule carries no subject of its own.
	SubjectGeneric = "Message from PeachHaus"
)
