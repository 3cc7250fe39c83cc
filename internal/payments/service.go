package payments

import (
	"context"

	"peachhaus_crm_backend/platform/config"
	"peachhaus_crm_backend/platform/logger"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// ServiceTypeFullService leads pay by bank account only; cohosting leads may
// also use a card.
const (
	ServiceTypeFullService = "full_service"
	ServiceTypeCohosting   = "cohosting"
)

type sessionAPI interface {
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateSetupSession(ctx context.Context, customerID string, paymentMethods []string, successURL, cancelURL string) (string, error)
}

// SetupLinkRequest identifies the lead a payment-setup session is for.
type SetupLinkRequest struct {
	LeadID      uuid.UUID
	Email       string
	Name        string
	ServiceType string
}

// SetupLinkResult carries the hosted URL plus the customer ID when a real
// session was created. Fallback links have no customer ID.
type SetupLinkResult struct {
	URL              string
	StripeCustomerID string
}

// Service creates payment-setup links for leads. When session creation fails
// for any reason, it degrades to a static in-app link so the email still
// sends. The dead link is a known product tradeoff; the error is logged but
// not retried.
type Service struct {
	api     sessionAPI
	baseURL string
	enabled bool
	log     *logger.Logger
}

// NewService builds the payment service. Without a Stripe key every link is
// the static fallback.
func NewService(cfg config.PaymentsConfig, log *logger.Logger) *Service {
	svc := &Service{
		baseURL: cfg.GetAppBaseURL(),
		enabled: cfg.IsPaymentsEnabled(),
		log:     log,
	}
	if svc.enabled {
		svc.api = NewStripeClient(cfg.GetStripeSecretKey())
	}
	return svc
}

// SetupLink returns a hosted payment-setup URL for the lead.
func (s *Service) SetupLink(ctx context.Context, req SetupLinkRequest) SetupLinkResult {
	fallback := SetupLinkResult{URL: s.FallbackURL(req.LeadID)}

	if !s.enabled {
		return fallback
	}

	customerID, err := s.api.FindOrCreateCustomer(ctx, req.Email, req.Name)
	if err != nil {
		s.log.Error("stripe customer lookup failed", "lead_id", req.LeadID, "error", err)
		return fallback
	}

	sessionURL, err := s.api.CreateSetupSession(ctx, customerID,
		paymentMethodsFor(req.ServiceType),
		s.baseURL+"/payment-setup/complete?lead="+req.LeadID.String(),
		s.baseURL+"/payment-setup?lead="+req.LeadID.String(),
	)
	if err != nil {
		s.log.Error("stripe setup session failed", "lead_id", req.LeadID, "error", err)
		return fallback
	}

	return SetupLinkResult{URL: sessionURL, StripeCustomerID: customerID}
}

// FallbackURL is the static in-app payment page used when Stripe is
// unavailable.
func (s *Service) FallbackURL(leadID uuid.UUID) string {
	return s.baseURL + "/payment-setup?lead=" + leadID.String()
}

func paymentMethodsFor(serviceType string) []string {
	if serviceType == ServiceTypeCohosting {
		return []string{"us_bank_account", "card"}
	}
	return []string{"us_bank_account"}
}

// LinkQRCode renders the setup link as a PNG QR code for email attachment.
func LinkQRCode(link string) ([]byte, error) {
	return qrcode.Encode(link, qrcode.Medium, 256)
}
