// Package leads wires the lead management bounded context.
package leads

import (
	"peachhaus_crm_backend/internal/events"
	apphttp "peachhaus_crm_backend/internal/http"
	"peachhaus_crm_backend/internal/leads/handler"
	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/internal/leads/service"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the leads repository, service and HTTP handler.
type Module struct {
	repo    *repository.Repository
	svc     *service.Service
	handler *handler.Handler
}

var _ apphttp.Module = (*Module)(nil)

func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	return &Module{
		repo:    repo,
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

func (m *Module) Name() string { return "leads" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Repository exposes the lead repository for cross-module wiring.
func (m *Module) Repository() *repository.Repository { return m.repo }

// Service exposes the lead service for cross-module wiring.
func (m *Module) Service() *service.Service { return m.svc }
