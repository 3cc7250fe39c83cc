// Package service implements lead management operations.
package service

import (
	"context"
	"errors"

	"peachhaus_crm_backend/internal/events"
	"peachhaus_crm_backend/internal/leads/domain"
	"peachhaus_crm_backend/internal/leads/repository"
	"peachhaus_crm_backend/platform/apperr"
	"peachhaus_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo *repository.Repository
	bus  events.Bus
	log  *logger.Logger
}

func New(repo *repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

type CreateLeadInput struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	PropertyAddress string
	ServiceType     string
	Notes           string
	Source          string
}

func (s *Service) Create(ctx context.Context, in CreateLeadInput) (repository.Lead, error) {
	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Phone:           in.Phone,
		PropertyAddress: in.PropertyAddress,
		ServiceType:     in.ServiceType,
		Notes:           in.Notes,
	})
	if err != nil {
		return repository.Lead{}, apperr.Wrap(apperr.KindInternal, "failed to create lead", err)
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		Email:       lead.Email,
		Phone:       lead.Phone,
		ServiceType: lead.ServiceType,
		Source:      in.Source,
	})

	return lead, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return repository.Lead{}, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}
	return lead, nil
}

// ChangeStage moves a lead to a new pipeline stage and publishes the
// stage-change event the automation module listens for. The stage write and
// the downstream automation run are not one transaction: a crash after the
// write loses the automations for that transition.
func (s *Service) ChangeStage(ctx context.Context, leadID uuid.UUID, newStage, triggerSource string) (previousStage string, err error) {
	if !domain.IsKnownStage(newStage) {
		return "", apperr.Validation("unknown pipeline stage: " + newStage)
	}

	previousStage, err = s.repo.UpdateStage(ctx, leadID, newStage)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.NotFound("lead not found")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to update stage", err)
	}

	s.log.StageChange(leadID.String(), previousStage, newStage, triggerSource)

	s.bus.Publish(ctx, events.PipelineStageChanged{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        leadID,
		PreviousStage: previousStage,
		NewStage:      newStage,
		AutoTriggered: false,
		TriggerSource: triggerSource,
	})

	return previousStage, nil
}

func (s *Service) Timeline(ctx context.Context, leadID uuid.UUID, limit int) ([]repository.TimelineEvent, error) {
	items, err := s.repo.ListTimeline(ctx, leadID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load timeline", err)
	}
	return items, nil
}

func (s *Service) Communications(ctx context.Context, leadID uuid.UUID, limit int) ([]repository.Communication, error) {
	items, err := s.repo.ListCommunications(ctx, leadID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load communications", err)
	}
	return items, nil
}
