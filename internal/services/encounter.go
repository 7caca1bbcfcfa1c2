package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
)

// EncounterService is the front-desk surface over triage encounters.
type EncounterService interface {
	// List returns the acting user's organization queue, optionally
	// filtered by status.
	List(ctx context.Context, userID uuid.UUID, status string) ([]*types.Encounter, error)
	// Move advances an encounter's status. Moves must follow the listed
	// order unless override is set.
	Move(ctx context.Context, userID uuid.UUID, encounterID uuid.UUID, status string, override bool) (*types.Encounter, error)
	// MemberOrg resolves the organization the user belongs to.
	MemberOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type encounterService struct {
	log        *logger.Logger
	orgs       repos.OrgRepo
	encounters repos.EncounterRepo
}

func NewEncounterService(log *logger.Logger, orgs repos.OrgRepo, encounters repos.EncounterRepo) EncounterService {
	return &encounterService{
		log:        log.With("service", "EncounterService"),
		orgs:       orgs,
		encounters: encounters,
	}
}

func (s *encounterService) MemberOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	member, err := s.orgs.MemberOrg(dbctx.Context{Ctx: ctx}, userID)
	if err == pkgerr.ErrNotFound {
		return uuid.Nil, pkgerr.E(pkgerr.KindForbidden, "not an organization member", err)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return member.OrgID, nil
}

func (s *encounterService) List(ctx context.Context, userID uuid.UUID, status string) ([]*types.Encounter, error) {
	if status != "" && !types.ValidEncounterStatus(status) {
		return nil, pkgerr.E(pkgerr.KindValidation, "unknown status", nil)
	}
	orgID, err := s.MemberOrg(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.encounters.ListByOrg(dbctx.Context{Ctx: ctx}, orgID, status, 0)
}

func (s *encounterService) Move(ctx context.Context, userID uuid.UUID, encounterID uuid.UUID, status string, override bool) (*types.Encounter, error) {
	if !types.ValidEncounterStatus(status) {
		return nil, pkgerr.E(pkgerr.KindValidation, "unknown status", nil)
	}

	dbc := dbctx.Context{Ctx: ctx}
	orgID, err := s.MemberOrg(ctx, userID)
	if err != nil {
		return nil, err
	}

	encounter, err := s.encounters.GetByID(dbc, encounterID)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindNotFound, "encounter not found", err)
	}
	if err != nil {
		return nil, err
	}
	if encounter.OrgID != orgID {
		// Cross-org probes learn nothing beyond "not found".
		return nil, pkgerr.E(pkgerr.KindNotFound, "encounter not found", nil)
	}

	if !override && !types.CanMoveEncounter(encounter.Status, status) {
		return nil, pkgerr.E(pkgerr.KindValidation, "status cannot move backwards without override", nil)
	}

	if err := s.encounters.UpdateStatus(dbc, encounterID, status); err != nil {
		return nil, err
	}
	encounter.Status = status
	return encounter, nil
}
