package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

type EncounterRepo interface {
	Create(dbc dbctx.Context, encounter *types.Encounter) (*types.Encounter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Encounter, error)
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID, status string, limit int) ([]*types.Encounter, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
}

type encounterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEncounterRepo(db *gorm.DB, log *logger.Logger) EncounterRepo {
	return &encounterRepo{db: db, log: log.With("repo", "EncounterRepo")}
}

func (r *encounterRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *encounterRepo) Create(dbc dbctx.Context, encounter *types.Encounter) (*types.Encounter, error) {
	if err := r.handle(dbc).Create(encounter).Error; err != nil {
		return nil, err
	}
	return encounter, nil
}

func (r *encounterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Encounter, error) {
	var out types.Encounter
	err := r.handle(dbc).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *encounterRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID, status string, limit int) ([]*types.Encounter, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	q := r.handle(dbc).Where("org_id = ?", orgID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.Encounter
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *encounterRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	res := r.handle(dbc).
		Model(&types.Encounter{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerr.ErrNotFound
	}
	return nil
}
