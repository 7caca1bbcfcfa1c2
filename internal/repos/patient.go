package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

type PatientRepo interface {
	FindByPhone(dbc dbctx.Context, orgID uuid.UUID, phone string) (*types.Patient, error)
	FindByEmail(dbc dbctx.Context, orgID uuid.UUID, email string) (*types.Patient, error)
	Create(dbc dbctx.Context, patient *types.Patient) (*types.Patient, error)
	Save(dbc dbctx.Context, patient *types.Patient) error
}

type patientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPatientRepo(db *gorm.DB, log *logger.Logger) PatientRepo {
	return &patientRepo{db: db, log: log.With("repo", "PatientRepo")}
}

func (r *patientRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *patientRepo) FindByPhone(dbc dbctx.Context, orgID uuid.UUID, phone string) (*types.Patient, error) {
	if phone == "" {
		return nil, pkgerr.ErrNotFound
	}
	var out types.Patient
	err := r.handle(dbc).Where("org_id = ? AND phone = ?", orgID, phone).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *patientRepo) FindByEmail(dbc dbctx.Context, orgID uuid.UUID, email string) (*types.Patient, error) {
	if email == "" {
		return nil, pkgerr.ErrNotFound
	}
	var out types.Patient
	err := r.handle(dbc).Where("org_id = ? AND email = ?", orgID, email).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *patientRepo) Create(dbc dbctx.Context, patient *types.Patient) (*types.Patient, error) {
	if err := r.handle(dbc).Create(patient).Error; err != nil {
		return nil, err
	}
	return patient, nil
}

func (r *patientRepo) Save(dbc dbctx.Context, patient *types.Patient) error {
	return r.handle(dbc).Save(patient).Error
}
