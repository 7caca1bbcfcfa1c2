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

type ProfileRepo interface {
	GetByUser(dbc dbctx.Context, userID uuid.UUID) (*types.InteractionProfile, error)
	GetBySessionKey(dbc dbctx.Context, sessionKey string) (*types.InteractionProfile, error)
	Create(dbc dbctx.Context, profile *types.InteractionProfile) (*types.InteractionProfile, error)
	Save(dbc dbctx.Context, profile *types.InteractionProfile) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, log *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: log.With("repo", "ProfileRepo")}
}

func (r *profileRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *profileRepo) GetByUser(dbc dbctx.Context, userID uuid.UUID) (*types.InteractionProfile, error) {
	var out types.InteractionProfile
	err := r.handle(dbc).Where("user_id = ?", userID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *profileRepo) GetBySessionKey(dbc dbctx.Context, sessionKey string) (*types.InteractionProfile, error) {
	var out types.InteractionProfile
	err := r.handle(dbc).Where("session_key = ?", sessionKey).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *profileRepo) Create(dbc dbctx.Context, profile *types.InteractionProfile) (*types.InteractionProfile, error) {
	if err := r.handle(dbc).Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *profileRepo) Save(dbc dbctx.Context, profile *types.InteractionProfile) error {
	// Last write wins; the smoothing factor makes concurrent updates benign.
	return r.handle(dbc).Save(profile).Error
}
