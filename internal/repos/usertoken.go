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

type UserTokenRepo interface {
	// Replace swaps the user's single active token for a new one.
	Replace(dbc dbctx.Context, userID uuid.UUID, token string, expiresAt time.Time) (*types.UserToken, error)
	GetByToken(dbc dbctx.Context, token string) (*types.UserToken, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
}

type userTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, log *logger.Logger) UserTokenRepo {
	return &userTokenRepo{db: db, log: log.With("repo", "UserTokenRepo")}
}

func (r *userTokenRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *userTokenRepo) Replace(dbc dbctx.Context, userID uuid.UUID, token string, expiresAt time.Time) (*types.UserToken, error) {
	h := r.handle(dbc)
	if err := h.Where("user_id = ?", userID).Delete(&types.UserToken{}).Error; err != nil {
		return nil, err
	}
	row := &types.UserToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := h.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *userTokenRepo) GetByToken(dbc dbctx.Context, token string) (*types.UserToken, error) {
	var out types.UserToken
	err := r.handle(dbc).Where("token = ?", token).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userTokenRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	return r.handle(dbc).Where("user_id = ?", userID).Delete(&types.UserToken{}).Error
}
