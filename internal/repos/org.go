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

type OrgRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error)
	IsMember(dbc dbctx.Context, orgID, userID uuid.UUID) (bool, error)
	MemberOrg(dbc dbctx.Context, userID uuid.UUID) (*types.OrgMember, error)
}

type orgRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrgRepo(db *gorm.DB, log *logger.Logger) OrgRepo {
	return &orgRepo{db: db, log: log.With("repo", "OrgRepo")}
}

func (r *orgRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *orgRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	var out types.Organization
	err := r.handle(dbc).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orgRepo) IsMember(dbc dbctx.Context, orgID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := r.handle(dbc).
		Model(&types.OrgMember{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MemberOrg returns the user's first membership; a multi-org user must scope
// requests with a kiosk token instead.
func (r *orgRepo) MemberOrg(dbc dbctx.Context, userID uuid.UUID) (*types.OrgMember, error) {
	var out types.OrgMember
	err := r.handle(dbc).Where("user_id = ?", userID).Order("created_at ASC").First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
