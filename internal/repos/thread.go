package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

type ThreadRepo interface {
	Create(dbc dbctx.Context, thread *types.ChatThread) (*types.ChatThread, error)
	GetByID(dbc dbctx.Context, id int64) (*types.ChatThread, error)
	// GetOwned returns ErrNotFound both for missing threads and for threads
	// owned by someone else; callers must not learn which.
	GetOwned(dbc dbctx.Context, id int64, userID uuid.UUID) (*types.ChatThread, error)
	NewestOpen(dbc dbctx.Context, userID uuid.UUID) (*types.ChatThread, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error)
	// CompareAndSetMessages persists messages + updated_at only, guarded by
	// the updated_at value the caller read. Returns ErrStale on a lost race.
	CompareAndSetMessages(dbc dbctx.Context, id int64, messages datatypes.JSON, readUpdatedAt, now time.Time) error
}

// ErrStale reports a lost compare-and-set race on a thread write.
var ErrStale = errors.New("thread modified concurrently")

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, log *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: log.With("repo", "ThreadRepo")}
}

func (r *threadRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *threadRepo) Create(dbc dbctx.Context, thread *types.ChatThread) (*types.ChatThread, error) {
	if err := r.handle(dbc).Create(thread).Error; err != nil {
		return nil, err
	}
	return thread, nil
}

func (r *threadRepo) GetByID(dbc dbctx.Context, id int64) (*types.ChatThread, error) {
	var out types.ChatThread
	err := r.handle(dbc).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *threadRepo) GetOwned(dbc dbctx.Context, id int64, userID uuid.UUID) (*types.ChatThread, error) {
	var out types.ChatThread
	err := r.handle(dbc).
		Where("id = ? AND user_id = ? AND archived = ?", id, userID, false).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *threadRepo) NewestOpen(dbc dbctx.Context, userID uuid.UUID) (*types.ChatThread, error) {
	var out types.ChatThread
	err := r.handle(dbc).
		Where("user_id = ? AND archived = ?", userID, false).
		Order("updated_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *threadRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var out []*types.ChatThread
	if err := r.handle(dbc).
		Where("user_id = ? AND archived = ?", userID, false).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *threadRepo) CompareAndSetMessages(dbc dbctx.Context, id int64, messages datatypes.JSON, readUpdatedAt, now time.Time) error {
	res := r.handle(dbc).
		Model(&types.ChatThread{}).
		Where("id = ? AND updated_at = ?", id, readUpdatedAt).
		Updates(map[string]interface{}{
			"messages":   messages,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}
