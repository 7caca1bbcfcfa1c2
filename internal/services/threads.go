package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
)

const (
	threadMessageCap = 200
	titleMaxLen      = 40
	dedupWindow      = 2 * time.Second
	defaultTitle     = "New Conversation"
)

// TurnRecords carries everything one completed turn writes into a thread.
// SystemPrompt and ModeHeader replace whatever leading system pair the
// stored thread had; the rest is appended.
type TurnRecords struct {
	SystemPrompt     string
	ModeHeader       string
	FileContext      string
	UserMessage      string
	AssistantMessage string
	Now              time.Time
}

type ThreadService interface {
	// Resolve picks the thread a turn lands in: the explicitly requested
	// one, else the session's sticky thread, else a fresh row. The bool
	// reports whether a new thread was created.
	Resolve(dbc dbctx.Context, userID uuid.UUID, requested *int64, sticky int64, firstMessage string, tone Tone, language string) (*types.ChatThread, bool, error)
	// AppendTurn rewrites the leading system pair, appends the turn's
	// records, trims history and persists with a compare-and-set on the
	// row's updated_at. Returns the full message list as written.
	AppendTurn(dbc dbctx.Context, thread *types.ChatThread, turn TurnRecords) ([]types.ThreadMessage, error)
	CreateEmpty(dbc dbctx.Context, userID uuid.UUID, title string, tone Tone, language string) (*types.ChatThread, error)
	GetOwned(dbc dbctx.Context, id int64, userID uuid.UUID) (*types.ChatThread, error)
	ListOpen(dbc dbctx.Context, userID uuid.UUID) ([]*types.ChatThread, error)
}

type threadService struct {
	log  *logger.Logger
	repo repos.ThreadRepo
}

func NewThreadService(log *logger.Logger, repo repos.ThreadRepo) ThreadService {
	return &threadService{log: log.With("service", "ThreadService"), repo: repo}
}

func (s *threadService) Resolve(dbc dbctx.Context, userID uuid.UUID, requested *int64, sticky int64, firstMessage string, tone Tone, language string) (*types.ChatThread, bool, error) {
	if requested != nil {
		t, err := s.repo.GetOwned(dbc, *requested, userID)
		if err == pkgerr.ErrNotFound {
			return nil, false, pkgerr.E(pkgerr.KindNotFound, "session not found", err)
		}
		if err != nil {
			return nil, false, err
		}
		return t, false, nil
	}

	if sticky != 0 {
		t, err := s.repo.GetOwned(dbc, sticky, userID)
		if err == nil {
			return t, false, nil
		}
		if err != pkgerr.ErrNotFound {
			return nil, false, err
		}
		// Sticky thread was archived or deleted out from under the
		// session; fall through.
	}

	// No usable sticky id (fresh session, redis outage): the newest open
	// thread keeps the conversation in one place instead of forking it.
	t, err := s.repo.NewestOpen(dbc, userID)
	if err == nil {
		return t, false, nil
	}
	if err != pkgerr.ErrNotFound {
		return nil, false, err
	}

	t, err = s.create(dbc, userID, titleFrom(firstMessage), tone, language)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *threadService) CreateEmpty(dbc dbctx.Context, userID uuid.UUID, title string, tone Tone, language string) (*types.ChatThread, error) {
	return s.create(dbc, userID, titleFrom(title), tone, language)
}

func (s *threadService) create(dbc dbctx.Context, userID uuid.UUID, title string, tone Tone, language string) (*types.ChatThread, error) {
	if language == "" {
		language = "en-US"
	}
	now := time.Now().UTC()
	t := &types.ChatThread{
		UserID:    userID,
		Title:     title,
		Tone:      string(tone),
		Language:  language,
		Messages:  []byte("[]"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.Create(dbc, t)
}

func (s *threadService) GetOwned(dbc dbctx.Context, id int64, userID uuid.UUID) (*types.ChatThread, error) {
	t, err := s.repo.GetOwned(dbc, id, userID)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindNotFound, "session not found", err)
	}
	return t, err
}

func (s *threadService) ListOpen(dbc dbctx.Context, userID uuid.UUID) ([]*types.ChatThread, error) {
	return s.repo.ListByUser(dbc, userID, threadMessageCap)
}

func (s *threadService) AppendTurn(dbc dbctx.Context, thread *types.ChatThread, turn TurnRecords) ([]types.ThreadMessage, error) {
	history, err := thread.DecodeMessages()
	if err != nil {
		return nil, pkgerr.E(pkgerr.KindInvariant, "stored thread messages are unreadable", err)
	}

	// The leading system pair is rebuilt every turn; stale copies of the
	// prompt or mode header never survive in storage.
	for len(history) > 0 && history[0].Role == types.RoleSystem {
		history = history[1:]
	}

	now := turn.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	msgs := make([]types.ThreadMessage, 0, len(history)+5)
	msgs = append(msgs,
		types.ThreadMessage{Role: types.RoleSystem, Content: turn.SystemPrompt, TS: now},
		types.ThreadMessage{Role: types.RoleSystem, Content: turn.ModeHeader, TS: now},
	)
	msgs = append(msgs, history...)

	if turn.FileContext != "" {
		// User-role on purpose: the context block belongs to the visible
		// conversation, not to the rebuilt leading pair.
		msgs = append(msgs, types.ThreadMessage{
			Role:    types.RoleUser,
			Content: turn.FileContext,
			TS:      now,
			Meta:    map[string]string{"context": "files"},
		})
	}

	if !duplicateUserTurn(history, turn.UserMessage, now) {
		msgs = append(msgs, types.ThreadMessage{Role: types.RoleUser, Content: turn.UserMessage, TS: now})
	}
	msgs = append(msgs, types.ThreadMessage{Role: types.RoleAssistant, Content: turn.AssistantMessage, TS: now})

	// Trim oldest conversational records first; the leading pair is exempt.
	for len(msgs) > threadMessageCap {
		msgs = append(msgs[:2], msgs[3:]...)
	}

	if len(msgs) < 2 || msgs[0].Role != types.RoleSystem || msgs[1].Role != types.RoleSystem {
		return nil, pkgerr.E(pkgerr.KindInvariant, "thread lost its leading system pair", nil)
	}

	encoded, err := types.EncodeMessages(msgs)
	if err != nil {
		return nil, err
	}

	err = s.repo.CompareAndSetMessages(dbc, thread.ID, encoded, thread.UpdatedAt, now)
	if err == repos.ErrStale {
		return nil, pkgerr.E(pkgerr.KindConflict, "session was updated by another request", err)
	}
	if err != nil {
		return nil, err
	}

	thread.Messages = encoded
	thread.UpdatedAt = now
	return msgs, nil
}

// duplicateUserTurn guards against client retries writing the same user
// message twice in quick succession. File-context records share the user
// role but are not typed messages, so they are skipped.
func duplicateUserTurn(history []types.ThreadMessage, content string, now time.Time) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != types.RoleUser || history[i].Meta["context"] == "files" {
			continue
		}
		return history[i].Content == content && now.Sub(history[i].TS) < dedupWindow
	}
	return false
}

func titleFrom(message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return defaultTitle
	}
	runes := []rune(msg)
	if len(runes) > titleMaxLen {
		msg = strings.TrimSpace(string(runes[:titleMaxLen]))
	}
	return msg
}
