package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/clients/openai"
	"github.com/verdantcare/verdant-backend/internal/clients/redis"
	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

// Soft-memory hash fields. All of them are advisory: a cold or wiped
// session only costs mode inheritance and thread stickiness.
const (
	memLatestSummary = "latest_summary"
	memChatHistory   = "chat_history"
	memLastMode      = "nm_last_mode"
	memLastShortMsg  = "nm_last_short_msg"
	memLastTS        = "nm_last_ts"
	memActiveSession = "active_chat_session_id"
)

var softMemoryFields = []string{
	memLatestSummary, memChatHistory, memLastMode,
	memLastShortMsg, memLastTS, memActiveSession,
}

const (
	shortMsgMemoryMax = 120
	historyMemoryMax  = 500
	fileContextPrefix = "(Medical context): "
)

// SendInput is one chat turn as received from the transport layer.
type SendInput struct {
	Message      string
	Tone         string
	Language     string
	SessionID    *int64
	CareSetting  string
	FaithSetting string
	Files        []UploadedFile
}

// MessageEnvelope is the wire shape of a single message.
type MessageEnvelope struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID *int64            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionView is one thread as listed to the client, system records
// stripped.
type SessionView struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Tone      string            `json:"tone"`
	Language  string            `json:"lang"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []MessageEnvelope `json:"messages"`
}

type ChatService interface {
	Send(ctx context.Context, userID uuid.UUID, sessionKey string, input SendInput) (*MessageEnvelope, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]SessionView, error)
	CreateSession(ctx context.Context, userID uuid.UUID, sessionKey, title, tone, language string) (*SessionView, error)
	ClearSession(ctx context.Context, sessionKey string) error
}

type chatService struct {
	log        *logger.Logger
	sessions   redis.SessionStore
	profiles   ProfileService
	threads    ThreadService
	summarizer FileSummarizer
	driver     CompletionDriver
}

func NewChatService(
	log *logger.Logger,
	sessions redis.SessionStore,
	profiles ProfileService,
	threads ThreadService,
	summarizer FileSummarizer,
	driver CompletionDriver,
) ChatService {
	return &chatService{
		log:        log.With("service", "ChatService"),
		sessions:   sessions,
		profiles:   profiles,
		threads:    threads,
		summarizer: summarizer,
		driver:     driver,
	}
}

func (s *chatService) Send(ctx context.Context, userID uuid.UUID, sessionKey string, input SendInput) (*MessageEnvelope, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" && len(input.Files) == 0 {
		return nil, pkgerr.E(pkgerr.KindValidation, "message or files required", nil)
	}

	tone := CanonicalTone(input.Tone)
	now := time.Now().UTC()
	dbc := dbctx.Context{Ctx: ctx}

	mem := s.readSoftMemory(ctx, sessionKey)

	mode, hint := ClassifyMode(message, len(input.Files) > 0, mem, now)

	thread, _, err := s.threads.Resolve(dbc, userID, input.SessionID, mem.StickyThread, message, tone, input.Language)
	if err != nil {
		return nil, err
	}
	// Stick the session to the resolved thread immediately; a failed turn
	// must not leave client retries forking fresh threads.
	s.stickSession(ctx, sessionKey, thread.ID)

	signals := ExtractSignals(message, len(input.Files) > 0, userTurnCount(thread)+1)
	profile, err := s.profiles.Observe(dbc, ProfileOwner{UserID: userID, SessionKey: sessionKey}, signals, hint)
	if err != nil {
		// Style adaptation is additive; a profile hiccup never blocks the
		// turn.
		s.log.Warn("profile observe failed", "error", err)
		profile = nil
	}

	instructions, bias := ResolveStyle(profile)
	systemPrompt := ComposePrompt(tone, input.CareSetting, input.FaithSetting, input.Language)
	if directive := StyleDirective(instructions, bias); directive != "" {
		systemPrompt = systemPrompt + "\n\n" + directive
	}

	fileContext := ""
	if len(input.Files) > 0 {
		block, err := s.summarizer.Summarize(ctx, userID, systemPrompt, input.Files)
		if err != nil {
			return nil, err
		}
		if block != "" {
			fileContext = fileContextPrefix + block
		}
	}

	modeHeader := "ResponseMode: " + string(mode)
	if hint != "" {
		modeHeader += "\nTopicHint: " + hint
	}

	history, err := s.completionHistory(thread, fileContext, message)
	if err != nil {
		return nil, err
	}

	answer, err := s.driver.Run(ctx, tone, systemPrompt, modeHeader, history)
	if err != nil {
		return nil, err
	}

	userMessage := message
	if userMessage == "" {
		userMessage = "(attached files)"
	}
	_, err = s.threads.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt:     systemPrompt,
		ModeHeader:       modeHeader,
		FileContext:      fileContext,
		UserMessage:      userMessage,
		AssistantMessage: answer,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}

	s.writeSoftMemory(ctx, sessionKey, mode, message, fileContext, answer, thread.ID, now)

	sid := thread.ID
	return &MessageEnvelope{
		ID:        uuid.NewString(),
		Role:      types.RoleAssistant,
		Content:   answer,
		Timestamp: now,
		SessionID: &sid,
		Metadata: map[string]string{
			"tone": string(tone),
		},
	}, nil
}

// stickSession pins the session's active thread. Failures are logged only;
// stickiness is a convenience, not a correctness requirement.
func (s *chatService) stickSession(ctx context.Context, sessionKey string, threadID int64) {
	if s.sessions == nil || sessionKey == "" {
		return
	}
	err := s.sessions.Set(ctx, sessionKey, map[string]string{
		memActiveSession: strconv.FormatInt(threadID, 10),
	})
	if err != nil {
		s.log.Warn("sticky session write failed", "error", err)
	}
}

// userTurnCount counts stored user messages, leaving out file-context
// records that share the role.
func userTurnCount(thread *types.ChatThread) int {
	msgs, err := thread.DecodeMessages()
	if err != nil {
		return 0
	}
	n := 0
	for _, m := range msgs {
		if m.Role == types.RoleUser && m.Meta["context"] != "files" {
			n++
		}
	}
	return n
}

// completionHistory rebuilds the model-facing message list from the stored
// thread: prior conversation minus system records, then the new turn.
func (s *chatService) completionHistory(thread *types.ChatThread, fileContext, message string) ([]openai.Message, error) {
	stored, err := thread.DecodeMessages()
	if err != nil {
		return nil, pkgerr.E(pkgerr.KindInvariant, "stored thread messages are unreadable", err)
	}

	out := make([]openai.Message, 0, len(stored)+2)
	for _, m := range stored {
		if m.Role == types.RoleSystem {
			continue
		}
		out = append(out, openai.Message{Role: m.Role, Content: m.Content})
	}
	if fileContext != "" {
		out = append(out, openai.Message{Role: "user", Content: fileContext})
	}
	if message != "" {
		out = append(out, openai.Message{Role: "user", Content: message})
	} else {
		out = append(out, openai.Message{Role: "user", Content: "Please review the attached files."})
	}
	return out, nil
}

func (s *chatService) readSoftMemory(ctx context.Context, sessionKey string) SoftMemory {
	var mem SoftMemory
	if s.sessions == nil || sessionKey == "" {
		return mem
	}
	fields, err := s.sessions.GetAll(ctx, sessionKey)
	if err != nil {
		s.log.Warn("soft memory read failed", "error", err)
		return mem
	}
	mem.LastMode = fields[memLastMode]
	mem.LastShortMsg = fields[memLastShortMsg]
	if v := fields[memLastTS]; v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			mem.LastTS = ts
		}
	}
	if v := fields[memActiveSession]; v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			mem.StickyThread = id
		}
	}
	return mem
}

func (s *chatService) writeSoftMemory(ctx context.Context, sessionKey string, mode ResponseMode, message, fileContext, answer string, threadID int64, now time.Time) {
	if s.sessions == nil || sessionKey == "" {
		return
	}
	fields := map[string]string{
		memLastMode:      string(mode),
		memLastShortMsg:  truncateRunes(message, shortMsgMemoryMax),
		memLastTS:        now.Format(time.RFC3339),
		memActiveSession: strconv.FormatInt(threadID, 10),
		memChatHistory:   truncateRunes("user: "+message+"\nassistant: "+answer, historyMemoryMax),
	}
	if fileContext != "" {
		fields[memLatestSummary] = fileContext
	}
	if err := s.sessions.Set(ctx, sessionKey, fields); err != nil {
		s.log.Warn("soft memory write failed", "error", err)
	}
}

func (s *chatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]SessionView, error) {
	threads, err := s.threads.ListOpen(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionView, 0, len(threads))
	for _, t := range threads {
		msgs, err := t.DecodeMessages()
		if err != nil {
			s.log.Warn("skipping unreadable thread", "thread_id", t.ID, "error", err)
			continue
		}
		view := SessionView{
			ID:        t.ID,
			Title:     t.Title,
			Tone:      t.Tone,
			Language:  t.Language,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		sid := t.ID
		for _, m := range msgs {
			if m.Role == types.RoleSystem {
				continue
			}
			view.Messages = append(view.Messages, MessageEnvelope{
				ID:        uuid.NewString(),
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.TS,
				SessionID: &sid,
				Metadata:  m.Meta,
			})
		}
		// Empty shells from CreateSession stay out of the listing until
		// they hold a real exchange.
		if len(view.Messages) == 0 {
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *chatService) CreateSession(ctx context.Context, userID uuid.UUID, sessionKey, title, tone, language string) (*SessionView, error) {
	t, err := s.threads.CreateEmpty(dbctx.Context{Ctx: ctx}, userID, title, CanonicalTone(tone), language)
	if err != nil {
		return nil, err
	}

	s.stickSession(ctx, sessionKey, t.ID)

	return &SessionView{
		ID:        t.ID,
		Title:     t.Title,
		Tone:      t.Tone,
		Language:  t.Language,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Messages:  []MessageEnvelope{},
	}, nil
}

func (s *chatService) ClearSession(ctx context.Context, sessionKey string) error {
	if s.sessions == nil || sessionKey == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionKey, softMemoryFields...)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
