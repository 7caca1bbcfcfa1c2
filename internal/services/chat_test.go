package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/repos"
	"github.com/verdantcare/verdant-backend/internal/repos/testutil"
)

// memSessionStore is an in-memory stand-in for the redis hash store.
type memSessionStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{data: map[string]map[string]string{}}
}

func (m *memSessionStore) Get(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key][field], nil
}

func (m *memSessionStore) GetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.data[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memSessionStore) Set(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] == nil {
		m.data[key] = map[string]string{}
	}
	for k, v := range fields {
		m.data[key][k] = v
	}
	return nil
}

func (m *memSessionStore) Delete(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fields {
		delete(m.data[key], f)
	}
	return nil
}

func (m *memSessionStore) Close() error { return nil }

type chatFixture struct {
	svc      ChatService
	store    *memSessionStore
	llm      *fakeLLM
	db       *gorm.DB
	userID   uuid.UUID
	sessions string
}

func newChatFixture(t *testing.T, llm *fakeLLM) *chatFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	user := testutil.SeedUser(t, db, "chat@example.com")
	store := newMemSessionStore()

	profiles := NewProfileService(log, repos.NewProfileRepo(db, log))
	threads := NewThreadService(log, repos.NewThreadRepo(db, log))
	summarizer := NewFileSummarizer(log, llm, nil)
	driver := NewCompletionDriver(log, llm)

	return &chatFixture{
		svc:      NewChatService(log, store, profiles, threads, summarizer, driver),
		store:    store,
		llm:      llm,
		db:       db,
		userID:   user.ID,
		sessions: "user:" + user.ID.String(),
	}
}

func TestChatSendHappyPath(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{responses: []string{"You likely strained it.", "Warm: you likely strained it."}})

	msg, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{
		Message: "my knee hurts when I climb stairs",
		Tone:    "plain_clinical",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Role != types.RoleAssistant || msg.Content == "" {
		t.Errorf("envelope = %+v", msg)
	}
	if msg.SessionID == nil {
		t.Fatal("envelope missing session id")
	}
	if msg.Metadata["tone"] != "PlainClinical" {
		t.Errorf("metadata tone = %q", msg.Metadata["tone"])
	}
	if _, ok := msg.Metadata["mode"]; ok {
		t.Error("response depth is internal and must stay out of the envelope")
	}

	// Stored thread carries the leading system pair plus the turn.
	var thread types.ChatThread
	if err := fx.db.First(&thread, "id = ?", *msg.SessionID).Error; err != nil {
		t.Fatalf("thread missing: %v", err)
	}
	stored, err := thread.DecodeMessages()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stored) < 4 || stored[0].Role != types.RoleSystem || stored[1].Role != types.RoleSystem {
		t.Fatalf("stored shape wrong: %d records", len(stored))
	}
	if stored[len(stored)-2].Content != "my knee hurts when I climb stairs" {
		t.Error("user record missing")
	}

	// Soft memory reflects the turn.
	mem, _ := fx.store.GetAll(t.Context(), fx.sessions)
	if mem[memActiveSession] != strconv.FormatInt(*msg.SessionID, 10) {
		t.Errorf("active session = %q", mem[memActiveSession])
	}
	if mem[memLastMode] == "" || mem[memLastTS] == "" {
		t.Error("mode memory not written")
	}
}

func TestChatSendSticksToSession(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	first, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my knee hurts today"})
	if err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	second, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "it is worse on stairs now"})
	if err != nil {
		t.Fatalf("Send 2: %v", err)
	}
	if *first.SessionID != *second.SessionID {
		t.Errorf("turns split across threads %d and %d", *first.SessionID, *second.SessionID)
	}

	// An explicit session id overrides stickiness.
	view, err := fx.svc.CreateSession(t.Context(), fx.userID, "", "", "clinical", "en-US")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	third, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{
		Message:   "different topic entirely",
		SessionID: &view.ID,
	})
	if err != nil {
		t.Fatalf("Send 3: %v", err)
	}
	if *third.SessionID != view.ID {
		t.Errorf("explicit session ignored: got %d want %d", *third.SessionID, view.ID)
	}
}

func TestChatSendValidatesEmptyTurn(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})
	_, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "   "})
	if pkgerr.KindOf(err) != pkgerr.KindValidation {
		t.Errorf("empty turn: got %v, want validation", err)
	}
}

func TestChatSendUpstreamFailureLeavesThreadUntouched(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{errs: []error{
		errors.New("dial tcp: refused"),
		errors.New("dial tcp: refused"),
	}})

	_, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my knee hurts"})
	if pkgerr.KindOf(err) != pkgerr.KindUpstream {
		t.Fatalf("got %v, want upstream", err)
	}

	// The session sticks to the resolved thread even though the turn
	// failed, so a retry lands in the same row.
	mem, _ := fx.store.GetAll(t.Context(), fx.sessions)
	if mem[memActiveSession] == "" {
		t.Error("failed turn did not pin the session")
	}

	_, err = fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my knee hurts"})
	if pkgerr.KindOf(err) != pkgerr.KindUpstream {
		t.Fatalf("retry: got %v, want upstream", err)
	}

	var threads []types.ChatThread
	if err := fx.db.Find(&threads, "user_id = ?", fx.userID).Error; err != nil {
		t.Fatalf("load threads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("failed retries forked %d threads, want 1", len(threads))
	}
	msgs, err := threads[0].DecodeMessages()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("thread has %d messages after failed turns", len(msgs))
	}
}

func TestChatFileTurnAddsContext(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"labs.txt summary",  // file summarizer
		"draft answer",      // completion draft
		"warm final answer", // warmth rewrite
	}}
	fx := newChatFixture(t, llm)

	msg, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{
		Message: "please look at my labs",
		Files: []UploadedFile{
			{Name: "labs.txt", ContentType: "text/plain", Data: []byte("Hemoglobin 13.5 g/dL, within normal range.")},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var thread types.ChatThread
	if err := fx.db.First(&thread, "id = ?", *msg.SessionID).Error; err != nil {
		t.Fatalf("thread: %v", err)
	}
	stored, _ := thread.DecodeMessages()
	found := false
	for _, m := range stored {
		if m.Meta["context"] == "files" {
			found = true
			if m.Role != types.RoleUser {
				t.Errorf("file-context role = %q, want user", m.Role)
			}
		}
	}
	if !found {
		t.Error("file-context record not persisted")
	}

	mem, _ := fx.store.GetAll(t.Context(), fx.sessions)
	if mem[memLatestSummary] == "" {
		t.Error("latest_summary not written")
	}
	if mem[memLastMode] != string(ModeFull) {
		t.Errorf("remembered mode = %q, want FULL", mem[memLastMode])
	}

	// The context block is part of the visible conversation.
	views, err := fx.svc.ListSessions(t.Context(), fx.userID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	listed := false
	for _, v := range views {
		for _, m := range v.Messages {
			if m.Metadata["context"] == "files" {
				listed = true
			}
		}
	}
	if !listed {
		t.Error("file-context record missing from the session listing")
	}
}

func TestChatListSessionsStripsSystem(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	if _, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my knee hurts today"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// An empty shell stays out of the listing.
	if _, err := fx.svc.CreateSession(t.Context(), fx.userID, "", "", "clinical", "en-US"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	views, err := fx.svc.ListSessions(t.Context(), fx.userID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	for _, m := range views[0].Messages {
		if m.Role == types.RoleSystem {
			t.Error("system record leaked into listing")
		}
	}
	if len(views[0].Messages) != 2 {
		t.Errorf("messages = %d, want user+assistant", len(views[0].Messages))
	}
}

func TestChatClearSessionRemovesSoftMemory(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	if _, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my knee hurts today"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := fx.svc.ClearSession(t.Context(), fx.sessions); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	mem, _ := fx.store.GetAll(t.Context(), fx.sessions)
	for _, f := range softMemoryFields {
		if mem[f] != "" {
			t.Errorf("field %s survived clear", f)
		}
	}
}

func TestChatPacingRisesWithFollowUps(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	for i := 0; i < 8; i++ {
		msg := fmt.Sprintf("my knee pain is still there on day %d", i)
		if _, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: msg}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	var profile types.InteractionProfile
	if err := fx.db.First(&profile, "user_id = ?", fx.userID).Error; err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Pacing <= 0.6 {
		t.Errorf("pacing = %.3f after 8 follow-ups, want > 0.6", profile.Pacing)
	}
}

func TestChatCreateSessionHonorsTitle(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	view, err := fx.svc.CreateSession(t.Context(), fx.userID, fx.sessions, "Medication questions", "clinical", "en-US")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if view.Title != "Medication questions" {
		t.Errorf("title = %q", view.Title)
	}
}

func TestChatToneSwitchMidSession(t *testing.T) {
	fx := newChatFixture(t, &fakeLLM{})

	first, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "my father forgets his pills", Tone: "caregiver"})
	if err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	second, err := fx.svc.Send(t.Context(), fx.userID, fx.sessions, SendInput{Message: "what about his blood pressure medication", Tone: "clinical"})
	if err != nil {
		t.Fatalf("Send 2: %v", err)
	}
	if *first.SessionID != *second.SessionID {
		t.Fatal("tone switch must not fork the thread")
	}

	var thread types.ChatThread
	if err := fx.db.First(&thread, "id = ?", *second.SessionID).Error; err != nil {
		t.Fatalf("thread: %v", err)
	}
	stored, _ := thread.DecodeMessages()
	// The leading prompt reflects the latest tone only.
	if got := stored[0].Content; !containsTonePrompt(got, ToneClinical) || containsTonePrompt(got, ToneCaregiver) {
		t.Error("system prompt does not reflect the latest tone")
	}
}

func containsTonePrompt(prompt string, tone Tone) bool {
	return tonePrompts[tone] != "" && strings.Contains(prompt, tonePrompts[tone])
}
