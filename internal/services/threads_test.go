package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/repos"
	"github.com/verdantcare/verdant-backend/internal/repos/testutil"
)

func newThreadService(t *testing.T) (ThreadService, dbctx.Context, uuid.UUID) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	user := testutil.SeedUser(t, db, "threads@example.com")
	return NewThreadService(log, repos.NewThreadRepo(db, log)), dbctx.Context{Ctx: t.Context()}, user.ID
}

func TestResolveCreatesWithTitle(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, created, err := svc.Resolve(dbc, userID, nil, 0, "My knee hurts when I climb stairs and I want to know why", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !created {
		t.Error("expected a new thread")
	}
	if len([]rune(thread.Title)) > 40 {
		t.Errorf("title %q exceeds 40 runes", thread.Title)
	}
	if thread.Title == defaultTitle {
		t.Error("title should come from the first message")
	}
}

func TestResolvePrefersRequestedOverSticky(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	a, _, err := svc.Resolve(dbc, userID, nil, 0, "first", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve a: %v", err)
	}
	b, err := svc.CreateEmpty(dbc, userID, "second", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("CreateEmpty b: %v", err)
	}

	got, created, err := svc.Resolve(dbc, userID, &a.ID, b.ID, "third", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve requested: %v", err)
	}
	if created || got.ID != a.ID {
		t.Errorf("requested id %d should win over sticky %d, got %d", a.ID, b.ID, got.ID)
	}

	got, created, err = svc.Resolve(dbc, userID, nil, b.ID, "fourth", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve sticky: %v", err)
	}
	if created || got.ID != b.ID {
		t.Errorf("sticky id %d expected, got %d", b.ID, got.ID)
	}
}

func TestResolveFallsBackToNewestOpen(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	first, created, err := svc.Resolve(dbc, userID, nil, 0, "my knee hurts", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !created {
		t.Fatal("first resolve should create")
	}

	// A session with no sticky id lands in the newest open thread rather
	// than forking a new one.
	got, created, err := svc.Resolve(dbc, userID, nil, 0, "still hurting", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve fallback: %v", err)
	}
	if created || got.ID != first.ID {
		t.Errorf("fallback resolved thread %d (created=%v), want %d", got.ID, created, first.ID)
	}
}

func TestCreateEmptyHonorsTitle(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	titled, err := svc.CreateEmpty(dbc, userID, "Medication questions", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	if titled.Title != "Medication questions" {
		t.Errorf("title = %q", titled.Title)
	}

	untitled, err := svc.CreateEmpty(dbc, userID, "", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	if untitled.Title != defaultTitle {
		t.Errorf("empty title = %q, want %q", untitled.Title, defaultTitle)
	}
}

func TestResolveForeignThreadIsNotFound(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	other := uuid.New()
	mine, _, err := svc.Resolve(dbc, userID, nil, 0, "mine", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	_, _, err = svc.Resolve(dbc, other, &mine.ID, 0, "theirs", TonePlainClinical, "en-US")
	if pkgerr.KindOf(err) != pkgerr.KindNotFound {
		t.Errorf("foreign thread access: got %v, want not_found", err)
	}
}

func TestAppendTurnLeadingSystemPair(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, _, err := svc.Resolve(dbc, userID, nil, 0, "hello", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	msgs, err := svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt:     "prompt v1",
		ModeHeader:       "ResponseMode: EXPLAIN",
		UserMessage:      "hello",
		AssistantMessage: "hi there",
	})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if msgs[0].Role != types.RoleSystem || msgs[1].Role != types.RoleSystem {
		t.Fatal("first two records must be system")
	}
	if msgs[0].Content != "prompt v1" {
		t.Errorf("prompt = %q", msgs[0].Content)
	}

	// A second turn replaces the pair rather than stacking more systems.
	msgs, err = svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt:     "prompt v2",
		ModeHeader:       "ResponseMode: QUICK",
		UserMessage:      "thanks",
		AssistantMessage: "welcome",
	})
	if err != nil {
		t.Fatalf("AppendTurn 2: %v", err)
	}
	if msgs[0].Content != "prompt v2" {
		t.Errorf("prompt not replaced: %q", msgs[0].Content)
	}
	leading := 0
	for _, m := range msgs {
		if m.Role != types.RoleSystem {
			break
		}
		leading++
	}
	if leading != 2 {
		t.Errorf("leading system records = %d, want 2", leading)
	}
}

func TestAppendTurnFileContextMeta(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, _, err := svc.Resolve(dbc, userID, nil, 0, "labs attached", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	msgs, err := svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt:     "p",
		ModeHeader:       "ResponseMode: FULL",
		FileContext:      "(Medical context): labs.pdf: normal CBC.",
		UserMessage:      "labs attached",
		AssistantMessage: "reviewed",
	})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	found := false
	for _, m := range msgs[2:] {
		if m.Meta["context"] == "files" {
			found = true
			if m.Role != types.RoleUser {
				t.Error("file-context record should carry the user role")
			}
		}
	}
	if !found {
		t.Error("file-context record missing its meta marker")
	}

	// A retried user message still dedups even though the file context sits
	// between it and the end of history.
	msgs, err = svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt:     "p",
		ModeHeader:       "ResponseMode: FULL",
		UserMessage:      "labs attached",
		AssistantMessage: "reviewed again",
		Now:              msgs[len(msgs)-1].TS.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("AppendTurn retry: %v", err)
	}
	users := 0
	for _, m := range msgs {
		if m.Role == types.RoleUser && m.Content == "labs attached" {
			users++
		}
	}
	if users != 1 {
		t.Errorf("user record count = %d, want 1", users)
	}
}

func TestAppendTurnTrimsToCap(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, _, err := svc.Resolve(dbc, userID, nil, 0, "start", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var msgs []types.ThreadMessage
	for i := 0; i < 110; i++ {
		msgs, err = svc.AppendTurn(dbc, thread, TurnRecords{
			SystemPrompt:     "p",
			ModeHeader:       "m",
			UserMessage:      fmt.Sprintf("user %d", i),
			AssistantMessage: fmt.Sprintf("assistant %d", i),
		})
		if err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
	}

	if len(msgs) > threadMessageCap {
		t.Errorf("message count = %d, cap is %d", len(msgs), threadMessageCap)
	}
	if msgs[0].Role != types.RoleSystem || msgs[1].Role != types.RoleSystem {
		t.Error("trim removed the leading pair")
	}
	// Oldest conversational records go first.
	if msgs[2].Content == "user 0" {
		t.Error("trim did not drop the oldest records")
	}
	last := msgs[len(msgs)-1]
	if last.Content != "assistant 109" {
		t.Errorf("newest record = %q, want assistant 109", last.Content)
	}
}

func TestAppendTurnDedupsRetriedUserMessage(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, _, err := svc.Resolve(dbc, userID, nil, 0, "hello", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	now := time.Now().UTC()
	if _, err := svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt: "p", ModeHeader: "m",
		UserMessage: "hello", AssistantMessage: "hi",
		Now: now,
	}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	msgs, err := svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt: "p", ModeHeader: "m",
		UserMessage: "hello", AssistantMessage: "hi again",
		Now: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("AppendTurn retry: %v", err)
	}

	users := 0
	for _, m := range msgs {
		if m.Role == types.RoleUser && m.Content == "hello" {
			users++
		}
	}
	if users != 1 {
		t.Errorf("duplicate user record count = %d, want 1", users)
	}
}

func TestAppendTurnConflictOnStaleRead(t *testing.T) {
	svc, dbc, userID := newThreadService(t)

	thread, _, err := svc.Resolve(dbc, userID, nil, 0, "hello", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	stale := *thread

	if _, err := svc.AppendTurn(dbc, thread, TurnRecords{
		SystemPrompt: "p", ModeHeader: "m",
		UserMessage: "first", AssistantMessage: "a",
	}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	_, err = svc.AppendTurn(dbc, &stale, TurnRecords{
		SystemPrompt: "p", ModeHeader: "m",
		UserMessage: "second", AssistantMessage: "b",
	})
	if pkgerr.KindOf(err) != pkgerr.KindConflict {
		t.Errorf("stale append: got %v, want conflict", err)
	}
}

func TestListOpenSkipsArchived(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	user := testutil.SeedUser(t, db, "list@example.com")
	repo := repos.NewThreadRepo(db, log)
	svc := NewThreadService(log, repo)
	dbc := dbctx.Context{Ctx: t.Context()}

	open, _, err := svc.Resolve(dbc, user.ID, nil, 0, "open", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	archived, err := svc.CreateEmpty(dbc, user.ID, "archived", TonePlainClinical, "en-US")
	if err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	if err := db.Model(&types.ChatThread{}).Where("id = ?", archived.ID).Update("archived", true).Error; err != nil {
		t.Fatalf("archive: %v", err)
	}

	threads, err := svc.ListOpen(dbc, user.ID)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != open.ID {
		t.Errorf("ListOpen returned %d threads", len(threads))
	}
}
