package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

// DB opens a fresh in-memory database with the full schema migrated.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Organization{},
		&types.OrgMember{},
		&types.ChatThread{},
		&types.InteractionProfile{},
		&types.Patient{},
		&types.Encounter{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Logger returns a quiet logger for repo and service construction.
func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init test logger: %v", err)
	}
	return log
}

func SeedUser(t *testing.T, db *gorm.DB, email string) *types.User {
	t.Helper()
	now := time.Now().UTC()
	user := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "x",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func SeedOrg(t *testing.T, db *gorm.DB, name string) *types.Organization {
	t.Helper()
	now := time.Now().UTC()
	org := &types.Organization{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return org
}

func SeedMember(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID) {
	t.Helper()
	now := time.Now().UTC()
	member := &types.OrgMember{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      "staff",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("seed org member: %v", err)
	}
}

func SeedThread(t *testing.T, db *gorm.DB, userID uuid.UUID, messages []types.ThreadMessage) *types.ChatThread {
	t.Helper()
	encoded, err := types.EncodeMessages(messages)
	if err != nil {
		t.Fatalf("encode seed messages: %v", err)
	}
	now := time.Now().UTC()
	thread := &types.ChatThread{
		UserID:    userID,
		Title:     "Seeded",
		Tone:      "PlainClinical",
		Language:  "en-US",
		Messages:  encoded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(thread).Error; err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	return thread
}
