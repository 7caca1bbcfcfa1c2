package db

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "postgres")
	password := getenv("POSTGRES_PASSWORD", "")
	name := getenv("POSTGRES_NAME", "verdant")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Organization{},
		&types.OrgMember{},
		&types.ChatThread{},
		&types.InteractionProfile{},
		&types.Patient{},
		&types.Encounter{},
	); err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// Email uniqueness is case-insensitive; the values are lowercased at the
	// service boundary, this index backs it up at the store.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_email_lower
		ON "user" (LOWER(email))
	`).Error; err != nil {
		return fmt.Errorf("failed to create idx_user_email_lower: %w", err)
	}

	// (org_id, mrn) unique only when an MRN is present.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_patient_org_mrn
		ON "patient" (org_id, mrn)
		WHERE mrn IS NOT NULL
	`).Error; err != nil {
		return fmt.Errorf("failed to create idx_patient_org_mrn: %w", err)
	}

	if err := s.db.Exec(`
		ALTER TABLE "user_token"
		DROP CONSTRAINT IF EXISTS "fk_user_token_user_id";
	`).Error; err != nil {
		return err
	}
	if err := s.db.Exec(`
		ALTER TABLE "user_token"
		ADD CONSTRAINT "fk_user_token_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_user_token_user_id: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
