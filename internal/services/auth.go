package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
)

const (
	passwordMinLen     = 8
	defaultTokenTTLDay = 30
)

// AuthResult is a user plus a fresh bearer token, returned from signup,
// login and rotation.
type AuthResult struct {
	User      *types.User
	Token     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Language  string
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	RotateToken(ctx context.Context, userID uuid.UUID) (*AuthResult, error)
	// ResolveToken maps a presented bearer token to its user, rejecting
	// unknown and expired tokens alike with an auth error.
	ResolveToken(ctx context.Context, token string) (*types.User, error)
}

type authService struct {
	log      *logger.Logger
	db       *gorm.DB
	users    repos.UserRepo
	tokens   repos.UserTokenRepo
	profiles ProfileService
	tokenTTL time.Duration
}

func NewAuthService(log *logger.Logger, db *gorm.DB, users repos.UserRepo, tokens repos.UserTokenRepo, profiles ProfileService) AuthService {
	ttlDays := defaultTokenTTLDay
	if v := strings.TrimSpace(os.Getenv("AUTH_TOKEN_TTL_DAYS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			ttlDays = parsed
		}
	}
	return &authService{
		log:      log.With("service", "AuthService"),
		db:       db,
		users:    users,
		tokens:   tokens,
		profiles: profiles,
		tokenTTL: time.Duration(ttlDays) * 24 * time.Hour,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerr.E(pkgerr.KindValidation, "invalid email address", err)
	}
	if len(input.Password) < passwordMinLen {
		return nil, pkgerr.E(pkgerr.KindValidation, "password must be at least 8 characters", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = "en-US"
	}

	var result *AuthResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		exists, err := s.users.EmailExists(dbc, email)
		if err != nil {
			return err
		}
		if exists {
			return pkgerr.E(pkgerr.KindConflict, "email already registered", nil)
		}

		now := time.Now().UTC()
		user, err := s.users.Create(dbc, &types.User{
			ID:        uuid.New(),
			Email:     email,
			Password:  string(hash),
			FirstName: strings.TrimSpace(input.FirstName),
			LastName:  strings.TrimSpace(input.LastName),
			Language:  language,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		result, err = s.issueToken(dbc, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	// A missing profile is recreated lazily at the first turn; this is
	// only a warm start.
	if err := s.profiles.EnsureForUser(dbctx.Context{Ctx: ctx}, result.User.ID); err != nil {
		s.log.Warn("profile pre-create failed", "user_id", result.User.ID, "error", err)
	}
	return result, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	dbc := dbctx.Context{Ctx: ctx}

	user, err := s.users.GetByEmail(dbc, email)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindAuth, "invalid credentials", err)
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, pkgerr.E(pkgerr.KindAuth, "invalid credentials", nil)
	}

	return s.issueToken(dbc, user)
}

func (s *authService) RotateToken(ctx context.Context, userID uuid.UUID) (*AuthResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	user, err := s.users.GetByID(dbc, userID)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindAuth, "unknown user", err)
	}
	if err != nil {
		return nil, err
	}
	return s.issueToken(dbc, user)
}

func (s *authService) ResolveToken(ctx context.Context, token string) (*types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerr.E(pkgerr.KindAuth, "missing token", nil)
	}

	dbc := dbctx.Context{Ctx: ctx}
	row, err := s.tokens.GetByToken(dbc, token)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindAuth, "invalid token", err)
	}
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return nil, pkgerr.E(pkgerr.KindAuth, "token expired", nil)
	}

	user, err := s.users.GetByID(dbc, row.UserID)
	if err == pkgerr.ErrNotFound {
		return nil, pkgerr.E(pkgerr.KindAuth, "invalid token", err)
	}
	return user, err
}

// issueToken replaces the user's single active token row.
func (s *authService) issueToken(dbc dbctx.Context, user *types.User) (*AuthResult, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	if _, err := s.tokens.Replace(dbc, user.ID, token, expiresAt); err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
