package services

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

const (
	kioskTokenTTL = 180 * 24 * time.Hour
	kioskAppName  = "triage-kiosk"
)

// KioskClaims binds a long-lived kiosk device token to one organization.
type KioskClaims struct {
	Org string `json:"org"`
	App string `json:"app"`
	jwt.RegisteredClaims
}

type KioskTokenService interface {
	Mint(orgID uuid.UUID) (string, time.Time, error)
	// Parse validates the token and returns the bound organization.
	Parse(token string) (uuid.UUID, error)
}

type kioskTokenService struct {
	log    *logger.Logger
	secret []byte
}

func NewKioskTokenService(log *logger.Logger) (KioskTokenService, error) {
	secret := strings.TrimSpace(os.Getenv("KIOSK_TOKEN_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("missing KIOSK_TOKEN_SECRET")
	}
	return &kioskTokenService{
		log:    log.With("service", "KioskTokenService"),
		secret: []byte(secret),
	}, nil
}

func (s *kioskTokenService) Mint(orgID uuid.UUID) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(kioskTokenTTL)
	claims := KioskClaims{
		Org: orgID.String(),
		App: kioskAppName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *kioskTokenService) Parse(token string) (uuid.UUID, error) {
	var claims KioskClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, pkgerr.E(pkgerr.KindAuth, "invalid kiosk token", err)
	}
	if claims.App != kioskAppName {
		return uuid.Nil, pkgerr.E(pkgerr.KindAuth, "invalid kiosk token", nil)
	}
	orgID, err := uuid.Parse(claims.Org)
	if err != nil {
		return uuid.Nil, pkgerr.E(pkgerr.KindAuth, "invalid kiosk token", err)
	}
	return orgID, nil
}
