package services

import (
	"time"

	"github.com/google/uuid"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	"github.com/verdantcare/verdant-backend/internal/pkg/dbctx"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/repos"
	"strings"
)

// TurnSignals are the five raw style observations from one message.
type TurnSignals struct {
	Verbosity           float64
	EmotionalSupport    float64
	StructurePreference float64
	TechnicalDepth      float64
	Pacing              float64
}

const (
	smoothingAlpha  = 0.2
	topicDecay      = 0.7
	neutralMidpoint = 0.5
)

var technicalCues = []string{
	"dosage", "contraindication", "pathology", "etiology", "prognosis",
	"differential", "mg", "mcg", "titrate", "biopsy", "hba1c", "systolic",
	"metastasis", "renal", "hepatic", "bilateral",
}

var simplificationCues = []string{
	"simple", "simpler", "plain", "explain like", "eli5", "don't understand",
	"confused", "what does that mean", "in other words",
}

var distressCues = []string{
	"scared", "worried", "afraid", "anxious", "terrified", "panic",
	"overwhelmed", "crying", "alone", "hopeless", "stressed",
}

// ExtractSignals derives the per-turn observations. Pure.
func ExtractSignals(message string, hasAttachments bool, userTurns int) TurnSignals {
	lower := strings.ToLower(message)
	length := float64(len(strings.Fields(message)))

	verbosity := clamp01(length / 120.0)

	tech := float64(countHits(lower, technicalCues))
	simple := float64(countHits(lower, simplificationCues))
	depth := neutralMidpoint
	if tech+simple > 0 {
		depth = clamp01(tech / (tech + simple))
	}

	distress := clamp01(float64(countHits(lower, distressCues)) / 2.0)

	structure := neutralMidpoint
	switch {
	case hasAttachments:
		structure = 1.0
	case length > 80:
		structure = 0.3
	}

	pacing := clamp01(float64(userTurns) / 5.0)

	return TurnSignals{
		Verbosity:           verbosity,
		EmotionalSupport:    distress,
		StructurePreference: structure,
		TechnicalDepth:      depth,
		Pacing:              pacing,
	}
}

func countHits(lower string, cues []string) int {
	n := 0
	for _, c := range cues {
		if strings.Contains(lower, c) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ProfileOwner tags the single owner of an interaction profile.
type ProfileOwner struct {
	UserID     uuid.UUID
	SessionKey string
}

type ProfileService interface {
	// Observe folds one turn's signals into the owner's profile, creating
	// it lazily, and returns the updated profile.
	Observe(dbc dbctx.Context, owner ProfileOwner, signals TurnSignals, topicHint string) (*types.InteractionProfile, error)
	// EnsureForUser pre-creates a profile at signup. Failures are soft.
	EnsureForUser(dbc dbctx.Context, userID uuid.UUID) error
}

type profileService struct {
	log  *logger.Logger
	repo repos.ProfileRepo
}

func NewProfileService(log *logger.Logger, repo repos.ProfileRepo) ProfileService {
	return &profileService{log: log.With("service", "ProfileService"), repo: repo}
}

func (s *profileService) load(dbc dbctx.Context, owner ProfileOwner) (*types.InteractionProfile, error) {
	if owner.UserID != uuid.Nil {
		p, err := s.repo.GetByUser(dbc, owner.UserID)
		if err == nil {
			return p, nil
		}
		if err != pkgerr.ErrNotFound {
			return nil, err
		}
		uid := owner.UserID
		return s.repo.Create(dbc, newProfile(&uid, nil))
	}
	if owner.SessionKey == "" {
		return nil, pkgerr.E(pkgerr.KindValidation, "profile owner missing", nil)
	}
	p, err := s.repo.GetBySessionKey(dbc, owner.SessionKey)
	if err == nil {
		return p, nil
	}
	if err != pkgerr.ErrNotFound {
		return nil, err
	}
	sk := owner.SessionKey
	return s.repo.Create(dbc, newProfile(nil, &sk))
}

func newProfile(userID *uuid.UUID, sessionKey *string) *types.InteractionProfile {
	return &types.InteractionProfile{
		ID:                  uuid.New(),
		UserID:              userID,
		SessionKey:          sessionKey,
		Verbosity:           neutralMidpoint,
		EmotionalSupport:    neutralMidpoint,
		StructurePreference: neutralMidpoint,
		TechnicalDepth:      neutralMidpoint,
		Pacing:              neutralMidpoint,
	}
}

func (s *profileService) Observe(dbc dbctx.Context, owner ProfileOwner, signals TurnSignals, topicHint string) (*types.InteractionProfile, error) {
	p, err := s.load(dbc, owner)
	if err != nil {
		return nil, err
	}

	// A topic change makes context-sensitive dimensions drift back toward
	// neutral before the new observation lands. Verbosity and emotional
	// support track the person, not the topic, and never decay.
	if topicHint != "" && p.LastTopicHint != "" && topicHint != p.LastTopicHint {
		p.TechnicalDepth = decayToward(p.TechnicalDepth, neutralMidpoint)
		p.StructurePreference = decayToward(p.StructurePreference, neutralMidpoint)
	}

	p.Verbosity = smooth(p.Verbosity, signals.Verbosity)
	p.EmotionalSupport = smooth(p.EmotionalSupport, signals.EmotionalSupport)
	p.StructurePreference = smooth(p.StructurePreference, signals.StructurePreference)
	p.TechnicalDepth = smooth(p.TechnicalDepth, signals.TechnicalDepth)
	p.Pacing = smooth(p.Pacing, signals.Pacing)

	p.InteractionCount++
	if topicHint != "" {
		p.LastTopicHint = topicHint
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(dbc, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *profileService) EnsureForUser(dbc dbctx.Context, userID uuid.UUID) error {
	_, err := s.repo.GetByUser(dbc, userID)
	if err == nil {
		return nil
	}
	if err != pkgerr.ErrNotFound {
		return err
	}
	uid := userID
	_, err = s.repo.Create(dbc, newProfile(&uid, nil))
	return err
}

func smooth(old, signal float64) float64 {
	return clamp01(old*(1-smoothingAlpha) + signal*smoothingAlpha)
}

func decayToward(v, target float64) float64 {
	return clamp01(target + (v-target)*topicDecay)
}
