package domain

import (
	"time"

	"github.com/google/uuid"
)

// InteractionProfile is the smoothed five-dimensional style vector. Exactly
// one of UserID or SessionKey is set; anonymous profiles key off the session
// cookie until the caller authenticates.
type InteractionProfile struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id,omitempty"`
	SessionKey *string    `gorm:"uniqueIndex" json:"session_key,omitempty"`

	Verbosity           float64 `gorm:"not null;default:0.5" json:"verbosity"`
	EmotionalSupport    float64 `gorm:"not null;default:0.5" json:"emotional_support"`
	StructurePreference float64 `gorm:"not null;default:0.5" json:"structure_preference"`
	TechnicalDepth      float64 `gorm:"not null;default:0.5" json:"technical_depth"`
	Pacing              float64 `gorm:"not null;default:0.5" json:"pacing"`

	InteractionCount int    `gorm:"not null;default:0" json:"interaction_count"`
	LastTopicHint    string `gorm:"not null;default:''" json:"last_topic_hint"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (InteractionProfile) TableName() string { return "interaction_profile" }
