package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EncounterStatusNew       = "new"
	EncounterStatusScreening = "screening"
	EncounterStatusReady     = "ready"
	EncounterStatusScheduled = "scheduled"
	EncounterStatusClosed    = "closed"
)

// encounterStatusOrder fixes the monotone front-desk progression.
var encounterStatusOrder = map[string]int{
	EncounterStatusNew:       0,
	EncounterStatusScreening: 1,
	EncounterStatusReady:     2,
	EncounterStatusScheduled: 3,
	EncounterStatusClosed:    4,
}

func ValidEncounterStatus(s string) bool {
	_, ok := encounterStatusOrder[s]
	return ok
}

// CanMoveEncounter reports whether the move from one status to the next follows the listed order.
// Overrides bypass this check at the service boundary.
func CanMoveEncounter(from, to string) bool {
	a, okA := encounterStatusOrder[from]
	b, okB := encounterStatusOrder[to]
	return okA && okB && b >= a
}

type Encounter struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"org_id"`
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	PatientID *uuid.UUID `gorm:"type:uuid;index" json:"patient_id,omitempty"`

	Reason   string `gorm:"size:255;not null" json:"reason"`
	Status   string `gorm:"not null;default:'new';index" json:"status"`
	Priority string `gorm:"not null;default:'medium'" json:"priority"`

	// Summary holds {fields, transcript, triage, patient}.
	Summary datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"summary"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Encounter) TableName() string { return "encounter" }
