package domain

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID uuid.UUID `gorm:"type:uuid;not null;index" json:"org_id"`

	FirstName string `gorm:"column:first_name;not null;default:''" json:"first_name"`
	LastName  string `gorm:"column:last_name;not null;default:''" json:"last_name"`

	// (org_id, mrn) must be unique when an MRN is present; enforced by a
	// partial index added in migration, since gorm tags cannot express it.
	MRN     *string    `gorm:"column:mrn;index" json:"mrn,omitempty"`
	Phone   string     `gorm:"not null;default:'';index" json:"phone"`
	Email   string     `gorm:"not null;default:'';index" json:"email"`
	DOB     *time.Time `gorm:"column:dob" json:"dob,omitempty"`
	Insurer string     `gorm:"not null;default:''" json:"insurer"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Patient) TableName() string { return "patient" }
