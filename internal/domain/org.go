package domain

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"not null" json:"name"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }

type OrgMember struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_org_member_org_user,priority:1" json:"org_id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_org_member_org_user,priority:2" json:"user_id"`
	Role   string    `gorm:"not null;default:'staff'" json:"role"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (OrgMember) TableName() string { return "org_member" }
