package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// Student represents one roster member eligible for shuffles and picks.
// Membership can change over time; historical runs and picks keep referring
// to departed students by UUID and recorded display name.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_students_uuid" json:"uuid"`
	ClassID   uint      `gorm:"not null;index:idx_students_class_id" json:"class_id"`
	FirstName string    `gorm:"size:255;not null" json:"first_name"`
	LastName  string    `gorm:"size:255" json:"last_name"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Class *Class `gorm:"foreignKey:ClassID;references:ID" json:"class,omitempty"`
}

// TableName returns the table name for the model
func (Student) TableName() string {
	return "students"
}

// BeforeCreate is called before creating a new record
func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DisplayName returns the human-readable name recorded on runs and picks
func (s *Student) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name == "" {
		return "Unknown"
	}
	return name
}

// StudentFilter represents filter criteria for students
type StudentFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	ClassID *uint      `json:"class_id,omitempty"`
}
