package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// Team represents a named subset of a group
type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_teams_uuid" json:"uuid"`
	GroupID   uint      `gorm:"not null;index:idx_teams_group_id" json:"group_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Group *Group `gorm:"foreignKey:GroupID;references:ID" json:"group,omitempty"`
}

// TableName returns the table name for the model
func (Team) TableName() string {
	return "teams"
}

// BeforeCreate is called before creating a new record
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}

// StudentTeam is the membership join between students and teams
type StudentTeam struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:uk_student_teams_membership" json:"student_id"`
	TeamID    uint      `gorm:"not null;uniqueIndex:uk_student_teams_membership;index:idx_student_teams_team_id" json:"team_id"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Student *Student `gorm:"foreignKey:StudentID;references:ID" json:"student,omitempty"`
	Team    *Team    `gorm:"foreignKey:TeamID;references:ID" json:"team,omitempty"`
}

// TableName returns the table name for the model
func (StudentTeam) TableName() string {
	return "student_teams"
}

// TeamFilter represents filter criteria for teams
type TeamFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	GroupID *uint      `json:"group_id,omitempty"`
}
