package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// Group represents a named subset of a class roster
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_groups_uuid" json:"uuid"`
	ClassID   uint      `gorm:"not null;index:idx_groups_class_id" json:"class_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Class *Class `gorm:"foreignKey:ClassID;references:ID" json:"class,omitempty"`
	Teams []Team `gorm:"foreignKey:GroupID" json:"teams,omitempty"`
}

// TableName returns the table name for the model
func (Group) TableName() string {
	return "groups"
}

// BeforeCreate is called before creating a new record
func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.UUID == uuid.Nil {
		g.UUID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = utils.UTCNow()
	}
	return nil
}

// StudentGroup is the membership join between students and groups
type StudentGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:uk_student_groups_membership" json:"student_id"`
	GroupID   uint      `gorm:"not null;uniqueIndex:uk_student_groups_membership;index:idx_student_groups_group_id" json:"group_id"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Student *Student `gorm:"foreignKey:StudentID;references:ID" json:"student,omitempty"`
	Group   *Group   `gorm:"foreignKey:GroupID;references:ID" json:"group,omitempty"`
}

// TableName returns the table name for the model
func (StudentGroup) TableName() string {
	return "student_groups"
}

// GroupFilter represents filter criteria for groups
type GroupFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	ClassID *uint      `json:"class_id,omitempty"`
}
