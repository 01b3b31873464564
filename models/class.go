package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// Class represents a classroom whose roster feeds the randomization tools.
// Roster administration itself lives in the surrounding product; this service
// only reads class membership to resolve participant sets.
type Class struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_classes_uuid" json:"uuid"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Students []Student `gorm:"foreignKey:ClassID" json:"students,omitempty"`
	Groups   []Group   `gorm:"foreignKey:ClassID" json:"groups,omitempty"`
}

// TableName returns the table name for the model
func (Class) TableName() string {
	return "classes"
}

// BeforeCreate is called before creating a new record
func (c *Class) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ClassFilter represents filter criteria for classes
type ClassFilter struct {
	ID   *uint      `json:"id,omitempty"`
	UUID *uuid.UUID `json:"uuid,omitempty"`
	Name *string    `json:"name,omitempty"`
}
