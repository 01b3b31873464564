package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// PickerInstance is a named, durable picker configuration a user creates once
// and reuses. Name and scope are editable; deleting an instance cascades to
// all of its rounds and picks.
type PickerInstance struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_picker_instances_uuid" json:"uuid"`
	ClassID   uint       `gorm:"not null;index:idx_picker_instances_class_id" json:"class_id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	Scope     Scope      `gorm:"embedded;embeddedPrefix:scope_" json:"scope"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Class  *Class        `gorm:"foreignKey:ClassID;references:ID" json:"class,omitempty"`
	Rounds []PickerRound `gorm:"foreignKey:InstanceID" json:"rounds,omitempty"`
}

// TableName returns the table name for the model
func (PickerInstance) TableName() string {
	return "picker_instances"
}

// BeforeCreate is called before creating a new record
func (i *PickerInstance) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == uuid.Nil {
		i.UUID = uuid.New()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (i *PickerInstance) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	i.UpdatedAt = &now
	return nil
}

// PickerInstanceFilter represents filter criteria for picker instances
type PickerInstanceFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	ClassID *uint      `json:"class_id,omitempty"`
	Name    *string    `json:"name,omitempty"`
}
