package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// PickerRound is one draw-without-replacement session for an instance.
// At most one round per instance is active at any time; IsActive is the
// authoritative flag, not the absence of CompletedAt.
type PickerRound struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_picker_rounds_uuid" json:"uuid"`
	InstanceID  uint       `gorm:"not null;index:idx_picker_rounds_instance_id" json:"instance_id"`
	ClassID     uint       `gorm:"not null;index:idx_picker_rounds_class_id" json:"class_id"`
	Scope       Scope      `gorm:"embedded;embeddedPrefix:scope_" json:"scope"`
	StartedAt   time.Time  `gorm:"not null;index:idx_picker_rounds_started_at" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	IsActive    bool       `gorm:"not null;default:false;index:idx_picker_rounds_is_active" json:"is_active"`

	// Relations
	Instance *PickerInstance `gorm:"foreignKey:InstanceID;references:ID" json:"instance,omitempty"`
	Picks    []PickerPick    `gorm:"foreignKey:RoundID" json:"picks,omitempty"`
}

// TableName returns the table name for the model
func (PickerRound) TableName() string {
	return "picker_rounds"
}

// BeforeCreate is called before creating a new record
func (r *PickerRound) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = utils.UTCNow()
	}
	return nil
}

// PickedStudentIDs returns the IDs already drawn in this round, in pick order
func (r *PickerRound) PickedStudentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Picks))
	for _, pick := range r.Picks {
		ids = append(ids, pick.StudentID)
	}
	return ids
}

// NextPosition returns the 1-based position the next pick will receive
func (r *PickerRound) NextPosition() int {
	return len(r.Picks) + 1
}

// PickerRoundFilter represents filter criteria for picker rounds
type PickerRoundFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	InstanceID    *uint      `json:"instance_id,omitempty"`
	ClassID       *uint      `json:"class_id,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	StartedAfter  *time.Time `json:"started_after,omitempty"`
	StartedBefore *time.Time `json:"started_before,omitempty"`
}
