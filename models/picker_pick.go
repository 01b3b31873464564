package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// PickerPick records one draw within a round. Positions are 1-based, unique
// per round, and strictly increasing in pick order; the unique index turns a
// racing duplicate into a write error instead of a silent collision.
type PickerPick struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_picker_picks_uuid" json:"uuid"`
	RoundID     uint      `gorm:"not null;uniqueIndex:uk_picker_picks_round_position;index:idx_picker_picks_round_id" json:"round_id"`
	StudentID   uuid.UUID `gorm:"type:uuid;not null;index:idx_picker_picks_student_id" json:"student_id"`
	StudentName string    `gorm:"size:255;not null" json:"student_name"`
	Position    int       `gorm:"not null;uniqueIndex:uk_picker_picks_round_position" json:"position"`
	PickedAt    time.Time `gorm:"not null" json:"picked_at"`

	// Relations
	Round *PickerRound `gorm:"foreignKey:RoundID;references:ID" json:"round,omitempty"`
}

// TableName returns the table name for the model
func (PickerPick) TableName() string {
	return "picker_picks"
}

// BeforeCreate is called before creating a new record
func (p *PickerPick) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.PickedAt.IsZero() {
		p.PickedAt = utils.UTCNow()
	}
	return nil
}

// PickerPickFilter represents filter criteria for picks
type PickerPickFilter struct {
	ID        *uint      `json:"id,omitempty"`
	RoundID   *uint      `json:"round_id,omitempty"`
	StudentID *uuid.UUID `json:"student_id,omitempty"`
}
