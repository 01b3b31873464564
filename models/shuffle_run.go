package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/utils"
)

// ShuffleResult is one entry of a run's persisted order
type ShuffleResult struct {
	StudentID   uuid.UUID `json:"student_id"`
	StudentName string    `json:"student_name"`
	Position    int       `json:"position"`
}

// ShuffleRun represents one completed Shuffler invocation. A run is written
// atomically with its full order and is immutable afterwards, except for the
// operator-maintained completion checklist.
type ShuffleRun struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	UUID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_shuffler_runs_uuid" json:"uuid"`
	ClassID uint      `gorm:"not null;index:idx_shuffler_runs_class_id" json:"class_id"`
	Scope   Scope     `gorm:"embedded;embeddedPrefix:scope_" json:"scope"`
	Name    *string   `gorm:"size:255" json:"name,omitempty"`
	RanAt   time.Time `gorm:"not null;index:idx_shuffler_runs_ran_at" json:"ran_at"`

	// Results holds the full order as raw JSON. It is parsed leniently when
	// aggregating statistics so one corrupted run cannot poison the history.
	Results json.RawMessage `gorm:"type:jsonb;not null" json:"results"`

	// Denormalized for cheap first/last counting, mirroring the stored order.
	FirstStudentID uuid.UUID `gorm:"type:uuid;not null;index:idx_shuffler_runs_first_student" json:"first_student_id"`
	LastStudentID  uuid.UUID `gorm:"type:uuid;not null;index:idx_shuffler_runs_last_student" json:"last_student_id"`

	// CompletedStudentIDs is the operator checklist, independent of the order.
	CompletedStudentIDs pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"completed_student_ids"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Class *Class `gorm:"foreignKey:ClassID;references:ID" json:"class,omitempty"`
}

// TableName returns the table name for the model
func (ShuffleRun) TableName() string {
	return "shuffler_runs"
}

// BeforeCreate is called before creating a new record
func (r *ShuffleRun) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.RanAt.IsZero() {
		r.RanAt = utils.UTCNow()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	if r.CompletedStudentIDs == nil {
		r.CompletedStudentIDs = pq.StringArray{}
	}
	return nil
}

// Order parses the persisted results into the ordered entry list
func (r *ShuffleRun) Order() ([]ShuffleResult, error) {
	var results []ShuffleResult
	if err := json.Unmarshal(r.Results, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// IsCompleted reports whether the student is checked off on this run
func (r *ShuffleRun) IsCompleted(studentID uuid.UUID) bool {
	id := studentID.String()
	for _, completed := range r.CompletedStudentIDs {
		if completed == id {
			return true
		}
	}
	return false
}

// ToggledCompletion returns the checklist with the student's membership
// flipped. Applying it twice restores the original set.
func (r *ShuffleRun) ToggledCompletion(studentID uuid.UUID) pq.StringArray {
	id := studentID.String()
	if r.IsCompleted(studentID) {
		updated := make(pq.StringArray, 0, len(r.CompletedStudentIDs))
		for _, completed := range r.CompletedStudentIDs {
			if completed != id {
				updated = append(updated, completed)
			}
		}
		return updated
	}
	updated := make(pq.StringArray, 0, len(r.CompletedStudentIDs)+1)
	updated = append(updated, r.CompletedStudentIDs...)
	return append(updated, id)
}

// ShuffleRunFilter represents filter criteria for shuffle runs
type ShuffleRunFilter struct {
	ID          *uint      `json:"id,omitempty"`
	UUID        *uuid.UUID `json:"uuid,omitempty"`
	ClassID     *uint      `json:"class_id,omitempty"`
	ScopeKind   *ScopeKind `json:"scope_kind,omitempty"`
	ScopeTarget *uuid.UUID `json:"scope_target,omitempty"`
	RanAfter    *time.Time `json:"ran_after,omitempty"`
	RanBefore   *time.Time `json:"ran_before,omitempty"`
}
