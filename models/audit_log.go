package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OperatorUUID *string         `gorm:"size:36;index:idx_audit_operator_uuid" json:"operator_uuid,omitempty"`
	ClassID      *uint           `gorm:"index:idx_audit_class_id" json:"class_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionShuffleRunCreated       = "shuffle_run_created"
	AuditActionShuffleRunFailed        = "shuffle_run_failed"
	AuditActionShuffleCompletionToggle = "shuffle_completion_toggled"
	AuditActionPickerInstanceCreated   = "picker_instance_created"
	AuditActionPickerInstanceUpdated   = "picker_instance_updated"
	AuditActionPickerInstanceDeleted   = "picker_instance_deleted"
	AuditActionPickerRoundStarted      = "picker_round_started"
	AuditActionPickerRoundCompleted    = "picker_round_completed"
	AuditActionPickerStudentPicked     = "picker_student_picked"
	AuditActionPickerPickFailed        = "picker_pick_failed"
	AuditActionRoundAnomalyResolved    = "picker_round_anomaly_resolved"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	OperatorUUID  *string
	ClassID       *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsAnomalyEvent reports whether the entry records an invariant violation
// that was resolved rather than a normal operation.
func (a *AuditLog) IsAnomalyEvent() bool {
	return a.Action == AuditActionRoundAnomalyResolved
}
