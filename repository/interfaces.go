// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kokuban/kujibiki/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ClassRepository defines operations for classes
type ClassRepository interface {
	Repository[models.Class, models.ClassFilter]
	ByUUID(ctx context.Context, classUUID uuid.UUID) (*models.Class, error)
}

// StudentRepository defines roster lookups for the randomization tools
type StudentRepository interface {
	Repository[models.Student, models.StudentFilter]
	ByUUID(ctx context.Context, studentUUID uuid.UUID) (*models.Student, error)
	ListByClass(ctx context.Context, classID uint) ([]*models.Student, error)
	ListByGroup(ctx context.Context, groupID uint) ([]*models.Student, error)
	ListByTeam(ctx context.Context, teamID uint) ([]*models.Student, error)
}

// GroupRepository defines operations for class groups
type GroupRepository interface {
	Repository[models.Group, models.GroupFilter]
	ByUUID(ctx context.Context, groupUUID uuid.UUID) (*models.Group, error)
	ListByClass(ctx context.Context, classID uint) ([]*models.Group, error)
}

// TeamRepository defines operations for group teams
type TeamRepository interface {
	Repository[models.Team, models.TeamFilter]
	ByUUID(ctx context.Context, teamUUID uuid.UUID) (*models.Team, error)
	ListByGroup(ctx context.Context, groupID uint) ([]*models.Team, error)
}

// ShuffleRunRepository defines operations for shuffle run history
type ShuffleRunRepository interface {
	Repository[models.ShuffleRun, models.ShuffleRunFilter]
	ByUUID(ctx context.Context, runUUID uuid.UUID) (*models.ShuffleRun, error)
	ListByScope(ctx context.Context, classID uint, kind models.ScopeKind, targetID uuid.UUID, limit, offset int) ([]*models.ShuffleRun, error)
	UpdateCompletion(ctx context.Context, runID uint, completed pq.StringArray) error
}

// PickerInstanceRepository defines operations for picker instances
type PickerInstanceRepository interface {
	Repository[models.PickerInstance, models.PickerInstanceFilter]
	ByUUID(ctx context.Context, instanceUUID uuid.UUID) (*models.PickerInstance, error)
	ListByClass(ctx context.Context, classID uint) ([]*models.PickerInstance, error)
	Update(ctx context.Context, instance *models.PickerInstance) error
	DeleteWithHistory(ctx context.Context, instanceID uint) error
}

// PickerRoundRepository defines operations for picker rounds
type PickerRoundRepository interface {
	Repository[models.PickerRound, models.PickerRoundFilter]
	ByUUID(ctx context.Context, roundUUID uuid.UUID) (*models.PickerRound, error)
	ListActiveByInstance(ctx context.Context, instanceID uint) ([]*models.PickerRound, error)
	ListByInstance(ctx context.Context, instanceID uint, limit, offset int) ([]*models.PickerRound, error)
	Complete(ctx context.Context, roundID uint, completedAt time.Time) error
	CloseStale(ctx context.Context, roundIDs []uint, closedAt time.Time) error
}

// PickerPickRepository defines operations for recorded picks
type PickerPickRepository interface {
	Repository[models.PickerPick, models.PickerPickFilter]
	ListByRound(ctx context.Context, roundID uint) ([]*models.PickerPick, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByClass(ctx context.Context, classID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	ListAnomalyEvents(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
