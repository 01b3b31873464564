package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// ShuffleRunRepositoryImpl implements ShuffleRunRepository interface
type ShuffleRunRepositoryImpl struct {
	*BaseRepository[models.ShuffleRun, models.ShuffleRunFilter]
}

// NewShuffleRunRepository creates a new shuffle run repository
func NewShuffleRunRepository(db *gorm.DB) ShuffleRunRepository {
	return &ShuffleRunRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ShuffleRun, models.ShuffleRunFilter](db),
	}
}

// ByUUID retrieves a run by its UUID
func (r *ShuffleRunRepositoryImpl) ByUUID(ctx context.Context, runUUID uuid.UUID) (*models.ShuffleRun, error) {
	filter := models.ShuffleRunFilter{UUID: &runUUID}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find run by UUID: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByScope retrieves the run history of one participant scope, newest first.
// A zero limit returns the full history; stats aggregation relies on that.
func (r *ShuffleRunRepositoryImpl) ListByScope(ctx context.Context, classID uint, kind models.ScopeKind, targetID uuid.UUID, limit, offset int) ([]*models.ShuffleRun, error) {
	db := r.getDB(ctx)

	query := db.Where("class_id = ? AND scope_kind = ? AND scope_target_id = ?", classID, kind, targetID).
		Order("ran_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.ShuffleRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs by scope: %w", err)
	}

	return rows, nil
}

// UpdateCompletion replaces the operator checklist of a run
func (r *ShuffleRunRepositoryImpl) UpdateCompletion(ctx context.Context, runID uint, completed pq.StringArray) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.ShuffleRun{}).
		Where("id = ?", runID).
		Update("completed_student_ids", completed).Error
	if err != nil {
		return fmt.Errorf("failed to update run completion: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ShuffleRunRepositoryImpl) applyFilter(query *gorm.DB, filter models.ShuffleRunFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.ScopeKind != nil {
		query = query.Where("scope_kind = ?", *filter.ScopeKind)
	}
	if filter.ScopeTarget != nil {
		query = query.Where("scope_target_id = ?", *filter.ScopeTarget)
	}
	if filter.RanAfter != nil {
		query = query.Where("ran_at > ?", *filter.RanAfter)
	}
	if filter.RanBefore != nil {
		query = query.Where("ran_at < ?", *filter.RanBefore)
	}
	return query
}

// ByFilter retrieves runs based on filter criteria
func (r *ShuffleRunRepositoryImpl) ByFilter(ctx context.Context, filter models.ShuffleRunFilter, orderBy string, limit, offset int) ([]*models.ShuffleRun, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShuffleRun{}), filter)

	if orderBy == "" {
		orderBy = "ran_at DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.ShuffleRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of runs matching the filter
func (r *ShuffleRunRepositoryImpl) Count(ctx context.Context, filter models.ShuffleRunFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShuffleRun{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any run matching the filter exists
func (r *ShuffleRunRepositoryImpl) Exists(ctx context.Context, filter models.ShuffleRunFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
