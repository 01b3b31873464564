package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// PickerRoundRepositoryImpl implements PickerRoundRepository interface
type PickerRoundRepositoryImpl struct {
	*BaseRepository[models.PickerRound, models.PickerRoundFilter]
}

// NewPickerRoundRepository creates a new picker round repository
func NewPickerRoundRepository(db *gorm.DB) PickerRoundRepository {
	return &PickerRoundRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PickerRound, models.PickerRoundFilter](db),
	}
}

func preloadPicks(db *gorm.DB) *gorm.DB {
	return db.Order("picker_picks.position ASC")
}

// ByUUID retrieves a round by its UUID with picks preloaded in pick order
func (r *PickerRoundRepositoryImpl) ByUUID(ctx context.Context, roundUUID uuid.UUID) (*models.PickerRound, error) {
	db := r.getDB(ctx)

	var row models.PickerRound
	err := db.Where("uuid = ?", roundUUID).
		Preload("Picks", preloadPicks).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find round by UUID: %w", err)
	}

	return &row, nil
}

// ListActiveByInstance retrieves every active round of an instance, newest
// first, with picks preloaded. The invariant is at most one; callers treat
// additional rows as an anomaly to resolve.
func (r *PickerRoundRepositoryImpl) ListActiveByInstance(ctx context.Context, instanceID uint) ([]*models.PickerRound, error) {
	db := r.getDB(ctx)

	var rows []*models.PickerRound
	err := db.Where("instance_id = ? AND is_active = ?", instanceID, true).
		Order("started_at DESC, id DESC").
		Preload("Picks", preloadPicks).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active rounds: %w", err)
	}

	return rows, nil
}

// ListByInstance retrieves the round history of an instance, newest first,
// with picks preloaded. A zero limit returns the full history.
func (r *PickerRoundRepositoryImpl) ListByInstance(ctx context.Context, instanceID uint, limit, offset int) ([]*models.PickerRound, error) {
	db := r.getDB(ctx)

	query := db.Where("instance_id = ?", instanceID).
		Order("started_at DESC, id DESC").
		Preload("Picks", preloadPicks)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PickerRound
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rounds by instance: %w", err)
	}

	return rows, nil
}

// Complete closes a round: stamps completed_at and clears the active flag
// in the same statement so the two can never diverge.
func (r *PickerRoundRepositoryImpl) Complete(ctx context.Context, roundID uint, completedAt time.Time) error {
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

	err = db.Model(&models.PickerRound{}).
		Where("id = ?", roundID).
		Updates(map[string]any{
			"completed_at": completedAt,
			"is_active":    false,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete round: %w", err)
	}

	return nil
}

// CloseStale closes a batch of rounds that violated the single-active-round
// invariant. Their completed_at is stamped with the resolution time.
func (r *PickerRoundRepositoryImpl) CloseStale(ctx context.Context, roundIDs []uint, closedAt time.Time) error {
	if len(roundIDs) == 0 {
		return nil
	}

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

	err = db.Model(&models.PickerRound{}).
		Where("id IN ?", roundIDs).
		Updates(map[string]any{
			"completed_at": closedAt,
			"is_active":    false,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to close stale rounds: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *PickerRoundRepositoryImpl) applyFilter(query *gorm.DB, filter models.PickerRoundFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.InstanceID != nil {
		query = query.Where("instance_id = ?", *filter.InstanceID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.StartedAfter != nil {
		query = query.Where("started_at > ?", *filter.StartedAfter)
	}
	if filter.StartedBefore != nil {
		query = query.Where("started_at < ?", *filter.StartedBefore)
	}
	return query
}

// ByFilter retrieves rounds based on filter criteria
func (r *PickerRoundRepositoryImpl) ByFilter(ctx context.Context, filter models.PickerRoundFilter, orderBy string, limit, offset int) ([]*models.PickerRound, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerRound{}), filter)

	if orderBy == "" {
		orderBy = "started_at DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PickerRound
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of rounds matching the filter
func (r *PickerRoundRepositoryImpl) Count(ctx context.Context, filter models.PickerRoundFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerRound{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any round matching the filter exists
func (r *PickerRoundRepositoryImpl) Exists(ctx context.Context, filter models.PickerRoundFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
