package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// PickerInstanceRepositoryImpl implements PickerInstanceRepository interface
type PickerInstanceRepositoryImpl struct {
	*BaseRepository[models.PickerInstance, models.PickerInstanceFilter]
}

// NewPickerInstanceRepository creates a new picker instance repository
func NewPickerInstanceRepository(db *gorm.DB) PickerInstanceRepository {
	return &PickerInstanceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PickerInstance, models.PickerInstanceFilter](db),
	}
}

// ByUUID retrieves an instance by its UUID
func (r *PickerInstanceRepositoryImpl) ByUUID(ctx context.Context, instanceUUID uuid.UUID) (*models.PickerInstance, error) {
	filter := models.PickerInstanceFilter{UUID: &instanceUUID}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find instance by UUID: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByClass retrieves all instances of a class, newest first
func (r *PickerInstanceRepositoryImpl) ListByClass(ctx context.Context, classID uint) ([]*models.PickerInstance, error) {
	db := r.getDB(ctx)

	var rows []*models.PickerInstance
	err := db.Where("class_id = ?", classID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list instances by class: %w", err)
	}

	return rows, nil
}

// Update persists the editable fields of an instance (name and scope)
func (r *PickerInstanceRepositoryImpl) Update(ctx context.Context, instance *models.PickerInstance) error {
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

	err = db.Model(instance).
		Select("name", "scope_kind", "scope_target_id", "scope_display_name", "scope_parent_group_name", "updated_at").
		Updates(instance).Error
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	return nil
}

// DeleteWithHistory removes an instance together with all of its rounds and
// picks in a single transaction. There is no soft delete; history of a
// deleted instance is gone.
func (r *PickerInstanceRepositoryImpl) DeleteWithHistory(ctx context.Context, instanceID uint) error {
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

	roundIDs := db.Model(&models.PickerRound{}).Select("id").Where("instance_id = ?", instanceID)
	if err = db.Where("round_id IN (?)", roundIDs).Delete(&models.PickerPick{}).Error; err != nil {
		return fmt.Errorf("failed to delete instance picks: %w", err)
	}
	if err = db.Where("instance_id = ?", instanceID).Delete(&models.PickerRound{}).Error; err != nil {
		return fmt.Errorf("failed to delete instance rounds: %w", err)
	}
	if err = db.Delete(&models.PickerInstance{}, instanceID).Error; err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *PickerInstanceRepositoryImpl) applyFilter(query *gorm.DB, filter models.PickerInstanceFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	return query
}

// ByFilter retrieves instances based on filter criteria
func (r *PickerInstanceRepositoryImpl) ByFilter(ctx context.Context, filter models.PickerInstanceFilter, orderBy string, limit, offset int) ([]*models.PickerInstance, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerInstance{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PickerInstance
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of instances matching the filter
func (r *PickerInstanceRepositoryImpl) Count(ctx context.Context, filter models.PickerInstanceFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerInstance{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any instance matching the filter exists
func (r *PickerInstanceRepositoryImpl) Exists(ctx context.Context, filter models.PickerInstanceFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
