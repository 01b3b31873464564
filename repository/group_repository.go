package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// GroupRepositoryImpl implements GroupRepository interface
type GroupRepositoryImpl struct {
	*BaseRepository[models.Group, models.GroupFilter]
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &GroupRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Group, models.GroupFilter](db),
	}
}

// ByUUID retrieves a group by its UUID
func (r *GroupRepositoryImpl) ByUUID(ctx context.Context, groupUUID uuid.UUID) (*models.Group, error) {
	filter := models.GroupFilter{UUID: &groupUUID}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByClass retrieves all groups of a class
func (r *GroupRepositoryImpl) ListByClass(ctx context.Context, classID uint) ([]*models.Group, error) {
	db := r.getDB(ctx)

	var rows []*models.Group
	err := db.Where("class_id = ?", classID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups by class: %w", err)
	}

	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *GroupRepositoryImpl) applyFilter(query *gorm.DB, filter models.GroupFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	return query
}

// ByFilter retrieves groups based on filter criteria
func (r *GroupRepositoryImpl) ByFilter(ctx context.Context, filter models.GroupFilter, orderBy string, limit, offset int) ([]*models.Group, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Group{}), filter)

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

	var rows []*models.Group
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of groups matching the filter
func (r *GroupRepositoryImpl) Count(ctx context.Context, filter models.GroupFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Group{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any group matching the filter exists
func (r *GroupRepositoryImpl) Exists(ctx context.Context, filter models.GroupFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
