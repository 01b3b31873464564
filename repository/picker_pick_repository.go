package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// PickerPickRepositoryImpl implements PickerPickRepository interface
type PickerPickRepositoryImpl struct {
	*BaseRepository[models.PickerPick, models.PickerPickFilter]
}

// NewPickerPickRepository creates a new picker pick repository
func NewPickerPickRepository(db *gorm.DB) PickerPickRepository {
	return &PickerPickRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PickerPick, models.PickerPickFilter](db),
	}
}

// ListByRound retrieves the picks of a round in pick order
func (r *PickerPickRepositoryImpl) ListByRound(ctx context.Context, roundID uint) ([]*models.PickerPick, error) {
	db := r.getDB(ctx)

	var rows []*models.PickerPick
	err := db.Where("round_id = ?", roundID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list picks by round: %w", err)
	}

	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *PickerPickRepositoryImpl) applyFilter(query *gorm.DB, filter models.PickerPickFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.RoundID != nil {
		query = query.Where("round_id = ?", *filter.RoundID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	return query
}

// ByFilter retrieves picks based on filter criteria
func (r *PickerPickRepositoryImpl) ByFilter(ctx context.Context, filter models.PickerPickFilter, orderBy string, limit, offset int) ([]*models.PickerPick, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerPick{}), filter)

	if orderBy == "" {
		orderBy = "position ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.PickerPick
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of picks matching the filter
func (r *PickerPickRepositoryImpl) Count(ctx context.Context, filter models.PickerPickFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.PickerPick{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any pick matching the filter exists
func (r *PickerPickRepositoryImpl) Exists(ctx context.Context, filter models.PickerPickFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
