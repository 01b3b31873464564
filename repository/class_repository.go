package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// ClassRepositoryImpl implements ClassRepository interface
type ClassRepositoryImpl struct {
	*BaseRepository[models.Class, models.ClassFilter]
}

// NewClassRepository creates a new class repository
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &ClassRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Class, models.ClassFilter](db),
	}
}

// ByUUID retrieves a class by its UUID
func (r *ClassRepositoryImpl) ByUUID(ctx context.Context, classUUID uuid.UUID) (*models.Class, error) {
	filter := models.ClassFilter{UUID: &classUUID}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ClassRepositoryImpl) applyFilter(query *gorm.DB, filter models.ClassFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	return query
}

// ByFilter retrieves classes based on filter criteria
func (r *ClassRepositoryImpl) ByFilter(ctx context.Context, filter models.ClassFilter, orderBy string, limit, offset int) ([]*models.Class, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Class{}), filter)

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

	var rows []*models.Class
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of classes matching the filter
func (r *ClassRepositoryImpl) Count(ctx context.Context, filter models.ClassFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Class{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any class matching the filter exists
func (r *ClassRepositoryImpl) Exists(ctx context.Context, filter models.ClassFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
