package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// StudentRepositoryImpl implements StudentRepository interface
type StudentRepositoryImpl struct {
	*BaseRepository[models.Student, models.StudentFilter]
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &StudentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Student, models.StudentFilter](db),
	}
}

// ByUUID retrieves a student by their UUID
func (r *StudentRepositoryImpl) ByUUID(ctx context.Context, studentUUID uuid.UUID) (*models.Student, error) {
	filter := models.StudentFilter{UUID: &studentUUID}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByClass retrieves the full roster of a class in stable roster order
func (r *StudentRepositoryImpl) ListByClass(ctx context.Context, classID uint) ([]*models.Student, error) {
	db := r.getDB(ctx)

	var rows []*models.Student
	err := db.Where("class_id = ?", classID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students by class: %w", err)
	}

	return rows, nil
}

// ListByGroup retrieves the members of a group in stable roster order
func (r *StudentRepositoryImpl) ListByGroup(ctx context.Context, groupID uint) ([]*models.Student, error) {
	db := r.getDB(ctx)

	var rows []*models.Student
	err := db.Joins("JOIN student_groups ON student_groups.student_id = students.id").
		Where("student_groups.group_id = ?", groupID).
		Order("students.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students by group: %w", err)
	}

	return rows, nil
}

// ListByTeam retrieves the members of a team in stable roster order
func (r *StudentRepositoryImpl) ListByTeam(ctx context.Context, teamID uint) ([]*models.Student, error) {
	db := r.getDB(ctx)

	var rows []*models.Student
	err := db.Joins("JOIN student_teams ON student_teams.student_id = students.id").
		Where("student_teams.team_id = ?", teamID).
		Order("students.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students by team: %w", err)
	}

	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *StudentRepositoryImpl) applyFilter(query *gorm.DB, filter models.StudentFilter) *gorm.DB {
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

// ByFilter retrieves students based on filter criteria
func (r *StudentRepositoryImpl) ByFilter(ctx context.Context, filter models.StudentFilter, orderBy string, limit, offset int) ([]*models.Student, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Student{}), filter)

	if orderBy == "" {
		orderBy = "id ASC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Student
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of students matching the filter
func (r *StudentRepositoryImpl) Count(ctx context.Context, filter models.StudentFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Student{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any student matching the filter exists
func (r *StudentRepositoryImpl) Exists(ctx context.Context, filter models.StudentFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
