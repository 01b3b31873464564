package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/models"
)

// TeamRepositoryImpl implements TeamRepository interface
type TeamRepositoryImpl struct {
	*BaseRepository[models.Team, models.TeamFilter]
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &TeamRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Team, models.TeamFilter](db),
	}
}

// ByUUID retrieves a team by its UUID, preloading the parent group
func (r *TeamRepositoryImpl) ByUUID(ctx context.Context, teamUUID uuid.UUID) (*models.Team, error) {
	db := r.getDB(ctx)

	var row models.Team
	err := db.Where("uuid = ?", teamUUID).
		Preload("Group").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find team by UUID: %w", err)
	}

	return &row, nil
}

// ListByGroup retrieves all teams of a group
func (r *TeamRepositoryImpl) ListByGroup(ctx context.Context, groupID uint) ([]*models.Team, error) {
	db := r.getDB(ctx)

	var rows []*models.Team
	err := db.Where("group_id = ?", groupID).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list teams by group: %w", err)
	}

	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *TeamRepositoryImpl) applyFilter(query *gorm.DB, filter models.TeamFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.GroupID != nil {
		query = query.Where("group_id = ?", *filter.GroupID)
	}
	return query
}

// ByFilter retrieves teams based on filter criteria
func (r *TeamRepositoryImpl) ByFilter(ctx context.Context, filter models.TeamFilter, orderBy string, limit, offset int) ([]*models.Team, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Team{}), filter)

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

	var rows []*models.Team
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of teams matching the filter
func (r *TeamRepositoryImpl) Count(ctx context.Context, filter models.TeamFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Team{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any team matching the filter exists
func (r *TeamRepositoryImpl) Exists(ctx context.Context, filter models.TeamFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
