// Package businessflow contains the business logic for the randomization service.
package businessflow

import (
	"time"

	"github.com/kokuban/kujibiki/app/dto"
	"github.com/kokuban/kujibiki/config"
	"github.com/kokuban/kujibiki/models"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress    string            `json:"ip_address"`
	UserAgent    string            `json:"user_agent"`
	RequestID    string            `json:"request_id,omitempty"`
	OperatorUUID string            `json:"operator_uuid,omitempty"`
	Additional   map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// redisKey joins the configured prefix with a cache key
func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

// ToScopeDTO converts a scope model for responses
func ToScopeDTO(scope models.Scope) dto.ScopeDTO {
	return dto.ScopeDTO{
		Kind:            scope.Kind.String(),
		TargetUUID:      scope.TargetID.String(),
		DisplayName:     scope.DisplayName,
		ParentGroupName: scope.ParentGroupName,
	}
}

// ToShuffleRunDTO converts a run model for responses. A run whose results
// fail to parse still serializes; its order comes back empty.
func ToShuffleRunDTO(run models.ShuffleRun) dto.ShuffleRunDTO {
	order, _ := run.Order()
	entries := make([]dto.ShuffleEntryDTO, 0, len(order))
	for _, entry := range order {
		entries = append(entries, dto.ShuffleEntryDTO{
			StudentUUID: entry.StudentID.String(),
			StudentName: entry.StudentName,
			Position:    entry.Position,
		})
	}

	completed := make([]string, 0, len(run.CompletedStudentIDs))
	completed = append(completed, run.CompletedStudentIDs...)

	return dto.ShuffleRunDTO{
		UUID:                run.UUID.String(),
		Name:                run.Name,
		Scope:               ToScopeDTO(run.Scope),
		RanAt:               run.RanAt.Format(time.RFC3339),
		Order:               entries,
		CompletedStudentIDs: completed,
	}
}

// ToPickerInstanceDTO converts an instance model for responses
func ToPickerInstanceDTO(instance models.PickerInstance) dto.PickerInstanceDTO {
	out := dto.PickerInstanceDTO{
		UUID:      instance.UUID.String(),
		Name:      instance.Name,
		Scope:     ToScopeDTO(instance.Scope),
		CreatedAt: instance.CreatedAt.Format(time.RFC3339),
	}
	if instance.UpdatedAt != nil {
		updated := instance.UpdatedAt.Format(time.RFC3339)
		out.UpdatedAt = &updated
	}
	return out
}

// ToPickDTO converts a pick model for responses
func ToPickDTO(pick models.PickerPick) dto.PickDTO {
	return dto.PickDTO{
		StudentUUID: pick.StudentID.String(),
		StudentName: pick.StudentName,
		Position:    pick.Position,
		PickedAt:    pick.PickedAt.Format(time.RFC3339),
	}
}

// ToPickerRoundDTO converts a round model for responses
func ToPickerRoundDTO(round models.PickerRound) dto.PickerRoundDTO {
	picks := make([]dto.PickDTO, 0, len(round.Picks))
	for _, pick := range round.Picks {
		picks = append(picks, ToPickDTO(pick))
	}

	out := dto.PickerRoundDTO{
		UUID:      round.UUID.String(),
		StartedAt: round.StartedAt.Format(time.RFC3339),
		IsActive:  round.IsActive,
		Picks:     picks,
	}
	if round.CompletedAt != nil {
		completed := round.CompletedAt.Format(time.RFC3339)
		out.CompletedAt = &completed
	}
	return out
}

// paginate translates page/page-size inputs into limit and offset.
// Page defaults to 1 and page size to the given default.
func paginate(page, pageSize, defaultPageSize int) (limit, offset int, err error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if page < 1 {
		return 0, 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return 0, 0, ErrInvalidPageSize
	}
	return pageSize, (page - 1) * pageSize, nil
}
