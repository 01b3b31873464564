package dto

// CreatePickerInstanceRequest represents the request to create a picker instance
type CreatePickerInstanceRequest struct {
	ClassUUID string       `json:"-"`
	Name      string       `json:"name" validate:"required,min=1,max=255"`
	Scope     ScopeRequest `json:"scope" validate:"required"`
}

// PickerInstanceDTO represents a picker instance in responses
type PickerInstanceDTO struct {
	UUID      string   `json:"uuid"`
	Name      string   `json:"name"`
	Scope     ScopeDTO `json:"scope"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt *string  `json:"updated_at,omitempty"`
}

// CreatePickerInstanceResponse represents the response to create a picker instance
type CreatePickerInstanceResponse struct {
	Message  string            `json:"message"`
	Instance PickerInstanceDTO `json:"instance"`
}

// ListPickerInstancesRequest represents the request to list instances of a class
type ListPickerInstancesRequest struct {
	ClassUUID string `json:"-"`
}

// ListPickerInstancesResponse represents the response to list instances
type ListPickerInstancesResponse struct {
	Message   string              `json:"message"`
	Instances []PickerInstanceDTO `json:"instances"`
}

// UpdatePickerInstanceRequest represents the request to rename or rescope an instance
type UpdatePickerInstanceRequest struct {
	UUID  string        `json:"-"`
	Name  *string       `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Scope *ScopeRequest `json:"scope,omitempty"`
}

// UpdatePickerInstanceResponse represents the response to an instance update
type UpdatePickerInstanceResponse struct {
	Message  string            `json:"message"`
	Instance PickerInstanceDTO `json:"instance"`
}

// DeletePickerInstanceRequest represents the request to delete an instance
type DeletePickerInstanceRequest struct {
	UUID string `json:"-"`
}

// DeletePickerInstanceResponse represents the response to an instance deletion
type DeletePickerInstanceResponse struct {
	Message string `json:"message"`
}

// PickRequest represents the request to draw the next student
type PickRequest struct {
	InstanceUUID string `json:"-"`
}

// PickDTO represents one recorded draw in responses
type PickDTO struct {
	StudentUUID string `json:"student_uuid"`
	StudentName string `json:"student_name"`
	Position    int    `json:"position"`
	PickedAt    string `json:"picked_at"`
}

// PickResponse represents the response to a draw
type PickResponse struct {
	Message        string  `json:"message"`
	RoundUUID      string  `json:"round_uuid"`
	Pick           PickDTO `json:"pick"`
	Remaining      int     `json:"remaining"`
	RoundCompleted bool    `json:"round_completed"`
}

// StartNewRoundRequest represents the request to close the current round and open a fresh one
type StartNewRoundRequest struct {
	InstanceUUID string `json:"-"`
}

// PickerRoundDTO represents a round in responses
type PickerRoundDTO struct {
	UUID        string    `json:"uuid"`
	StartedAt   string    `json:"started_at"`
	CompletedAt *string   `json:"completed_at,omitempty"`
	IsActive    bool      `json:"is_active"`
	Picks       []PickDTO `json:"picks"`
}

// StartNewRoundResponse represents the response to a round reset
type StartNewRoundResponse struct {
	Message string         `json:"message"`
	Round   PickerRoundDTO `json:"round"`
}

// ListPickerRoundsRequest represents the request to list round history of an instance
type ListPickerRoundsRequest struct {
	InstanceUUID string `json:"-"`
	Page         int    `json:"-" validate:"omitempty,min=1"`
	PageSize     int    `json:"-" validate:"omitempty,min=1,max=100"`
}

// ListPickerRoundsResponse represents the response to list round history
type ListPickerRoundsResponse struct {
	Message string           `json:"message"`
	Rounds  []PickerRoundDTO `json:"rounds"`
	Total   int64            `json:"total"`
}

// PickStatsRequest represents the request for position statistics of an instance
type PickStatsRequest struct {
	InstanceUUID string `json:"-"`
}

// PickStatRowDTO is one student's position history
type PickStatRowDTO struct {
	StudentUUID    string      `json:"student_uuid"`
	StudentName    string      `json:"student_name"`
	PositionCounts map[int]int `json:"position_counts"`
	TotalPicks     int         `json:"total_picks"`
}

// PickStatsResponse represents the response for position statistics
type PickStatsResponse struct {
	Message     string           `json:"message"`
	Stats       []PickStatRowDTO `json:"stats"`
	MaxPosition int              `json:"max_position"`
}
