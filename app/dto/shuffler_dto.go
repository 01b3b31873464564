package dto

// RunShuffleRequest represents the request to run a new shuffle
type RunShuffleRequest struct {
	ClassUUID string       `json:"-"`
	Scope     ScopeRequest `json:"scope" validate:"required"`
	Name      *string      `json:"name,omitempty" validate:"omitempty,max=255"`
}

// ShuffleEntryDTO is one position of a run's order
type ShuffleEntryDTO struct {
	StudentUUID string `json:"student_uuid"`
	StudentName string `json:"student_name"`
	Position    int    `json:"position"`
}

// ShuffleRunDTO represents a persisted run in responses
type ShuffleRunDTO struct {
	UUID                string            `json:"uuid"`
	Name                *string           `json:"name,omitempty"`
	Scope               ScopeDTO          `json:"scope"`
	RanAt               string            `json:"ran_at"`
	Order               []ShuffleEntryDTO `json:"order"`
	CompletedStudentIDs []string          `json:"completed_student_ids"`
}

// RunShuffleResponse represents the response to run a new shuffle
type RunShuffleResponse struct {
	Message string        `json:"message"`
	Run     ShuffleRunDTO `json:"run"`
}

// ListShuffleRunsRequest represents the request to list run history of a scope
type ListShuffleRunsRequest struct {
	ClassUUID  string `json:"-"`
	Kind       string `json:"-" validate:"required,oneof=class group team"`
	TargetUUID string `json:"-" validate:"required,uuid4"`
	Page       int    `json:"-" validate:"omitempty,min=1"`
	PageSize   int    `json:"-" validate:"omitempty,min=1,max=100"`
}

// ListShuffleRunsResponse represents the response to list run history
type ListShuffleRunsResponse struct {
	Message string          `json:"message"`
	Runs    []ShuffleRunDTO `json:"runs"`
	Total   int64           `json:"total"`
}

// GetShuffleRunRequest represents the request to get one run
type GetShuffleRunRequest struct {
	UUID string `json:"-"`
}

// GetShuffleRunResponse represents the response to get one run
type GetShuffleRunResponse struct {
	Message string        `json:"message"`
	Run     ShuffleRunDTO `json:"run"`
}

// ToggleCompletionRequest represents the request to flip a student's checkmark on a run
type ToggleCompletionRequest struct {
	RunUUID     string `json:"-"`
	StudentUUID string `json:"student_uuid" validate:"required,uuid4"`
}

// ToggleCompletionResponse represents the response to a completion toggle
type ToggleCompletionResponse struct {
	Message             string   `json:"message"`
	Completed           bool     `json:"completed"`
	CompletedStudentIDs []string `json:"completed_student_ids"`
}

// ShuffleStatsRequest represents the request for fairness statistics of a scope
type ShuffleStatsRequest struct {
	ClassUUID  string `json:"-"`
	Kind       string `json:"-" validate:"required,oneof=class group team"`
	TargetUUID string `json:"-" validate:"required,uuid4"`
}

// ShuffleStatRowDTO is one student's fairness counters
type ShuffleStatRowDTO struct {
	StudentUUID string `json:"student_uuid"`
	StudentName string `json:"student_name"`
	FirstCount  int    `json:"first_count"`
	LastCount   int    `json:"last_count"`
	TotalRuns   int    `json:"total_runs"`
}

// ShuffleStatsResponse represents the response for fairness statistics
type ShuffleStatsResponse struct {
	Message       string              `json:"message"`
	Scope         ScopeDTO            `json:"scope"`
	Stats         []ShuffleStatRowDTO `json:"stats"`
	TotalRuns     int64               `json:"total_runs"`
	MalformedRuns int                 `json:"malformed_runs"`
}
