package dto

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// ScopeRequest selects the participant subset an operation applies to
type ScopeRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=class group team"`
	TargetUUID string `json:"target_uuid" validate:"required,uuid4"`
}

// ScopeDTO represents a resolved scope in responses
type ScopeDTO struct {
	Kind            string  `json:"kind"`
	TargetUUID      string  `json:"target_uuid"`
	DisplayName     string  `json:"display_name"`
	ParentGroupName *string `json:"parent_group_name,omitempty"`
}
