// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kokuban/kujibiki/app/dto"
	"github.com/kokuban/kujibiki/app/middleware"
	businessflow "github.com/kokuban/kujibiki/business_flow"
	"github.com/kokuban/kujibiki/utils"
)

// PickerHandlerInterface defines the contract for picker handlers
type PickerHandlerInterface interface {
	CreateInstance(c fiber.Ctx) error
	ListInstances(c fiber.Ctx) error
	UpdateInstance(c fiber.Ctx) error
	DeleteInstance(c fiber.Ctx) error
	Pick(c fiber.Ctx) error
	StartNewRound(c fiber.Ctx) error
	ListRounds(c fiber.Ctx) error
	PickStats(c fiber.Ctx) error
	ExportPickStats(c fiber.Ctx) error
}

// PickerHandler handles picker-related HTTP requests
type PickerHandler struct {
	pickerFlow businessflow.PickerFlow
	validator  *validator.Validate
}

func (h *PickerHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PickerHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewPickerHandler creates a new picker handler
func NewPickerHandler(pickerFlow businessflow.PickerFlow) *PickerHandler {
	return &PickerHandler{
		pickerFlow: pickerFlow,
		validator:  validator.New(),
	}
}

// CreateInstance handles creating a picker instance
// @Summary Create Picker Instance
// @Description Create a named picker configuration bound to a class, group, or team scope
// @Tags Picker
// @Accept json
// @Produce json
// @Param classId path string true "Class UUID"
// @Param request body dto.CreatePickerInstanceRequest true "Instance name and scope"
// @Success 201 {object} dto.APIResponse{data=dto.CreatePickerInstanceResponse} "Instance created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Class or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/picker-instances [post]
func (h *PickerHandler) CreateInstance(c fiber.Ctx) error {
	classUUID := c.Params("classId")
	if classUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Class UUID is required", "MISSING_CLASS_UUID", nil)
	}

	var req dto.CreatePickerInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ClassUUID = classUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+classUUID+"/picker-instances")
	defer cancel()

	result, err := h.pickerFlow.CreateInstance(ctx, &req, metadata)
	if err != nil {
		if resp := h.scopeErrorResponse(c, err); resp != nil {
			return resp
		}
		if businessflow.IsInstanceNameRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance name is required", "INSTANCE_NAME_REQUIRED", nil)
		}

		log.Println("Picker instance creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance creation failed", "INSTANCE_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// ListInstances handles listing the picker instances of a class
// @Summary List Picker Instances
// @Description List all picker instances of a class, newest first
// @Tags Picker
// @Produce json
// @Param classId path string true "Class UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListPickerInstancesResponse} "Instances retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Class not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/picker-instances [get]
func (h *PickerHandler) ListInstances(c fiber.Ctx) error {
	classUUID := c.Params("classId")
	if classUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Class UUID is required", "MISSING_CLASS_UUID", nil)
	}

	req := dto.ListPickerInstancesRequest{ClassUUID: classUUID}

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+classUUID+"/picker-instances")
	defer cancel()

	result, err := h.pickerFlow.ListInstances(ctx, &req)
	if err != nil {
		if businessflow.IsClassNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Class not found", "CLASS_NOT_FOUND", nil)
		}

		log.Println("Listing picker instances failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list instances", "INSTANCE_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// UpdateInstance handles renaming or rescoping a picker instance
// @Summary Update Picker Instance
// @Description Rename or rescope an instance; round history is kept
// @Tags Picker
// @Accept json
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Param request body dto.UpdatePickerInstanceRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.UpdatePickerInstanceResponse} "Instance updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Instance or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid} [put]
func (h *PickerHandler) UpdateInstance(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	var req dto.UpdatePickerInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = instanceUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID)
	defer cancel()

	result, err := h.pickerFlow.UpdateInstance(ctx, &req, metadata)
	if err != nil {
		if resp := h.scopeErrorResponse(c, err); resp != nil {
			return resp
		}
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		if businessflow.IsInstanceUpdateEmpty(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Nothing to update", "INSTANCE_UPDATE_EMPTY", nil)
		}
		if businessflow.IsInstanceNameRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance name is required", "INSTANCE_NAME_REQUIRED", nil)
		}

		log.Println("Picker instance update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance update failed", "INSTANCE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// DeleteInstance handles deleting a picker instance and its history
// @Summary Delete Picker Instance
// @Description Delete an instance together with its whole round history
// @Tags Picker
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DeletePickerInstanceResponse} "Instance deleted successfully"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid} [delete]
func (h *PickerHandler) DeleteInstance(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	req := dto.DeletePickerInstanceRequest{UUID: instanceUUID}
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID)
	defer cancel()

	result, err := h.pickerFlow.DeleteInstance(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}

		log.Println("Picker instance deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Instance deletion failed", "INSTANCE_DELETION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// Pick handles drawing the next student of the current round
// @Summary Pick Student
// @Description Draw the next student without replacement from the instance's current round
// @Tags Picker
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PickResponse} "Student picked successfully"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 409 {object} dto.APIResponse "Every participant has already been picked this round"
// @Failure 422 {object} dto.APIResponse "Instance scope has no participants"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid}/picks [post]
func (h *PickerHandler) Pick(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	req := dto.PickRequest{InstanceUUID: instanceUUID}
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID+"/picks")
	defer cancel()

	result, err := h.pickerFlow.Pick(ctx, &req, metadata)
	middleware.RecordRandomization("pick", err == nil)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		if businessflow.IsRoundExhausted(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Every participant has been picked this round", "ROUND_EXHAUSTED", nil)
		}
		if businessflow.IsEmptyParticipantSet(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Instance scope has no participants", "EMPTY_PARTICIPANT_SET", nil)
		}
		if resp := h.scopeErrorResponse(c, err); resp != nil {
			return resp
		}

		log.Println("Pick failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Pick failed", "PICK_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// StartNewRound handles closing the current round and opening a fresh one
// @Summary Start New Round
// @Description Close any active round of the instance and open a fresh one with the full pool
// @Tags Picker
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 201 {object} dto.APIResponse{data=dto.StartNewRoundResponse} "New round started successfully"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid}/rounds [post]
func (h *PickerHandler) StartNewRound(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	req := dto.StartNewRoundRequest{InstanceUUID: instanceUUID}
	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID+"/rounds")
	defer cancel()

	result, err := h.pickerFlow.StartNewRound(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}

		log.Println("Starting new round failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start a new round", "ROUND_RESET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// ListRounds handles listing the round history of an instance
// @Summary List Picker Rounds
// @Description List the rounds of an instance with their picks, newest first
// @Tags Picker
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListPickerRoundsResponse} "Rounds retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid}/rounds [get]
func (h *PickerHandler) ListRounds(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "0"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "0"))

	req := dto.ListPickerRoundsRequest{
		InstanceUUID: instanceUUID,
		Page:         page,
		PageSize:     pageSize,
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID+"/rounds")
	defer cancel()

	result, err := h.pickerFlow.ListRounds(ctx, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}

		log.Println("Listing picker rounds failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list rounds", "ROUND_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// PickStats handles fetching position statistics of an instance
// @Summary Pick Statistics
// @Description Aggregate per-position pick counts per student over the instance's history
// @Tags Picker
// @Produce json
// @Param uuid path string true "Instance UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PickStatsResponse} "Statistics retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid}/stats [get]
func (h *PickerHandler) PickStats(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	req := dto.PickStatsRequest{InstanceUUID: instanceUUID}

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID+"/stats")
	defer cancel()

	result, err := h.pickerFlow.PickStats(ctx, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}

		log.Println("Fetching pick statistics failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch statistics", "STATS_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ExportPickStats handles exporting position statistics as a workbook
// @Summary Export Pick Statistics
// @Description Download the instance's position statistics as an Excel file
// @Tags Picker
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param uuid path string true "Instance UUID"
// @Success 200 {file} file "Excel workbook"
// @Failure 404 {object} dto.APIResponse "Instance not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/picker-instances/{uuid}/stats/export [get]
func (h *PickerHandler) ExportPickStats(c fiber.Ctx) error {
	instanceUUID := c.Params("uuid")
	if instanceUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Instance UUID is required", "MISSING_INSTANCE_UUID", nil)
	}

	req := dto.PickStatsRequest{InstanceUUID: instanceUUID}

	ctx, cancel := h.createRequestContext(c, "/api/v1/picker-instances/"+instanceUUID+"/stats/export")
	defer cancel()

	filename, data, err := h.pickerFlow.ExportPickStats(ctx, &req)
	if err != nil {
		if businessflow.IsInstanceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Instance not found", "INSTANCE_NOT_FOUND", nil)
		}

		log.Println("Exporting pick statistics failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate Excel", "EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// scopeErrorResponse maps scope resolution failures onto HTTP responses.
// Returns nil when the error is not scope-related.
func (h *PickerHandler) scopeErrorResponse(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsClassNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Class not found", "CLASS_NOT_FOUND", nil)
	case businessflow.IsGroupNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Group not found", "GROUP_NOT_FOUND", nil)
	case businessflow.IsTeamNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Team not found", "TEAM_NOT_FOUND", nil)
	case businessflow.IsScopeKindInvalid(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Scope kind is invalid", "SCOPE_KIND_INVALID", nil)
	case businessflow.IsScopeOutsideClass(err):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Scope target does not belong to the class", "SCOPE_OUTSIDE_CLASS", nil)
	default:
		return nil
	}
}

func (h *PickerHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	if operatorUUID, ok := c.Locals("operator_uuid").(string); ok {
		metadata.OperatorUUID = operatorUUID
	}
	return metadata
}

func (h *PickerHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and
// request-scoped values. Callers must defer the returned cancel so the timeout
// timer is released once the request finishes.
func (h *PickerHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}
