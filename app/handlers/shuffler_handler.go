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

// ShufflerHandlerInterface defines the contract for shuffler handlers
type ShufflerHandlerInterface interface {
	RunShuffle(c fiber.Ctx) error
	ListRuns(c fiber.Ctx) error
	GetRun(c fiber.Ctx) error
	ToggleCompletion(c fiber.Ctx) error
	ShuffleStats(c fiber.Ctx) error
	ExportShuffleStats(c fiber.Ctx) error
}

// ShufflerHandler handles shuffle-related HTTP requests
type ShufflerHandler struct {
	shufflerFlow businessflow.ShufflerFlow
	validator    *validator.Validate
}

func (h *ShufflerHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ShufflerHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewShufflerHandler creates a new shuffler handler
func NewShufflerHandler(shufflerFlow businessflow.ShufflerFlow) *ShufflerHandler {
	return &ShufflerHandler{
		shufflerFlow: shufflerFlow,
		validator:    validator.New(),
	}
}

// RunShuffle handles running a new shuffle for a scope
// @Summary Run Shuffle
// @Description Generate a fair full ordering of the scope's participants and persist it
// @Tags Shuffler
// @Accept json
// @Produce json
// @Param classId path string true "Class UUID"
// @Param request body dto.RunShuffleRequest true "Shuffle scope and optional name"
// @Success 201 {object} dto.APIResponse{data=dto.RunShuffleResponse} "Shuffle completed successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Class or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/shuffles [post]
func (h *ShufflerHandler) RunShuffle(c fiber.Ctx) error {
	classUUID := c.Params("classId")
	if classUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Class UUID is required", "MISSING_CLASS_UUID", nil)
	}

	var req dto.RunShuffleRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+classUUID+"/shuffles")
	defer cancel()

	result, err := h.shufflerFlow.RunShuffle(ctx, &req, metadata)
	middleware.RecordRandomization("shuffle", err == nil)
	if err != nil {
		if resp := h.scopeErrorResponse(c, err); resp != nil {
			return resp
		}
		if businessflow.IsEmptyParticipantSet(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Scope has no participants", "EMPTY_PARTICIPANT_SET", nil)
		}
		if businessflow.IsTooManyParticipants(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Scope has too many participants", "TOO_MANY_PARTICIPANTS", nil)
		}
		if businessflow.IsDuplicateParticipant(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Scope contains duplicate participants", "DUPLICATE_PARTICIPANT", nil)
		}

		log.Println("Shuffle run failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Shuffle run failed", "SHUFFLE_RUN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// ListRuns handles listing the shuffle history of a scope
// @Summary List Shuffle Runs
// @Description List persisted shuffle runs of a scope, newest first
// @Tags Shuffler
// @Produce json
// @Param classId path string true "Class UUID"
// @Param kind query string true "Scope kind (class, group, team)"
// @Param target query string true "Scope target UUID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListShuffleRunsResponse} "Runs retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Class or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/shuffles [get]
func (h *ShufflerHandler) ListRuns(c fiber.Ctx) error {
	classUUID := c.Params("classId")
	if classUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Class UUID is required", "MISSING_CLASS_UUID", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "0"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "0"))

	req := dto.ListShuffleRunsRequest{
		ClassUUID:  classUUID,
		Kind:       c.Query("kind"),
		TargetUUID: c.Query("target"),
		Page:       page,
		PageSize:   pageSize,
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+classUUID+"/shuffles")
	defer cancel()

	result, err := h.shufflerFlow.ListRuns(ctx, &req)
	if err != nil {
		if resp := h.scopeErrorResponse(c, err); resp != nil {
			return resp
		}
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}

		log.Println("Listing shuffle runs failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list runs", "RUN_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// GetRun handles fetching a single shuffle run
// @Summary Get Shuffle Run
// @Description Get one persisted shuffle run with its full order and completion state
// @Tags Shuffler
// @Produce json
// @Param uuid path string true "Run UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetShuffleRunResponse} "Run retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Run not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/shuffles/{uuid} [get]
func (h *ShufflerHandler) GetRun(c fiber.Ctx) error {
	runUUID := c.Params("uuid")
	if runUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Run UUID is required", "MISSING_RUN_UUID", nil)
	}

	req := dto.GetShuffleRunRequest{UUID: runUUID}

	ctx, cancel := h.createRequestContext(c, "/api/v1/shuffles/"+runUUID)
	defer cancel()

	result, err := h.shufflerFlow.GetRun(ctx, &req)
	if err != nil {
		if businessflow.IsRunNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Run not found", "RUN_NOT_FOUND", nil)
		}

		log.Println("Fetching shuffle run failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch run", "RUN_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ToggleCompletion handles flipping a student's checkmark on a run
// @Summary Toggle Run Completion
// @Description Toggle whether a student of the run has taken their turn
// @Tags Shuffler
// @Accept json
// @Produce json
// @Param uuid path string true "Run UUID"
// @Param request body dto.ToggleCompletionRequest true "Student to toggle"
// @Success 200 {object} dto.APIResponse{data=dto.ToggleCompletionResponse} "Completion toggled successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Run not found"
// @Failure 422 {object} dto.APIResponse "Student is not part of the run"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/shuffles/{uuid}/completion [post]
func (h *ShufflerHandler) ToggleCompletion(c fiber.Ctx) error {
	runUUID := c.Params("uuid")
	if runUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Run UUID is required", "MISSING_RUN_UUID", nil)
	}

	var req dto.ToggleCompletionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.RunUUID = runUUID

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := h.clientMetadata(c)

	ctx, cancel := h.createRequestContext(c, "/api/v1/shuffles/"+runUUID+"/completion")
	defer cancel()

	result, err := h.shufflerFlow.ToggleCompletion(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsRunNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Run not found", "RUN_NOT_FOUND", nil)
		}
		if businessflow.IsStudentNotInRun(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Student is not part of the run", "STUDENT_NOT_IN_RUN", nil)
		}
		if businessflow.IsRunResultsBroken(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Run results are unreadable", "RUN_RESULTS_BROKEN", nil)
		}

		log.Println("Completion toggle failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to toggle completion", "COMPLETION_TOGGLE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ShuffleStats handles fetching fairness statistics of a scope
// @Summary Shuffle Statistics
// @Description Aggregate first/last counts per student over the scope's whole history
// @Tags Shuffler
// @Produce json
// @Param classId path string true "Class UUID"
// @Param kind query string true "Scope kind (class, group, team)"
// @Param target query string true "Scope target UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ShuffleStatsResponse} "Statistics retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Class or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/shuffle-stats [get]
func (h *ShufflerHandler) ShuffleStats(c fiber.Ctx) error {
	req, resp := h.statsRequest(c)
	if resp != nil {
		return resp
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+req.ClassUUID+"/shuffle-stats")
	defer cancel()

	result, err := h.shufflerFlow.ShuffleStats(ctx, req)
	if err != nil {
		if errResp := h.scopeErrorResponse(c, err); errResp != nil {
			return errResp
		}

		log.Println("Fetching shuffle statistics failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch statistics", "STATS_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ExportShuffleStats handles exporting fairness statistics as a workbook
// @Summary Export Shuffle Statistics
// @Description Download the scope's fairness statistics as an Excel file
// @Tags Shuffler
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param classId path string true "Class UUID"
// @Param kind query string true "Scope kind (class, group, team)"
// @Param target query string true "Scope target UUID"
// @Success 200 {file} file "Excel workbook"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Class or scope target not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/classes/{classId}/shuffle-stats/export [get]
func (h *ShufflerHandler) ExportShuffleStats(c fiber.Ctx) error {
	req, resp := h.statsRequest(c)
	if resp != nil {
		return resp
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/classes/"+req.ClassUUID+"/shuffle-stats/export")
	defer cancel()

	filename, data, err := h.shufflerFlow.ExportShuffleStats(ctx, req)
	if err != nil {
		if errResp := h.scopeErrorResponse(c, err); errResp != nil {
			return errResp
		}

		log.Println("Exporting shuffle statistics failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate Excel", "EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// statsRequest builds and validates the stats request from path and query parameters
func (h *ShufflerHandler) statsRequest(c fiber.Ctx) (*dto.ShuffleStatsRequest, error) {
	classUUID := c.Params("classId")
	if classUUID == "" {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Class UUID is required", "MISSING_CLASS_UUID", nil)
	}

	req := dto.ShuffleStatsRequest{
		ClassUUID:  classUUID,
		Kind:       c.Query("kind"),
		TargetUUID: c.Query("target"),
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	return &req, nil
}

// scopeErrorResponse maps scope resolution failures onto HTTP responses.
// Returns nil when the error is not scope-related.
func (h *ShufflerHandler) scopeErrorResponse(c fiber.Ctx, err error) error {
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

func (h *ShufflerHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	if operatorUUID, ok := c.Locals("operator_uuid").(string); ok {
		metadata.OperatorUUID = operatorUUID
	}
	return metadata
}

func (h *ShufflerHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and
// request-scoped values. Callers must defer the returned cancel so the timeout
// timer is released once the request finishes.
func (h *ShufflerHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}
