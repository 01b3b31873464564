// Package businessflow contains the core business logic and use cases for shuffler workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/kokuban/kujibiki/app/dto"
	"github.com/kokuban/kujibiki/config"
	"github.com/kokuban/kujibiki/models"
	"github.com/kokuban/kujibiki/randomizer"
	"github.com/kokuban/kujibiki/repository"
	"github.com/kokuban/kujibiki/utils"
)

// ShufflerFlow handles the shuffler business logic
type ShufflerFlow interface {
	RunShuffle(ctx context.Context, req *dto.RunShuffleRequest, metadata *ClientMetadata) (*dto.RunShuffleResponse, error)
	ListRuns(ctx context.Context, req *dto.ListShuffleRunsRequest) (*dto.ListShuffleRunsResponse, error)
	GetRun(ctx context.Context, req *dto.GetShuffleRunRequest) (*dto.GetShuffleRunResponse, error)
	ToggleCompletion(ctx context.Context, req *dto.ToggleCompletionRequest, metadata *ClientMetadata) (*dto.ToggleCompletionResponse, error)
	ShuffleStats(ctx context.Context, req *dto.ShuffleStatsRequest) (*dto.ShuffleStatsResponse, error)
	ExportShuffleStats(ctx context.Context, req *dto.ShuffleStatsRequest) (string, []byte, error)
}

// ShufflerFlowImpl implements the shuffler business flow
type ShufflerFlowImpl struct {
	classRepo   repository.ClassRepository
	groupRepo   repository.GroupRepository
	teamRepo    repository.TeamRepository
	studentRepo repository.StudentRepository
	runRepo     repository.ShuffleRunRepository
	auditRepo   repository.AuditLogRepository
	cacheConfig *config.CacheConfig
	rc          *redis.Client
	db          *gorm.DB
}

// NewShufflerFlow creates a new shuffler flow instance
func NewShufflerFlow(
	classRepo repository.ClassRepository,
	groupRepo repository.GroupRepository,
	teamRepo repository.TeamRepository,
	studentRepo repository.StudentRepository,
	runRepo repository.ShuffleRunRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) ShufflerFlow {
	return &ShufflerFlowImpl{
		classRepo:   classRepo,
		groupRepo:   groupRepo,
		teamRepo:    teamRepo,
		studentRepo: studentRepo,
		runRepo:     runRepo,
		auditRepo:   auditRepo,
		cacheConfig: cacheConfig,
		rc:          rc,
		db:          db,
	}
}

// RunShuffle generates a fair full ordering of the requested scope and
// persists it as a new run. The fairness constraint reads the full stored
// history of the scope, so the write happens only after a successful draw.
func (s *ShufflerFlowImpl) RunShuffle(ctx context.Context, req *dto.RunShuffleRequest, metadata *ClientMetadata) (*dto.RunShuffleResponse, error) {
	class, err := getClass(ctx, s.classRepo, req.ClassUUID)
	if err != nil {
		return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", err)
	}

	scope, participants, err := resolveScope(ctx, s.groupRepo, s.teamRepo, s.studentRepo, class, req.Scope)
	if err != nil {
		return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve scope", err)
	}

	if len(participants) == 0 {
		return nil, NewBusinessError("EMPTY_PARTICIPANT_SET", "Scope has no participants", ErrEmptyParticipantSet)
	}
	if len(participants) > utils.MaxShuffleParticipants {
		return nil, NewBusinessError("PARTICIPANT_SET_TOO_LARGE", "Scope has too many participants", ErrTooManyParticipants)
	}

	history, err := s.runRepo.ListByScope(ctx, class.ID, scope.Kind, scope.TargetID, 0, 0)
	if err != nil {
		return nil, NewBusinessError("HISTORY_LOOKUP_FAILED", "Failed to load run history", err)
	}

	stats, _ := randomizer.CalculateShuffleStats(history, rosterNames(participants))

	order, err := randomizer.Shuffle(participants, stats, randomizer.NewRand())
	if err != nil {
		return nil, NewBusinessError("SHUFFLE_FAILED", "Failed to shuffle participants", err)
	}

	results, err := json.Marshal(order)
	if err != nil {
		return nil, NewBusinessError("SHUFFLE_ENCODE_FAILED", "Failed to encode shuffle results", err)
	}

	run := &models.ShuffleRun{
		ClassID:        class.ID,
		Scope:          scope,
		Name:           req.Name,
		Results:        results,
		FirstStudentID: order[0].StudentID,
		LastStudentID:  order[len(order)-1].StudentID,
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.runRepo.Save(txCtx, run)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Shuffle run failed: %s", err.Error())
		_ = s.createAuditLog(ctx, &class.ID, models.AuditActionShuffleRunFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("SHUFFLE_RUN_FAILED", "Failed to persist shuffle run", err)
	}

	s.invalidateStatsCache(ctx, scope)

	msg := fmt.Sprintf("Shuffle run created: %s", run.UUID.String())
	_ = s.createAuditLog(ctx, &class.ID, models.AuditActionShuffleRunCreated, msg, true, nil, metadata)

	return &dto.RunShuffleResponse{
		Message: "Shuffle run created successfully",
		Run:     ToShuffleRunDTO(*run),
	}, nil
}

// ListRuns returns the run history of one scope, newest first
func (s *ShufflerFlowImpl) ListRuns(ctx context.Context, req *dto.ListShuffleRunsRequest) (*dto.ListShuffleRunsResponse, error) {
	class, err := getClass(ctx, s.classRepo, req.ClassUUID)
	if err != nil {
		return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", err)
	}

	scope, _, err := resolveScope(ctx, s.groupRepo, s.teamRepo, s.studentRepo, class, dto.ScopeRequest{
		Kind:       req.Kind,
		TargetUUID: req.TargetUUID,
	})
	if err != nil {
		return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve scope", err)
	}

	limit, offset, err := paginate(req.Page, req.PageSize, 20)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination parameters", err)
	}

	runs, err := s.runRepo.ListByScope(ctx, class.ID, scope.Kind, scope.TargetID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("HISTORY_LOOKUP_FAILED", "Failed to load run history", err)
	}

	total, err := s.runRepo.Count(ctx, models.ShuffleRunFilter{
		ClassID:     &class.ID,
		ScopeKind:   &scope.Kind,
		ScopeTarget: &scope.TargetID,
	})
	if err != nil {
		return nil, NewBusinessError("HISTORY_COUNT_FAILED", "Failed to count run history", err)
	}

	out := make([]dto.ShuffleRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, ToShuffleRunDTO(*run))
	}

	return &dto.ListShuffleRunsResponse{
		Message: "Runs retrieved successfully",
		Runs:    out,
		Total:   total,
	}, nil
}

// GetRun returns one run by UUID
func (s *ShufflerFlowImpl) GetRun(ctx context.Context, req *dto.GetShuffleRunRequest) (*dto.GetShuffleRunResponse, error) {
	run, err := s.getRun(ctx, req.UUID)
	if err != nil {
		return nil, err
	}

	return &dto.GetShuffleRunResponse{
		Message: "Run retrieved successfully",
		Run:     ToShuffleRunDTO(run),
	}, nil
}

// ToggleCompletion flips a student's checkmark on a run's checklist. The
// student must appear in the stored order; toggling twice restores the
// original state.
func (s *ShufflerFlowImpl) ToggleCompletion(ctx context.Context, req *dto.ToggleCompletionRequest, metadata *ClientMetadata) (*dto.ToggleCompletionResponse, error) {
	run, err := s.getRun(ctx, req.RunUUID)
	if err != nil {
		return nil, err
	}

	studentID, err := utils.ParseUUID(req.StudentUUID)
	if err != nil {
		return nil, NewBusinessError("STUDENT_UUID_INVALID", "Student UUID is invalid", ErrStudentNotFound)
	}

	order, err := run.Order()
	if err != nil {
		return nil, NewBusinessError("RUN_RESULTS_BROKEN", "Run results are unreadable", ErrRunResultsBroken)
	}

	inRun := false
	for _, entry := range order {
		if entry.StudentID == studentID {
			inRun = true
			break
		}
	}
	if !inRun {
		return nil, NewBusinessError("STUDENT_NOT_IN_RUN", "Student is not part of the run", ErrStudentNotInRun)
	}

	nowCompleted := !run.IsCompleted(studentID)
	updated := run.ToggledCompletion(studentID)

	if err := s.runRepo.UpdateCompletion(ctx, run.ID, updated); err != nil {
		return nil, NewBusinessError("COMPLETION_UPDATE_FAILED", "Failed to update completion checklist", err)
	}

	msg := fmt.Sprintf("Completion toggled for student %s on run %s", studentID, run.UUID)
	_ = s.createAuditLog(ctx, &run.ClassID, models.AuditActionShuffleCompletionToggle, msg, true, nil, metadata)

	return &dto.ToggleCompletionResponse{
		Message:             "Completion toggled successfully",
		Completed:           nowCompleted,
		CompletedStudentIDs: updated,
	}, nil
}

// ShuffleStats returns the fairness counters of every current participant of
// a scope, including all-zero rows for students with no history yet. Results
// are cached briefly; any new run invalidates the cache.
func (s *ShufflerFlowImpl) ShuffleStats(ctx context.Context, req *dto.ShuffleStatsRequest) (*dto.ShuffleStatsResponse, error) {
	class, err := getClass(ctx, s.classRepo, req.ClassUUID)
	if err != nil {
		return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", err)
	}

	scope, participants, err := resolveScope(ctx, s.groupRepo, s.teamRepo, s.studentRepo, class, dto.ScopeRequest{
		Kind:       req.Kind,
		TargetUUID: req.TargetUUID,
	})
	if err != nil {
		return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve scope", err)
	}

	cacheKey := s.statsCacheKey(scope)
	if s.rc != nil {
		if bs, err := s.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
			var cached dto.ShuffleStatsResponse
			if err := json.Unmarshal(bs, &cached); err == nil {
				cached.Message = "Statistics retrieved from cache"
				return &cached, nil
			}
		}
	}

	history, err := s.runRepo.ListByScope(ctx, class.ID, scope.Kind, scope.TargetID, 0, 0)
	if err != nil {
		return nil, NewBusinessError("HISTORY_LOOKUP_FAILED", "Failed to load run history", err)
	}

	stats, malformed := randomizer.CalculateShuffleStats(history, rosterNames(participants))

	rows := make(map[string]dto.ShuffleStatRowDTO, len(participants))
	for _, stat := range stats {
		rows[stat.StudentID.String()] = dto.ShuffleStatRowDTO{
			StudentUUID: stat.StudentID.String(),
			StudentName: stat.StudentName,
			FirstCount:  stat.FirstCount,
			LastCount:   stat.LastCount,
			TotalRuns:   stat.TotalRuns,
		}
	}
	// Students with no history get explicit zero rows.
	for _, p := range participants {
		if _, ok := rows[p.ID.String()]; !ok {
			rows[p.ID.String()] = dto.ShuffleStatRowDTO{
				StudentUUID: p.ID.String(),
				StudentName: p.Name,
			}
		}
	}

	out := make([]dto.ShuffleStatRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StudentName < out[j].StudentName
	})

	resp := &dto.ShuffleStatsResponse{
		Message:       "Statistics retrieved successfully",
		Scope:         ToScopeDTO(scope),
		Stats:         out,
		TotalRuns:     int64(len(history)),
		MalformedRuns: malformed,
	}

	if s.rc != nil {
		if bs, err := json.Marshal(resp); err == nil {
			_ = s.rc.Set(ctx, cacheKey, bs, utils.StatsCacheTTL).Err()
		}
	}

	return resp, nil
}

// ExportShuffleStats renders the fairness counters of a scope as a workbook
func (s *ShufflerFlowImpl) ExportShuffleStats(ctx context.Context, req *dto.ShuffleStatsRequest) (string, []byte, error) {
	resp, err := s.ShuffleStats(ctx, req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := sanitizeSheetName(resp.Scope.DisplayName)
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"student", "first_count", "last_count", "total_runs"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for ri, row := range resp.Stats {
		record := []any{row.StudentName, row.FirstCount, row.LastCount, row.TotalRuns}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("shuffle_stats_%s_%s.xlsx", resp.Scope.Kind, time.Now().UTC().Format("20060102"))
	return filename, buf.Bytes(), nil
}

// getRun resolves a run by its UUID string
func (s *ShufflerFlowImpl) getRun(ctx context.Context, runUUID string) (models.ShuffleRun, error) {
	id, err := utils.ParseUUID(runUUID)
	if err != nil {
		return models.ShuffleRun{}, NewBusinessError("RUN_NOT_FOUND", "Run not found", ErrRunNotFound)
	}

	run, err := s.runRepo.ByUUID(ctx, id)
	if err != nil {
		return models.ShuffleRun{}, NewBusinessError("RUN_LOOKUP_FAILED", "Failed to lookup run", err)
	}
	if run == nil {
		return models.ShuffleRun{}, NewBusinessError("RUN_NOT_FOUND", "Run not found", ErrRunNotFound)
	}

	return *run, nil
}

func (s *ShufflerFlowImpl) statsCacheKey(scope models.Scope) string {
	key := fmt.Sprintf(utils.ShuffleStatsCacheKey, scope.Kind, scope.TargetID)
	return redisKey(*s.cacheConfig, key)
}

func (s *ShufflerFlowImpl) invalidateStatsCache(ctx context.Context, scope models.Scope) {
	if s.rc == nil {
		return
	}
	_ = s.rc.Del(ctx, s.statsCacheKey(scope)).Err()
}

// createAuditLog creates an audit log entry for the shuffler operation
func (s *ShufflerFlowImpl) createAuditLog(ctx context.Context, classID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	audit := &models.AuditLog{
		ClassID:      classID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}

	if metadata != nil {
		audit.IPAddress = &metadata.IPAddress
		audit.UserAgent = &metadata.UserAgent
		if metadata.OperatorUUID != "" {
			audit.OperatorUUID = &metadata.OperatorUUID
		}
	}

	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		if requestIDStr, ok := requestID.(string); ok {
			audit.RequestID = &requestIDStr
		}
	}

	return s.auditRepo.Save(ctx, audit)
}

func sanitizeSheetName(name string) string {
	// Excel sheet names cannot contain: : \ / ? * [ ] and must be <= 31 chars
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	trimmed := string(out)
	if len(trimmed) > 31 {
		trimmed = trimmed[:31]
	}
	if trimmed == "" {
		return "Sheet"
	}
	return trimmed
}
