// Package businessflow contains the core business logic and use cases for picker workflows
package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

// PickerFlow handles the picker business logic
type PickerFlow interface {
	CreateInstance(ctx context.Context, req *dto.CreatePickerInstanceRequest, metadata *ClientMetadata) (*dto.CreatePickerInstanceResponse, error)
	ListInstances(ctx context.Context, req *dto.ListPickerInstancesRequest) (*dto.ListPickerInstancesResponse, error)
	UpdateInstance(ctx context.Context, req *dto.UpdatePickerInstanceRequest, metadata *ClientMetadata) (*dto.UpdatePickerInstanceResponse, error)
	DeleteInstance(ctx context.Context, req *dto.DeletePickerInstanceRequest, metadata *ClientMetadata) (*dto.DeletePickerInstanceResponse, error)
	Pick(ctx context.Context, req *dto.PickRequest, metadata *ClientMetadata) (*dto.PickResponse, error)
	StartNewRound(ctx context.Context, req *dto.StartNewRoundRequest, metadata *ClientMetadata) (*dto.StartNewRoundResponse, error)
	ListRounds(ctx context.Context, req *dto.ListPickerRoundsRequest) (*dto.ListPickerRoundsResponse, error)
	PickStats(ctx context.Context, req *dto.PickStatsRequest) (*dto.PickStatsResponse, error)
	ExportPickStats(ctx context.Context, req *dto.PickStatsRequest) (string, []byte, error)
}

// PickerFlowImpl implements the picker business flow
type PickerFlowImpl struct {
	classRepo    repository.ClassRepository
	groupRepo    repository.GroupRepository
	teamRepo     repository.TeamRepository
	studentRepo  repository.StudentRepository
	instanceRepo repository.PickerInstanceRepository
	roundRepo    repository.PickerRoundRepository
	pickRepo     repository.PickerPickRepository
	auditRepo    repository.AuditLogRepository
	cacheConfig  *config.CacheConfig
	rc           *redis.Client
	db           *gorm.DB
}

// NewPickerFlow creates a new picker flow instance
func NewPickerFlow(
	classRepo repository.ClassRepository,
	groupRepo repository.GroupRepository,
	teamRepo repository.TeamRepository,
	studentRepo repository.StudentRepository,
	instanceRepo repository.PickerInstanceRepository,
	roundRepo repository.PickerRoundRepository,
	pickRepo repository.PickerPickRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) PickerFlow {
	return &PickerFlowImpl{
		classRepo:    classRepo,
		groupRepo:    groupRepo,
		teamRepo:     teamRepo,
		studentRepo:  studentRepo,
		instanceRepo: instanceRepo,
		roundRepo:    roundRepo,
		pickRepo:     pickRepo,
		auditRepo:    auditRepo,
		cacheConfig:  cacheConfig,
		rc:           rc,
		db:           db,
	}
}

// CreateInstance creates a named picker configuration bound to a scope
func (s *PickerFlowImpl) CreateInstance(ctx context.Context, req *dto.CreatePickerInstanceRequest, metadata *ClientMetadata) (*dto.CreatePickerInstanceResponse, error) {
	class, err := getClass(ctx, s.classRepo, req.ClassUUID)
	if err != nil {
		return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewBusinessError("INSTANCE_NAME_REQUIRED", "Instance name is required", ErrInstanceNameRequired)
	}

	scope, _, err := resolveScope(ctx, s.groupRepo, s.teamRepo, s.studentRepo, class, req.Scope)
	if err != nil {
		return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve scope", err)
	}

	instance := &models.PickerInstance{
		ClassID: class.ID,
		Name:    name,
		Scope:   scope,
	}

	if err := s.instanceRepo.Save(ctx, instance); err != nil {
		return nil, NewBusinessError("INSTANCE_CREATION_FAILED", "Failed to create instance", err)
	}

	msg := fmt.Sprintf("Picker instance created: %s", instance.UUID)
	_ = s.createAuditLog(ctx, &class.ID, models.AuditActionPickerInstanceCreated, msg, true, nil, metadata)

	return &dto.CreatePickerInstanceResponse{
		Message:  "Instance created successfully",
		Instance: ToPickerInstanceDTO(*instance),
	}, nil
}

// ListInstances returns all instances of a class, newest first
func (s *PickerFlowImpl) ListInstances(ctx context.Context, req *dto.ListPickerInstancesRequest) (*dto.ListPickerInstancesResponse, error) {
	class, err := getClass(ctx, s.classRepo, req.ClassUUID)
	if err != nil {
		return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", err)
	}

	instances, err := s.instanceRepo.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, NewBusinessError("INSTANCE_LIST_FAILED", "Failed to list instances", err)
	}

	out := make([]dto.PickerInstanceDTO, 0, len(instances))
	for _, instance := range instances {
		out = append(out, ToPickerInstanceDTO(*instance))
	}

	return &dto.ListPickerInstancesResponse{
		Message:   "Instances retrieved successfully",
		Instances: out,
	}, nil
}

// UpdateInstance renames or rescopes an instance. Rescoping keeps the round
// history; past picks keep their recorded names.
func (s *PickerFlowImpl) UpdateInstance(ctx context.Context, req *dto.UpdatePickerInstanceRequest, metadata *ClientMetadata) (*dto.UpdatePickerInstanceResponse, error) {
	if req.Name == nil && req.Scope == nil {
		return nil, NewBusinessError("INSTANCE_UPDATE_EMPTY", "Nothing to update", ErrInstanceUpdateEmpty)
	}

	instance, err := s.getInstance(ctx, req.UUID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewBusinessError("INSTANCE_NAME_REQUIRED", "Instance name is required", ErrInstanceNameRequired)
		}
		instance.Name = name
	}

	if req.Scope != nil {
		class, err := s.classRepo.ByID(ctx, instance.ClassID)
		if err != nil || class == nil {
			return nil, NewBusinessError("CLASS_LOOKUP_FAILED", "Failed to lookup class", ErrClassNotFound)
		}

		scope, _, err := resolveScope(ctx, s.groupRepo, s.teamRepo, s.studentRepo, *class, *req.Scope)
		if err != nil {
			return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve scope", err)
		}
		instance.Scope = scope
	}

	if err := s.instanceRepo.Update(ctx, &instance); err != nil {
		return nil, NewBusinessError("INSTANCE_UPDATE_FAILED", "Failed to update instance", err)
	}

	// Rescoping changes the participant set the stats report against.
	s.invalidateStatsCache(ctx, instance.UUID.String())

	msg := fmt.Sprintf("Picker instance updated: %s", instance.UUID)
	_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerInstanceUpdated, msg, true, nil, metadata)

	return &dto.UpdatePickerInstanceResponse{
		Message:  "Instance updated successfully",
		Instance: ToPickerInstanceDTO(instance),
	}, nil
}

// DeleteInstance removes an instance and its whole round history
func (s *PickerFlowImpl) DeleteInstance(ctx context.Context, req *dto.DeletePickerInstanceRequest, metadata *ClientMetadata) (*dto.DeletePickerInstanceResponse, error) {
	instance, err := s.getInstance(ctx, req.UUID)
	if err != nil {
		return nil, err
	}

	if err := s.instanceRepo.DeleteWithHistory(ctx, instance.ID); err != nil {
		return nil, NewBusinessError("INSTANCE_DELETION_FAILED", "Failed to delete instance", err)
	}

	s.invalidateStatsCache(ctx, instance.UUID.String())

	msg := fmt.Sprintf("Picker instance deleted: %s", instance.UUID)
	_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerInstanceDeleted, msg, true, nil, metadata)

	return &dto.DeletePickerInstanceResponse{
		Message: "Instance deleted successfully",
	}, nil
}

// Pick draws the next student of the instance's current round, creating the
// round on first use. The draw, the position assignment, and the pick write
// happen in one transaction; the unique round/position index turns a racing
// duplicate into an error instead of a silent collision.
func (s *PickerFlowImpl) Pick(ctx context.Context, req *dto.PickRequest, metadata *ClientMetadata) (*dto.PickResponse, error) {
	instance, err := s.getInstance(ctx, req.InstanceUUID)
	if err != nil {
		return nil, err
	}

	participants, err := loadScopeParticipants(ctx, s.groupRepo, s.teamRepo, s.studentRepo, instance.ClassID, instance.Scope)
	if err != nil {
		return nil, NewBusinessError("SCOPE_RESOLUTION_FAILED", "Failed to resolve instance scope", err)
	}
	if len(participants) == 0 {
		return nil, NewBusinessError("EMPTY_PARTICIPANT_SET", "Instance scope has no participants", ErrEmptyParticipantSet)
	}

	var (
		resp          dto.PickResponse
		startedRound  bool
		staleResolved int
	)

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		actives, err := s.roundRepo.ListActiveByInstance(txCtx, instance.ID)
		if err != nil {
			return err
		}

		// At most one round may be active. Keep the most recently started
		// one and close the rest before drawing.
		var round *models.PickerRound
		if len(actives) > 0 {
			round = actives[0]
			if len(actives) > 1 {
				staleIDs := make([]uint, 0, len(actives)-1)
				for _, stale := range actives[1:] {
					staleIDs = append(staleIDs, stale.ID)
				}
				if err := s.roundRepo.CloseStale(txCtx, staleIDs, utils.UTCNow()); err != nil {
					return err
				}
				staleResolved = len(staleIDs)
			}
		} else {
			round = &models.PickerRound{
				InstanceID: instance.ID,
				ClassID:    instance.ClassID,
				Scope:      instance.Scope,
				IsActive:   true,
			}
			if err := s.roundRepo.Save(txCtx, round); err != nil {
				return err
			}
			startedRound = true
		}

		state := randomizer.NewRoundState(participants, round.PickedStudentIDs())
		position := state.NextPosition()

		drawn, next, err := state.Draw(randomizer.NewRand())
		if err != nil {
			if errors.Is(err, randomizer.ErrRoundExhausted) {
				return ErrRoundExhausted
			}
			return err
		}

		pick := &models.PickerPick{
			RoundID:     round.ID,
			StudentID:   drawn.ID,
			StudentName: drawn.Name,
			Position:    position,
		}
		if err := s.pickRepo.Save(txCtx, pick); err != nil {
			return err
		}

		completed := next.Complete()
		if completed {
			if err := s.roundRepo.Complete(txCtx, round.ID, utils.UTCNow()); err != nil {
				return err
			}
		}

		resp = dto.PickResponse{
			Message:        "Student picked successfully",
			RoundUUID:      round.UUID.String(),
			Pick:           ToPickDTO(*pick),
			Remaining:      len(next.Remaining),
			RoundCompleted: completed,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrRoundExhausted) {
			return nil, NewBusinessError("ROUND_EXHAUSTED", "Every participant has been picked this round", ErrRoundExhausted)
		}

		errMsg := fmt.Sprintf("Pick failed: %s", err.Error())
		_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerPickFailed, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("PICK_FAILED", "Failed to pick a student", err)
	}

	if staleResolved > 0 {
		msg := fmt.Sprintf("Closed %d stale active rounds for instance %s", staleResolved, instance.UUID)
		_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionRoundAnomalyResolved, msg, true, nil, metadata)
	}
	if startedRound {
		msg := fmt.Sprintf("Round %s started for instance %s", resp.RoundUUID, instance.UUID)
		_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerRoundStarted, msg, true, nil, metadata)
	}
	if resp.RoundCompleted {
		msg := fmt.Sprintf("Round %s completed for instance %s", resp.RoundUUID, instance.UUID)
		_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerRoundCompleted, msg, true, nil, metadata)
	}

	msg := fmt.Sprintf("Student %s picked at position %d in round %s", resp.Pick.StudentUUID, resp.Pick.Position, resp.RoundUUID)
	_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerStudentPicked, msg, true, nil, metadata)

	s.invalidateStatsCache(ctx, instance.UUID.String())

	return &resp, nil
}

// StartNewRound closes any active round of the instance and opens a fresh
// one with the full pool restored. Closing stamps completed_at even when the
// round still had participants remaining.
func (s *PickerFlowImpl) StartNewRound(ctx context.Context, req *dto.StartNewRoundRequest, metadata *ClientMetadata) (*dto.StartNewRoundResponse, error) {
	instance, err := s.getInstance(ctx, req.InstanceUUID)
	if err != nil {
		return nil, err
	}

	var round models.PickerRound

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		actives, err := s.roundRepo.ListActiveByInstance(txCtx, instance.ID)
		if err != nil {
			return err
		}

		for _, active := range actives {
			if err := s.roundRepo.Complete(txCtx, active.ID, utils.UTCNow()); err != nil {
				return err
			}
		}

		fresh := &models.PickerRound{
			InstanceID: instance.ID,
			ClassID:    instance.ClassID,
			Scope:      instance.Scope,
			IsActive:   true,
		}
		if err := s.roundRepo.Save(txCtx, fresh); err != nil {
			return err
		}

		round = *fresh
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("ROUND_RESET_FAILED", "Failed to start a new round", err)
	}

	msg := fmt.Sprintf("Round %s started for instance %s", round.UUID, instance.UUID)
	_ = s.createAuditLog(ctx, &instance.ClassID, models.AuditActionPickerRoundStarted, msg, true, nil, metadata)

	return &dto.StartNewRoundResponse{
		Message: "New round started successfully",
		Round:   ToPickerRoundDTO(round),
	}, nil
}

// ListRounds returns the round history of an instance, newest first
func (s *PickerFlowImpl) ListRounds(ctx context.Context, req *dto.ListPickerRoundsRequest) (*dto.ListPickerRoundsResponse, error) {
	instance, err := s.getInstance(ctx, req.InstanceUUID)
	if err != nil {
		return nil, err
	}

	limit, offset, err := paginate(req.Page, req.PageSize, 20)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination parameters", err)
	}

	rounds, err := s.roundRepo.ListByInstance(ctx, instance.ID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("ROUND_LIST_FAILED", "Failed to list rounds", err)
	}

	total, err := s.roundRepo.Count(ctx, models.PickerRoundFilter{InstanceID: &instance.ID})
	if err != nil {
		return nil, NewBusinessError("ROUND_COUNT_FAILED", "Failed to count rounds", err)
	}

	out := make([]dto.PickerRoundDTO, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, ToPickerRoundDTO(*round))
	}

	return &dto.ListPickerRoundsResponse{
		Message: "Rounds retrieved successfully",
		Rounds:  out,
		Total:   total,
	}, nil
}

// PickStats returns the position history of every student who has ever been
// picked in the instance, plus zero rows for current participants who have
// not. Results are cached briefly; picks and deletions invalidate the cache.
func (s *PickerFlowImpl) PickStats(ctx context.Context, req *dto.PickStatsRequest) (*dto.PickStatsResponse, error) {
	instance, err := s.getInstance(ctx, req.InstanceUUID)
	if err != nil {
		return nil, err
	}

	cacheKey := s.statsCacheKey(instance.UUID.String())
	if s.rc != nil {
		if bs, err := s.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
			var cached dto.PickStatsResponse
			if err := json.Unmarshal(bs, &cached); err == nil {
				cached.Message = "Statistics retrieved from cache"
				return &cached, nil
			}
		}
	}

	rounds, err := s.roundRepo.ListByInstance(ctx, instance.ID, 0, 0)
	if err != nil {
		return nil, NewBusinessError("ROUND_LIST_FAILED", "Failed to list rounds", err)
	}

	stats := randomizer.CalculatePickStats(rounds)

	rows := make([]dto.PickStatRowDTO, 0, len(stats))
	counted := make(map[string]bool, len(stats))
	for _, stat := range stats {
		rows = append(rows, dto.PickStatRowDTO{
			StudentUUID:    stat.StudentID.String(),
			StudentName:    stat.StudentName,
			PositionCounts: stat.PositionCounts,
			TotalPicks:     stat.TotalPicks,
		})
		counted[stat.StudentID.String()] = true
	}

	// Current participants without any pick history get explicit zero rows.
	participants, err := loadScopeParticipants(ctx, s.groupRepo, s.teamRepo, s.studentRepo, instance.ClassID, instance.Scope)
	if err == nil {
		for _, p := range participants {
			if !counted[p.ID.String()] {
				rows = append(rows, dto.PickStatRowDTO{
					StudentUUID:    p.ID.String(),
					StudentName:    p.Name,
					PositionCounts: map[int]int{},
				})
			}
		}
	}

	resp := &dto.PickStatsResponse{
		Message:     "Statistics retrieved successfully",
		Stats:       rows,
		MaxPosition: randomizer.MaxPosition(stats),
	}

	if s.rc != nil {
		if bs, err := json.Marshal(resp); err == nil {
			_ = s.rc.Set(ctx, cacheKey, bs, utils.StatsCacheTTL).Err()
		}
	}

	return resp, nil
}

// ExportPickStats renders the position history of an instance as a workbook
func (s *PickerFlowImpl) ExportPickStats(ctx context.Context, req *dto.PickStatsRequest) (string, []byte, error) {
	instance, err := s.getInstance(ctx, req.InstanceUUID)
	if err != nil {
		return "", nil, err
	}

	resp, err := s.PickStats(ctx, req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := sanitizeSheetName(instance.Name)
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []any{"student", "total_picks"}
	for pos := 1; pos <= resp.MaxPosition; pos++ {
		header = append(header, fmt.Sprintf("position_%d", pos))
	}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for ri, row := range resp.Stats {
		record := []any{row.StudentName, row.TotalPicks}
		for pos := 1; pos <= resp.MaxPosition; pos++ {
			record = append(record, row.PositionCounts[pos])
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("pick_stats_%s_%s.xlsx", sheet, time.Now().UTC().Format("20060102"))
	return filename, buf.Bytes(), nil
}

// getInstance resolves an instance by its UUID string
func (s *PickerFlowImpl) getInstance(ctx context.Context, instanceUUID string) (models.PickerInstance, error) {
	id, err := utils.ParseUUID(instanceUUID)
	if err != nil {
		return models.PickerInstance{}, NewBusinessError("INSTANCE_NOT_FOUND", "Instance not found", ErrInstanceNotFound)
	}

	instance, err := s.instanceRepo.ByUUID(ctx, id)
	if err != nil {
		return models.PickerInstance{}, NewBusinessError("INSTANCE_LOOKUP_FAILED", "Failed to lookup instance", err)
	}
	if instance == nil {
		return models.PickerInstance{}, NewBusinessError("INSTANCE_NOT_FOUND", "Instance not found", ErrInstanceNotFound)
	}

	return *instance, nil
}

func (s *PickerFlowImpl) statsCacheKey(instanceUUID string) string {
	key := fmt.Sprintf(utils.PickStatsCacheKey, instanceUUID)
	return redisKey(*s.cacheConfig, key)
}

func (s *PickerFlowImpl) invalidateStatsCache(ctx context.Context, instanceUUID string) {
	if s.rc == nil {
		return
	}
	_ = s.rc.Del(ctx, s.statsCacheKey(instanceUUID)).Err()
}

// createAuditLog creates an audit log entry for the picker operation
func (s *PickerFlowImpl) createAuditLog(ctx context.Context, classID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
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
