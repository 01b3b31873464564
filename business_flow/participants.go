package businessflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/kokuban/kujibiki/app/dto"
	"github.com/kokuban/kujibiki/models"
	"github.com/kokuban/kujibiki/randomizer"
	"github.com/kokuban/kujibiki/repository"
	"github.com/kokuban/kujibiki/utils"
)

// getClass resolves a class by its UUID string
func getClass(ctx context.Context, classRepo repository.ClassRepository, classUUID string) (models.Class, error) {
	id, err := utils.ParseUUID(classUUID)
	if err != nil {
		return models.Class{}, ErrClassNotFound
	}

	class, err := classRepo.ByUUID(ctx, id)
	if err != nil {
		return models.Class{}, err
	}
	if class == nil {
		return models.Class{}, ErrClassNotFound
	}

	return *class, nil
}

// resolveScope validates a requested scope against the class and loads its
// current participant set. The returned scope carries the display names that
// get copied onto new records; the participant list reflects membership at
// call time, not at any earlier point.
func resolveScope(
	ctx context.Context,
	groupRepo repository.GroupRepository,
	teamRepo repository.TeamRepository,
	studentRepo repository.StudentRepository,
	class models.Class,
	req dto.ScopeRequest,
) (models.Scope, []randomizer.Participant, error) {
	kind := models.ScopeKind(req.Kind)
	if !kind.Valid() {
		return models.Scope{}, nil, ErrScopeKindInvalid
	}

	targetID, err := utils.ParseUUID(req.TargetUUID)
	if err != nil {
		return models.Scope{}, nil, ErrScopeKindInvalid
	}

	var (
		scope    models.Scope
		students []*models.Student
	)

	switch kind {
	case models.ScopeKindClass:
		if targetID != class.UUID {
			return models.Scope{}, nil, ErrScopeOutsideClass
		}
		students, err = studentRepo.ListByClass(ctx, class.ID)
		if err != nil {
			return models.Scope{}, nil, err
		}
		scope = models.Scope{
			Kind:        models.ScopeKindClass,
			TargetID:    class.UUID,
			DisplayName: class.Name,
		}

	case models.ScopeKindGroup:
		group, err := groupRepo.ByUUID(ctx, targetID)
		if err != nil {
			return models.Scope{}, nil, err
		}
		if group == nil {
			return models.Scope{}, nil, ErrGroupNotFound
		}
		if group.ClassID != class.ID {
			return models.Scope{}, nil, ErrScopeOutsideClass
		}
		students, err = studentRepo.ListByGroup(ctx, group.ID)
		if err != nil {
			return models.Scope{}, nil, err
		}
		scope = models.Scope{
			Kind:        models.ScopeKindGroup,
			TargetID:    group.UUID,
			DisplayName: group.Name,
		}

	case models.ScopeKindTeam:
		team, err := teamRepo.ByUUID(ctx, targetID)
		if err != nil {
			return models.Scope{}, nil, err
		}
		if team == nil {
			return models.Scope{}, nil, ErrTeamNotFound
		}
		if team.Group == nil || team.Group.ClassID != class.ID {
			return models.Scope{}, nil, ErrScopeOutsideClass
		}
		students, err = studentRepo.ListByTeam(ctx, team.ID)
		if err != nil {
			return models.Scope{}, nil, err
		}
		scope = models.Scope{
			Kind:            models.ScopeKindTeam,
			TargetID:        team.UUID,
			DisplayName:     team.Name,
			ParentGroupName: &team.Group.Name,
		}
	}

	return scope, toParticipants(students), nil
}

// loadScopeParticipants reloads the participant set of an already persisted
// scope. Used by the picker, whose instances keep their scope across roster
// changes.
func loadScopeParticipants(
	ctx context.Context,
	groupRepo repository.GroupRepository,
	teamRepo repository.TeamRepository,
	studentRepo repository.StudentRepository,
	classID uint,
	scope models.Scope,
) ([]randomizer.Participant, error) {
	switch scope.Kind {
	case models.ScopeKindClass:
		students, err := studentRepo.ListByClass(ctx, classID)
		if err != nil {
			return nil, err
		}
		return toParticipants(students), nil

	case models.ScopeKindGroup:
		group, err := groupRepo.ByUUID(ctx, scope.TargetID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, ErrGroupNotFound
		}
		students, err := studentRepo.ListByGroup(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		return toParticipants(students), nil

	case models.ScopeKindTeam:
		team, err := teamRepo.ByUUID(ctx, scope.TargetID)
		if err != nil {
			return nil, err
		}
		if team == nil {
			return nil, ErrTeamNotFound
		}
		students, err := studentRepo.ListByTeam(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		return toParticipants(students), nil

	default:
		return nil, ErrScopeKindInvalid
	}
}

// toParticipants converts roster rows into the engine's participant type
func toParticipants(students []*models.Student) []randomizer.Participant {
	participants := make([]randomizer.Participant, 0, len(students))
	for _, student := range students {
		participants = append(participants, randomizer.Participant{
			ID:   student.UUID,
			Name: student.DisplayName(),
		})
	}
	return participants
}

// rosterNames builds the UUID-to-name lookup used when aggregating statistics
func rosterNames(participants []randomizer.Participant) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.Name
	}
	return names
}
