// Package testing provides test utilities and database setup for testing the randomization service
package testing

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/kokuban/kujibiki/models"
	"github.com/kokuban/kujibiki/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestClass creates a class with a unique name
func (tf *TestFixtures) CreateTestClass(name string) (*models.Class, error) {
	if name == "" {
		name = fmt.Sprintf("Class %d", rand.Intn(10000))
	}

	class := &models.Class{
		Name: name,
	}

	if err := tf.DB.DB.Create(class).Error; err != nil {
		return nil, fmt.Errorf("failed to create test class: %w", err)
	}

	return class, nil
}

// CreateTestStudents creates count students on the class roster
func (tf *TestFixtures) CreateTestStudents(classID uint, count int) ([]*models.Student, error) {
	students := make([]*models.Student, 0, count)
	for i := 0; i < count; i++ {
		student := &models.Student{
			ClassID:   classID,
			FirstName: fmt.Sprintf("Student%02d", i+1),
			LastName:  "Test",
		}
		if err := tf.DB.DB.Create(student).Error; err != nil {
			return nil, fmt.Errorf("failed to create test student %d: %w", i+1, err)
		}
		students = append(students, student)
	}
	return students, nil
}

// CreateTestGroup creates a group and enrolls the given students in it
func (tf *TestFixtures) CreateTestGroup(classID uint, name string, members []*models.Student) (*models.Group, error) {
	group := &models.Group{
		ClassID: classID,
		Name:    name,
	}
	if err := tf.DB.DB.Create(group).Error; err != nil {
		return nil, fmt.Errorf("failed to create test group: %w", err)
	}

	for _, student := range members {
		membership := &models.StudentGroup{
			StudentID: student.ID,
			GroupID:   group.ID,
		}
		if err := tf.DB.DB.Create(membership).Error; err != nil {
			return nil, fmt.Errorf("failed to enroll student %d in group: %w", student.ID, err)
		}
	}

	return group, nil
}

// CreateTestTeam creates a team under a group and enrolls the given students in it
func (tf *TestFixtures) CreateTestTeam(groupID uint, name string, members []*models.Student) (*models.Team, error) {
	team := &models.Team{
		GroupID: groupID,
		Name:    name,
	}
	if err := tf.DB.DB.Create(team).Error; err != nil {
		return nil, fmt.Errorf("failed to create test team: %w", err)
	}

	for _, student := range members {
		membership := &models.StudentTeam{
			StudentID: student.ID,
			TeamID:    team.ID,
		}
		if err := tf.DB.DB.Create(membership).Error; err != nil {
			return nil, fmt.Errorf("failed to enroll student %d in team: %w", student.ID, err)
		}
	}

	return team, nil
}

// ClassScope builds a class-wide scope for the given class
func ClassScope(class *models.Class) models.Scope {
	return models.Scope{
		Kind:        models.ScopeKindClass,
		TargetID:    class.UUID,
		DisplayName: class.Name,
	}
}

// GroupScope builds a group scope for the given group
func GroupScope(group *models.Group) models.Scope {
	return models.Scope{
		Kind:        models.ScopeKindGroup,
		TargetID:    group.UUID,
		DisplayName: group.Name,
	}
}

// TeamScope builds a team scope naming the parent group
func TeamScope(team *models.Team, parentGroupName string) models.Scope {
	return models.Scope{
		Kind:            models.ScopeKindTeam,
		TargetID:        team.UUID,
		DisplayName:     team.Name,
		ParentGroupName: &parentGroupName,
	}
}

// CreateTestShuffleRun persists a run whose order lists the students as given
func (tf *TestFixtures) CreateTestShuffleRun(classID uint, scope models.Scope, order []*models.Student) (*models.ShuffleRun, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("shuffle run requires at least one student")
	}

	results := make([]models.ShuffleResult, 0, len(order))
	for i, student := range order {
		results = append(results, models.ShuffleResult{
			StudentID:   student.UUID,
			StudentName: student.DisplayName(),
			Position:    i + 1,
		})
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shuffle results: %w", err)
	}

	run := &models.ShuffleRun{
		ClassID:        classID,
		Scope:          scope,
		RanAt:          utils.UTCNow(),
		Results:        raw,
		FirstStudentID: order[0].UUID,
		LastStudentID:  order[len(order)-1].UUID,
	}

	if err := tf.DB.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create test shuffle run: %w", err)
	}

	return run, nil
}

// CreateTestPickerInstance creates a named picker instance bound to the scope
func (tf *TestFixtures) CreateTestPickerInstance(classID uint, name string, scope models.Scope) (*models.PickerInstance, error) {
	instance := &models.PickerInstance{
		ClassID: classID,
		Name:    name,
		Scope:   scope,
	}

	if err := tf.DB.DB.Create(instance).Error; err != nil {
		return nil, fmt.Errorf("failed to create test picker instance: %w", err)
	}

	return instance, nil
}

// CreateTestPickerRound creates a round for an instance, active unless completed
func (tf *TestFixtures) CreateTestPickerRound(instance *models.PickerInstance, active bool) (*models.PickerRound, error) {
	round := &models.PickerRound{
		InstanceID: instance.ID,
		ClassID:    instance.ClassID,
		Scope:      instance.Scope,
		StartedAt:  utils.UTCNow(),
		IsActive:   active,
	}
	if !active {
		now := utils.UTCNow()
		round.CompletedAt = &now
	}

	if err := tf.DB.DB.Create(round).Error; err != nil {
		return nil, fmt.Errorf("failed to create test picker round: %w", err)
	}

	return round, nil
}

// CreateTestPick records a pick at the round's next position
func (tf *TestFixtures) CreateTestPick(round *models.PickerRound, student *models.Student, position int) (*models.PickerPick, error) {
	pick := &models.PickerPick{
		RoundID:     round.ID,
		StudentID:   student.UUID,
		StudentName: student.DisplayName(),
		Position:    position,
		PickedAt:    utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(pick).Error; err != nil {
		return nil, fmt.Errorf("failed to create test pick: %w", err)
	}

	return pick, nil
}

// StudentUUIDs returns the UUIDs of the given students, preserving order
func StudentUUIDs(students []*models.Student) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.UUID)
	}
	return ids
}
