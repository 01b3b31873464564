// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokuban/kujibiki/models"
	testingutil "github.com/kokuban/kujibiki/testing"
)

func TestScopeKind(t *testing.T) {
	t.Run("ValidKinds", func(t *testing.T) {
		assert.True(t, models.ScopeKindClass.Valid())
		assert.True(t, models.ScopeKindGroup.Valid())
		assert.True(t, models.ScopeKindTeam.Valid())
	})

	t.Run("InvalidKind", func(t *testing.T) {
		assert.False(t, models.ScopeKind("school").Valid())
		assert.False(t, models.ScopeKind("").Valid())
	})

	t.Run("Scan", func(t *testing.T) {
		var kind models.ScopeKind
		require.NoError(t, kind.Scan("group"))
		assert.Equal(t, models.ScopeKindGroup, kind)

		require.NoError(t, kind.Scan([]byte("team")))
		assert.Equal(t, models.ScopeKindTeam, kind)

		require.NoError(t, kind.Scan(nil))
		assert.Equal(t, models.ScopeKind(""), kind)

		assert.Error(t, kind.Scan(42))
	})

	t.Run("Value", func(t *testing.T) {
		value, err := models.ScopeKindClass.Value()
		require.NoError(t, err)
		assert.Equal(t, "class", value)

		_, err = models.ScopeKind("school").Value()
		assert.Error(t, err)
	})
}

func TestScope(t *testing.T) {
	t.Run("ClassScopeValid", func(t *testing.T) {
		scope := models.Scope{
			Kind:        models.ScopeKindClass,
			TargetID:    uuid.New(),
			DisplayName: "Class 3-A",
		}
		assert.True(t, scope.Valid())
	})

	t.Run("TeamScopeRequiresParentGroupName", func(t *testing.T) {
		scope := models.Scope{
			Kind:        models.ScopeKindTeam,
			TargetID:    uuid.New(),
			DisplayName: "Team Red",
		}
		assert.False(t, scope.Valid())

		parent := "Group One"
		scope.ParentGroupName = &parent
		assert.True(t, scope.Valid())
	})

	t.Run("NonTeamScopeRejectsParentGroupName", func(t *testing.T) {
		parent := "Group One"
		scope := models.Scope{
			Kind:            models.ScopeKindGroup,
			TargetID:        uuid.New(),
			DisplayName:     "Group One",
			ParentGroupName: &parent,
		}
		assert.False(t, scope.Valid())
	})

	t.Run("NilTargetInvalid", func(t *testing.T) {
		scope := models.Scope{
			Kind:        models.ScopeKindClass,
			DisplayName: "Class 3-A",
		}
		assert.False(t, scope.Valid())
	})

	t.Run("Matches", func(t *testing.T) {
		target := uuid.New()
		scope := models.Scope{
			Kind:        models.ScopeKindGroup,
			TargetID:    target,
			DisplayName: "Group One",
		}
		assert.True(t, scope.Matches(models.ScopeKindGroup, target))
		assert.False(t, scope.Matches(models.ScopeKindClass, target))
		assert.False(t, scope.Matches(models.ScopeKindGroup, uuid.New()))
	})
}

func TestClassAndRoster(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		t.Run("TableNames", func(t *testing.T) {
			assert.Equal(t, "classes", models.Class{}.TableName())
			assert.Equal(t, "students", models.Student{}.TableName())
			assert.Equal(t, "groups", models.Group{}.TableName())
			assert.Equal(t, "student_groups", models.StudentGroup{}.TableName())
			assert.Equal(t, "teams", models.Team{}.TableName())
			assert.Equal(t, "student_teams", models.StudentTeam{}.TableName())
		})

		t.Run("CreateClassGeneratesUUID", func(t *testing.T) {
			class, err := fixtures.CreateTestClass("Class 3-A")
			require.NoError(t, err)
			assert.NotZero(t, class.ID)
			assert.NotEqual(t, uuid.Nil, class.UUID)
			assert.False(t, class.CreatedAt.IsZero())
		})

		t.Run("CreateStudentsOnRoster", func(t *testing.T) {
			class, err := fixtures.CreateTestClass("")
			require.NoError(t, err)

			students, err := fixtures.CreateTestStudents(class.ID, 3)
			require.NoError(t, err)
			assert.Len(t, students, 3)
			for _, student := range students {
				assert.NotEqual(t, uuid.Nil, student.UUID)
				assert.Equal(t, class.ID, student.ClassID)
			}
		})

		t.Run("GroupMembership", func(t *testing.T) {
			class, err := fixtures.CreateTestClass("")
			require.NoError(t, err)
			students, err := fixtures.CreateTestStudents(class.ID, 4)
			require.NoError(t, err)

			group, err := fixtures.CreateTestGroup(class.ID, "Group One", students[:2])
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, group.UUID)

			var memberships []models.StudentGroup
			err = testDB.DB.Where("group_id = ?", group.ID).Find(&memberships).Error
			require.NoError(t, err)
			assert.Len(t, memberships, 2)
		})

		t.Run("DuplicateGroupMembershipRejected", func(t *testing.T) {
			class, err := fixtures.CreateTestClass("")
			require.NoError(t, err)
			students, err := fixtures.CreateTestStudents(class.ID, 1)
			require.NoError(t, err)
			group, err := fixtures.CreateTestGroup(class.ID, "Group Dup", students)
			require.NoError(t, err)

			duplicate := &models.StudentGroup{StudentID: students[0].ID, GroupID: group.ID}
			assert.Error(t, testDB.DB.Create(duplicate).Error)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestStudentDisplayName(t *testing.T) {
	t.Run("FirstAndLast", func(t *testing.T) {
		student := &models.Student{FirstName: "Hanako", LastName: "Sato"}
		assert.Equal(t, "Hanako Sato", student.DisplayName())
	})

	t.Run("FirstOnly", func(t *testing.T) {
		student := &models.Student{FirstName: "Hanako"}
		assert.Equal(t, "Hanako", student.DisplayName())
	})

	t.Run("EmptyFallsBack", func(t *testing.T) {
		student := &models.Student{}
		assert.Equal(t, "Unknown", student.DisplayName())
	})
}

func TestShuffleRun(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		t.Run("TableName", func(t *testing.T) {
			assert.Equal(t, "shuffler_runs", models.ShuffleRun{}.TableName())
		})

		t.Run("PersistsFullOrder", func(t *testing.T) {
			run, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, run.UUID)
			assert.Equal(t, students[0].UUID, run.FirstStudentID)
			assert.Equal(t, students[2].UUID, run.LastStudentID)

			order, err := run.Order()
			require.NoError(t, err)
			require.Len(t, order, 3)
			for i, entry := range order {
				assert.Equal(t, i+1, entry.Position)
				assert.Equal(t, students[i].UUID, entry.StudentID)
			}
		})

		t.Run("OrderRejectsCorruptResults", func(t *testing.T) {
			run := &models.ShuffleRun{Results: json.RawMessage(`{"broken":`)}
			_, err := run.Order()
			assert.Error(t, err)
		})

		t.Run("ToggledCompletionFlipsMembership", func(t *testing.T) {
			run, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
			require.NoError(t, err)

			target := students[1].UUID
			assert.False(t, run.IsCompleted(target))

			run.CompletedStudentIDs = run.ToggledCompletion(target)
			assert.True(t, run.IsCompleted(target))
			assert.Len(t, run.CompletedStudentIDs, 1)

			run.CompletedStudentIDs = run.ToggledCompletion(target)
			assert.False(t, run.IsCompleted(target))
			assert.Empty(t, run.CompletedStudentIDs)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPickerModels(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)
		instance, err := fixtures.CreateTestPickerInstance(class.ID, "Daily Reciter", testingutil.ClassScope(class))
		require.NoError(t, err)

		t.Run("TableNames", func(t *testing.T) {
			assert.Equal(t, "picker_instances", models.PickerInstance{}.TableName())
			assert.Equal(t, "picker_rounds", models.PickerRound{}.TableName())
			assert.Equal(t, "picker_picks", models.PickerPick{}.TableName())
		})

		t.Run("InstanceCarriesScope", func(t *testing.T) {
			assert.NotEqual(t, uuid.Nil, instance.UUID)
			assert.Equal(t, models.ScopeKindClass, instance.Scope.Kind)
			assert.Equal(t, class.UUID, instance.Scope.TargetID)
			assert.Nil(t, instance.UpdatedAt)
		})

		t.Run("RoundTracksPicks", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)
			assert.True(t, round.IsActive)
			assert.Nil(t, round.CompletedAt)
			assert.Equal(t, 1, round.NextPosition())

			pick, err := fixtures.CreateTestPick(round, students[0], 1)
			require.NoError(t, err)
			assert.Equal(t, students[0].UUID, pick.StudentID)

			round.Picks = append(round.Picks, *pick)
			assert.Equal(t, 2, round.NextPosition())
			assert.Equal(t, []uuid.UUID{students[0].UUID}, round.PickedStudentIDs())
		})

		t.Run("DuplicatePositionRejected", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, false)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPick(round, students[0], 1)
			require.NoError(t, err)

			_, err = fixtures.CreateTestPick(round, students[1], 1)
			assert.Error(t, err)
		})

		t.Run("CompletedRoundIsInactive", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, false)
			require.NoError(t, err)
			assert.False(t, round.IsActive)
			assert.NotNil(t, round.CompletedAt)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAuditLog(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		t.Run("TableName", func(t *testing.T) {
			assert.Equal(t, "audit_log", models.AuditLog{}.TableName())
		})

		t.Run("CreateEntry", func(t *testing.T) {
			action := models.AuditActionShuffleRunCreated
			description := "shuffle run recorded"
			entry := &models.AuditLog{
				Action:      action,
				Description: &description,
			}
			require.NoError(t, testDB.DB.Create(entry).Error)
			assert.NotZero(t, entry.ID)
			assert.False(t, entry.CreatedAt.IsZero())
		})

		t.Run("IsFailed", func(t *testing.T) {
			failed := false
			entry := &models.AuditLog{Success: &failed}
			assert.True(t, entry.IsFailed())

			ok := true
			entry.Success = &ok
			assert.False(t, entry.IsFailed())

			entry.Success = nil
			assert.False(t, entry.IsFailed())
		})

		t.Run("IsAnomalyEvent", func(t *testing.T) {
			entry := &models.AuditLog{Action: models.AuditActionRoundAnomalyResolved}
			assert.True(t, entry.IsAnomalyEvent())

			entry.Action = models.AuditActionPickerStudentPicked
			assert.False(t, entry.IsAnomalyEvent())
		})

		return nil
	})
	require.NoError(t, err)
}
