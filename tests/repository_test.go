// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokuban/kujibiki/models"
	"github.com/kokuban/kujibiki/repository"
	testingutil "github.com/kokuban/kujibiki/testing"
	"github.com/kokuban/kujibiki/utils"
)

func TestClassRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewClassRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("SaveAndByID", func(t *testing.T) {
			class := &models.Class{Name: "Class 3-A"}
			require.NoError(t, repo.Save(ctx, class))
			assert.NotZero(t, class.ID)

			found, err := repo.ByID(ctx, class.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "Class 3-A", found.Name)
		})

		t.Run("ByUUID", func(t *testing.T) {
			class, err := fixtures.CreateTestClass("Class 3-B")
			require.NoError(t, err)

			found, err := repo.ByUUID(ctx, class.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, class.ID, found.ID)
		})

		t.Run("ByUUIDNotFound", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, uuid.New())
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("CountAndExists", func(t *testing.T) {
			name := "Class Countable"
			_, err := fixtures.CreateTestClass(name)
			require.NoError(t, err)

			count, err := repo.Count(ctx, models.ClassFilter{Name: &name})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			exists, err := repo.Exists(ctx, models.ClassFilter{Name: &name})
			require.NoError(t, err)
			assert.True(t, exists)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestStudentRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewStudentRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 5)
		require.NoError(t, err)

		group, err := fixtures.CreateTestGroup(class.ID, "Group One", students[:3])
		require.NoError(t, err)
		team, err := fixtures.CreateTestTeam(group.ID, "Team Red", students[:2])
		require.NoError(t, err)

		t.Run("ByUUID", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, students[0].UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, students[0].ID, found.ID)
		})

		t.Run("ListByClass", func(t *testing.T) {
			roster, err := repo.ListByClass(ctx, class.ID)
			require.NoError(t, err)
			require.Len(t, roster, 5)
			// Stable roster order by insertion
			for i, student := range roster {
				assert.Equal(t, students[i].ID, student.ID)
			}
		})

		t.Run("ListByGroup", func(t *testing.T) {
			members, err := repo.ListByGroup(ctx, group.ID)
			require.NoError(t, err)
			assert.Len(t, members, 3)
		})

		t.Run("ListByTeam", func(t *testing.T) {
			members, err := repo.ListByTeam(ctx, team.ID)
			require.NoError(t, err)
			assert.Len(t, members, 2)
		})

		t.Run("ListByClassEmpty", func(t *testing.T) {
			empty, err := fixtures.CreateTestClass("")
			require.NoError(t, err)

			roster, err := repo.ListByClass(ctx, empty.ID)
			require.NoError(t, err)
			assert.Empty(t, roster)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGroupAndTeamRepositories(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		groupRepo := repository.NewGroupRepository(testDB.DB)
		teamRepo := repository.NewTeamRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 4)
		require.NoError(t, err)

		groupOne, err := fixtures.CreateTestGroup(class.ID, "Group One", students[:2])
		require.NoError(t, err)
		_, err = fixtures.CreateTestGroup(class.ID, "Group Two", students[2:])
		require.NoError(t, err)

		teamRed, err := fixtures.CreateTestTeam(groupOne.ID, "Team Red", students[:1])
		require.NoError(t, err)
		_, err = fixtures.CreateTestTeam(groupOne.ID, "Team Blue", students[1:2])
		require.NoError(t, err)

		t.Run("GroupByUUID", func(t *testing.T) {
			found, err := groupRepo.ByUUID(ctx, groupOne.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "Group One", found.Name)
		})

		t.Run("GroupsListByClass", func(t *testing.T) {
			groups, err := groupRepo.ListByClass(ctx, class.ID)
			require.NoError(t, err)
			assert.Len(t, groups, 2)
		})

		t.Run("TeamByUUID", func(t *testing.T) {
			found, err := teamRepo.ByUUID(ctx, teamRed.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, groupOne.ID, found.GroupID)
		})

		t.Run("TeamsListByGroup", func(t *testing.T) {
			teams, err := teamRepo.ListByGroup(ctx, groupOne.ID)
			require.NoError(t, err)
			assert.Len(t, teams, 2)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestShuffleRunRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewShuffleRunRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)
		scope := testingutil.ClassScope(class)

		t.Run("ByUUID", func(t *testing.T) {
			run, err := fixtures.CreateTestShuffleRun(class.ID, scope, students)
			require.NoError(t, err)

			found, err := repo.ByUUID(ctx, run.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, run.FirstStudentID, found.FirstStudentID)

			order, err := found.Order()
			require.NoError(t, err)
			assert.Len(t, order, 3)
		})

		t.Run("ListByScopeNewestFirst", func(t *testing.T) {
			var created []*models.ShuffleRun
			for i := 0; i < 3; i++ {
				run, err := fixtures.CreateTestShuffleRun(class.ID, scope, students)
				require.NoError(t, err)
				created = append(created, run)
			}

			runs, err := repo.ListByScope(ctx, class.ID, models.ScopeKindClass, class.UUID, 0, 0)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(runs), 3)
			assert.Equal(t, created[2].UUID, runs[0].UUID)
		})

		t.Run("ListByScopeHonorsLimit", func(t *testing.T) {
			runs, err := repo.ListByScope(ctx, class.ID, models.ScopeKindClass, class.UUID, 2, 0)
			require.NoError(t, err)
			assert.Len(t, runs, 2)
		})

		t.Run("ListByScopeIgnoresOtherScopes", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Group Scoped", students)
			require.NoError(t, err)
			_, err = fixtures.CreateTestShuffleRun(class.ID, testingutil.GroupScope(group), students)
			require.NoError(t, err)

			runs, err := repo.ListByScope(ctx, class.ID, models.ScopeKindGroup, group.UUID, 0, 0)
			require.NoError(t, err)
			assert.Len(t, runs, 1)
		})

		t.Run("UpdateCompletion", func(t *testing.T) {
			run, err := fixtures.CreateTestShuffleRun(class.ID, scope, students)
			require.NoError(t, err)
			assert.Empty(t, run.CompletedStudentIDs)

			updated := run.ToggledCompletion(students[0].UUID)
			require.NoError(t, repo.UpdateCompletion(ctx, run.ID, updated))

			found, err := repo.ByUUID(ctx, run.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.True(t, found.IsCompleted(students[0].UUID))
			assert.False(t, found.IsCompleted(students[1].UUID))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPickerInstanceRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewPickerInstanceRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 2)
		require.NoError(t, err)
		scope := testingutil.ClassScope(class)

		t.Run("ByUUID", func(t *testing.T) {
			instance, err := fixtures.CreateTestPickerInstance(class.ID, "Daily Reciter", scope)
			require.NoError(t, err)

			found, err := repo.ByUUID(ctx, instance.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "Daily Reciter", found.Name)
		})

		t.Run("ListByClass", func(t *testing.T) {
			other, err := fixtures.CreateTestClass("")
			require.NoError(t, err)
			_, err = fixtures.CreateTestPickerInstance(other.ID, "Other Class Picker", testingutil.ClassScope(other))
			require.NoError(t, err)

			instances, err := repo.ListByClass(ctx, other.ID)
			require.NoError(t, err)
			assert.Len(t, instances, 1)
		})

		t.Run("UpdateStampsUpdatedAt", func(t *testing.T) {
			instance, err := fixtures.CreateTestPickerInstance(class.ID, "Before Rename", scope)
			require.NoError(t, err)

			instance.Name = "After Rename"
			require.NoError(t, repo.Update(ctx, instance))

			found, err := repo.ByUUID(ctx, instance.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "After Rename", found.Name)
			assert.NotNil(t, found.UpdatedAt)
		})

		t.Run("DeleteWithHistoryCascades", func(t *testing.T) {
			instance, err := fixtures.CreateTestPickerInstance(class.ID, "Doomed", scope)
			require.NoError(t, err)
			round, err := fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[0], 1)
			require.NoError(t, err)

			require.NoError(t, repo.DeleteWithHistory(ctx, instance.ID))

			found, err := repo.ByUUID(ctx, instance.UUID)
			require.NoError(t, err)
			assert.Nil(t, found)

			var roundCount int64
			require.NoError(t, testDB.DB.Model(&models.PickerRound{}).Where("instance_id = ?", instance.ID).Count(&roundCount).Error)
			assert.Zero(t, roundCount)

			var pickCount int64
			require.NoError(t, testDB.DB.Model(&models.PickerPick{}).Where("round_id = ?", round.ID).Count(&pickCount).Error)
			assert.Zero(t, pickCount)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPickerRoundRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewPickerRoundRepository(testDB.DB)
		pickRepo := repository.NewPickerPickRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)
		instance, err := fixtures.CreateTestPickerInstance(class.ID, "Daily Reciter", testingutil.ClassScope(class))
		require.NoError(t, err)

		t.Run("ByUUIDPreloadsPicksInOrder", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, false)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[1], 2)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[0], 1)
			require.NoError(t, err)

			found, err := repo.ByUUID(ctx, round.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			require.Len(t, found.Picks, 2)
			assert.Equal(t, 1, found.Picks[0].Position)
			assert.Equal(t, 2, found.Picks[1].Position)
			assert.Equal(t, []uuid.UUID{students[0].UUID, students[1].UUID}, found.PickedStudentIDs())
		})

		t.Run("ListActiveByInstance", func(t *testing.T) {
			fresh, err := fixtures.CreateTestPickerInstance(class.ID, "Active Rounds", testingutil.ClassScope(class))
			require.NoError(t, err)

			_, err = fixtures.CreateTestPickerRound(fresh, false)
			require.NoError(t, err)
			active, err := fixtures.CreateTestPickerRound(fresh, true)
			require.NoError(t, err)

			actives, err := repo.ListActiveByInstance(ctx, fresh.ID)
			require.NoError(t, err)
			require.Len(t, actives, 1)
			assert.Equal(t, active.UUID, actives[0].UUID)
		})

		t.Run("Complete", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)

			require.NoError(t, repo.Complete(ctx, round.ID, utils.UTCNow()))

			found, err := repo.ByUUID(ctx, round.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.False(t, found.IsActive)
			assert.NotNil(t, found.CompletedAt)
		})

		t.Run("CloseStale", func(t *testing.T) {
			fresh, err := fixtures.CreateTestPickerInstance(class.ID, "Stale Rounds", testingutil.ClassScope(class))
			require.NoError(t, err)

			first, err := fixtures.CreateTestPickerRound(fresh, true)
			require.NoError(t, err)
			second, err := fixtures.CreateTestPickerRound(fresh, true)
			require.NoError(t, err)

			require.NoError(t, repo.CloseStale(ctx, []uint{first.ID}, utils.UTCNow()))

			actives, err := repo.ListActiveByInstance(ctx, fresh.ID)
			require.NoError(t, err)
			require.Len(t, actives, 1)
			assert.Equal(t, second.UUID, actives[0].UUID)
		})

		t.Run("CloseStaleEmptyIsNoop", func(t *testing.T) {
			require.NoError(t, repo.CloseStale(ctx, nil, utils.UTCNow()))
		})

		t.Run("ListByInstancePagination", func(t *testing.T) {
			fresh, err := fixtures.CreateTestPickerInstance(class.ID, "Round History", testingutil.ClassScope(class))
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				_, err := fixtures.CreateTestPickerRound(fresh, false)
				require.NoError(t, err)
			}

			page, err := repo.ListByInstance(ctx, fresh.ID, 2, 0)
			require.NoError(t, err)
			assert.Len(t, page, 2)

			rest, err := repo.ListByInstance(ctx, fresh.ID, 2, 2)
			require.NoError(t, err)
			assert.Len(t, rest, 1)
		})

		t.Run("PicksListByRound", func(t *testing.T) {
			round, err := fixtures.CreateTestPickerRound(instance, false)
			require.NoError(t, err)
			for i, student := range students {
				_, err := fixtures.CreateTestPick(round, student, i+1)
				require.NoError(t, err)
			}

			picks, err := pickRepo.ListByRound(ctx, round.ID)
			require.NoError(t, err)
			require.Len(t, picks, 3)
			for i, pick := range picks {
				assert.Equal(t, i+1, pick.Position)
			}
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAuditLogRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAuditLogRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)

		seed := func(action string, classID *uint, success bool) {
			ok := success
			entry := &models.AuditLog{
				Action:  action,
				ClassID: classID,
				Success: &ok,
			}
			require.NoError(t, repo.Save(ctx, entry))
		}

		seed(models.AuditActionShuffleRunCreated, &class.ID, true)
		seed(models.AuditActionPickerStudentPicked, &class.ID, true)
		seed(models.AuditActionPickerPickFailed, &class.ID, false)
		seed(models.AuditActionRoundAnomalyResolved, &class.ID, true)
		seed(models.AuditActionShuffleRunCreated, nil, true)

		t.Run("ListByClass", func(t *testing.T) {
			logs, err := repo.ListByClass(ctx, class.ID, 10, 0)
			require.NoError(t, err)
			assert.Len(t, logs, 4)
		})

		t.Run("ListByAction", func(t *testing.T) {
			logs, err := repo.ListByAction(ctx, models.AuditActionShuffleRunCreated, 10, 0)
			require.NoError(t, err)
			assert.Len(t, logs, 2)
		})

		t.Run("ListFailedActions", func(t *testing.T) {
			logs, err := repo.ListFailedActions(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, models.AuditActionPickerPickFailed, logs[0].Action)
		})

		t.Run("ListAnomalyEvents", func(t *testing.T) {
			logs, err := repo.ListAnomalyEvents(ctx, 10, 0)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.True(t, logs[0].IsAnomalyEvent())
		})

		return nil
	})
	require.NoError(t, err)
}

func TestWithTransaction(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewClassRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("CommitsOnSuccess", func(t *testing.T) {
			name := "Committed Class"
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				return repo.Save(txCtx, &models.Class{Name: name})
			})
			require.NoError(t, err)

			exists, err := repo.Exists(ctx, models.ClassFilter{Name: &name})
			require.NoError(t, err)
			assert.True(t, exists)
		})

		t.Run("RollsBackOnError", func(t *testing.T) {
			name := "Rolled Back Class"
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				if err := repo.Save(txCtx, &models.Class{Name: name}); err != nil {
					return err
				}
				return fmt.Errorf("forced failure")
			})
			require.Error(t, err)

			exists, err := repo.Exists(ctx, models.ClassFilter{Name: &name})
			require.NoError(t, err)
			assert.False(t, exists)
		})

		return nil
	})
	require.NoError(t, err)
}
