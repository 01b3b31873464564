// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokuban/kujibiki/app/dto"
	businessflow "github.com/kokuban/kujibiki/business_flow"
	"github.com/kokuban/kujibiki/config"
	"github.com/kokuban/kujibiki/models"
	"github.com/kokuban/kujibiki/repository"
	testingutil "github.com/kokuban/kujibiki/testing"
)

func newShufflerFlow(testDB *testingutil.TestDB) businessflow.ShufflerFlow {
	return businessflow.NewShufflerFlow(
		repository.NewClassRepository(testDB.DB),
		repository.NewGroupRepository(testDB.DB),
		repository.NewTeamRepository(testDB.DB),
		repository.NewStudentRepository(testDB.DB),
		repository.NewShuffleRunRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil,
		&config.CacheConfig{RedisPrefix: "test:"},
	)
}

func testMetadata() *businessflow.ClientMetadata {
	return businessflow.NewClientMetadata("127.0.0.1", "go-test")
}

func classScopeRequest(class *models.Class) dto.ScopeRequest {
	return dto.ScopeRequest{Kind: "class", TargetUUID: class.UUID.String()}
}

func TestRunShuffle(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newShufflerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 5)
		require.NoError(t, err)

		t.Run("ProducesFullPermutation", func(t *testing.T) {
			resp, err := flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: class.UUID.String(),
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			require.Len(t, resp.Run.Order, 5)
			seen := make(map[string]bool, 5)
			for i, entry := range resp.Run.Order {
				assert.Equal(t, i+1, entry.Position)
				assert.False(t, seen[entry.StudentUUID], "student appears twice in order")
				seen[entry.StudentUUID] = true
			}
			for _, student := range students {
				assert.True(t, seen[student.UUID.String()], "student missing from order")
			}
		})

		t.Run("PersistsRunAndAudit", func(t *testing.T) {
			name := "Friday cleanup order"
			resp, err := flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: class.UUID.String(),
				Scope:     classScopeRequest(class),
				Name:      &name,
			}, testMetadata())
			require.NoError(t, err)
			require.NotNil(t, resp.Run.Name)
			assert.Equal(t, name, *resp.Run.Name)

			got, err := flow.GetRun(ctx, &dto.GetShuffleRunRequest{UUID: resp.Run.UUID})
			require.NoError(t, err)
			assert.Equal(t, resp.Run.UUID, got.Run.UUID)

			auditRepo := repository.NewAuditLogRepository(testDB.DB)
			logs, err := auditRepo.ListByAction(ctx, models.AuditActionShuffleRunCreated, 10, 0)
			require.NoError(t, err)
			assert.NotEmpty(t, logs)
		})

		t.Run("GroupScope", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Group One", students[:3])
			require.NoError(t, err)

			resp, err := flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: class.UUID.String(),
				Scope:     dto.ScopeRequest{Kind: "group", TargetUUID: group.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)
			assert.Len(t, resp.Run.Order, 3)
			assert.Equal(t, "group", resp.Run.Scope.Kind)
			assert.Equal(t, "Group One", resp.Run.Scope.DisplayName)
		})

		t.Run("TeamScopeCarriesParentGroupName", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Group Two", students[:4])
			require.NoError(t, err)
			team, err := fixtures.CreateTestTeam(group.ID, "Team Red", students[:2])
			require.NoError(t, err)

			resp, err := flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: class.UUID.String(),
				Scope:     dto.ScopeRequest{Kind: "team", TargetUUID: team.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)
			assert.Len(t, resp.Run.Order, 2)
			require.NotNil(t, resp.Run.Scope.ParentGroupName)
			assert.Equal(t, "Group Two", *resp.Run.Scope.ParentGroupName)
		})

		t.Run("ClassNotFound", func(t *testing.T) {
			_, err := flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: "b3b9c7f0-0000-4000-8000-000000000000",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsClassNotFound(err))
		})

		t.Run("EmptyScope", func(t *testing.T) {
			empty, err := fixtures.CreateTestClass("")
			require.NoError(t, err)

			_, err = flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: empty.UUID.String(),
				Scope:     classScopeRequest(empty),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsEmptyParticipantSet(err))
		})

		t.Run("ScopeOutsideClass", func(t *testing.T) {
			other, err := fixtures.CreateTestClass("")
			require.NoError(t, err)
			otherStudents, err := fixtures.CreateTestStudents(other.ID, 2)
			require.NoError(t, err)
			foreignGroup, err := fixtures.CreateTestGroup(other.ID, "Foreign Group", otherStudents)
			require.NoError(t, err)

			_, err = flow.RunShuffle(ctx, &dto.RunShuffleRequest{
				ClassUUID: class.UUID.String(),
				Scope:     dto.ScopeRequest{Kind: "group", TargetUUID: foreignGroup.UUID.String()},
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsScopeOutsideClass(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestListRuns(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newShufflerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
			require.NoError(t, err)
		}

		t.Run("PaginatesNewestFirst", func(t *testing.T) {
			resp, err := flow.ListRuns(ctx, &dto.ListShuffleRunsRequest{
				ClassUUID:  class.UUID.String(),
				Kind:       "class",
				TargetUUID: class.UUID.String(),
				Page:       1,
				PageSize:   2,
			})
			require.NoError(t, err)
			assert.Len(t, resp.Runs, 2)
			assert.Equal(t, int64(3), resp.Total)
		})

		t.Run("SecondPage", func(t *testing.T) {
			resp, err := flow.ListRuns(ctx, &dto.ListShuffleRunsRequest{
				ClassUUID:  class.UUID.String(),
				Kind:       "class",
				TargetUUID: class.UUID.String(),
				Page:       2,
				PageSize:   2,
			})
			require.NoError(t, err)
			assert.Len(t, resp.Runs, 1)
		})

		t.Run("PageSizeTooLarge", func(t *testing.T) {
			_, err := flow.ListRuns(ctx, &dto.ListShuffleRunsRequest{
				ClassUUID:  class.UUID.String(),
				Kind:       "class",
				TargetUUID: class.UUID.String(),
				Page:       1,
				PageSize:   500,
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidPageSize(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestToggleCompletion(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newShufflerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)
		run, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
		require.NoError(t, err)

		t.Run("ToggleOnThenOff", func(t *testing.T) {
			resp, err := flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     run.UUID.String(),
				StudentUUID: students[0].UUID.String(),
			}, testMetadata())
			require.NoError(t, err)
			assert.True(t, resp.Completed)
			assert.Contains(t, resp.CompletedStudentIDs, students[0].UUID.String())

			resp, err = flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     run.UUID.String(),
				StudentUUID: students[0].UUID.String(),
			}, testMetadata())
			require.NoError(t, err)
			assert.False(t, resp.Completed)
			assert.Empty(t, resp.CompletedStudentIDs)
		})

		t.Run("ChecklistIndependentOfOrder", func(t *testing.T) {
			_, err := flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     run.UUID.String(),
				StudentUUID: students[2].UUID.String(),
			}, testMetadata())
			require.NoError(t, err)

			got, err := flow.GetRun(ctx, &dto.GetShuffleRunRequest{UUID: run.UUID.String()})
			require.NoError(t, err)
			assert.Contains(t, got.Run.CompletedStudentIDs, students[2].UUID.String())
			assert.Len(t, got.Run.Order, 3)
		})

		t.Run("StudentNotInRun", func(t *testing.T) {
			outsider, err := fixtures.CreateTestStudents(class.ID, 1)
			require.NoError(t, err)

			_, err = flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     run.UUID.String(),
				StudentUUID: outsider[0].UUID.String(),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsStudentNotInRun(err))
		})

		t.Run("RunNotFound", func(t *testing.T) {
			_, err := flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     "b3b9c7f0-0000-4000-8000-000000000000",
				StudentUUID: students[0].UUID.String(),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsRunNotFound(err))
		})

		t.Run("BrokenResults", func(t *testing.T) {
			broken, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.ShuffleRun{}).
				Where("id = ?", broken.ID).
				Update("results", `{"broken":`).Error)

			_, err = flow.ToggleCompletion(ctx, &dto.ToggleCompletionRequest{
				RunUUID:     broken.UUID.String(),
				StudentUUID: students[0].UUID.String(),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsRunResultsBroken(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestShuffleStats(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newShufflerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		statsReq := &dto.ShuffleStatsRequest{
			ClassUUID:  class.UUID.String(),
			Kind:       "class",
			TargetUUID: class.UUID.String(),
		}

		t.Run("ZeroRowsWithoutHistory", func(t *testing.T) {
			resp, err := flow.ShuffleStats(ctx, statsReq)
			require.NoError(t, err)
			require.Len(t, resp.Stats, 3)
			assert.Zero(t, resp.TotalRuns)
			for _, row := range resp.Stats {
				assert.Zero(t, row.FirstCount)
				assert.Zero(t, row.LastCount)
				assert.Zero(t, row.TotalRuns)
			}
		})

		t.Run("CountsFirstAndLast", func(t *testing.T) {
			// students[0] first, students[2] last, twice over
			for i := 0; i < 2; i++ {
				_, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
				require.NoError(t, err)
			}

			resp, err := flow.ShuffleStats(ctx, statsReq)
			require.NoError(t, err)
			assert.Equal(t, int64(2), resp.TotalRuns)
			assert.Zero(t, resp.MalformedRuns)

			byUUID := make(map[string]dto.ShuffleStatRowDTO, len(resp.Stats))
			for _, row := range resp.Stats {
				byUUID[row.StudentUUID] = row
			}

			assert.Equal(t, 2, byUUID[students[0].UUID.String()].FirstCount)
			assert.Zero(t, byUUID[students[0].UUID.String()].LastCount)
			assert.Equal(t, 2, byUUID[students[2].UUID.String()].LastCount)
			assert.Zero(t, byUUID[students[2].UUID.String()].FirstCount)
			assert.Equal(t, 2, byUUID[students[1].UUID.String()].TotalRuns)
		})

		t.Run("MalformedRunCountedNotFatal", func(t *testing.T) {
			broken, err := fixtures.CreateTestShuffleRun(class.ID, testingutil.ClassScope(class), students)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.ShuffleRun{}).
				Where("id = ?", broken.ID).
				Update("results", `{"broken":`).Error)

			resp, err := flow.ShuffleStats(ctx, statsReq)
			require.NoError(t, err)
			assert.Equal(t, 1, resp.MalformedRuns)
			assert.Equal(t, int64(3), resp.TotalRuns)
		})

		t.Run("Export", func(t *testing.T) {
			filename, data, err := flow.ExportShuffleStats(ctx, statsReq)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(filename, "shuffle_stats_class_"))
			assert.True(t, strings.HasSuffix(filename, ".xlsx"))
			assert.NotEmpty(t, data)
		})

		return nil
	})
	require.NoError(t, err)
}
