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
	"github.com/kokuban/kujibiki/repository"
	testingutil "github.com/kokuban/kujibiki/testing"
)

func newPickerFlow(testDB *testingutil.TestDB) businessflow.PickerFlow {
	return businessflow.NewPickerFlow(
		repository.NewClassRepository(testDB.DB),
		repository.NewGroupRepository(testDB.DB),
		repository.NewTeamRepository(testDB.DB),
		repository.NewStudentRepository(testDB.DB),
		repository.NewPickerInstanceRepository(testDB.DB),
		repository.NewPickerRoundRepository(testDB.DB),
		repository.NewPickerPickRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil,
		&config.CacheConfig{RedisPrefix: "test:"},
	)
}

func TestPickerInstanceLifecycle(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newPickerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 4)
		require.NoError(t, err)

		t.Run("CreateAndList", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Daily Reciter",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "Daily Reciter", created.Instance.Name)
			assert.Equal(t, "class", created.Instance.Scope.Kind)

			list, err := flow.ListInstances(ctx, &dto.ListPickerInstancesRequest{
				ClassUUID: class.UUID.String(),
			})
			require.NoError(t, err)
			require.Len(t, list.Instances, 1)
			assert.Equal(t, created.Instance.UUID, list.Instances[0].UUID)
		})

		t.Run("CreateRejectsBlankName", func(t *testing.T) {
			_, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "   ",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsInstanceNameRequired(err))
		})

		t.Run("Rename", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Before Rename",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			newName := "After Rename"
			updated, err := flow.UpdateInstance(ctx, &dto.UpdatePickerInstanceRequest{
				UUID: created.Instance.UUID,
				Name: &newName,
			}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, newName, updated.Instance.Name)
			assert.NotNil(t, updated.Instance.UpdatedAt)
		})

		t.Run("RescopeKeepsHistory", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Group One", students[:2])
			require.NoError(t, err)

			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Rescoped Picker",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			_, err = flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.NoError(t, err)

			updated, err := flow.UpdateInstance(ctx, &dto.UpdatePickerInstanceRequest{
				UUID:  created.Instance.UUID,
				Scope: &dto.ScopeRequest{Kind: "group", TargetUUID: group.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "group", updated.Instance.Scope.Kind)

			rounds, err := flow.ListRounds(ctx, &dto.ListPickerRoundsRequest{
				InstanceUUID: created.Instance.UUID,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), rounds.Total)
		})

		t.Run("UpdateRejectsEmptyPayload", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Untouched",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			_, err = flow.UpdateInstance(ctx, &dto.UpdatePickerInstanceRequest{
				UUID: created.Instance.UUID,
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsInstanceUpdateEmpty(err))
		})

		t.Run("DeleteRemovesHistory", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Doomed",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			_, err = flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.NoError(t, err)

			_, err = flow.DeleteInstance(ctx, &dto.DeletePickerInstanceRequest{
				UUID: created.Instance.UUID,
			}, testMetadata())
			require.NoError(t, err)

			_, err = flow.ListRounds(ctx, &dto.ListPickerRoundsRequest{
				InstanceUUID: created.Instance.UUID,
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsInstanceNotFound(err))
		})

		t.Run("InstanceNotFound", func(t *testing.T) {
			_, err := flow.Pick(ctx, &dto.PickRequest{
				InstanceUUID: "b3b9c7f0-0000-4000-8000-000000000000",
			}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsInstanceNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPick(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newPickerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		t.Run("DrawsWithoutReplacement", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Daily Reciter",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			seen := make(map[string]bool, 3)
			var roundUUID string
			for i := 0; i < 3; i++ {
				resp, err := flow.Pick(ctx, &dto.PickRequest{
					InstanceUUID: created.Instance.UUID,
				}, testMetadata())
				require.NoError(t, err)

				if i == 0 {
					roundUUID = resp.RoundUUID
				} else {
					assert.Equal(t, roundUUID, resp.RoundUUID, "picks stay in the same round")
				}

				assert.Equal(t, i+1, resp.Pick.Position)
				assert.Equal(t, 2-i, resp.Remaining)
				assert.False(t, seen[resp.Pick.StudentUUID], "student drawn twice in one round")
				seen[resp.Pick.StudentUUID] = true

				if i == 2 {
					assert.True(t, resp.RoundCompleted)
				} else {
					assert.False(t, resp.RoundCompleted)
				}
			}
		})

		t.Run("ExhaustedRoundRollsOver", func(t *testing.T) {
			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Rollover Picker",
				Scope:     classScopeRequest(class),
			}, testMetadata())
			require.NoError(t, err)

			var lastRound string
			for i := 0; i < 3; i++ {
				resp, err := flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
				require.NoError(t, err)
				lastRound = resp.RoundUUID
			}

			// The completed round is closed, so the next pick opens a new one
			// with the full pool restored.
			resp, err := flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.NoError(t, err)
			assert.NotEqual(t, lastRound, resp.RoundUUID)
			assert.Equal(t, 1, resp.Pick.Position)
			assert.Equal(t, 2, resp.Remaining)
		})

		t.Run("ActiveRoundWithAllPicked", func(t *testing.T) {
			instance, err := fixtures.CreateTestPickerInstance(class.ID, "Stuck Round", testingutil.ClassScope(class))
			require.NoError(t, err)
			round, err := fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)
			for i, student := range students {
				_, err := fixtures.CreateTestPick(round, student, i+1)
				require.NoError(t, err)
			}

			_, err = flow.Pick(ctx, &dto.PickRequest{InstanceUUID: instance.UUID.String()}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsRoundExhausted(err))
		})

		t.Run("ResolvesMultipleActiveRounds", func(t *testing.T) {
			instance, err := fixtures.CreateTestPickerInstance(class.ID, "Anomaly Picker", testingutil.ClassScope(class))
			require.NoError(t, err)
			_, err = fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)
			newest, err := fixtures.CreateTestPickerRound(instance, true)
			require.NoError(t, err)

			resp, err := flow.Pick(ctx, &dto.PickRequest{InstanceUUID: instance.UUID.String()}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, newest.UUID.String(), resp.RoundUUID)

			roundRepo := repository.NewPickerRoundRepository(testDB.DB)
			actives, err := roundRepo.ListActiveByInstance(ctx, instance.ID)
			require.NoError(t, err)
			assert.Len(t, actives, 1)

			auditRepo := repository.NewAuditLogRepository(testDB.DB)
			anomalies, err := auditRepo.ListAnomalyEvents(ctx, 10, 0)
			require.NoError(t, err)
			assert.NotEmpty(t, anomalies)
		})

		t.Run("EmptyScope", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Empty Group", nil)
			require.NoError(t, err)

			created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
				ClassUUID: class.UUID.String(),
				Name:      "Empty Picker",
				Scope:     dto.ScopeRequest{Kind: "group", TargetUUID: group.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)

			_, err = flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsEmptyParticipantSet(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestStartNewRound(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newPickerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		_, err = fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		created, err := flow.CreateInstance(ctx, &dto.CreatePickerInstanceRequest{
			ClassUUID: class.UUID.String(),
			Name:      "Round Reset Picker",
			Scope:     classScopeRequest(class),
		}, testMetadata())
		require.NoError(t, err)

		t.Run("ClosesActiveRoundMidway", func(t *testing.T) {
			first, err := flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.NoError(t, err)
			assert.False(t, first.RoundCompleted)

			reset, err := flow.StartNewRound(ctx, &dto.StartNewRoundRequest{
				InstanceUUID: created.Instance.UUID,
			}, testMetadata())
			require.NoError(t, err)
			assert.True(t, reset.Round.IsActive)
			assert.NotEqual(t, first.RoundUUID, reset.Round.UUID)
			assert.Empty(t, reset.Round.Picks)

			// The abandoned round is stamped completed even though it still
			// had participants remaining.
			rounds, err := flow.ListRounds(ctx, &dto.ListPickerRoundsRequest{
				InstanceUUID: created.Instance.UUID,
			})
			require.NoError(t, err)
			require.Equal(t, int64(2), rounds.Total)
			for _, round := range rounds.Rounds {
				if round.UUID == first.RoundUUID {
					assert.False(t, round.IsActive)
					assert.NotNil(t, round.CompletedAt)
				}
			}
		})

		t.Run("PoolRestoredAfterReset", func(t *testing.T) {
			resp, err := flow.Pick(ctx, &dto.PickRequest{InstanceUUID: created.Instance.UUID}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, 1, resp.Pick.Position)
			assert.Equal(t, 2, resp.Remaining)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPickStats(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newPickerFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		class, err := fixtures.CreateTestClass("")
		require.NoError(t, err)
		students, err := fixtures.CreateTestStudents(class.ID, 3)
		require.NoError(t, err)

		instance, err := fixtures.CreateTestPickerInstance(class.ID, "Stats Picker", testingutil.ClassScope(class))
		require.NoError(t, err)

		// Two finished rounds with known positions: students[0] first both
		// times, students[1] and students[2] swapping second and third.
		for i := 0; i < 2; i++ {
			round, err := fixtures.CreateTestPickerRound(instance, false)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[0], 1)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[1+i%2], 2)
			require.NoError(t, err)
			_, err = fixtures.CreateTestPick(round, students[2-i%2], 3)
			require.NoError(t, err)
		}

		statsReq := &dto.PickStatsRequest{InstanceUUID: instance.UUID.String()}

		t.Run("PositionCounts", func(t *testing.T) {
			resp, err := flow.PickStats(ctx, statsReq)
			require.NoError(t, err)
			assert.Equal(t, 3, resp.MaxPosition)

			byUUID := make(map[string]dto.PickStatRowDTO, len(resp.Stats))
			for _, row := range resp.Stats {
				byUUID[row.StudentUUID] = row
			}

			first := byUUID[students[0].UUID.String()]
			assert.Equal(t, 2, first.TotalPicks)
			assert.Equal(t, 2, first.PositionCounts[1])

			second := byUUID[students[1].UUID.String()]
			assert.Equal(t, 2, second.TotalPicks)
			assert.Equal(t, 1, second.PositionCounts[2])
			assert.Equal(t, 1, second.PositionCounts[3])
		})

		t.Run("ZeroRowForUnpickedParticipant", func(t *testing.T) {
			extra, err := fixtures.CreateTestStudents(class.ID, 1)
			require.NoError(t, err)

			resp, err := flow.PickStats(ctx, statsReq)
			require.NoError(t, err)

			var found bool
			for _, row := range resp.Stats {
				if row.StudentUUID == extra[0].UUID.String() {
					found = true
					assert.Zero(t, row.TotalPicks)
					assert.Empty(t, row.PositionCounts)
				}
			}
			assert.True(t, found, "unpicked participant missing from stats")
		})

		t.Run("Export", func(t *testing.T) {
			filename, data, err := flow.ExportPickStats(ctx, statsReq)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(filename, "pick_stats_"))
			assert.True(t, strings.HasSuffix(filename, ".xlsx"))
			assert.NotEmpty(t, data)
		})

		t.Run("RescopeRefreshesParticipantRows", func(t *testing.T) {
			group, err := fixtures.CreateTestGroup(class.ID, "Stats Group", students[:2])
			require.NoError(t, err)
			newcomer, err := fixtures.CreateTestStudents(class.ID, 1)
			require.NoError(t, err)

			_, err = flow.UpdateInstance(ctx, &dto.UpdatePickerInstanceRequest{
				UUID:  instance.UUID.String(),
				Scope: &dto.ScopeRequest{Kind: "group", TargetUUID: group.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)

			resp, err := flow.PickStats(ctx, statsReq)
			require.NoError(t, err)

			byUUID := make(map[string]dto.PickStatRowDTO, len(resp.Stats))
			for _, row := range resp.Stats {
				byUUID[row.StudentUUID] = row
			}

			// The zero-row section follows the new scope right away: a class
			// member outside the group gets no row, while picked students
			// keep their history rows even when the scope left them behind.
			_, stale := byUUID[newcomer[0].UUID.String()]
			assert.False(t, stale, "student outside the new scope listed in stats")
			assert.Equal(t, 2, byUUID[students[0].UUID.String()].TotalPicks)
			assert.Equal(t, 2, byUUID[students[2].UUID.String()].TotalPicks)
		})

		return nil
	})
	require.NoError(t, err)
}
