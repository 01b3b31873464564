package randomizer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokuban/kujibiki/models"
)

func makeRun(t *testing.T, order []models.ShuffleResult) *models.ShuffleRun {
	t.Helper()
	raw, err := json.Marshal(order)
	require.NoError(t, err)
	return &models.ShuffleRun{
		Results:        raw,
		FirstStudentID: order[0].StudentID,
		LastStudentID:  order[len(order)-1].StudentID,
	}
}

func TestCalculateShuffleStats(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	cara := uuid.New()

	roster := map[uuid.UUID]string{
		alice: "Alice",
		bob:   "Bob",
		cara:  "Cara",
	}

	t.Run("EmptyHistory", func(t *testing.T) {
		stats, malformed := CalculateShuffleStats(nil, roster)
		assert.Empty(t, stats)
		assert.Zero(t, malformed)
	})

	t.Run("CountsFirstLastAndTotals", func(t *testing.T) {
		runs := []*models.ShuffleRun{
			makeRun(t, []models.ShuffleResult{
				{StudentID: alice, StudentName: "Alice", Position: 1},
				{StudentID: bob, StudentName: "Bob", Position: 2},
				{StudentID: cara, StudentName: "Cara", Position: 3},
			}),
			makeRun(t, []models.ShuffleResult{
				{StudentID: bob, StudentName: "Bob", Position: 1},
				{StudentID: cara, StudentName: "Cara", Position: 2},
				{StudentID: alice, StudentName: "Alice", Position: 3},
			}),
		}

		stats, malformed := CalculateShuffleStats(runs, roster)
		require.Len(t, stats, 3)
		assert.Zero(t, malformed)

		byID := make(map[uuid.UUID]ShuffleStats, len(stats))
		for _, s := range stats {
			byID[s.StudentID] = s
		}

		assert.Equal(t, 1, byID[alice].FirstCount)
		assert.Equal(t, 1, byID[alice].LastCount)
		assert.Equal(t, 2, byID[alice].TotalRuns)
		assert.Equal(t, 1, byID[bob].FirstCount)
		assert.Equal(t, 0, byID[bob].LastCount)
		assert.Equal(t, 0, byID[cara].FirstCount)
		assert.Equal(t, 1, byID[cara].LastCount)
	})

	t.Run("SkipsMalformedRunsButCountsThem", func(t *testing.T) {
		good := makeRun(t, []models.ShuffleResult{
			{StudentID: alice, StudentName: "Alice", Position: 1},
			{StudentID: bob, StudentName: "Bob", Position: 2},
		})
		corrupt := &models.ShuffleRun{
			Results:        json.RawMessage(`{"not":"an array"`),
			FirstStudentID: cara,
			LastStudentID:  cara,
		}

		stats, malformed := CalculateShuffleStats([]*models.ShuffleRun{good, corrupt}, roster)
		assert.Equal(t, 1, malformed)

		byID := make(map[uuid.UUID]ShuffleStats, len(stats))
		for _, s := range stats {
			byID[s.StudentID] = s
		}
		assert.Equal(t, 1, byID[alice].FirstCount)
		// The corrupt run contributes nothing, not even first/last counts.
		_, caraCounted := byID[cara]
		assert.False(t, caraCounted)
	})

	t.Run("DepartedStudentKeepsRecordedName", func(t *testing.T) {
		ghost := uuid.New()
		runs := []*models.ShuffleRun{
			makeRun(t, []models.ShuffleResult{
				{StudentID: ghost, StudentName: "Moved Away", Position: 1},
				{StudentID: alice, StudentName: "Alice", Position: 2},
			}),
			makeRun(t, []models.ShuffleResult{
				{StudentID: alice, StudentName: "Alice", Position: 1},
				{StudentID: ghost, StudentName: "Moved Away", Position: 2},
			}),
		}

		stats, _ := CalculateShuffleStats(runs, roster)
		byID := make(map[uuid.UUID]ShuffleStats, len(stats))
		for _, s := range stats {
			byID[s.StudentID] = s
		}
		assert.Equal(t, "Moved Away", byID[ghost].StudentName)
		assert.Equal(t, 1, byID[ghost].FirstCount)
		assert.Equal(t, 1, byID[ghost].LastCount)
		assert.Equal(t, 2, byID[ghost].TotalRuns)
	})
}

func TestCalculatePickStats(t *testing.T) {
	dan := uuid.New()
	eve := uuid.New()

	rounds := []*models.PickerRound{
		{
			Picks: []models.PickerPick{
				{StudentID: dan, StudentName: "Dan", Position: 1},
				{StudentID: eve, StudentName: "Eve", Position: 2},
			},
		},
		{
			Picks: []models.PickerPick{
				{StudentID: eve, StudentName: "Eve", Position: 1},
				{StudentID: dan, StudentName: "Dan", Position: 2},
			},
		},
		{
			Picks: []models.PickerPick{
				{StudentID: dan, StudentName: "Dan", Position: 1},
			},
		},
	}

	stats := CalculatePickStats(rounds)
	require.Len(t, stats, 2)

	byID := make(map[uuid.UUID]PickStats, len(stats))
	for _, s := range stats {
		byID[s.StudentID] = s
	}

	assert.Equal(t, 3, byID[dan].TotalPicks)
	assert.Equal(t, 2, byID[dan].PositionCounts[1])
	assert.Equal(t, 1, byID[dan].PositionCounts[2])
	assert.Equal(t, 2, byID[eve].TotalPicks)
	assert.Equal(t, 1, byID[eve].PositionCounts[1])
	assert.Equal(t, 1, byID[eve].PositionCounts[2])

	assert.Equal(t, 2, MaxPosition(stats))
	assert.Zero(t, MaxPosition(nil))
}
