package randomizer

import (
	"sort"

	"github.com/google/uuid"

	"github.com/kokuban/kujibiki/models"
)

// ShuffleStats holds the lifetime fairness counters for one student within a
// scope. FirstCount and LastCount feed the shuffle constraint; TotalRuns is
// display-only.
type ShuffleStats struct {
	StudentID   uuid.UUID `json:"student_id"`
	StudentName string    `json:"student_name"`
	FirstCount  int       `json:"first_count"`
	LastCount   int       `json:"last_count"`
	TotalRuns   int       `json:"total_runs"`
}

// PickStats holds the lifetime position history for one student within a
// picker instance. Purely descriptive: draws never weight by it.
type PickStats struct {
	StudentID      uuid.UUID   `json:"student_id"`
	StudentName    string      `json:"student_name"`
	PositionCounts map[int]int `json:"position_counts"`
	TotalPicks     int         `json:"total_picks"`
}

// CalculateShuffleStats folds the stored run history into per-student
// counters. The fold is order-independent and never errors: students missing
// from the roster map keep the name recorded in the run, students with no
// history simply never appear (callers treat absence as all-zero), and a run
// whose results fail to parse is skipped and counted in malformed so the
// caller can distinguish "no history" from "some history unreadable".
func CalculateShuffleStats(runs []*models.ShuffleRun, roster map[uuid.UUID]string) (stats []ShuffleStats, malformed int) {
	statsMap := make(map[uuid.UUID]*ShuffleStats)

	lookup := func(id uuid.UUID, fallback string) *ShuffleStats {
		if s, ok := statsMap[id]; ok {
			return s
		}
		name := fallback
		if n, ok := roster[id]; ok {
			name = n
		}
		if name == "" {
			name = "Unknown"
		}
		s := &ShuffleStats{StudentID: id, StudentName: name}
		statsMap[id] = s
		return s
	}

	for _, run := range runs {
		results, err := run.Order()
		if err != nil {
			malformed++
			continue
		}

		// Fold the results first so every entry is created with the name
		// recorded on the run; the denormalized first/last IDs then land on
		// entries that already carry it.
		for _, result := range results {
			lookup(result.StudentID, result.StudentName).TotalRuns++
		}

		lookup(run.FirstStudentID, "").FirstCount++
		lookup(run.LastStudentID, "").LastCount++
	}

	stats = make([]ShuffleStats, 0, len(statsMap))
	for _, s := range statsMap {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].StudentName < stats[j].StudentName
	})

	return stats, malformed
}

// CalculatePickStats folds the stored round history of an instance into
// per-student position counters. Picks carry their recorded display name, so
// departed students still show up in the report.
func CalculatePickStats(rounds []*models.PickerRound) []PickStats {
	statsMap := make(map[uuid.UUID]*PickStats)

	for _, round := range rounds {
		for _, pick := range round.Picks {
			s, ok := statsMap[pick.StudentID]
			if !ok {
				s = &PickStats{
					StudentID:      pick.StudentID,
					StudentName:    pick.StudentName,
					PositionCounts: make(map[int]int),
				}
				statsMap[pick.StudentID] = s
			}
			s.PositionCounts[pick.Position]++
			s.TotalPicks++
		}
	}

	stats := make([]PickStats, 0, len(statsMap))
	for _, s := range statsMap {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].StudentName < stats[j].StudentName
	})

	return stats
}

// MaxPosition returns the widest position seen across the stats, used to lay
// out the operator-facing position table.
func MaxPosition(stats []PickStats) int {
	max := 0
	for _, s := range stats {
		for pos := range s.PositionCounts {
			if pos > max {
				max = pos
			}
		}
	}
	return max
}
