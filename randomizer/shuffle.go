package randomizer

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"

	"github.com/kokuban/kujibiki/models"
)

var (
	// ErrNoParticipants is returned when a shuffle is requested for an empty set
	ErrNoParticipants = errors.New("participant set is empty")

	// ErrDuplicateParticipant is returned when the same ID appears twice
	ErrDuplicateParticipant = errors.New("duplicate participant in set")
)

// Shuffle produces a full random ordering of the participants under the
// first/last fairness constraint:
//
//  1. Position 1 is drawn uniformly from the participants whose historical
//     first-count equals the minimum across the current set, so nobody is
//     first twice before everyone eligible has been first once.
//  2. The last position is drawn the same way from the remaining
//     participants using last-counts, so first and last never coincide for
//     two or more participants.
//  3. Everyone else is placed by an unbiased Fisher-Yates permutation.
//
// Participants absent from stats count as zero. The returned order has
// contiguous positions 1..N.
func Shuffle(participants []Participant, stats []ShuffleStats, rng *rand.Rand) ([]models.ShuffleResult, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	seen := make(map[uuid.UUID]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p.ID]; dup {
			return nil, ErrDuplicateParticipant
		}
		seen[p.ID] = struct{}{}
	}

	if len(participants) == 1 {
		only := participants[0]
		return []models.ShuffleResult{{StudentID: only.ID, StudentName: only.Name, Position: 1}}, nil
	}

	firstCounts := make(map[uuid.UUID]int, len(stats))
	lastCounts := make(map[uuid.UUID]int, len(stats))
	for _, s := range stats {
		firstCounts[s.StudentID] = s.FirstCount
		lastCounts[s.StudentID] = s.LastCount
	}

	first := pickLeastCounted(participants, firstCounts, rng)

	remaining := make([]Participant, 0, len(participants)-1)
	for _, p := range participants {
		if p.ID != first.ID {
			remaining = append(remaining, p)
		}
	}

	last := pickLeastCounted(remaining, lastCounts, rng)

	middle := make([]Participant, 0, len(remaining)-1)
	for _, p := range remaining {
		if p.ID != last.ID {
			middle = append(middle, p)
		}
	}
	fisherYates(middle, rng)

	ordered := make([]Participant, 0, len(participants))
	ordered = append(ordered, first)
	ordered = append(ordered, middle...)
	ordered = append(ordered, last)

	results := make([]models.ShuffleResult, len(ordered))
	for i, p := range ordered {
		results[i] = models.ShuffleResult{
			StudentID:   p.ID,
			StudentName: p.Name,
			Position:    i + 1,
		}
	}

	return results, nil
}

// pickLeastCounted draws uniformly from the candidates holding the minimum
// count. Candidates missing from counts are treated as zero.
func pickLeastCounted(candidates []Participant, counts map[uuid.UUID]int, rng *rand.Rand) Participant {
	min := counts[candidates[0].ID]
	for _, p := range candidates[1:] {
		if c := counts[p.ID]; c < min {
			min = c
		}
	}

	eligible := make([]Participant, 0, len(candidates))
	for _, p := range candidates {
		if counts[p.ID] == min {
			eligible = append(eligible, p)
		}
	}

	return eligible[rng.Intn(len(eligible))]
}
