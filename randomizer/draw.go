package randomizer

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"
)

// ErrRoundExhausted is returned when a draw is requested from a round whose
// pool is empty. Callers are expected to disable the action instead of
// recovering from this.
var ErrRoundExhausted = errors.New("no participants remaining in round")

// RoundState is the in-memory view of one draw-without-replacement session:
// who has been drawn, in order, and who is still in the pool. States are
// values; Draw returns a new state rather than mutating the receiver.
type RoundState struct {
	Picked    []Participant
	Remaining []Participant
}

// NewRoundState partitions the current participant set against the IDs
// already drawn in the round. Picked entries keep their recorded draw order;
// participants who left the roster since the round started simply drop out of
// the pool without invalidating recorded picks.
func NewRoundState(participants []Participant, pickedIDs []uuid.UUID) RoundState {
	pickedSet := make(map[uuid.UUID]int, len(pickedIDs))
	for i, id := range pickedIDs {
		pickedSet[id] = i
	}

	picked := make([]Participant, len(pickedIDs))
	remaining := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if i, ok := pickedSet[p.ID]; ok {
			picked[i] = p
		} else {
			remaining = append(remaining, p)
		}
	}

	return RoundState{Picked: picked, Remaining: remaining}
}

// Draw selects uniformly at random from the remaining pool and returns the
// drawn participant together with the successor state. The drawn
// participant's 1-based position is len(state.Picked)+1 at the time of the
// call.
func (s RoundState) Draw(rng *rand.Rand) (Participant, RoundState, error) {
	if len(s.Remaining) == 0 {
		return Participant{}, s, ErrRoundExhausted
	}

	idx := rng.Intn(len(s.Remaining))
	drawn := s.Remaining[idx]

	next := RoundState{
		Picked:    make([]Participant, 0, len(s.Picked)+1),
		Remaining: make([]Participant, 0, len(s.Remaining)-1),
	}
	next.Picked = append(next.Picked, s.Picked...)
	next.Picked = append(next.Picked, drawn)
	next.Remaining = append(next.Remaining, s.Remaining[:idx]...)
	next.Remaining = append(next.Remaining, s.Remaining[idx+1:]...)

	return drawn, next, nil
}

// NextPosition returns the 1-based position the next draw will receive
func (s RoundState) NextPosition() int {
	return len(s.Picked) + 1
}

// Complete reports whether every participant in the pool has been drawn
func (s RoundState) Complete() bool {
	return len(s.Remaining) == 0
}
