// Package randomizer implements the fair randomization engines behind the
// classroom Shuffler and Picker tools. Everything in this package is pure
// computation over in-memory history; persistence and scope resolution live
// in the business flows.
package randomizer

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Participant is an opaque roster member reference. Display names are
// resolved by the caller and only carried along for the persisted record.
type Participant struct {
	ID   uuid.UUID
	Name string
}

// NewRand returns a statistically unbiased, non-cryptographic source for the
// engines. Fairness here is about equal selection odds, not unpredictability.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// fisherYates shuffles the slice in place with an unbiased permutation
func fisherYates(participants []Participant, rng *rand.Rand) {
	for i := len(participants) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		participants[i], participants[j] = participants[j], participants[i]
	}
}
