package bracket

import (
	"math/rand/v2"
)

// OutcomeSource decides matches: Pick returns 0 when the first entrant wins and 1
// when the second one does.
type OutcomeSource interface {
	Pick() int
}

// OutcomeFunc adapts a plain function to OutcomeSource.
type OutcomeFunc func() int

func (f OutcomeFunc) Pick() int {
	return f()
}

type randomOutcome struct{}

// NewRandomOutcome draws a uniform bit per match from the runtime generator, which is
// safe for concurrent use and not reproducible.
func NewRandomOutcome() OutcomeSource {
	return randomOutcome{}
}

func (randomOutcome) Pick() int {
	return rand.IntN(2)
}

// Sequence replays picks in order and wraps around; handy for fixed scenarios.
type Sequence struct {
	picks []int
	pos   int
}

func NewSequence(picks ...int) *Sequence {
	if len(picks) == 0 {
		picks = []int{0}
	}
	return &Sequence{picks: picks}
}

func (s *Sequence) Pick() int {
	p := s.picks[s.pos%len(s.picks)]
	s.pos++
	return p
}
