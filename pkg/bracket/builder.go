package bracket

import (
	"errors"
	"fmt"
)

const (
	// DefaultEntrants is the size of every battle net the application renders.
	DefaultEntrants = 8

	VictorySuffix = " (победа)"
)

var (
	ErrInsufficientEntrants = errors.New("too few participants for this category")
	ErrInvalidSize          = errors.New("bracket size must be a power of two and at least 2")
)

// Match is one pairing of a round. First and Second are the labels exactly as they
// are displayed, so the winner's label already carries VictorySuffix.
type Match struct {
	UID    string
	Round  int
	Order  int
	First  string
	Second string
	Winner int
}

// Net is a played-out single elimination bracket ready for rendering.
type Net struct {
	Name     string
	Rounds   [][]Match
	Grid     [][]string
	Champion string
}

type Builder struct {
	size    int
	outcome OutcomeSource
}

// New returns a builder for brackets of size entrants. A nil outcome source falls
// back to NewRandomOutcome.
func New(size int, outcome OutcomeSource) (*Builder, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if outcome == nil {
		outcome = NewRandomOutcome()
	}

	return &Builder{size: size, outcome: outcome}, nil
}

// Default is an 8 entrant builder with random outcomes.
func Default() *Builder {
	return &Builder{size: DefaultEntrants, outcome: NewRandomOutcome()}
}

func (b *Builder) Size() int {
	return b.size
}

// Build takes the first Size() entrants in the given order, pairs them by adjacent
// index and plays every round with the builder's outcome source.
func (b *Builder) Build(name string, entrants []string) (*Net, error) {
	if len(entrants) < b.size {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientEntrants, len(entrants), b.size)
	}

	current := make([]string, b.size)
	copy(current, entrants[:b.size])

	rounds := Rounds(b.size)
	net := &Net{
		Name:   name,
		Rounds: make([][]Match, 0, rounds),
		Grid:   NewGrid(b.size),
	}

	for r := 0; r < rounds; r++ {
		next := make([]string, 0, len(current)/2)
		matches := make([]Match, 0, len(current)/2)

		for i := 0; i < len(current); i += 2 {
			pair := [2]string{current[i], current[i+1]}

			w := b.outcome.Pick()
			if w != 0 {
				w = 1
			}

			// Победитель уходит в следующий круг без пометки, пометка остаётся в текущем.
			next = append(next, pair[w])
			pair[w] += VictorySuffix

			m := Match{
				UID:    fmt.Sprintf("R%dM%d", r+1, i/2+1),
				Round:  r,
				Order:  i / 2,
				First:  pair[0],
				Second: pair[1],
				Winner: w,
			}
			matches = append(matches, m)

			for slot, label := range pair {
				row, col := Position(r, m.Order, slot)
				net.Grid[row][col] = label
			}
		}

		net.Rounds = append(net.Rounds, matches)
		current = next
	}

	net.Champion = current[0]

	return net, nil
}
