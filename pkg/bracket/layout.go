package bracket

// Rounds is log2(size) for a power of two size.
func Rounds(size int) int {
	n := 0
	for size > 1 {
		size >>= 1
		n++
	}
	return n
}

// NewGrid allocates the empty 2*(size-1) x Rounds(size) grid.
func NewGrid(size int) [][]string {
	rows := 2 * (size - 1)
	cols := Rounds(size)

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	return grid
}

// Position maps a bracket slot to its grid cell. Round and match are zero based,
// slot is 0 for the upper entrant of a match and 1 for the lower one.
//
// Each match of round r owns a block of 2^(r+2) rows and sits 2^(r+1)-2 rows into it,
// so the pair lines up between the two matches that fed it. For 8 entrants:
//
//	round 0: rows 0,1 4,5 8,9 12,13
//	round 1: rows 2,3 10,11
//	round 2: rows 6,7
func Position(round, match, slot int) (row, col int) {
	block := 1 << (round + 2)
	offset := 1<<(round+1) - 2

	return match*block + offset + slot, round
}
