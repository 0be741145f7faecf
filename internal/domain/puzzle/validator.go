// Package puzzle validates puzzles, tracks a player's board over one, and
// picks match puzzles from an external source with a bundled fallback.
package puzzle

import "fmt"

// Cells is the number of cells of a 9x9 grid.
const Cells = 81

// Validate reports whether clue and solution form a structurally valid pair.
func Validate(clue, solution string) bool {
	return ValidateDetailed(clue, solution) == nil
}

// ValidateDetailed is Validate with the reason for rejection.
func ValidateDetailed(clue, solution string) error {
	if len(clue) != Cells || len(solution) != Cells {
		return fmt.Errorf("%w: clue %d, solution %d", ErrLength, len(clue), len(solution))
	}
	for i := 0; i < Cells; i++ {
		c, s := clue[i], solution[i]
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: index %d", ErrClueDigit, i)
		}
		if s < '1' || s > '9' {
			return fmt.Errorf("%w: index %d", ErrSolutionDigit, i)
		}
		if c != '0' && c != s {
			return fmt.Errorf("%w: index %d clue %c solution %c", ErrMismatch, i, c, s)
		}
	}
	return nil
}
