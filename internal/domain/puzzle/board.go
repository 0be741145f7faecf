package puzzle

import (
	"fmt"

	"github.com/okian/gridduel/internal/domain/model"
)

// Board is one player's view of a puzzle. Clues are fixed, correct entries
// are locked, wrong entries stay until overwritten or erased with 0.
type Board struct {
	clue     [Cells]int
	solution [Cells]int
	cells    [Cells]int
}

// NewBoard validates p and returns a board showing its clues.
func NewBoard(p model.Puzzle) (*Board, error) {
	if err := ValidateDetailed(p.Clue, p.Solution); err != nil {
		return nil, err
	}
	b := &Board{}
	for i := 0; i < Cells; i++ {
		b.clue[i] = int(p.Clue[i] - '0')
		b.solution[i] = int(p.Solution[i] - '0')
		b.cells[i] = b.clue[i]
	}
	return b, nil
}

// Index converts a row and column to a cell index.
func Index(row, col int) (int, error) {
	if row < 0 || row > 8 || col < 0 || col > 8 {
		return 0, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, row, col)
	}
	return row*9 + col, nil
}

// RowOf returns the row of cell i.
func RowOf(i int) int { return i / 9 }

// ColOf returns the column of cell i.
func ColOf(i int) int { return i % 9 }

// BoxOf returns the 3x3 box of cell i, numbered left to right, top to bottom.
func BoxOf(i int) int { return (RowOf(i)/3)*3 + ColOf(i)/3 }

// IsClue reports whether cell i is given by the puzzle.
func (b *Board) IsClue(i int) bool { return b.clue[i] != 0 }

// Value returns the digit shown in cell i, 0 when blank.
func (b *Board) Value(i int) int { return b.cells[i] }

// Solution returns the solution digit of cell i.
func (b *Board) Solution(i int) int { return b.solution[i] }

// Correct reports whether cell i holds its solution digit.
func (b *Board) Correct(i int) bool { return b.cells[i] == b.solution[i] }

// Check reports whether v would be correct at (row, col) and rejects
// placements the board cannot accept.
func (b *Board) Check(row, col, v int) (int, bool, error) {
	i, err := Index(row, col)
	if err != nil {
		return 0, false, err
	}
	if v < 0 || v > 9 {
		return i, false, fmt.Errorf("%w: %d", ErrBadValue, v)
	}
	if b.IsClue(i) {
		return i, false, ErrClueCell
	}
	if b.Correct(i) {
		return i, false, ErrLocked
	}
	return i, v != 0 && v == b.solution[i], nil
}

// Set writes v into cell i. Callers check first.
func (b *Board) Set(i, v int) { b.cells[i] = v }

// Filled counts non-blank cells.
func (b *Board) Filled() int {
	n := 0
	for _, v := range b.cells {
		if v != 0 {
			n++
		}
	}
	return n
}

// Blanks returns the indexes of cells not yet holding the right digit.
func (b *Board) Blanks() []int {
	var out []int
	for i := 0; i < Cells; i++ {
		if !b.Correct(i) {
			out = append(out, i)
		}
	}
	return out
}

// Wrong returns the indexes holding a wrong digit.
func (b *Board) Wrong() []int {
	var out []int
	for i, v := range b.cells {
		if v != 0 && v != b.solution[i] {
			out = append(out, i)
		}
	}
	return out
}

// Solved reports whether every cell holds its solution digit.
func (b *Board) Solved() bool { return len(b.Blanks()) == 0 }

// RowCells returns the cell indexes of row r.
func RowCells(r int) []int {
	out := make([]int, 9)
	for c := range out {
		out[c] = r*9 + c
	}
	return out
}

// ColCells returns the cell indexes of column c.
func ColCells(c int) []int {
	out := make([]int, 9)
	for r := range out {
		out[r] = r*9 + c
	}
	return out
}

// BoxCells returns the cell indexes of box n.
func BoxCells(n int) []int {
	r0, c0 := (n/3)*3, (n%3)*3
	out := make([]int, 0, 9)
	for r := r0; r < r0+3; r++ {
		for c := c0; c < c0+3; c++ {
			out = append(out, r*9+c)
		}
	}
	return out
}

func (b *Board) allCorrect(cells []int) bool {
	for _, i := range cells {
		if !b.Correct(i) {
			return false
		}
	}
	return true
}

// RowComplete reports whether row r is filled with correct digits.
func (b *Board) RowComplete(r int) bool { return b.allCorrect(RowCells(r)) }

// ColComplete reports whether column c is filled with correct digits.
func (b *Board) ColComplete(c int) bool { return b.allCorrect(ColCells(c)) }

// BoxComplete reports whether box n is filled with correct digits.
func (b *Board) BoxComplete(n int) bool { return b.allCorrect(BoxCells(n)) }
