package puzzle

import (
	"strings"

	"github.com/okian/gridduel/internal/domain/model"
)

// Reference grid. Every bundled puzzle is a digit relabelling of it, which
// keeps validity and uniqueness.
const (
	ReferenceClue     = "530070000600195000098000060800060003400803001700020006060000280000419005000080079"
	ReferenceSolution = "534678912672195348198342567859761423426853791713924856961537284287419635345286179"
)

// relabellings are permutations of 1..9; position k holds the new digit for k+1.
var relabellings = []string{ //nolint:gochecknoglobals // fixed bundled data
	"123456789",
	"284917365",
	"741385926",
	"962741853",
	"519623478",
	"357892164",
	"836154297",
	"678239541",
}

// Relabel maps every non-zero digit d of grid to perm[d-1].
func Relabel(grid, perm string) string {
	var sb strings.Builder
	sb.Grow(len(grid))
	for i := 0; i < len(grid); i++ {
		c := grid[i]
		if c >= '1' && c <= '9' {
			c = perm[c-'1']
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// Reference returns the reference puzzle at difficulty d.
func Reference(d model.Difficulty) model.Puzzle {
	return model.Puzzle{Clue: ReferenceClue, Solution: ReferenceSolution, Difficulty: d}
}

// Bundled returns the known-good puzzles shipped with the binary for d.
func Bundled(d model.Difficulty) []model.Puzzle {
	out := make([]model.Puzzle, 0, len(relabellings))
	for _, perm := range relabellings {
		out = append(out, model.Puzzle{
			Clue:       Relabel(ReferenceClue, perm),
			Solution:   Relabel(ReferenceSolution, perm),
			Difficulty: d,
		})
	}
	return out
}
