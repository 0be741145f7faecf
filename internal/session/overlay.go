package session

import (
	"sort"

	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
)

// Overlay re-derives the opponent's visible cells from the full move log:
// only the opponent's correct moves, applied in move-number order. Wrong
// guesses are never shown.
func Overlay(moves []model.PvpMove, opponentID string) map[int]int {
	mine := make([]model.PvpMove, 0, len(moves))
	for _, m := range moves {
		if m.PlayerID == opponentID && m.IsCorrect && m.Value != 0 {
			mine = append(mine, m)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].MoveNumber < mine[j].MoveNumber })
	out := make(map[int]int, len(mine))
	for _, m := range mine {
		if m.Row < 0 || m.Row > 8 || m.Col < 0 || m.Col > 8 {
			continue
		}
		out[m.Index()] = m.Value
	}
	return out
}

// cellDone reports whether cell i needs no more input: a clue, an own correct
// digit or, in Live Battle, an opponent overlay digit.
func (c *Controller) cellDone(i int) bool {
	if c.board.Correct(i) {
		return true
	}
	if c.match.Mode != model.ModeLiveBattle {
		return false
	}
	v, ok := c.overlay[i]
	return ok && v == c.board.Solution(i)
}

// complete reports whether the whole board is done.
func (c *Controller) complete() bool {
	for i := 0; i < puzzle.Cells; i++ {
		if !c.cellDone(i) {
			return false
		}
	}
	return true
}

func (c *Controller) regionDone(cells []int) bool {
	for _, i := range cells {
		if !c.cellDone(i) {
			return false
		}
	}
	return true
}
