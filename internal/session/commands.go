package session

import (
	"context"
	"errors"
	"maps"

	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/internal/domain/scoring"
	"github.com/okian/gridduel/pkg/metrics"
)

// Reasons a placement is rejected locally.
const (
	ReasonOutOfRange      = "out_of_range"
	ReasonBadValue        = "bad_value"
	ReasonClueCell        = "clue_cell"
	ReasonLocked          = "locked"
	ReasonOpponentClaimed = "opponent_claimed"
)

// PlaceResult is the local feedback for a placement. A rejected placement
// is not an error and writes nothing.
type PlaceResult struct {
	Accepted bool
	Reason   string
	Index    int
	Correct  bool
	Regions  []string
	Score    scoring.GameScore
}

// HintResult is the cell a hint revealed. Index is -1 when nothing was left.
type HintResult struct {
	Index int
	Value int
	Score scoring.GameScore
}

// State is a read-only snapshot of the session.
type State struct {
	Phase        Phase
	Mode         model.Mode
	OpponentID   string
	Values       [puzzle.Cells]int
	Overlay      map[int]int
	Score        scoring.GameScore
	Reconnecting bool
}

// call runs fn on the session goroutine.
func call[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var zero T
	cmd := command{
		run:   func() (any, error) { return fn() },
		reply: make(chan reply, 1),
	}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		if r.err != nil {
			return zero, r.err
		}
		v, _ := r.v.(T)
		return v, nil
	case <-c.done:
		return zero, ErrStopped
	}
}

// Place writes value (0 erases) at row, col.
func (c *Controller) Place(ctx context.Context, row, col, value int) (PlaceResult, error) {
	return call(ctx, c, func() (PlaceResult, error) { return c.place(ctx, row, col, value) })
}

// Hint reveals one missing cell at a score penalty.
func (c *Controller) Hint(ctx context.Context) (HintResult, error) {
	return call(ctx, c, func() (HintResult, error) { return c.hint(ctx) })
}

// CheckErrors returns the cells holding a wrong digit at a score penalty.
func (c *Controller) CheckErrors(ctx context.Context) ([]int, error) {
	return call(ctx, c, func() ([]int, error) {
		if c.phase.get() != PhasePlaying {
			return nil, ErrNotPlaying
		}
		s, err := scoring.UseErrorCheck(c.score)
		if err != nil {
			return nil, err
		}
		c.score = s
		return c.board.Wrong(), nil
	})
}

// MarkNotesUsed forfeits the no-notes bonus.
func (c *Controller) MarkNotesUsed(ctx context.Context) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		c.score = scoring.MarkNotesUsed(c.score)
		return struct{}{}, nil
	})
	return err
}

// Leave forfeits the match. Run returns once the cancellation is observed.
func (c *Controller) Leave(ctx context.Context) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		if c.phase.get() == PhaseFinished || c.cancelSent {
			return struct{}{}, nil
		}
		c.cancelSent = true
		c.phase.advance(PhaseFinishing)
		c.stopClocks()
		c.enqueue(ctx, "cancel_match", func(ctx context.Context) error {
			return c.coord.CancelMatch(ctx, c.matchID, c.playerID, true)
		})
		return struct{}{}, nil
	})
	return err
}

// Snapshot returns the current board and score.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	return call(ctx, c, func() (State, error) {
		st := State{
			Phase:        c.phase.get(),
			Mode:         c.match.Mode,
			OpponentID:   c.opponentID,
			Overlay:      maps.Clone(c.overlay),
			Score:        c.score,
			Reconnecting: c.reconnecting,
		}
		for i := range st.Values {
			st.Values[i] = c.board.Value(i)
		}
		return st, nil
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, puzzle.ErrClueCell):
		return ReasonClueCell
	case errors.Is(err, puzzle.ErrLocked):
		return ReasonLocked
	case errors.Is(err, puzzle.ErrBadValue):
		return ReasonBadValue
	default:
		return ReasonOutOfRange
	}
}

func (c *Controller) reject(i int, reason string) PlaceResult {
	metrics.RecordMoveRejected(reason)
	return PlaceResult{Reason: reason, Index: i, Score: c.score}
}

func (c *Controller) place(ctx context.Context, row, col, value int) (PlaceResult, error) {
	if c.phase.get() != PhasePlaying {
		return PlaceResult{}, ErrNotPlaying
	}
	i, correct, err := c.board.Check(row, col, value)
	if err != nil {
		return c.reject(i, rejectReason(err)), nil
	}
	if c.match.Mode == model.ModeLiveBattle {
		if _, claimed := c.overlay[i]; claimed {
			return c.reject(i, ReasonOpponentClaimed), nil
		}
	}

	c.board.Set(i, value)
	res := PlaceResult{Accepted: true, Index: i, Correct: correct}
	if value == 0 {
		res.Score = c.score
		return res, nil
	}
	if correct {
		c.score = scoring.RecordCorrect(c.score)
		res.Regions = c.payRegions(i)
	} else {
		c.score = scoring.RecordWrong(c.score)
	}
	c.score = scoring.SetElapsed(c.score, c.o.now().Sub(c.startedAt))

	var sent *model.PvpMove
	if c.match.Mode == model.ModeLiveBattle {
		mv := c.nextMove(i, value, correct)
		sent = &mv
	}
	c.emit(Event{Kind: EventMoveApplied, Move: sent, Score: c.score})
	if c.complete() {
		c.finishLocal(ctx, model.EndCompleted, true)
	}
	res.Score = c.score
	return res, nil
}

func (c *Controller) hint(ctx context.Context) (HintResult, error) {
	if c.phase.get() != PhasePlaying {
		return HintResult{}, ErrNotPlaying
	}
	target := -1
	for i := 0; i < puzzle.Cells; i++ {
		if !c.cellDone(i) {
			target = i
			break
		}
	}
	if target < 0 {
		return HintResult{Index: -1, Score: c.score}, nil
	}
	s, err := scoring.UseHint(c.score, c.o.maxHints)
	if err != nil {
		return HintResult{}, err
	}
	c.score = s
	v := c.board.Solution(target)
	c.board.Set(target, v)
	c.payRegions(target)
	if c.match.Mode == model.ModeLiveBattle {
		c.nextMove(target, v, true)
	}
	c.emit(Event{Kind: EventMoveApplied, Score: c.score})
	if c.complete() {
		c.finishLocal(ctx, model.EndCompleted, true)
	}
	return HintResult{Index: target, Value: v, Score: c.score}, nil
}

// payRegions pays each region through cell i that just became done.
func (c *Controller) payRegions(i int) []string {
	regions := []struct {
		kind  scoring.Region
		index int
		cells []int
	}{
		{scoring.RegionBox, puzzle.BoxOf(i), puzzle.BoxCells(puzzle.BoxOf(i))},
		{scoring.RegionRow, puzzle.RowOf(i), puzzle.RowCells(puzzle.RowOf(i))},
		{scoring.RegionColumn, puzzle.ColOf(i), puzzle.ColCells(puzzle.ColOf(i))},
	}
	var paid []string
	for _, r := range regions {
		if !c.regionDone(r.cells) {
			continue
		}
		s, ok := scoring.RecordRegionCompletion(c.score, r.kind, r.index)
		if ok {
			c.score = s
			paid = append(paid, r.kind.String())
		}
	}
	return paid
}

// nextMove numbers a Live Battle move and sends it, or holds it while reconnecting.
func (c *Controller) nextMove(i, value int, correct bool) model.PvpMove {
	c.moveNumber++
	mv := model.PvpMove{
		MatchID:    c.matchID,
		PlayerID:   c.playerID,
		Row:        puzzle.RowOf(i),
		Col:        puzzle.ColOf(i),
		Value:      value,
		IsCorrect:  correct,
		MoveNumber: c.moveNumber,
		Timestamp:  c.o.now().UTC(),
	}
	if c.reconnecting {
		c.pending = append(c.pending, mv)
	} else {
		c.enqueueMove(context.Background(), mv)
	}
	return mv
}
