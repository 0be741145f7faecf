package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

func checkMove(m model.PvpMove) error {
	switch {
	case checkID("match id", m.MatchID) != nil, checkID("player id", m.PlayerID) != nil:
		return fmt.Errorf("%w: bad ids", ErrInvalidMove)
	case m.Row < 0 || m.Row > 8 || m.Col < 0 || m.Col > 8:
		return fmt.Errorf("%w: cell (%d,%d) off the board", ErrInvalidMove, m.Row, m.Col)
	case m.Value < 0 || m.Value > 9:
		return fmt.Errorf("%w: value %d", ErrInvalidMove, m.Value)
	case m.MoveNumber <= 0:
		return fmt.Errorf("%w: move number %d", ErrInvalidMove, m.MoveNumber)
	}
	return nil
}

// SubmitMove appends a Live Battle move. Moves are immutable: a second
// delivery of the same (match, player, moveNumber) is dropped.
func (c *Coordinator) SubmitMove(ctx context.Context, m model.PvpMove) error {
	if err := checkMove(m); err != nil {
		metrics.RecordMoveRejected("geometry")
		return err
	}
	match, err := c.GetMatch(ctx, m.MatchID)
	if err != nil {
		return err
	}
	if !match.HasPlayer(m.PlayerID) {
		metrics.RecordMoveRejected("participant")
		return fmt.Errorf("%w: %q", ErrNotParticipant, m.PlayerID)
	}
	if match.Mode != model.ModeLiveBattle {
		metrics.RecordMoveRejected("mode")
		return fmt.Errorf("%w: moves are only logged in %s", ErrInvalidMove, model.ModeLiveBattle)
	}

	// Only accepted moves reach the dedupe window.
	id := fmt.Sprintf("%s/%s/%d", m.MatchID, m.PlayerID, m.MoveNumber)
	if c.dedupe.SeenAndRecord(ctx, id) {
		metrics.RecordMoveDuplicate()
		return nil
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = c.now().UTC()
	}

	err = store.Update(ctx, c.store, moveKey(m), func(_ []byte, exists bool) ([]byte, error) {
		if exists {
			return nil, errUnchanged
		}
		return json.Marshal(m)
	})
	switch {
	case errors.Is(err, errUnchanged):
		metrics.RecordMoveDuplicate()
		return nil
	case err != nil:
		c.dedupe.Unrecord(ctx, id)
		return fmt.Errorf("submit move: %w", err)
	}
	metrics.RecordMoveSubmitted(m.IsCorrect)
	return nil
}

// ListMoves returns the match's move log ordered by move number, then player.
func (c *Coordinator) ListMoves(ctx context.Context, matchID string) ([]model.PvpMove, error) {
	if err := checkID("match id", matchID); err != nil {
		return nil, err
	}
	kvs, err := c.store.List(ctx, movesPrefix(matchID))
	if err != nil {
		return nil, err
	}
	moves := make([]model.PvpMove, 0, len(kvs))
	for _, kv := range kvs {
		var m model.PvpMove
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			c.log.Warn(ctx, "skipping undecodable move", logger.String("key", kv.Key), logger.Error(err))
			continue
		}
		moves = append(moves, m)
	}
	SortMoves(moves)
	return moves, nil
}

// SortMoves orders moves by move number, then player id.
func SortMoves(moves []model.PvpMove) {
	sort.SliceStable(moves, func(i, j int) bool {
		if moves[i].MoveNumber != moves[j].MoveNumber {
			return moves[i].MoveNumber < moves[j].MoveNumber
		}
		return moves[i].PlayerID < moves[j].PlayerID
	})
}

// ObserveMoves streams the full ordered move log after every append. Each
// emission is re-derived from the store, never patched incrementally.
func (c *Coordinator) ObserveMoves(ctx context.Context, matchID string) (<-chan []model.PvpMove, error) {
	if err := checkID("match id", matchID); err != nil {
		return nil, err
	}
	changes, err := c.store.Watch(ctx, movesPrefix(matchID))
	if err != nil {
		return nil, err
	}
	first, err := c.ListMoves(ctx, matchID)
	if err != nil {
		return nil, err
	}
	out := make(chan []model.PvpMove, 1)
	out <- first
	go func() {
		defer close(out)
		for range changes {
			moves, err := c.ListMoves(ctx, matchID)
			if err != nil {
				c.log.Warn(ctx, "move log refresh failed", logger.String("matchID", matchID), logger.Error(err))
				return
			}
			select {
			case out <- moves:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
