package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// CreateMatch writes a WAITING match with both players READY. The puzzle
// must pass the validator.
func (c *Coordinator) CreateMatch(ctx context.Context, mode model.Mode, pz model.Puzzle, a, b Player) (*model.Match, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}
	for _, p := range []Player{a, b} {
		if err := checkID("player id", p.ID); err != nil {
			return nil, err
		}
	}
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: a player cannot be matched with themselves", ErrInvalidArgument)
	}
	if err := puzzle.ValidateDetailed(pz.Clue, pz.Solution); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !pz.Difficulty.Valid() {
		pz.Difficulty = c.difficulty
	}

	now := c.now().UTC()
	m := &model.Match{
		MatchID:   c.newID(),
		Mode:      mode,
		Status:    model.MatchWaiting,
		CreatedAt: now,
		Puzzle:    pz,
		Players:   make(map[string]*model.PlayerMatchData, 2),
	}
	for _, p := range []Player{a, b} {
		m.Players[p.ID] = &model.PlayerMatchData{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			Status:      model.PlayerReady,
			JoinedAt:    now,
		}
	}
	if err := store.PutJSON(ctx, c.store, matchKey(m.MatchID), m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	metrics.RecordMatchCreated(string(mode))
	return m, nil
}

// GetMatch reads a match.
func (c *Coordinator) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	if err := checkID("match id", matchID); err != nil {
		return nil, err
	}
	var m model.Match
	err := store.GetJSON(ctx, c.store, matchKey(matchID), &m)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", matchID, ErrMatchNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ObserveMatch streams snapshots of the match; nil means it does not exist.
func (c *Coordinator) ObserveMatch(ctx context.Context, matchID string) (<-chan *model.Match, error) {
	if err := checkID("match id", matchID); err != nil {
		return nil, err
	}
	return watchKey[model.Match](ctx, c, matchKey(matchID))
}

// StartMatch moves WAITING to IN_PROGRESS and records StartedAt once.
// Calling it on a running match is a no-op.
func (c *Coordinator) StartMatch(ctx context.Context, matchID string) error {
	started := false
	err := c.mutateMatch(ctx, matchID, func(m *model.Match) error {
		started = false
		switch m.Status {
		case model.MatchInProgress:
			return errUnchanged
		case model.MatchWaiting:
		default:
			return fmt.Errorf("%w: start %s match", ErrInvalidTransition, m.Status)
		}
		if len(m.Players) != 2 {
			return fmt.Errorf("%w: start with %d players", ErrInvalidTransition, len(m.Players))
		}
		now := c.now().UTC()
		m.Status = model.MatchInProgress
		m.StartedAt = &now
		started = true
		return nil
	})
	if err == nil && started {
		metrics.RecordMatchStarted()
		c.log.Info(ctx, "match started", logger.String("matchID", matchID))
	}
	return err
}

// EndMatch completes a running match. winnerID may be empty for a draw.
// Ending a terminal match is a no-op.
func (c *Coordinator) EndMatch(ctx context.Context, matchID, winnerID string, reason model.EndReason) error {
	if reason == "" {
		reason = model.EndCompleted
	}
	return c.finish(ctx, matchID, model.MatchCompleted, reason, func(m *model.Match) (string, error) {
		if winnerID != "" && !m.HasPlayer(winnerID) {
			return "", fmt.Errorf("%w: winner %q", ErrNotParticipant, winnerID)
		}
		return winnerID, nil
	})
}

// CancelMatch cancels a match on behalf of callerID. When the caller forfeits
// the other player wins, otherwise the caller does. Cancelling a terminal
// match is a no-op.
func (c *Coordinator) CancelMatch(ctx context.Context, matchID, callerID string, forfeitedByCaller bool) error {
	reason := model.EndOpponentLeft
	if forfeitedByCaller {
		reason = model.EndForfeit
	}
	return c.finish(ctx, matchID, model.MatchCancelled, reason, func(m *model.Match) (string, error) {
		if !m.HasPlayer(callerID) {
			return "", fmt.Errorf("%w: %q", ErrNotParticipant, callerID)
		}
		if forfeitedByCaller {
			return m.Opponent(callerID), nil
		}
		return callerID, nil
	})
}

func (c *Coordinator) finish(ctx context.Context, matchID string, to model.MatchStatus, reason model.EndReason,
	winner func(*model.Match) (string, error),
) error {
	var ended *model.Match
	wasActive := false
	err := c.mutateMatch(ctx, matchID, func(m *model.Match) error {
		ended = nil
		if m.Status.Terminal() {
			return errUnchanged
		}
		if !model.CanTransition(m.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, to)
		}
		w, err := winner(m)
		if err != nil {
			return err
		}
		now := c.now().UTC()
		wasActive = m.Status == model.MatchInProgress
		m.Status = to
		m.EndedAt = &now
		m.WinnerID = w
		m.EndReason = reason
		ended = m
		return nil
	})
	if err != nil || ended == nil {
		return err
	}
	metrics.RecordMatchEnded(string(to), string(reason), wasActive)
	if ended.StartedAt != nil {
		metrics.RecordMatchDuration(ended.EndedAt.Sub(*ended.StartedAt))
	}
	c.log.Info(ctx, "match ended",
		logger.String("matchID", matchID),
		logger.String("status", string(to)),
		logger.String("reason", string(reason)),
		logger.String("winnerID", ended.WinnerID),
	)
	return nil
}

var playerStatusRank = map[model.PlayerStatus]int{
	model.PlayerReady:    0,
	model.PlayerPlaying:  1,
	model.PlayerFinished: 2,
}

// UpdatePlayerStatus advances a participant's status. Statuses only move
// forward; a stale write of an earlier status is ignored.
func (c *Coordinator) UpdatePlayerStatus(ctx context.Context, matchID, playerID string, status model.PlayerStatus) error {
	next, ok := playerStatusRank[status]
	if !ok {
		return fmt.Errorf("%w: player status %q", ErrInvalidArgument, status)
	}
	return c.mutateMatch(ctx, matchID, func(m *model.Match) error {
		p, ok := m.Players[playerID]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotParticipant, playerID)
		}
		if playerStatusRank[p.Status] >= next {
			return errUnchanged
		}
		p.Status = status
		return nil
	})
}

// SubmitPlayerResult overwrites the participant's result. A completed result
// also marks the player FINISHED and is never replaced by a progress snapshot.
func (c *Coordinator) SubmitPlayerResult(ctx context.Context, matchID, playerID string, r model.PlayerResult) error {
	return c.mutateMatch(ctx, matchID, func(m *model.Match) error {
		p, ok := m.Players[playerID]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotParticipant, playerID)
		}
		if p.Result.Completed() && !r.Completed() {
			return errUnchanged
		}
		res := r
		p.Result = &res
		if r.Completed() {
			p.Status = model.PlayerFinished
		}
		return nil
	})
}

// SubmitFinalResult writes the participant's completed result in the same
// transaction that decides whether the player finished first: first is true
// only when the opponent has no completed result yet, so at most one player
// of a match is ever told it finished first. build may run more than once.
// An already completed result is kept and returned unchanged.
func (c *Coordinator) SubmitFinalResult(ctx context.Context, matchID, playerID string, build func(first bool) model.PlayerResult) (model.PlayerResult, error) {
	var stored model.PlayerResult
	err := c.mutateMatch(ctx, matchID, func(m *model.Match) error {
		p, ok := m.Players[playerID]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotParticipant, playerID)
		}
		if p.Result.Completed() {
			stored = *p.Result
			return errUnchanged
		}
		res := build(!m.Result(m.Opponent(playerID)).Completed())
		if !res.Completed() {
			return fmt.Errorf("%w: final result without completedAt", ErrInvalidArgument)
		}
		stored = res
		p.Result = &res
		p.Status = model.PlayerFinished
		return nil
	})
	if err != nil {
		return model.PlayerResult{}, err
	}
	return stored, nil
}
