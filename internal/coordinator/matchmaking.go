package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// Outcomes of a matchmaking attempt, used as metric labels.
const (
	attemptMatched     = "matched"
	attemptNoCandidate = "no_candidate"
	attemptClaimed     = "claimed"
	attemptConflict    = "conflict"
	attemptError       = "error"
)

// JoinMatchmaking upserts the player's request with status searching.
// Re-joining overwrites any stale entry.
func (c *Coordinator) JoinMatchmaking(ctx context.Context, p Player, mode model.Mode) (*model.MatchmakingRequest, error) {
	if err := checkID("player id", p.ID); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}
	req := &model.MatchmakingRequest{
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		RatingHint:  p.RatingHint,
		Mode:        mode,
		EnqueuedAt:  c.now().UTC(),
		Status:      model.QueueSearching,
	}
	if err := store.PutJSON(ctx, c.store, queueKey(p.ID), req); err != nil {
		return nil, fmt.Errorf("join matchmaking: %w", err)
	}
	metrics.RecordQueueJoin()
	c.log.Debug(ctx, "joined matchmaking", logger.String("playerID", p.ID), logger.String("mode", string(mode)))
	return req, nil
}

// LeaveMatchmaking deletes the player's request. It is idempotent.
func (c *Coordinator) LeaveMatchmaking(ctx context.Context, playerID string) error {
	if err := checkID("player id", playerID); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, queueKey(playerID)); err != nil {
		return fmt.Errorf("leave matchmaking: %w", err)
	}
	metrics.RecordQueueLeave()
	return nil
}

// GetMatchmakingRequest returns the player's request, or nil when there is none.
func (c *Coordinator) GetMatchmakingRequest(ctx context.Context, playerID string) (*model.MatchmakingRequest, error) {
	if err := checkID("player id", playerID); err != nil {
		return nil, err
	}
	var req model.MatchmakingRequest
	err := store.GetJSON(ctx, c.store, queueKey(playerID), &req)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ObserveMatchmaking streams the player's own request. It is the passive half
// of matchmaking: a pairing committed by the opponent arrives here as a
// matched request carrying the match id.
func (c *Coordinator) ObserveMatchmaking(ctx context.Context, playerID string) (<-chan *model.MatchmakingRequest, error) {
	if err := checkID("player id", playerID); err != nil {
		return nil, err
	}
	return watchKey[model.MatchmakingRequest](ctx, c, queueKey(playerID))
}

// Searching returns up to limit searching requests of mode, oldest first.
// limit <= 0 returns all of them.
func (c *Coordinator) Searching(ctx context.Context, mode model.Mode, limit int) ([]model.MatchmakingRequest, error) {
	kvs, err := c.store.List(ctx, queueCollection+"/")
	if err != nil {
		return nil, err
	}
	out := make([]model.MatchmakingRequest, 0, len(kvs))
	for _, kv := range kvs {
		var req model.MatchmakingRequest
		if err := json.Unmarshal(kv.Value, &req); err != nil {
			c.log.Warn(ctx, "skipping undecodable queue entry", logger.String("key", kv.Key), logger.Error(err))
			continue
		}
		if req.Status == model.QueueSearching && (mode == "" || req.Mode == mode) {
			out = append(out, req)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return strings.Compare(out[i].PlayerID, out[j].PlayerID) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TryMatchmaking is one active search step. It returns the new match id, or
// "" when no pairing happened this tick. Losing the pairing race is not an
// error: the winner's commit reaches the caller through ObserveMatchmaking.
func (c *Coordinator) TryMatchmaking(ctx context.Context, playerID string, mode model.Mode) (string, error) {
	if err := checkID("player id", playerID); err != nil {
		return "", err
	}
	if !mode.Valid() {
		return "", fmt.Errorf("%w: mode %q", ErrInvalidArgument, mode)
	}
	log := c.log.With(logger.String("playerID", playerID))

	self, err := c.GetMatchmakingRequest(ctx, playerID)
	if err != nil {
		metrics.RecordMatchmakingAttempt(attemptError)
		return "", fmt.Errorf("read own request: %w", err)
	}
	if self == nil || self.Status != model.QueueSearching {
		metrics.RecordMatchmakingAttempt(attemptClaimed)
		return "", nil
	}

	candidates, err := c.Searching(ctx, mode, c.searchLimit+1)
	if err != nil {
		metrics.RecordMatchmakingAttempt(attemptError)
		return "", fmt.Errorf("query queue: %w", err)
	}
	var opponent *model.MatchmakingRequest
	for i := range candidates {
		if candidates[i].PlayerID != playerID {
			opponent = &candidates[i]
			break
		}
	}
	if opponent == nil {
		metrics.RecordMatchmakingAttempt(attemptNoCandidate)
		return "", nil
	}

	// Cheap pre-check before paying for match creation.
	fresh, err := c.GetMatchmakingRequest(ctx, opponent.PlayerID)
	if err != nil {
		metrics.RecordMatchmakingAttempt(attemptError)
		return "", fmt.Errorf("re-read candidate: %w", err)
	}
	if fresh == nil || fresh.Status != model.QueueSearching || fresh.Mode != mode {
		metrics.RecordMatchmakingAttempt(attemptClaimed)
		return "", nil
	}

	pz, _ := c.puzzles.Pick(ctx, c.difficulty)
	m, err := c.CreateMatch(ctx, mode, pz,
		Player{ID: self.PlayerID, DisplayName: self.DisplayName, RatingHint: self.RatingHint},
		Player{ID: fresh.PlayerID, DisplayName: fresh.DisplayName, RatingHint: fresh.RatingHint},
	)
	if err != nil {
		metrics.RecordMatchmakingAttempt(attemptError)
		return "", err
	}

	start := time.Now()
	err = c.pair(ctx, playerID, fresh.PlayerID, mode, m.MatchID)
	metrics.RecordPairingLatency(float64(time.Since(start).Microseconds()) / 1000)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotSearching), errors.Is(err, store.ErrConflict):
		metrics.RecordMatchmakingAttempt(attemptConflict)
		metrics.RecordPairingConflict()
		metrics.RecordOrphanedMatch()
		log.Debug(ctx, "pairing lost, match orphaned", logger.String("matchID", m.MatchID), logger.Error(err))
		return "", nil
	default:
		metrics.RecordMatchmakingAttempt(attemptError)
		metrics.RecordOrphanedMatch()
		return "", fmt.Errorf("pairing transaction: %w", err)
	}

	metrics.RecordMatchmakingAttempt(attemptMatched)
	metrics.RecordPairing(string(mode))
	log.Info(ctx, "paired", logger.String("matchID", m.MatchID), logger.String("opponentID", fresh.PlayerID))
	return m.MatchID, nil
}

// pair is the compare-and-set over both requests: it commits both to matchID
// only while both are still searching in mode.
func (c *Coordinator) pair(ctx context.Context, a, b string, mode model.Mode, matchID string) error {
	keys := []string{queueKey(a), queueKey(b)}
	return c.store.Transact(ctx, keys, func(tx store.Tx) error {
		reqs := make([]model.MatchmakingRequest, len(keys))
		for i, k := range keys {
			err := store.DecodeJSON(tx, k, &reqs[i])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%s left the queue: %w", k, ErrNotSearching)
			}
			if err != nil {
				return err
			}
			if reqs[i].Status != model.QueueSearching || reqs[i].Mode != mode {
				return fmt.Errorf("%s is %s: %w", k, reqs[i].Status, ErrNotSearching)
			}
		}
		for i, k := range keys {
			reqs[i].Status = model.QueueMatched
			reqs[i].MatchID = matchID
			if err := store.EncodeJSON(tx, k, &reqs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
