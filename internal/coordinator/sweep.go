package coordinator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// SweepOrphans deletes WAITING matches older than the orphan TTL that no
// participant's queue request points at: speculative matches whose pairing
// transaction lost. It returns how many were deleted.
func (c *Coordinator) SweepOrphans(ctx context.Context) (int, error) {
	kvs, err := c.store.List(ctx, matchCollection+"/")
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-c.orphanTTL)
	swept := 0
	for _, kv := range kvs {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		var m model.Match
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			c.log.Warn(ctx, "skipping undecodable match", logger.String("key", kv.Key), logger.Error(err))
			continue
		}
		if m.Status != model.MatchWaiting || !m.CreatedAt.Before(cutoff) {
			continue
		}
		deleted, err := c.sweepOne(ctx, m.MatchID, m.PlayerIDs())
		if err != nil {
			c.log.Warn(ctx, "orphan sweep failed", logger.String("matchID", m.MatchID), logger.Error(err))
			continue
		}
		if deleted {
			swept++
		}
	}
	if swept > 0 {
		metrics.RecordOrphansSwept(swept)
		c.log.Info(ctx, "swept orphaned matches", logger.Int("count", swept))
	}
	return swept, nil
}

// sweepOne re-checks the match and both queue requests in one transaction so
// a pairing commit racing the sweep cannot leave players matched to nothing.
func (c *Coordinator) sweepOne(ctx context.Context, matchID string, players []string) (bool, error) {
	keys := []string{matchKey(matchID)}
	for _, p := range players {
		keys = append(keys, queueKey(p))
	}
	deleted := false
	err := c.store.Transact(ctx, keys, func(tx store.Tx) error {
		deleted = false
		var m model.Match
		if err := store.DecodeJSON(tx, keys[0], &m); err != nil {
			return err
		}
		if m.Status != model.MatchWaiting {
			return errUnchanged
		}
		for _, k := range keys[1:] {
			var req model.MatchmakingRequest
			err := store.DecodeJSON(tx, k, &req)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if req.MatchID == matchID {
				return errUnchanged
			}
		}
		deleted = true
		return tx.Delete(keys[0])
	})
	switch {
	case errors.Is(err, errUnchanged), errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return deleted, nil
}

// QueueDepth counts searching requests, for the service stats.
func (c *Coordinator) QueueDepth(ctx context.Context) (int, error) {
	reqs, err := c.Searching(ctx, "", 0)
	if err != nil {
		return 0, err
	}
	metrics.UpdateSearchingCount(len(reqs))
	return len(reqs), nil
}
