package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/model"
)

// RecordStats folds a finished match into the player's running averages.
// Recording the same match twice has no effect.
func (c *Coordinator) RecordStats(ctx context.Context, playerID, matchID string, outcome model.Outcome, score int) error {
	if err := checkID("player id", playerID); err != nil {
		return err
	}
	if err := checkID("match id", matchID); err != nil {
		return err
	}
	err := store.UpdateJSON(ctx, c.store, statsKey(playerID),
		func() *model.PlayerStats { return &model.PlayerStats{PlayerID: playerID} },
		func(s *model.PlayerStats) error {
			if !s.Apply(matchID, outcome, score, c.now().UTC()) {
				return errUnchanged
			}
			return nil
		})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// GetStats returns the player's stats; a player without games gets zero values.
func (c *Coordinator) GetStats(ctx context.Context, playerID string) (*model.PlayerStats, error) {
	if err := checkID("player id", playerID); err != nil {
		return nil, err
	}
	s := &model.PlayerStats{PlayerID: playerID}
	err := store.GetJSON(ctx, c.store, statsKey(playerID), s)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s, nil
}
