package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/metrics"
)

func (c *Coordinator) presence(matchID, playerID string, status model.PresenceStatus) ([]byte, error) {
	return json.Marshal(model.PresenceRecord{
		MatchID:  matchID,
		PlayerID: playerID,
		Status:   status,
		LastSeen: c.now().UTC(),
	})
}

func (c *Coordinator) lease(ctx context.Context, matchID, playerID string) error {
	if err := checkID("match id", matchID); err != nil {
		return err
	}
	if err := checkID("player id", playerID); err != nil {
		return err
	}
	online, err := c.presence(matchID, playerID, model.PresenceOnline)
	if err != nil {
		return err
	}
	offline, err := c.presence(matchID, playerID, model.PresenceOffline)
	if err != nil {
		return err
	}
	return c.store.Lease(ctx, presenceKey(matchID, playerID), online, offline, c.presenceTTL)
}

// StartMatchPresence writes an online record and registers an offline
// last-will the store writes if no heartbeat arrives within the presence TTL.
func (c *Coordinator) StartMatchPresence(ctx context.Context, matchID, playerID string) error {
	if err := c.lease(ctx, matchID, playerID); err != nil {
		return fmt.Errorf("start presence: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes LastSeen and renews the lease.
func (c *Coordinator) UpdateHeartbeat(ctx context.Context, matchID, playerID string) error {
	if err := c.lease(ctx, matchID, playerID); err != nil {
		metrics.RecordHeartbeatFailure()
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// StopMatchPresence disarms the last-will and writes an offline record.
func (c *Coordinator) StopMatchPresence(ctx context.Context, matchID, playerID string) error {
	if err := checkID("match id", matchID); err != nil {
		return err
	}
	if err := checkID("player id", playerID); err != nil {
		return err
	}
	offline, err := c.presence(matchID, playerID, model.PresenceOffline)
	if err != nil {
		return err
	}
	if err := c.store.Release(ctx, presenceKey(matchID, playerID), offline); err != nil {
		return fmt.Errorf("stop presence: %w", err)
	}
	return nil
}

// DropMatchPresence fires the player's last-will now, as if their connection vanished.
func (c *Coordinator) DropMatchPresence(ctx context.Context, matchID, playerID string) error {
	if err := checkID("match id", matchID); err != nil {
		return err
	}
	if err := checkID("player id", playerID); err != nil {
		return err
	}
	return c.store.Revoke(ctx, presenceKey(matchID, playerID))
}

// ObserveOpponentPresence streams whether the opponent is online, emitting on
// change only. Nothing is emitted until the opponent's first record exists.
// A record whose LastSeen is older than the presence TTL counts as offline
// even if no offline write ever arrives.
func (c *Coordinator) ObserveOpponentPresence(ctx context.Context, matchID, opponentID string) (<-chan bool, error) {
	if err := checkID("match id", matchID); err != nil {
		return nil, err
	}
	if err := checkID("player id", opponentID); err != nil {
		return nil, err
	}
	records, err := watchKey[model.PresenceRecord](ctx, c, presenceKey(matchID, opponentID))
	if err != nil {
		return nil, err
	}

	out := make(chan bool, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(c.presenceTTL / 2)
		defer ticker.Stop()

		var (
			last    *model.PresenceRecord
			emitted bool
			current bool
		)
		emit := func() bool {
			if last == nil {
				return true
			}
			online := last.Online(c.now(), c.presenceTTL)
			if emitted && online == current {
				return true
			}
			current, emitted = online, true
			if !online {
				metrics.RecordPresenceOffline()
			}
			select {
			case out <- online:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-records:
				if !ok {
					return
				}
				if rec == nil {
					if last == nil {
						continue
					}
					rec = &model.PresenceRecord{Status: model.PresenceOffline}
				}
				last = rec
				if !emit() {
					return
				}
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}
