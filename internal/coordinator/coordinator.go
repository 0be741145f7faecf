// Package coordinator pairs players and arbitrates the shared match lifecycle
// on top of a store.Store. Every process running a player talks to the same
// store; no central game server exists.
//
// Documents:
//
//	matchmaking_queue/{playerID}           MatchmakingRequest
//	matches/{matchID}                      Match
//	moves/{matchID}/{playerID}/{number}    PvpMove (Live Battle)
//	presence/{matchID}/{playerID}          PresenceRecord, held by a lease
//	player_stats/{playerID}                PlayerStats
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/domain/dedupe"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/pkg/logger"
)

const (
	queueCollection    = "matchmaking_queue"
	matchCollection    = "matches"
	moveCollection     = "moves"
	presenceCollection = "presence"
	statsCollection    = "player_stats"
)

// Player identifies someone joining the queue.
type Player struct {
	ID          string `json:"playerId"`
	DisplayName string `json:"displayName"`
	RatingHint  int    `json:"ratingHint"`
}

// Coordinator implements the matchmaking and match operations.
type Coordinator struct {
	store   store.Store
	puzzles *puzzle.Provider
	dedupe  dedupe.Deduper
	log     logger.Logger

	searchLimit int
	difficulty  model.Difficulty
	presenceTTL time.Duration
	orphanTTL   time.Duration

	now   func() time.Time
	newID func() string
}

// New creates a Coordinator over s.
func New(s store.Store, opts ...Option) *Coordinator {
	c := defaultCoordinator()
	c.store = s
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PresenceTTL is the lease length of presence records.
func (c *Coordinator) PresenceTTL() time.Duration { return c.presenceTTL }

func queueKey(playerID string) string { return store.Key(queueCollection, playerID) }
func matchKey(matchID string) string  { return store.Key(matchCollection, matchID) }
func movesPrefix(matchID string) string {
	return store.Key(moveCollection, matchID) + "/"
}
func moveKey(m model.PvpMove) string {
	return store.Key(moveCollection, m.MatchID, m.PlayerID, fmt.Sprintf("%010d", m.MoveNumber))
}
func presenceKey(matchID, playerID string) string {
	return store.Key(presenceCollection, matchID, playerID)
}
func statsKey(playerID string) string { return store.Key(statsCollection, playerID) }

// checkID rejects ids that would break the key layout.
func checkID(kind, id string) error {
	if id == "" || strings.ContainsAny(id, "/*?[]\\") {
		return fmt.Errorf("%w: %s %q", ErrInvalidArgument, kind, id)
	}
	return nil
}

// mutateMatch runs fn over the stored match atomically. fn returning
// errUnchanged skips the write.
func (c *Coordinator) mutateMatch(ctx context.Context, matchID string, fn func(*model.Match) error) error {
	if err := checkID("match id", matchID); err != nil {
		return err
	}
	err := store.UpdateJSON(ctx, c.store, matchKey(matchID), nil, func(m *model.Match) error {
		if err := fn(m); err != nil {
			return err
		}
		return m.Validate()
	})
	switch {
	case err == nil, errors.Is(err, errUnchanged):
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", matchID, ErrMatchNotFound)
	default:
		return err
	}
}

// watchKey streams the value of a single key: the current value first, then
// every later write. A nil value means the key is missing. The channel closes
// with the underlying store watch.
func watchKey[T any](ctx context.Context, c *Coordinator, key string) (<-chan *T, error) {
	changes, err := c.store.Watch(ctx, key)
	if err != nil {
		return nil, err
	}
	decode := func(raw []byte) *T {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			c.log.Warn(ctx, "dropping undecodable document", logger.String("key", key), logger.Error(err))
			return nil
		}
		return v
	}

	var first *T
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		first = decode(raw)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	out := make(chan *T, 1)
	out <- first
	go func() {
		defer close(out)
		for ch := range changes {
			if ch.Key != key {
				continue
			}
			var v *T
			if !ch.Deleted {
				if v = decode(ch.Value); v == nil {
					continue
				}
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
