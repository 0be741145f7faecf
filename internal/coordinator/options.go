package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/gridduel/internal/domain/dedupe"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/pkg/logger"
)

const (
	defaultSearchLimit = 20
	defaultPresenceTTL = 15 * time.Second
	defaultOrphanTTL   = 5 * time.Minute
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l.Named("coordinator")
		}
	}
}

// WithPuzzles sets the provider used when pairing players.
func WithPuzzles(p *puzzle.Provider) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.puzzles = p
		}
	}
}

// WithDeduper sets the seen-set used to drop duplicate move deliveries.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dedupe = d
		}
	}
}

// WithSearchLimit caps the candidates considered per matchmaking attempt.
func WithSearchLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithDifficulty sets the puzzle difficulty of PvP matches.
func WithDifficulty(d model.Difficulty) Option {
	return func(c *Coordinator) {
		if d.Valid() {
			c.difficulty = d
		}
	}
}

// WithPresenceTTL sets how long a presence record stays online without a heartbeat.
func WithPresenceTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.presenceTTL = d
		}
	}
}

// WithOrphanTTL sets the age after which an unreferenced WAITING match is swept.
func WithOrphanTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.orphanTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides match id generation.
func WithIDGenerator(f func() string) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.newID = f
		}
	}
}

func defaultCoordinator() *Coordinator {
	return &Coordinator{
		puzzles:     puzzle.NewProvider(nil),
		dedupe:      dedupe.NewInMemoryDeduper(),
		log:         logger.Nop(),
		searchLimit: defaultSearchLimit,
		difficulty:  model.DifficultyMedium,
		presenceTTL: defaultPresenceTTL,
		orphanTTL:   defaultOrphanTTL,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}
