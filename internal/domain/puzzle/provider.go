package puzzle

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

const defaultFetchLimit = 10

// Option configures a Provider.
type Option func(*Provider)

// WithFetchLimit sets how many puzzles are requested from the source.
func WithFetchLimit(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithRand sets the random source used to pick among candidates.
func WithRand(r *rand.Rand) Option {
	return func(p *Provider) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// Provider picks a validated puzzle for a new match.
type Provider struct {
	src   Source
	limit int
	log   logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider wraps src. A nil src always yields bundled puzzles.
func NewProvider(src Source, opts ...Option) *Provider {
	p := &Provider{
		src:   src,
		limit: defaultFetchLimit,
		log:   logger.Nop(),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // puzzle choice is not security sensitive
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pick never fails: source errors, empty answers and invalid puzzles all
// fall back to the bundled reference puzzle. fallback reports that case.
func (p *Provider) Pick(ctx context.Context, d model.Difficulty) (puzzle model.Puzzle, fallback bool) {
	if !d.Valid() {
		d = model.DifficultyMedium
	}
	if p.src == nil {
		return p.fallback(ctx, d, "no source configured")
	}

	candidates, err := p.src.GetPuzzlesByDifficulty(ctx, d, p.limit)
	if err != nil {
		p.log.Warn(ctx, "puzzle source failed", logger.String("difficulty", string(d)), logger.Error(err))
		return p.fallback(ctx, d, "source error")
	}

	valid := candidates[:0:0]
	for _, c := range candidates {
		if err := ValidateDetailed(c.Clue, c.Solution); err != nil {
			p.log.Debug(ctx, "discarding invalid puzzle", logger.Error(err))
			continue
		}
		c.Difficulty = d
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return p.fallback(ctx, d, "no valid puzzles")
	}

	p.mu.Lock()
	idx := p.rng.IntN(len(valid))
	p.mu.Unlock()
	return valid[idx], false
}

func (p *Provider) fallback(ctx context.Context, d model.Difficulty, reason string) (model.Puzzle, bool) {
	metrics.RecordPuzzleFallback()
	p.log.Info(ctx, "using bundled puzzle", logger.String("reason", reason), logger.String("difficulty", string(d)))
	return Reference(d), true
}
