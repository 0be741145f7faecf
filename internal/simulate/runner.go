package simulate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	app "github.com/okian/gridduel/internal/app"
	"github.com/okian/gridduel/pkg/logger"
)

const defaultTimeout = 10 * time.Minute

// Run starts a coordinator, plays every configured bot to the end of its
// match concurrently and checks the results.
func Run(ctx context.Context, cfg *Config) ([]Result, error) {
	if cfg == nil || cfg.Service == nil || len(cfg.Bots) == 0 {
		return nil, fmt.Errorf("%w: service config and bots are required", ErrInvalidConfig)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidConfig, cfg.Mode)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.Get().Named("simulate")
	log.Info(ctx, "starting pvp simulation",
		logger.String("mode", string(cfg.Mode)),
		logger.String("backend", cfg.Service.StoreBackend),
		logger.Int("bots", len(cfg.Bots)),
		logger.Duration("timeout", timeout),
		logger.Bool("verbose", cfg.Verbose),
	)

	opts := []app.Option{app.WithConfig(cfg.Service), app.WithLogger(log)}
	if cfg.Store != nil {
		opts = append(opts, app.WithStore(cfg.Store))
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start coordinator: %w", err)
	}
	defer svc.Stop()

	started := time.Now()
	results := make([]Result, len(cfg.Bots))
	g, gctx := errgroup.WithContext(ctx)
	for i, bc := range cfg.Bots {
		b := newBot(bc, cfg.Mode, svc.Coordinator(), cfg.Service.MatchmakingPollInterval(), svc.SessionOptions(), log)
		g.Go(func() error {
			r, err := b.play(gctx)
			if err != nil {
				return fmt.Errorf("bot %s: %w", bc.ID, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := verifyResults(results); err != nil {
		return results, err
	}
	displayResults(ctx, log, results, time.Since(started))
	return results, nil
}

// displayResults logs one line per bot and a summary.
func displayResults(ctx context.Context, log logger.Logger, results []Result, elapsed time.Duration) {
	for _, r := range results {
		log.Info(ctx, "bot finished",
			logger.String("playerID", r.PlayerID),
			logger.String("matchID", r.MatchID),
			logger.String("opponentID", r.OpponentID),
			logger.String("outcome", string(r.Outcome)),
			logger.String("reason", string(r.Reason)),
			logger.Int("score", r.Score),
			logger.Int("correct", r.Correct),
			logger.Int("wrong", r.Wrong),
			logger.Duration("duration", r.Duration),
		)
	}
	log.Info(ctx, "simulation completed",
		logger.Int("bots", len(results)),
		logger.Duration("elapsed", elapsed),
	)
}
