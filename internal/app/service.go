// Package service builds the shared store, the match coordinator and the
// background jobs that keep the store tidy, and exposes them to the HTTP API
// and the simulator.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/adapters/store/redisstore"
	"github.com/okian/gridduel/internal/config"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/dedupe"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/internal/session"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// Service owns the coordinator and its store for one process.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	store     store.Store
	ownsStore bool
	puzzles   *puzzle.Provider
	deduper   dedupe.Deduper
	coord     *coordinator.Coordinator
	sched     gocron.Scheduler

	sweeps        atomic.Int64
	orphansSwept  atomic.Int64
	systemSamples atomic.Int64

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. The default is config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects a store instead of building one from the config. The
// service does not close an injected store.
func WithStore(st store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service. Nothing is connected until Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, builds the coordinator and schedules the sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.logger.Info(ctx, "starting match coordinator...", logger.String("backend", s.cfg.StoreBackend))
	metrics.Configure(
		metrics.WithMetricsEnabled(s.cfg.MetricsEnabled),
		metrics.WithRefreshInterval(s.cfg.MetricsRefreshInterval()),
	)

	if s.store == nil {
		st, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store, s.ownsStore = st, true
	}

	var src puzzle.Source
	if s.cfg.PuzzlesFile != "" {
		src = puzzle.NewFileSource(s.cfg.PuzzlesFile)
	}
	s.puzzles = puzzle.NewProvider(src, puzzle.WithLogger(s.logger))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.MoveDedupeSize))
	s.coord = coordinator.New(s.store,
		coordinator.WithLogger(s.logger),
		coordinator.WithPuzzles(s.puzzles),
		coordinator.WithDeduper(s.deduper),
		coordinator.WithSearchLimit(s.cfg.MatchmakingSearchLimit),
		coordinator.WithDifficulty(model.Difficulty(s.cfg.PvpDifficulty)),
		coordinator.WithPresenceTTL(s.cfg.PresenceTTL()),
		coordinator.WithOrphanTTL(s.cfg.OrphanTTL()),
	)

	if err := s.schedule(); err != nil {
		s.closeStore()
		return err
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "match coordinator started",
		logger.String("backend", s.cfg.StoreBackend),
		logger.Duration("orphanSweepInterval", s.cfg.OrphanSweepInterval()),
		logger.Duration("presenceTTL", s.cfg.PresenceTTL()),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (store.Store, error) {
	switch s.cfg.StoreBackend {
	case config.BackendRedis:
		st, err := redisstore.Dial(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB,
			redisstore.WithPrefix(s.cfg.RedisPrefix),
			redisstore.WithReapInterval(s.cfg.RedisLeaseSweepInterval()),
			redisstore.WithLogger(s.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(store.WithLogger(s.logger)), nil
	}
}

func (s *Service) schedule() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.OrphanSweepInterval()),
		gocron.NewTask(s.sweep),
		gocron.WithName("orphan-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule orphan sweep: %w", err)
	}
	if metrics.Enabled() {
		_, err = sched.NewJob(
			gocron.DurationJob(metrics.RefreshInterval()),
			gocron.NewTask(s.updateSystemMetrics),
			gocron.WithName("system-metrics"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("schedule system metrics: %w", err)
		}
	}
	sched.Start()
	s.sched = sched
	return nil
}

// sweep is the scheduled orphan sweep.
func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OrphanSweepInterval())
	defer cancel()
	if _, err := s.SweepNow(ctx); err != nil {
		s.logger.Warn(ctx, "orphan sweep failed", logger.Error(err))
	}
}

// SweepNow runs one orphan sweep and refreshes the queue depth gauge.
func (s *Service) SweepNow(ctx context.Context) (int, error) {
	coord := s.Coordinator()
	if coord == nil {
		return 0, ErrNotStarted
	}
	n, err := coord.SweepOrphans(ctx)
	s.sweeps.Add(1)
	s.orphansSwept.Add(int64(n))
	if _, qerr := coord.QueueDepth(ctx); qerr != nil && err == nil {
		err = qerr
	}
	return n, err
}

func (s *Service) updateSystemMetrics() {
	s.systemSamples.Add(1)
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		pause := m.PauseNs[(m.NumGC+255)%256]
		metrics.RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
	}
}

// Stop shuts the scheduler down and closes a store the service opened.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	sched := s.sched
	s.sched = nil
	s.started = false
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping match coordinator...")
	// Running jobs take the read lock, so shut down without holding it.
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			s.logger.Warn(ctx, "scheduler shutdown failed", logger.Error(err))
		}
	}
	s.mu.Lock()
	s.closeStore()
	s.mu.Unlock()
	s.logger.Info(ctx, "match coordinator stopped")
}

func (s *Service) closeStore() {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "store close failed", logger.Error(err))
		}
		s.store, s.ownsStore = nil, false
	}
}

// Coordinator returns the coordinator, or nil before Start.
func (s *Service) Coordinator() *coordinator.Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coord
}

// Puzzles returns the puzzle provider, or nil before Start.
func (s *Service) Puzzles() *puzzle.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puzzles
}

// Config returns the configuration in use.
func (s *Service) Config() *config.Config { return s.cfg }

// SessionOptions turns the configuration into session controller options.
func (s *Service) SessionOptions() []session.Option {
	opts := []session.Option{
		session.WithHeartbeatInterval(s.cfg.HeartbeatInterval()),
		session.WithProgressInterval(s.cfg.ProgressInterval()),
		session.WithTimeLimit(s.cfg.LiveTimeLimit()),
		session.WithDrainTimeout(s.cfg.TeardownDrainTimeout()),
		session.WithOpTimeout(s.cfg.OutboxOpTimeout()),
		session.WithOutboxSize(s.cfg.OutboxSize),
		session.WithMaxHints(s.cfg.MaxHints),
	}
	if s.logger != nil {
		opts = append(opts, session.WithLogger(s.logger))
	}
	return opts
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"backend":       s.cfg.StoreBackend,
		"sweeps":        s.sweeps.Load(),
		"orphansSwept":  s.orphansSwept.Load(),
		"systemSamples": s.systemSamples.Load(),
	}
	if !s.started {
		return stats
	}
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	stats["moveDedupeSize"] = s.deduper.Size()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, err := s.coord.QueueDepth(ctx); err == nil {
		stats["searching"] = n
	} else {
		stats["searchingError"] = err.Error()
	}
	return stats
}
