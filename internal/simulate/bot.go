package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/internal/session"
	"github.com/okian/gridduel/pkg/logger"
)

// Coordinator is what a bot needs: matchmaking plus everything a session uses.
type Coordinator interface {
	session.Coordinator
	JoinMatchmaking(ctx context.Context, p coordinator.Player, mode model.Mode) (*model.MatchmakingRequest, error)
	LeaveMatchmaking(ctx context.Context, playerID string) error
	ObserveMatchmaking(ctx context.Context, playerID string) (<-chan *model.MatchmakingRequest, error)
	TryMatchmaking(ctx context.Context, playerID string, mode model.Mode) (string, error)
}

type bot struct {
	cfg     BotConfig
	mode    model.Mode
	coord   Coordinator
	poll    time.Duration
	opts    []session.Option
	rng     *rand.Rand
	log     logger.Logger
	correct int
	wrong   int
}

func newBot(cfg BotConfig, mode model.Mode, coord Coordinator, poll time.Duration, opts []session.Option, log logger.Logger) *bot {
	return &bot{
		cfg:   cfg,
		mode:  mode,
		coord: coord,
		poll:  poll,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
		log:   log.Named("bot").With(logger.String("playerID", cfg.ID)),
	}
}

// play queues, waits for a pairing and plays the match to its end.
func (b *bot) play(ctx context.Context) (Result, error) {
	began := time.Now()
	matchID, err := b.findMatch(ctx)
	if err != nil {
		return Result{}, err
	}
	b.log.Info(ctx, "paired", logger.String("matchID", matchID))

	ctrl := session.New(b.coord, matchID, b.cfg.ID, append(b.opts, session.WithLogger(b.log))...)
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	var (
		finished *session.Event
		solving  = make(chan struct{})
		started  bool
	)
	for ev := range ctrl.Events() {
		switch ev.Kind {
		case session.EventStarted:
			if !started {
				started = true
				go func(m *model.Match) {
					defer close(solving)
					b.solve(ctx, ctrl, m.Puzzle)
				}(ev.Match)
			}
		case session.EventReconnecting:
			b.log.Warn(ctx, "session reconnecting", logger.Error(ev.Err))
		case session.EventFinished:
			ev := ev
			finished = &ev
		}
	}
	if started {
		<-solving
	}
	if err := <-runErr; err != nil {
		return Result{}, fmt.Errorf("session %s: %w", matchID, err)
	}
	if finished == nil {
		return Result{}, fmt.Errorf("%s: %w", matchID, ErrNoResult)
	}
	return Result{
		PlayerID:   b.cfg.ID,
		MatchID:    matchID,
		OpponentID: finished.Match.Opponent(b.cfg.ID),
		Outcome:    finished.Outcome,
		Reason:     finished.Reason,
		WinnerID:   finished.WinnerID,
		Score:      finished.Score.FinalScore,
		Correct:    b.correct,
		Wrong:      b.wrong,
		Duration:   time.Since(began),
	}, nil
}

// findMatch joins the queue and polls until this bot or its opponent pairs
// the request.
func (b *bot) findMatch(ctx context.Context) (string, error) {
	p := coordinator.Player{ID: b.cfg.ID, DisplayName: b.cfg.Name}
	if _, err := b.coord.JoinMatchmaking(ctx, p, b.mode); err != nil {
		return "", fmt.Errorf("join queue: %w", err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, err := b.coord.ObserveMatchmaking(watchCtx, b.cfg.ID)
	if err != nil {
		return "", fmt.Errorf("observe queue: %w", err)
	}

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = b.coord.LeaveMatchmaking(context.WithoutCancel(ctx), b.cfg.ID)
			return "", ctx.Err()
		case req, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if req == nil {
				continue
			}
			switch req.Status {
			case model.QueueMatched:
				return req.MatchID, nil
			case model.QueueCancelled:
				return "", ErrQueueCancelled
			}
		case <-ticker.C:
			mid, err := b.coord.TryMatchmaking(ctx, b.cfg.ID, b.mode)
			if err != nil {
				b.log.Warn(ctx, "matchmaking attempt failed", logger.Error(err))
				continue
			}
			if mid != "" {
				return mid, nil
			}
		}
	}
}

// solve fills the blanks in random order until the board is done or the
// session leaves the playing phase.
func (b *bot) solve(ctx context.Context, ctrl *session.Controller, pz model.Puzzle) {
	var cells []int
	for i := 0; i < puzzle.Cells; i++ {
		if pz.Clue[i] == '0' {
			cells = append(cells, i)
		}
	}
	b.rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })

	for _, i := range cells {
		want := int(pz.Solution[i] - '0')
		for {
			if !b.think(ctx) {
				return
			}
			res, err := ctrl.Place(ctx, puzzle.RowOf(i), puzzle.ColOf(i), b.guess(want))
			if errors.Is(err, session.ErrNotPlaying) || errors.Is(err, session.ErrStopped) || ctx.Err() != nil {
				return
			}
			if err != nil {
				b.log.Warn(ctx, "placement failed", logger.Int("cell", i), logger.Error(err))
				return
			}
			if !res.Accepted {
				break
			}
			if res.Correct {
				b.correct++
				break
			}
			b.wrong++
		}
	}
}

// guess returns want with probability Accuracy and some other digit otherwise.
func (b *bot) guess(want int) int {
	if b.rng.Float64() < b.cfg.Accuracy {
		return want
	}
	v := 1 + b.rng.IntN(8)
	if v >= want {
		v++
	}
	return v
}

// think sleeps for a jittered think time. It reports false if ctx ended.
func (b *bot) think(ctx context.Context) bool {
	if b.cfg.Think <= 0 {
		return ctx.Err() == nil
	}
	d := time.Duration(float64(b.cfg.Think) * (0.5 + b.rng.Float64()))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
