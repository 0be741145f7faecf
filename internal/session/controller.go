// Package session drives one player's side of a match. A Controller is an
// actor: a single goroutine owns the board, the score and the phase latch,
// and selects over store subscriptions, timers and local commands. Writes
// leave through an ordered outbox so a slow store never stalls local play.
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gridduel/internal/adapters/mq/worker"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/internal/domain/scoring"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// Coordinator is the part of the match coordinator a session uses.
type Coordinator interface {
	GetMatch(ctx context.Context, matchID string) (*model.Match, error)
	ObserveMatch(ctx context.Context, matchID string) (<-chan *model.Match, error)
	ObserveMoves(ctx context.Context, matchID string) (<-chan []model.PvpMove, error)
	ObserveOpponentPresence(ctx context.Context, matchID, opponentID string) (<-chan bool, error)

	StartMatch(ctx context.Context, matchID string) error
	EndMatch(ctx context.Context, matchID, winnerID string, reason model.EndReason) error
	CancelMatch(ctx context.Context, matchID, callerID string, forfeitedByCaller bool) error
	UpdatePlayerStatus(ctx context.Context, matchID, playerID string, status model.PlayerStatus) error
	SubmitPlayerResult(ctx context.Context, matchID, playerID string, r model.PlayerResult) error
	SubmitFinalResult(ctx context.Context, matchID, playerID string, build func(first bool) model.PlayerResult) (model.PlayerResult, error)
	SubmitMove(ctx context.Context, m model.PvpMove) error

	StartMatchPresence(ctx context.Context, matchID, playerID string) error
	UpdateHeartbeat(ctx context.Context, matchID, playerID string) error
	StopMatchPresence(ctx context.Context, matchID, playerID string) error

	RecordStats(ctx context.Context, playerID, matchID string, outcome model.Outcome, score int) error
}

var errSubscriptionClosed = errors.New("subscription closed")

type subscriptions struct {
	cancel   context.CancelFunc
	match    <-chan *model.Match
	presence <-chan bool
	moves    <-chan []model.PvpMove
}

type reply struct {
	v   any
	err error
}

type command struct {
	run   func() (any, error)
	reply chan reply
}

// Controller runs one player's session.
type Controller struct {
	coord    Coordinator
	matchID  string
	playerID string
	o        options
	log      logger.Logger

	cmds    chan command
	events  chan Event
	done    chan struct{}
	running atomic.Bool
	phase   latch

	// Owned by the Run goroutine.
	match          *model.Match
	opponentID     string
	board          *puzzle.Board
	score          scoring.GameScore
	overlay        map[int]int
	moveNumber     int
	startedAt      time.Time
	pending        []model.PvpMove
	lastOpp        *model.PlayerResult
	outbox         *worker.Outbox
	subs           *subscriptions
	reconnecting   bool
	backoff        time.Duration
	retry          *time.Timer
	limit          *time.Timer
	progress       *time.Ticker
	presenceHeld   bool
	startRequested bool
	endRequested   bool
	cancelSent     bool
	fatal          error
}

// New creates a controller for playerID in matchID. Call Run to start it.
func New(coord Coordinator, matchID, playerID string, opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		coord:    coord,
		matchID:  matchID,
		playerID: playerID,
		o:        o,
		log:      o.log.Named("session").With(logger.String("matchID", matchID), logger.String("playerID", playerID)),
		cmds:     make(chan command),
		events:   make(chan Event, o.eventBuffer),
		done:     make(chan struct{}),
		overlay:  map[int]int{},
	}
}

// Events delivers UI events. It is closed when Run returns.
func (c *Controller) Events() <-chan Event { return c.events }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Phase returns the current latch position.
func (c *Controller) Phase() Phase { return c.phase.get() }

// Run drives the session until the match reaches a terminal state, a fatal
// error occurs or ctx ends. Ending ctx before the match is over forfeits it.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)
	defer close(c.events)
	metrics.UpdateActiveSessions(1)
	defer metrics.UpdateActiveSessions(-1)

	if err := c.load(ctx); err != nil {
		return err
	}

	c.outbox = worker.NewOutbox(c.o.outboxSize,
		worker.WithName("session-outbox"),
		worker.WithLogger(c.log),
		worker.WithOpTimeout(c.o.opTimeout),
	)
	c.outbox.Start(context.WithoutCancel(ctx))
	defer c.teardown(ctx)

	if !c.match.Status.Terminal() {
		if err := c.coord.StartMatchPresence(ctx, c.matchID, c.playerID); err != nil {
			c.log.Warn(ctx, "start presence failed", logger.Error(err))
		}
		c.presenceHeld = true
		if err := c.subscribe(ctx); err != nil {
			c.beginReconnect(ctx, err)
		}
	}
	c.onMatch(ctx, c.match)

	heartbeat := time.NewTicker(c.o.heartbeat)
	defer heartbeat.Stop()

	for c.phase.get() != PhaseFinished && c.fatal == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			v, err := cmd.run()
			cmd.reply <- reply{v: v, err: err}
		case m, ok := <-c.matchC():
			if !ok {
				c.beginReconnect(ctx, errSubscriptionClosed)
				continue
			}
			c.onMatch(ctx, m)
		case online, ok := <-c.presenceC():
			if !ok {
				c.beginReconnect(ctx, errSubscriptionClosed)
				continue
			}
			c.onPresence(ctx, online)
		case moves, ok := <-c.movesC():
			if !ok {
				c.beginReconnect(ctx, errSubscriptionClosed)
				continue
			}
			c.onMoves(ctx, moves)
		case <-heartbeat.C:
			c.onHeartbeat(ctx)
		case <-tickC(c.progress):
			c.publishProgress(ctx)
		case <-timerC(c.limit):
			c.limit = nil
			c.log.Info(ctx, "time limit reached")
			c.finishLocal(ctx, model.EndTimeLimit, c.complete())
		case <-timerC(c.retry):
			c.retry = nil
			c.resync(ctx)
		}
	}
	return c.fatal
}

func (c *Controller) load(ctx context.Context) error {
	m, err := c.coord.GetMatch(ctx, c.matchID)
	switch {
	case errors.Is(err, coordinator.ErrMatchNotFound):
		return fmt.Errorf("%s: %w", c.matchID, ErrMatchMissing)
	case err != nil:
		return fmt.Errorf("load match: %w", err)
	case !m.HasPlayer(c.playerID):
		return fmt.Errorf("%s in %s: %w", c.playerID, c.matchID, ErrNotParticipant)
	}
	board, err := puzzle.NewBoard(m.Puzzle)
	if err != nil {
		return fmt.Errorf("match %s puzzle: %w", c.matchID, err)
	}
	c.match = m
	c.opponentID = m.Opponent(c.playerID)
	c.board = board
	c.score = scoring.New(m.Puzzle.Difficulty)
	return nil
}

// subscribe opens the match, opponent presence and (Live) move streams.
func (c *Controller) subscribe(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscriptions{cancel: cancel}

	var g errgroup.Group
	g.Go(func() (err error) {
		s.match, err = c.coord.ObserveMatch(subCtx, c.matchID)
		return err
	})
	if c.opponentID != "" {
		g.Go(func() (err error) {
			s.presence, err = c.coord.ObserveOpponentPresence(subCtx, c.matchID, c.opponentID)
			return err
		})
	}
	if c.match.Mode == model.ModeLiveBattle {
		g.Go(func() (err error) {
			s.moves, err = c.coord.ObserveMoves(subCtx, c.matchID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		return fmt.Errorf("subscribe: %w", err)
	}
	c.subs = s
	return nil
}

func (c *Controller) closeSubs() {
	if c.subs != nil {
		c.subs.cancel()
		c.subs = nil
	}
}

func (c *Controller) matchC() <-chan *model.Match {
	if c.subs == nil {
		return nil
	}
	return c.subs.match
}

func (c *Controller) presenceC() <-chan bool {
	if c.subs == nil {
		return nil
	}
	return c.subs.presence
}

func (c *Controller) movesC() <-chan []model.PvpMove {
	if c.subs == nil {
		return nil
	}
	return c.subs.moves
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// beginReconnect drops the subscriptions and schedules a resync with backoff.
// Local play continues; outgoing moves are held until the resync.
func (c *Controller) beginReconnect(ctx context.Context, cause error) {
	if c.phase.get() == PhaseFinished || ctx.Err() != nil {
		return
	}
	c.closeSubs()
	if !c.reconnecting {
		c.reconnecting = true
		c.backoff = c.o.backoffMin
		metrics.RecordErrorByComponent("session", "reconnecting")
		c.log.Warn(ctx, "lost subscriptions, reconnecting", logger.Error(cause))
		c.emit(Event{Kind: EventReconnecting, Err: cause})
	} else {
		c.backoff = min(c.backoff*2, c.o.backoffMax)
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	c.retry = time.NewTimer(c.backoff)
}

// resync refetches the match, resubscribes and replays held moves.
func (c *Controller) resync(ctx context.Context) {
	m, err := c.coord.GetMatch(ctx, c.matchID)
	if errors.Is(err, coordinator.ErrMatchNotFound) {
		c.fatal = fmt.Errorf("%s: %w", c.matchID, ErrMatchMissing)
		return
	}
	if err != nil {
		c.beginReconnect(ctx, err)
		return
	}
	c.match = m
	if err := c.subscribe(ctx); err != nil {
		c.beginReconnect(ctx, err)
		return
	}
	c.reconnecting = false
	c.startRequested = false
	c.log.Info(ctx, "resynchronised", logger.String("status", string(m.Status)))
	c.emit(Event{Kind: EventResynced, Match: m, Score: c.score})
	if c.presenceHeld {
		c.onHeartbeat(ctx)
	}
	for _, mv := range c.pending {
		c.enqueueMove(ctx, mv)
	}
	c.pending = nil
	c.onMatch(ctx, m)
}

func (c *Controller) onMatch(ctx context.Context, m *model.Match) {
	if c.phase.get() == PhaseFinished {
		return
	}
	if m == nil {
		c.fatal = fmt.Errorf("%s: %w", c.matchID, ErrMatchMissing)
		c.log.Error(ctx, "match document disappeared")
		return
	}
	c.match = m
	c.settleFirstFinish(m)

	switch m.Status {
	case model.MatchWaiting:
		if m.AllReady() && !c.startRequested {
			c.startRequested = true
			c.enqueue(ctx, "start_match", func(ctx context.Context) error {
				return c.coord.StartMatch(ctx, c.matchID)
			})
		}
	case model.MatchInProgress:
		if c.phase.get() == PhaseWaiting {
			c.enterPlaying(ctx, m)
		}
		c.onOpponentResult(ctx, m)
	default:
		c.finalize(ctx, m)
	}
}

func (c *Controller) enterPlaying(ctx context.Context, m *model.Match) {
	if !c.phase.advance(PhasePlaying) {
		return
	}
	c.startedAt = c.o.now()
	c.enqueue(ctx, "player_playing", func(ctx context.Context) error {
		return c.coord.UpdatePlayerStatus(ctx, c.matchID, c.playerID, model.PlayerPlaying)
	})
	switch m.Mode {
	case model.ModeLiveBattle:
		c.limit = time.NewTimer(c.o.timeLimit)
	case model.ModeBlindRace:
		c.progress = time.NewTicker(c.o.progress)
	}
	c.log.Info(ctx, "match started", logger.String("mode", string(m.Mode)))
	c.emit(Event{Kind: EventStarted, Match: m, Score: c.score})
}

func (c *Controller) onOpponentResult(ctx context.Context, m *model.Match) {
	opp := m.Result(c.opponentID)
	if opp == nil {
		return
	}
	if m.Mode == model.ModeBlindRace && progressChanged(c.lastOpp, opp) {
		cp := *opp
		c.lastOpp = &cp
		c.emit(Event{Kind: EventOpponentProgress, Opponent: &cp})
	}
	if opp.Completed() && c.phase.get() == PhasePlaying {
		// Blind: the opponent won the race. Live: the opponent's board is
		// done or its clock ran out, and this side stops for the same reason.
		reason := model.EndCompleted
		if m.Mode == model.ModeLiveBattle && opp.FinishReason != "" {
			reason = opp.FinishReason
		}
		c.finishLocal(ctx, reason, m.Mode == model.ModeLiveBattle && c.complete())
	}
	if m.Mode == model.ModeLiveBattle && c.phase.get() == PhaseFinishing && !c.endRequested {
		if winner, ok := model.DecideLiveWinner(m); ok {
			c.endRequested = true
			reason := model.LiveEndReason(m)
			c.enqueue(ctx, "end_match", func(ctx context.Context) error {
				return c.coord.EndMatch(ctx, c.matchID, winner, reason)
			})
		}
	}
}

func progressChanged(prev, cur *model.PlayerResult) bool {
	if prev == nil {
		return true
	}
	return prev.Score != cur.Score ||
		prev.TimeElapsedMs != cur.TimeElapsedMs ||
		prev.CellsFilled != cur.CellsFilled ||
		prev.Completed() != cur.Completed()
}

func (c *Controller) onPresence(ctx context.Context, online bool) {
	if online || c.cancelSent || c.phase.get() == PhaseFinished {
		return
	}
	c.cancelSent = true
	c.log.Info(ctx, "opponent went offline, cancelling", logger.String("opponentID", c.opponentID))
	c.enqueue(ctx, "cancel_match", func(ctx context.Context) error {
		return c.coord.CancelMatch(ctx, c.matchID, c.playerID, false)
	})
}

func (c *Controller) onMoves(ctx context.Context, moves []model.PvpMove) {
	overlay := Overlay(moves, c.opponentID)
	if maps.Equal(overlay, c.overlay) {
		return
	}
	c.overlay = overlay
	c.emit(Event{Kind: EventOverlay, Overlay: maps.Clone(overlay)})
	if c.phase.get() == PhasePlaying && c.complete() {
		c.finishLocal(ctx, model.EndCompleted, true)
	}
}

func (c *Controller) onHeartbeat(ctx context.Context) {
	if !c.presenceHeld || c.reconnecting || c.phase.get() == PhaseFinished {
		return
	}
	c.enqueue(ctx, "heartbeat", func(ctx context.Context) error {
		return c.coord.UpdateHeartbeat(ctx, c.matchID, c.playerID)
	})
}

// publishProgress overwrites the Blind Race progress snapshot.
func (c *Controller) publishProgress(ctx context.Context) {
	if c.phase.get() != PhasePlaying || c.reconnecting {
		return
	}
	c.score = scoring.SetElapsed(c.score, c.o.now().Sub(c.startedAt))
	r := c.score.Result(nil, c.board.Filled())
	c.enqueue(ctx, "progress", func(ctx context.Context) error {
		return c.coord.SubmitPlayerResult(ctx, c.matchID, c.playerID, r)
	})
}

func (c *Controller) enqueue(ctx context.Context, name string, fn func(context.Context) error) {
	if !c.outbox.Submit(context.WithoutCancel(ctx), name, c.matchID, fn) {
		c.log.Warn(ctx, "outbox rejected write", logger.String("op", name))
	}
}

func (c *Controller) enqueueMove(ctx context.Context, mv model.PvpMove) {
	c.enqueue(ctx, "submit_move", func(ctx context.Context) error {
		return c.coord.SubmitMove(ctx, mv)
	})
}

// emit never blocks the actor; a UI that stops reading loses events.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		metrics.RecordErrorByComponent("session", "event_dropped")
	}
}

func (c *Controller) stopClocks() {
	if c.limit != nil {
		c.limit.Stop()
		c.limit = nil
	}
	if c.progress != nil {
		c.progress.Stop()
		c.progress = nil
	}
}

// teardown runs when Run returns. An unfinished match is forfeited; presence
// is stopped; queued writes get a bounded drain.
func (c *Controller) teardown(ctx context.Context) {
	c.closeSubs()
	c.stopClocks()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.phase.get() != PhaseFinished && c.fatal == nil {
		c.log.Info(ctx, "session ended before the match, forfeiting")
		c.enqueue(ctx, "cancel_match", func(ctx context.Context) error {
			return c.coord.CancelMatch(ctx, c.matchID, c.playerID, true)
		})
	}
	if c.presenceHeld {
		c.presenceHeld = false
		c.enqueue(ctx, "stop_presence", func(ctx context.Context) error {
			return c.coord.StopMatchPresence(ctx, c.matchID, c.playerID)
		})
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.o.drainTimeout)
	defer cancel()
	if err := c.outbox.Drain(dctx); err != nil {
		c.log.Warn(ctx, "teardown writes not drained", logger.Error(err))
	}
}
