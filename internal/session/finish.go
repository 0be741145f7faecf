package session

import (
	"context"
	"time"

	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/scoring"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

// finishLocal freezes the local score and publishes the final result. The
// match itself ends once the store agrees; see finalize.
func (c *Controller) finishLocal(ctx context.Context, reason model.EndReason, solved bool) {
	if !c.phase.advance(PhaseFinishing) {
		return
	}
	c.stopClocks()
	mode := c.match.Mode
	blindSolved := solved && mode == model.ModeBlindRace

	// The opponent check is only a local guess; the store settles the bonus
	// when the final result is written.
	first := blindSolved && !c.opponentFinished(ctx)
	c.score = scoring.Finish(c.score, scoring.FinishOptions{
		Elapsed:     c.o.now().Sub(c.startedAt),
		FirstFinish: first,
		Solved:      solved,
	})
	c.log.Info(ctx, "finished locally",
		logger.String("reason", string(reason)),
		logger.Bool("solved", solved),
		logger.Bool("firstFinish", first),
		logger.Int("score", c.score.FinalScore),
	)

	final, filled := c.score, c.board.Filled()
	if mode == model.ModeBlindRace && !solved {
		// Blind results mark only a solved board.
		r := final.Result(nil, filled)
		c.enqueue(ctx, "submit_result", func(ctx context.Context) error {
			return c.coord.SubmitPlayerResult(ctx, c.matchID, c.playerID, r)
		})
	} else {
		completedAt := c.o.now().UTC()
		build := func(first bool) model.PlayerResult {
			s := final
			if blindSolved {
				s = scoring.SetFirstFinish(s, first)
			}
			r := s.Result(&completedAt, filled)
			r.FinishReason = reason
			return r
		}
		c.enqueue(ctx, "submit_result", func(ctx context.Context) error {
			_, err := c.coord.SubmitFinalResult(ctx, c.matchID, c.playerID, build)
			return err
		})
	}
	c.enqueue(ctx, "player_finished", func(ctx context.Context) error {
		return c.coord.UpdatePlayerStatus(ctx, c.matchID, c.playerID, model.PlayerFinished)
	})
	c.enqueue(ctx, "end_match", func(ctx context.Context) error {
		return c.endIfDecided(ctx, mode)
	})
}

// settleFirstFinish adopts the first-finish decision stored with this
// player's completed Blind Race result.
func (c *Controller) settleFirstFinish(m *model.Match) {
	own := m.Result(c.playerID)
	if m.Mode != model.ModeBlindRace || !own.Completed() {
		return
	}
	c.score = scoring.SetFirstFinish(c.score, own.IsFirstFinish)
}

// opponentFinished rereads the match so the first-finish check does not rely
// on a snapshot that may be a few milliseconds old.
func (c *Controller) opponentFinished(ctx context.Context) bool {
	m, err := c.coord.GetMatch(ctx, c.matchID)
	if err != nil {
		c.log.Warn(ctx, "first-finish check fell back to cached match", logger.Error(err))
		m = c.match
	}
	return m.Result(c.opponentID).Completed()
}

// endIfDecided runs on the outbox after the result write. It ends the match
// when the results in the store already decide it.
func (c *Controller) endIfDecided(ctx context.Context, mode model.Mode) error {
	m, err := c.coord.GetMatch(ctx, c.matchID)
	if err != nil {
		return err
	}
	if m.Status.Terminal() {
		return nil
	}
	var winner string
	reason := model.EndCompleted
	switch mode {
	case model.ModeLiveBattle:
		w, ok := model.DecideLiveWinner(m)
		if !ok {
			return nil
		}
		winner, reason = w, model.LiveEndReason(m)
	default:
		if winner = model.DecideBlindWinner(m); winner == "" {
			return nil
		}
	}
	return c.coord.EndMatch(ctx, c.matchID, winner, reason)
}

// finalize latches the session on a terminal match.
func (c *Controller) finalize(ctx context.Context, m *model.Match) {
	if !c.phase.advance(PhaseFinished) {
		return
	}
	c.stopClocks()
	if !c.score.Finished {
		var elapsed time.Duration
		if !c.startedAt.IsZero() {
			elapsed = c.o.now().Sub(c.startedAt)
		}
		c.score = scoring.Finish(c.score, scoring.FinishOptions{Elapsed: elapsed})
	}
	outcome := OutcomeFor(m, c.playerID)
	score := c.score.FinalScore
	metrics.RecordFinalScore(string(m.Mode), score)

	c.enqueue(ctx, "record_stats", func(ctx context.Context) error {
		return c.coord.RecordStats(ctx, c.playerID, c.matchID, outcome, score)
	})
	if c.presenceHeld {
		c.presenceHeld = false
		c.enqueue(ctx, "stop_presence", func(ctx context.Context) error {
			return c.coord.StopMatchPresence(ctx, c.matchID, c.playerID)
		})
	}
	c.log.Info(ctx, "match over",
		logger.String("outcome", string(outcome)),
		logger.String("reason", string(m.EndReason)),
		logger.String("winnerID", m.WinnerID),
	)
	c.emit(Event{
		Kind:     EventFinished,
		Match:    m,
		Score:    c.score,
		Outcome:  outcome,
		Reason:   m.EndReason,
		WinnerID: m.WinnerID,
	})
}

// OutcomeFor reads a terminal match from playerID's side.
func OutcomeFor(m *model.Match, playerID string) model.Outcome {
	switch {
	case m.WinnerID == playerID:
		return model.OutcomeWon
	case m.WinnerID == "":
		return model.OutcomeDraw
	case m.Status == model.MatchCancelled && m.EndReason == model.EndForfeit:
		return model.OutcomeForfeit
	default:
		return model.OutcomeLost
	}
}
