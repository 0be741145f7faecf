package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/dedupe"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
)

const wait = 2 * time.Second

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newCoordinator(t *testing.T, opts ...coordinator.Option) (*coordinator.Coordinator, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return coordinator.New(s, opts...), s
}

func recv[T any](ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(wait):
		var zero T
		return zero, false
	}
}

func join(ctx context.Context, c *coordinator.Coordinator, id string, mode model.Mode) {
	_, err := c.JoinMatchmaking(ctx, coordinator.Player{ID: id, DisplayName: "Player " + id}, mode)
	So(err, ShouldBeNil)
}

func TestMatchmakingQueue(t *testing.T) {
	Convey("Given a coordinator on an empty store", t, func() {
		ctx := context.Background()
		c, _ := newCoordinator(t)

		Convey("When a lone player searches", func() {
			join(ctx, c, "a", model.ModeLiveBattle)
			id, err := c.TryMatchmaking(ctx, "a", model.ModeLiveBattle)

			Convey("Then there is no match yet and no self-match", func() {
				So(err, ShouldBeNil)
				So(id, ShouldBeEmpty)
			})
		})

		Convey("When players of different modes search", func() {
			join(ctx, c, "a", model.ModeLiveBattle)
			join(ctx, c, "b", model.ModeBlindRace)
			id, err := c.TryMatchmaking(ctx, "a", model.ModeLiveBattle)

			Convey("Then they are not paired", func() {
				So(err, ShouldBeNil)
				So(id, ShouldBeEmpty)
			})
		})

		Convey("When a player leaves twice", func() {
			join(ctx, c, "a", model.ModeBlindRace)
			So(c.LeaveMatchmaking(ctx, "a"), ShouldBeNil)
			So(c.LeaveMatchmaking(ctx, "a"), ShouldBeNil)

			Convey("Then the request is gone", func() {
				req, err := c.GetMatchmakingRequest(ctx, "a")
				So(err, ShouldBeNil)
				So(req, ShouldBeNil)
			})
		})

		Convey("When an id would break the key layout", func() {
			_, err := c.JoinMatchmaking(ctx, coordinator.Player{ID: "a/b"}, model.ModeBlindRace)
			So(errors.Is(err, coordinator.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When two players are queued oldest first", func() {
			clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			c, _ := newCoordinator(t, coordinator.WithClock(clk.Now))
			join(ctx, c, "late", model.ModeLiveBattle)
			clk.Advance(-time.Minute)
			join(ctx, c, "early", model.ModeLiveBattle)
			clk.Advance(2 * time.Minute)
			join(ctx, c, "me", model.ModeLiveBattle)

			passive, err := c.ObserveMatchmaking(ctx, "early")
			So(err, ShouldBeNil)
			first, ok := recv(passive)
			So(ok, ShouldBeTrue)
			So(first.Status, ShouldEqual, model.QueueSearching)

			id, err := c.TryMatchmaking(ctx, "me", model.ModeLiveBattle)
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then the earliest candidate is paired and sees the push", func() {
				pushed, ok := recv(passive)
				So(ok, ShouldBeTrue)
				So(pushed.Status, ShouldEqual, model.QueueMatched)
				So(pushed.MatchID, ShouldEqual, id)

				m, err := c.GetMatch(ctx, id)
				So(err, ShouldBeNil)
				So(m.Status, ShouldEqual, model.MatchWaiting)
				So(m.PlayerIDs(), ShouldResemble, []string{"early", "me"})
				So(m.AllReady(), ShouldBeTrue)
				So(puzzle.Validate(m.Puzzle.Clue, m.Puzzle.Solution), ShouldBeTrue)

				late, err := c.GetMatchmakingRequest(ctx, "late")
				So(err, ShouldBeNil)
				So(late.Status, ShouldEqual, model.QueueSearching)
			})
		})
	})
}

func TestConcurrentPairing(t *testing.T) {
	Convey("Given two players racing to pair with each other", t, func() {
		ctx := context.Background()

		for round := 0; round < 20; round++ {
			c, _ := newCoordinator(t)
			join(ctx, c, "a", model.ModeLiveBattle)
			join(ctx, c, "b", model.ModeLiveBattle)

			passiveA, err := c.ObserveMatchmaking(ctx, "a")
			So(err, ShouldBeNil)
			passiveB, err := c.ObserveMatchmaking(ctx, "b")
			So(err, ShouldBeNil)
			_, _ = recv(passiveA)
			_, _ = recv(passiveB)

			var wg sync.WaitGroup
			ids := make([]string, 2)
			errs := make([]error, 2)
			for i, p := range []string{"a", "b"} {
				wg.Add(1)
				go func(i int, p string) {
					defer wg.Done()
					ids[i], errs[i] = c.TryMatchmaking(ctx, p, model.ModeLiveBattle)
				}(i, p)
			}
			wg.Wait()
			So(errs[0], ShouldBeNil)
			So(errs[1], ShouldBeNil)

			winners := 0
			matchID := ""
			for _, id := range ids {
				if id != "" {
					winners++
					matchID = id
				}
			}
			So(winners, ShouldEqual, 1)

			a, _ := c.GetMatchmakingRequest(ctx, "a")
			b, _ := c.GetMatchmakingRequest(ctx, "b")
			So(a.Status, ShouldEqual, model.QueueMatched)
			So(b.Status, ShouldEqual, model.QueueMatched)
			So(a.MatchID, ShouldEqual, matchID)
			So(b.MatchID, ShouldEqual, matchID)

			loser := passiveA
			if ids[1] == "" {
				loser = passiveB
			}
			got, ok := recv(loser)
			So(ok, ShouldBeTrue)
			So(got.MatchID, ShouldEqual, matchID)
		}
	})

	Convey("Given many players searching at once", t, func() {
		ctx := context.Background()
		c, _ := newCoordinator(t)
		const n = 10
		for i := 0; i < n; i++ {
			join(ctx, c, fmt.Sprintf("p%02d", i), model.ModeBlindRace)
		}

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				for try := 0; try < 5; try++ {
					if id, err := c.TryMatchmaking(ctx, p, model.ModeBlindRace); err != nil || id != "" {
						return
					}
				}
			}(fmt.Sprintf("p%02d", i))
		}
		wg.Wait()

		Convey("Then nobody is paired twice or half-paired", func() {
			seen := map[string]int{}
			for i := 0; i < n; i++ {
				p := fmt.Sprintf("p%02d", i)
				req, err := c.GetMatchmakingRequest(ctx, p)
				So(err, ShouldBeNil)
				if req.Status != model.QueueMatched {
					continue
				}
				m, err := c.GetMatch(ctx, req.MatchID)
				So(err, ShouldBeNil)
				So(m.HasPlayer(p), ShouldBeTrue)
				other, err := c.GetMatchmakingRequest(ctx, m.Opponent(p))
				So(err, ShouldBeNil)
				So(other.Status, ShouldEqual, model.QueueMatched)
				So(other.MatchID, ShouldEqual, req.MatchID)
				seen[req.MatchID]++
			}
			for _, count := range seen {
				So(count, ShouldEqual, 2)
			}
		})
	})
}

func newMatch(ctx context.Context, c *coordinator.Coordinator, mode model.Mode) *model.Match {
	m, err := c.CreateMatch(ctx, mode, puzzle.Reference(model.DifficultyEasy),
		coordinator.Player{ID: "a", DisplayName: "A"}, coordinator.Player{ID: "b", DisplayName: "B"})
	So(err, ShouldBeNil)
	return m
}

func TestMatchStateMachine(t *testing.T) {
	Convey("Given a WAITING match", t, func() {
		ctx := context.Background()
		c, _ := newCoordinator(t)
		m := newMatch(ctx, c, model.ModeBlindRace)

		Convey("When it is created with a bad puzzle", func() {
			bad := puzzle.Reference(model.DifficultyEasy)
			bad.Clue = bad.Clue[:80]
			_, err := c.CreateMatch(ctx, model.ModeBlindRace, bad, coordinator.Player{ID: "a"}, coordinator.Player{ID: "b"})
			So(errors.Is(err, coordinator.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When it is ended before starting", func() {
			err := c.EndMatch(ctx, m.MatchID, "a", model.EndCompleted)
			So(errors.Is(err, coordinator.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("When both sides start it", func() {
			So(c.StartMatch(ctx, m.MatchID), ShouldBeNil)
			first, err := c.GetMatch(ctx, m.MatchID)
			So(err, ShouldBeNil)
			So(c.StartMatch(ctx, m.MatchID), ShouldBeNil)
			second, err := c.GetMatch(ctx, m.MatchID)
			So(err, ShouldBeNil)

			Convey("Then StartedAt is recorded once", func() {
				So(second.Status, ShouldEqual, model.MatchInProgress)
				So(second.StartedAt.Equal(*first.StartedAt), ShouldBeTrue)
			})

			Convey("Then a forfeit hands the win to the other player", func() {
				So(c.CancelMatch(ctx, m.MatchID, "a", true), ShouldBeNil)
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.Status, ShouldEqual, model.MatchCancelled)
				So(got.WinnerID, ShouldEqual, "b")
				So(got.EndReason, ShouldEqual, model.EndForfeit)

				Convey("And later ends and cancels are no-ops", func() {
					So(c.CancelMatch(ctx, m.MatchID, "b", true), ShouldBeNil)
					So(c.EndMatch(ctx, m.MatchID, "a", model.EndCompleted), ShouldBeNil)
					again, _ := c.GetMatch(ctx, m.MatchID)
					So(again.Status, ShouldEqual, model.MatchCancelled)
					So(again.WinnerID, ShouldEqual, "b")
				})
			})

			Convey("Then an opponent-left cancel names the caller the winner", func() {
				So(c.CancelMatch(ctx, m.MatchID, "b", false), ShouldBeNil)
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.WinnerID, ShouldEqual, "b")
				So(got.EndReason, ShouldEqual, model.EndOpponentLeft)
			})

			Convey("Then strangers cannot cancel or win", func() {
				So(errors.Is(c.CancelMatch(ctx, m.MatchID, "z", true), coordinator.ErrNotParticipant), ShouldBeTrue)
				So(errors.Is(c.EndMatch(ctx, m.MatchID, "z", model.EndCompleted), coordinator.ErrNotParticipant), ShouldBeTrue)
			})

			Convey("Then ending it completes it", func() {
				So(c.EndMatch(ctx, m.MatchID, "a", model.EndCompleted), ShouldBeNil)
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.Status, ShouldEqual, model.MatchCompleted)
				So(got.WinnerID, ShouldEqual, "a")
				So(got.EndedAt, ShouldNotBeNil)
			})
		})

		Convey("When player status updates arrive out of order", func() {
			So(c.UpdatePlayerStatus(ctx, m.MatchID, "a", model.PlayerFinished), ShouldBeNil)
			So(c.UpdatePlayerStatus(ctx, m.MatchID, "a", model.PlayerPlaying), ShouldBeNil)

			Convey("Then the status never moves backwards", func() {
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.Players["a"].Status, ShouldEqual, model.PlayerFinished)
			})
		})

		Convey("When a progress snapshot arrives after the final result", func() {
			done := time.Now().UTC()
			So(c.SubmitPlayerResult(ctx, m.MatchID, "a", model.PlayerResult{Score: 900, CompletedAt: &done}), ShouldBeNil)
			So(c.SubmitPlayerResult(ctx, m.MatchID, "a", model.PlayerResult{Score: 100}), ShouldBeNil)

			Convey("Then the final result is kept and the player is finished", func() {
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.Players["a"].Result.Score, ShouldEqual, 900)
				So(got.Players["a"].Status, ShouldEqual, model.PlayerFinished)
			})
		})

		Convey("When the match does not exist", func() {
			_, err := c.GetMatch(ctx, "missing")
			So(errors.Is(err, coordinator.ErrMatchNotFound), ShouldBeTrue)
			So(errors.Is(c.StartMatch(ctx, "missing"), coordinator.ErrMatchNotFound), ShouldBeTrue)
		})

		Convey("When the match is observed", func() {
			ch, err := c.ObserveMatch(ctx, m.MatchID)
			So(err, ShouldBeNil)
			first, ok := recv(ch)
			So(ok, ShouldBeTrue)
			So(first.Status, ShouldEqual, model.MatchWaiting)

			So(c.StartMatch(ctx, m.MatchID), ShouldBeNil)

			Convey("Then the transition is pushed", func() {
				next, ok := recv(ch)
				So(ok, ShouldBeTrue)
				So(next.Status, ShouldEqual, model.MatchInProgress)
			})
		})
	})
}

func TestMoves(t *testing.T) {
	Convey("Given a Live Battle match", t, func() {
		ctx := context.Background()
		c, _ := newCoordinator(t)
		m := newMatch(ctx, c, model.ModeLiveBattle)
		move := func(player string, n, row, col, v int, correct bool) model.PvpMove {
			return model.PvpMove{MatchID: m.MatchID, PlayerID: player, Row: row, Col: col, Value: v, IsCorrect: correct, MoveNumber: n}
		}

		ch, err := c.ObserveMoves(ctx, m.MatchID)
		So(err, ShouldBeNil)
		initial, ok := recv(ch)
		So(ok, ShouldBeTrue)
		So(initial, ShouldBeEmpty)

		Convey("When moves are submitted out of order and redelivered", func() {
			So(c.SubmitMove(ctx, move("a", 2, 0, 3, 6, true)), ShouldBeNil)
			So(c.SubmitMove(ctx, move("a", 1, 0, 2, 4, true)), ShouldBeNil)
			So(c.SubmitMove(ctx, move("a", 1, 0, 2, 9, false)), ShouldBeNil)
			So(c.SubmitMove(ctx, move("b", 1, 8, 8, 1, false)), ShouldBeNil)

			Convey("Then the log is ordered and first writes win", func() {
				moves, err := c.ListMoves(ctx, m.MatchID)
				So(err, ShouldBeNil)
				So(len(moves), ShouldEqual, 3)
				So(moves[0].PlayerID, ShouldEqual, "a")
				So(moves[0].MoveNumber, ShouldEqual, 1)
				So(moves[0].Value, ShouldEqual, 4)
				So(moves[1].PlayerID, ShouldEqual, "b")
				So(moves[2].MoveNumber, ShouldEqual, 2)
			})

			Convey("Then observers get the re-derived log", func() {
				var last []model.PvpMove
				for len(last) < 3 {
					next, ok := recv(ch)
					So(ok, ShouldBeTrue)
					last = next
				}
				So(last[0].MoveNumber, ShouldEqual, 1)
			})
		})

		Convey("When a move is off the board", func() {
			So(errors.Is(c.SubmitMove(ctx, move("a", 1, 9, 0, 1, false)), coordinator.ErrInvalidMove), ShouldBeTrue)
			So(errors.Is(c.SubmitMove(ctx, move("a", 1, 0, 0, 10, false)), coordinator.ErrInvalidMove), ShouldBeTrue)
			So(errors.Is(c.SubmitMove(ctx, move("a", 0, 0, 0, 1, false)), coordinator.ErrInvalidMove), ShouldBeTrue)
		})

		Convey("When a stranger submits a move", func() {
			So(errors.Is(c.SubmitMove(ctx, move("z", 1, 0, 2, 4, true)), coordinator.ErrNotParticipant), ShouldBeTrue)
		})
	})
}

func TestPresence(t *testing.T) {
	Convey("Given an IN_PROGRESS match with short presence leases", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c, _ := newCoordinator(t, coordinator.WithPresenceTTL(100*time.Millisecond))
		m := newMatch(ctx, c, model.ModeLiveBattle)
		So(c.StartMatch(ctx, m.MatchID), ShouldBeNil)

		ch, err := c.ObserveOpponentPresence(ctx, m.MatchID, "a")
		So(err, ShouldBeNil)
		So(c.StartMatchPresence(ctx, m.MatchID, "a"), ShouldBeNil)
		online, ok := recv(ch)
		So(ok, ShouldBeTrue)
		So(online, ShouldBeTrue)

		Convey("When A stops heartbeating", func() {
			offline, ok := recv(ch)

			Convey("Then A is reported offline and B's cancel names B the winner", func() {
				So(ok, ShouldBeTrue)
				So(offline, ShouldBeFalse)
				So(c.CancelMatch(ctx, m.MatchID, "b", false), ShouldBeNil)
				got, _ := c.GetMatch(ctx, m.MatchID)
				So(got.Status, ShouldEqual, model.MatchCancelled)
				So(got.WinnerID, ShouldEqual, "b")
			})
		})

		Convey("When A's connection is dropped", func() {
			So(c.DropMatchPresence(ctx, m.MatchID, "a"), ShouldBeNil)
			offline, ok := recv(ch)
			So(ok, ShouldBeTrue)
			So(offline, ShouldBeFalse)
		})

		Convey("When A keeps heartbeating", func() {
			stop := make(chan struct{})
			go func() {
				tick := time.NewTicker(20 * time.Millisecond)
				defer tick.Stop()
				for {
					select {
					case <-stop:
						return
					case <-tick.C:
						_ = c.UpdateHeartbeat(ctx, m.MatchID, "a")
					}
				}
			}()

			Convey("Then nothing changes", func() {
				select {
				case v := <-ch:
					close(stop)
					So(v, ShouldBeTrue)
				case <-time.After(300 * time.Millisecond):
					close(stop)
				}
				So(c.StopMatchPresence(ctx, m.MatchID, "a"), ShouldBeNil)
				offline, ok := recv(ch)
				So(ok, ShouldBeTrue)
				So(offline, ShouldBeFalse)
			})
		})
	})
}

func TestStatsAndSweep(t *testing.T) {
	Convey("Given a coordinator", t, func() {
		ctx := context.Background()
		clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		c, _ := newCoordinator(t, coordinator.WithClock(clk.Now), coordinator.WithOrphanTTL(time.Minute))

		Convey("When the same match is recorded twice", func() {
			So(c.RecordStats(ctx, "a", "m1", model.OutcomeWon, 1000), ShouldBeNil)
			So(c.RecordStats(ctx, "a", "m1", model.OutcomeWon, 1000), ShouldBeNil)
			So(c.RecordStats(ctx, "a", "m2", model.OutcomeLost, 500), ShouldBeNil)

			Convey("Then it counts once", func() {
				s, err := c.GetStats(ctx, "a")
				So(err, ShouldBeNil)
				So(s.GamesPlayed, ShouldEqual, 2)
				So(s.Wins, ShouldEqual, 1)
				So(s.AverageScore, ShouldEqual, 750)
			})
		})

		Convey("When a player has no games", func() {
			s, err := c.GetStats(ctx, "new")
			So(err, ShouldBeNil)
			So(s.GamesPlayed, ShouldEqual, 0)
		})

		Convey("When an orphan and a paired match age past the TTL", func() {
			orphan := newMatch(ctx, c, model.ModeBlindRace)

			join(ctx, c, "x", model.ModeBlindRace)
			join(ctx, c, "y", model.ModeBlindRace)
			paired, err := c.TryMatchmaking(ctx, "x", model.ModeBlindRace)
			So(err, ShouldBeNil)
			So(paired, ShouldNotBeEmpty)

			fresh := newMatch(ctx, c, model.ModeBlindRace)
			clk.Advance(2 * time.Minute)
			recent := newMatch(ctx, c, model.ModeBlindRace)

			n, err := c.SweepOrphans(ctx)

			Convey("Then only unreferenced old WAITING matches are deleted", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				_, err := c.GetMatch(ctx, orphan.MatchID)
				So(errors.Is(err, coordinator.ErrMatchNotFound), ShouldBeTrue)
				_, err = c.GetMatch(ctx, fresh.MatchID)
				So(errors.Is(err, coordinator.ErrMatchNotFound), ShouldBeTrue)
				_, err = c.GetMatch(ctx, paired)
				So(err, ShouldBeNil)
				_, err = c.GetMatch(ctx, recent.MatchID)
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestFinalResults(t *testing.T) {
	Convey("Given a started Blind Race", t, func() {
		ctx := context.Background()
		c, _ := newCoordinator(t)
		m := newMatch(ctx, c, model.ModeBlindRace)
		So(c.StartMatch(ctx, m.MatchID), ShouldBeNil)

		final := func(at time.Time) func(bool) model.PlayerResult {
			return func(first bool) model.PlayerResult {
				return model.PlayerResult{CompletedAt: &at, Score: 100, IsFirstFinish: first}
			}
		}
		now := time.Now().UTC()

		Convey("When both players submit final results at once", func() {
			var wg sync.WaitGroup
			results := make([]model.PlayerResult, 2)
			errs := make([]error, 2)
			for i, id := range []string{"a", "b"} {
				wg.Add(1)
				go func(i int, id string) {
					defer wg.Done()
					results[i], errs[i] = c.SubmitFinalResult(ctx, m.MatchID, id, final(now))
				}(i, id)
			}
			wg.Wait()

			Convey("Then exactly one of them is told it finished first", func() {
				So(errs[0], ShouldBeNil)
				So(errs[1], ShouldBeNil)
				So(results[0].IsFirstFinish != results[1].IsFirstFinish, ShouldBeTrue)

				got, err := c.GetMatch(ctx, m.MatchID)
				So(err, ShouldBeNil)
				So(got.Result("a").IsFirstFinish, ShouldEqual, results[0].IsFirstFinish)
				So(got.Result("b").IsFirstFinish, ShouldEqual, results[1].IsFirstFinish)
				So(got.Players["a"].Status, ShouldEqual, model.PlayerFinished)
				So(got.Players["b"].Status, ShouldEqual, model.PlayerFinished)
			})
		})

		Convey("When a player finishes before the opponent", func() {
			a, err := c.SubmitFinalResult(ctx, m.MatchID, "a", final(now))
			So(err, ShouldBeNil)
			b, err := c.SubmitFinalResult(ctx, m.MatchID, "b", final(now.Add(time.Second)))
			So(err, ShouldBeNil)

			Convey("Then only the first one keeps the bonus flag", func() {
				So(a.IsFirstFinish, ShouldBeTrue)
				So(b.IsFirstFinish, ShouldBeFalse)
			})

			Convey("Then a repeated submission returns the stored result", func() {
				again, err := c.SubmitFinalResult(ctx, m.MatchID, "a", func(bool) model.PlayerResult {
					later := now.Add(time.Minute)
					return model.PlayerResult{CompletedAt: &later, Score: 1}
				})
				So(err, ShouldBeNil)
				So(again.Score, ShouldEqual, 100)
				So(again.CompletedAt.Equal(now), ShouldBeTrue)
				So(again.IsFirstFinish, ShouldBeTrue)
			})
		})

		Convey("When a stranger submits a final result", func() {
			_, err := c.SubmitFinalResult(ctx, m.MatchID, "z", final(now))
			So(errors.Is(err, coordinator.ErrNotParticipant), ShouldBeTrue)
		})

		Convey("When the final result has no completion time", func() {
			_, err := c.SubmitFinalResult(ctx, m.MatchID, "a", func(bool) model.PlayerResult {
				return model.PlayerResult{Score: 5}
			})
			So(errors.Is(err, coordinator.ErrInvalidArgument), ShouldBeTrue)

			got, err := c.GetMatch(ctx, m.MatchID)
			So(err, ShouldBeNil)
			So(got.Result("a").Completed(), ShouldBeFalse)
		})
	})
}

func TestRejectedMovesSkipDedupe(t *testing.T) {
	Convey("Given a coordinator with an observable dedupe window", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		c, _ := newCoordinator(t, coordinator.WithDeduper(d))
		live := newMatch(ctx, c, model.ModeLiveBattle)
		blind := newMatch(ctx, c, model.ModeBlindRace)

		Convey("When moves are rejected for participant or mode", func() {
			err := c.SubmitMove(ctx, model.PvpMove{MatchID: live.MatchID, PlayerID: "z", Row: 0, Col: 2, Value: 4, MoveNumber: 1})
			So(errors.Is(err, coordinator.ErrNotParticipant), ShouldBeTrue)
			err = c.SubmitMove(ctx, model.PvpMove{MatchID: blind.MatchID, PlayerID: "a", Row: 0, Col: 2, Value: 4, MoveNumber: 1})
			So(errors.Is(err, coordinator.ErrInvalidMove), ShouldBeTrue)

			Convey("Then nothing is recorded as seen", func() {
				So(d.Size(), ShouldEqual, 0)
			})

			Convey("Then an accepted move is still recorded once", func() {
				So(c.SubmitMove(ctx, model.PvpMove{MatchID: live.MatchID, PlayerID: "a", Row: 0, Col: 2, Value: 4, MoveNumber: 1}), ShouldBeNil)
				So(d.Size(), ShouldEqual, 1)
				moves, err := c.ListMoves(ctx, live.MatchID)
				So(err, ShouldBeNil)
				So(len(moves), ShouldEqual, 1)
			})
		})
	})
}
