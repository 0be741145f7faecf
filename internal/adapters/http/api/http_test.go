package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
)

type staticStats map[string]any

func (s staticStats) GetStats() map[string]any { return s }

type testAPI struct {
	coord  *coordinator.Coordinator
	router http.Handler
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	c := coordinator.New(s, coordinator.WithPresenceTTL(5*time.Second))
	srv := NewServer(c, staticStats{"matches": 0}, opts...)
	return &testAPI{coord: c, router: srv.Router()}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	return v
}

func (a *testAPI) createMatch(mode model.Mode) *model.Match {
	pz := puzzle.Reference(model.DifficultyEasy)
	w := a.do(http.MethodPost, "/v1/matches", createMatchRequest{
		Mode:    mode,
		Puzzle:  &pz,
		Players: [2]playerBody{{PlayerID: "a"}, {PlayerID: "b"}},
	})
	So(w.Code, ShouldEqual, http.StatusCreated)
	m := decodeBody[model.Match](w)
	return &m
}

func TestMatchmakingRoutes(t *testing.T) {
	Convey("Given the API", t, func() {
		a := newTestAPI(t)

		Convey("When a player joins alone", func() {
			w := a.do(http.MethodPost, "/v1/matchmaking", joinRequest{PlayerID: "p1", Mode: model.ModeBlindRace})
			So(w.Code, ShouldEqual, http.StatusCreated)

			Convey("Then the request reads back and trying finds nobody", func() {
				got := a.do(http.MethodGet, "/v1/matchmaking/p1", nil)
				So(got.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.MatchmakingRequest](got).Status, ShouldEqual, model.QueueSearching)

				try := a.do(http.MethodPost, "/v1/matchmaking/p1/try", tryRequest{Mode: model.ModeBlindRace})
				So(try.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[tryResponse](try).Matched, ShouldBeFalse)
			})
		})

		Convey("When a second player joins and tries", func() {
			a.do(http.MethodPost, "/v1/matchmaking", joinRequest{PlayerID: "p1", Mode: model.ModeLiveBattle})
			a.do(http.MethodPost, "/v1/matchmaking", joinRequest{PlayerID: "p2", Mode: model.ModeLiveBattle})
			try := a.do(http.MethodPost, "/v1/matchmaking/p2/try", tryRequest{Mode: model.ModeLiveBattle})

			Convey("Then both are paired into a WAITING match", func() {
				res := decodeBody[tryResponse](try)
				So(res.Matched, ShouldBeTrue)
				other := decodeBody[model.MatchmakingRequest](a.do(http.MethodGet, "/v1/matchmaking/p1", nil))
				So(other.MatchID, ShouldEqual, res.MatchID)

				m := a.do(http.MethodGet, "/v1/matches/"+res.MatchID, nil)
				So(m.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.Match](m).Status, ShouldEqual, model.MatchWaiting)
			})
		})

		Convey("When a player leaves", func() {
			a.do(http.MethodPost, "/v1/matchmaking", joinRequest{PlayerID: "p1", Mode: model.ModeBlindRace})
			So(a.do(http.MethodDelete, "/v1/matchmaking/p1", nil).Code, ShouldEqual, http.StatusOK)
			So(a.do(http.MethodDelete, "/v1/matchmaking/p1", nil).Code, ShouldEqual, http.StatusOK)

			Convey("Then the request is gone", func() {
				w := a.do(http.MethodGet, "/v1/matchmaking/p1", nil)
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeBody[errorResponse](w).Code, ShouldEqual, "not_found")
			})
		})

		Convey("When the body is invalid", func() {
			bad := a.do(http.MethodPost, "/v1/matchmaking", joinRequest{PlayerID: "p1", Mode: "CHESS"})
			So(bad.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody[errorResponse](bad).Code, ShouldEqual, "bad_request")

			req := httptest.NewRequest(http.MethodPost, "/v1/matchmaking", strings.NewReader("{"))
			w := httptest.NewRecorder()
			a.router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMatchRoutes(t *testing.T) {
	Convey("Given a created match", t, func() {
		a := newTestAPI(t)
		m := a.createMatch(model.ModeLiveBattle)
		base := "/v1/matches/" + m.MatchID

		Convey("When it is started, finished and started again", func() {
			So(a.do(http.MethodPost, base+"/start", nil).Code, ShouldEqual, http.StatusOK)
			So(a.do(http.MethodPost, base+"/start", nil).Code, ShouldEqual, http.StatusOK)
			end := a.do(http.MethodPost, base+"/end", endRequest{WinnerID: "a", Reason: model.EndCompleted})
			So(end.Code, ShouldEqual, http.StatusOK)
			again := a.do(http.MethodPost, base+"/start", nil)

			Convey("Then the late start is a conflict", func() {
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[errorResponse](again).Code, ShouldEqual, "conflict")
				got := decodeBody[model.Match](a.do(http.MethodGet, base, nil))
				So(got.Status, ShouldEqual, model.MatchCompleted)
				So(got.WinnerID, ShouldEqual, "a")
			})
		})

		Convey("When a player forfeits", func() {
			w := a.do(http.MethodPost, base+"/cancel", cancelRequest{CallerID: "a", ForfeitedByCaller: true})
			So(w.Code, ShouldEqual, http.StatusOK)
			got := decodeBody[model.Match](a.do(http.MethodGet, base, nil))
			So(got.Status, ShouldEqual, model.MatchCancelled)
			So(got.WinnerID, ShouldEqual, "b")
		})

		Convey("When statuses and results are written", func() {
			So(a.do(http.MethodPut, base+"/players/a/status", statusRequest{Status: model.PlayerPlaying}).Code, ShouldEqual, http.StatusOK)
			So(a.do(http.MethodPut, base+"/players/x/status", statusRequest{Status: model.PlayerPlaying}).Code, ShouldEqual, http.StatusBadRequest)
			now := time.Now().UTC()
			res := a.do(http.MethodPut, base+"/players/b/result", model.PlayerResult{CompletedAt: &now, Score: 1200})
			So(res.Code, ShouldEqual, http.StatusOK)

			got := decodeBody[model.Match](a.do(http.MethodGet, base, nil))
			So(got.Players["a"].Status, ShouldEqual, model.PlayerPlaying)
			So(got.Players["b"].Status, ShouldEqual, model.PlayerFinished)
			So(got.Players["b"].Result.Score, ShouldEqual, 1200)
		})

		Convey("When moves are submitted", func() {
			So(a.do(http.MethodPost, base+"/start", nil).Code, ShouldEqual, http.StatusOK)
			So(a.do(http.MethodPost, base+"/moves", model.PvpMove{PlayerID: "b", Row: 0, Col: 3, Value: 6, IsCorrect: true, MoveNumber: 1}).Code, ShouldEqual, http.StatusAccepted)
			So(a.do(http.MethodPost, base+"/moves", model.PvpMove{PlayerID: "a", Row: 0, Col: 2, Value: 4, IsCorrect: true, MoveNumber: 1}).Code, ShouldEqual, http.StatusAccepted)
			bad := a.do(http.MethodPost, base+"/moves", model.PvpMove{PlayerID: "a", Row: 9, Col: 0, Value: 1, MoveNumber: 2})

			Convey("Then invalid moves are rejected and the list is ordered", func() {
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
				moves := decodeBody[[]model.PvpMove](a.do(http.MethodGet, base+"/moves", nil))
				So(len(moves), ShouldEqual, 2)
				So(moves[0].PlayerID, ShouldEqual, "a")
				So(moves[1].PlayerID, ShouldEqual, "b")
			})
		})

		Convey("When an unknown match is read", func() {
			w := a.do(http.MethodGet, "/v1/matches/nope", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody[errorResponse](w).Code, ShouldEqual, "not_found")
		})
	})

	Convey("Given the API without a puzzle source", t, func() {
		a := newTestAPI(t)

		Convey("When a match is created without a puzzle", func() {
			w := a.do(http.MethodPost, "/v1/matches", createMatchRequest{
				Mode:    model.ModeBlindRace,
				Players: [2]playerBody{{PlayerID: "a"}, {PlayerID: "b"}},
			})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given the API with a puzzle source", t, func() {
		a := newTestAPI(t, WithPuzzles(puzzle.NewProvider(nil)))

		Convey("When a match is created without a puzzle", func() {
			w := a.do(http.MethodPost, "/v1/matches", createMatchRequest{
				Mode:       model.ModeBlindRace,
				Difficulty: model.DifficultyHard,
				Players:    [2]playerBody{{PlayerID: "a"}, {PlayerID: "b"}},
			})
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(decodeBody[model.Match](w).Puzzle.Difficulty, ShouldEqual, model.DifficultyHard)
		})
	})
}

func TestMiscRoutes(t *testing.T) {
	Convey("Given the API", t, func() {
		a := newTestAPI(t)

		Convey("Then ops routes answer", func() {
			So(a.do(http.MethodGet, "/healthz", nil).Code, ShouldEqual, http.StatusOK)
			st := a.do(http.MethodGet, "/stats", nil)
			So(st.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[map[string]any](st), ShouldContainKey, "matches")
			So(a.do(http.MethodGet, "/openapi.yaml", nil).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown routes get a JSON 404", func() {
			w := a.do(http.MethodGet, "/nope", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody[errorResponse](w).Code, ShouldEqual, "not_found")
		})

		Convey("Then puzzles are validated", func() {
			ok := decodeBody[validateResponse](a.do(http.MethodPost, "/v1/puzzles/validate",
				validateRequest{Clue: puzzle.ReferenceClue, Solution: puzzle.ReferenceSolution}))
			So(ok.Valid, ShouldBeTrue)
			bad := decodeBody[validateResponse](a.do(http.MethodPost, "/v1/puzzles/validate",
				validateRequest{Clue: "123", Solution: puzzle.ReferenceSolution}))
			So(bad.Valid, ShouldBeFalse)
			So(bad.Error, ShouldNotBeEmpty)
		})

		Convey("Then stats default to zero", func() {
			w := a.do(http.MethodGet, "/v1/players/p1/stats", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[model.PlayerStats](w).GamesPlayed, ShouldEqual, 0)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("classify maps domain errors to HTTP", t, func() {
		for _, tc := range []struct {
			err    error
			status int
		}{
			{coordinator.ErrInvalidArgument, http.StatusBadRequest},
			{coordinator.ErrMatchNotFound, http.StatusNotFound},
			{coordinator.ErrInvalidTransition, http.StatusConflict},
			{store.ErrConflict, http.StatusConflict},
			{store.ErrUnavailable, http.StatusServiceUnavailable},
			{context.Canceled, http.StatusInternalServerError},
		} {
			status, _ := classify(tc.err)
			So(status, ShouldEqual, tc.status)
		}
	})
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebsocketRoutes(t *testing.T) {
	Convey("Given the API behind a real listener", t, func() {
		a := newTestAPI(t)
		srv := httptest.NewServer(a.router)
		defer srv.Close()
		m := a.createMatch(model.ModeBlindRace)
		ctx := context.Background()

		Convey("When a client streams the match", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/matches/"+m.MatchID+"/stream"), nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

			var first model.Match
			So(conn.ReadJSON(&first), ShouldBeNil)
			So(first.Status, ShouldEqual, model.MatchWaiting)

			So(a.coord.StartMatch(ctx, m.MatchID), ShouldBeNil)
			var next model.Match
			So(conn.ReadJSON(&next), ShouldBeNil)
			So(next.Status, ShouldEqual, model.MatchInProgress)
		})

		Convey("When a stream is opened for a bad id", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/matches/a*b/stream"), nil)
			So(err, ShouldNotBeNil)
			So(resp, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a presence connection drops without a close frame", func() {
			online, err := a.coord.ObserveOpponentPresence(ctx, m.MatchID, "a")
			So(err, ShouldBeNil)
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/matches/"+m.MatchID+"/presence/a/connect"), nil)
			So(err, ShouldBeNil)

			first := readBool(online)
			So(first, ShouldNotBeNil)
			So(*first, ShouldBeTrue)

			_ = conn.UnderlyingConn().Close()

			Convey("Then the player goes offline well before the TTL", func() {
				off := readBool(online)
				So(off, ShouldNotBeNil)
				So(*off, ShouldBeFalse)
			})
		})

		Convey("When a presence connection closes cleanly", func() {
			online, err := a.coord.ObserveOpponentPresence(ctx, m.MatchID, "b")
			So(err, ShouldBeNil)
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/matches/"+m.MatchID+"/presence/b/connect"), nil)
			So(err, ShouldBeNil)
			So(*readBool(online), ShouldBeTrue)

			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			So(conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)), ShouldBeNil)
			defer conn.Close()

			off := readBool(online)
			So(off, ShouldNotBeNil)
			So(*off, ShouldBeFalse)
		})
	})
}

func readBool(ch <-chan bool) *bool {
	select {
	case v, ok := <-ch:
		if !ok {
			return nil
		}
		return &v
	case <-time.After(3 * time.Second):
		return nil
	}
}
