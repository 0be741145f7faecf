package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
)

type playerBody struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	RatingHint  int    `json:"ratingHint"`
}

func (p playerBody) player() coordinator.Player {
	return coordinator.Player{ID: p.PlayerID, DisplayName: p.DisplayName, RatingHint: p.RatingHint}
}

type createMatchRequest struct {
	Mode       model.Mode       `json:"mode"`
	Difficulty model.Difficulty `json:"difficulty"`
	Puzzle     *model.Puzzle    `json:"puzzle,omitempty"`
	Players    [2]playerBody    `json:"players"`
}

type endRequest struct {
	WinnerID string          `json:"winnerId"`
	Reason   model.EndReason `json:"reason"`
}

type cancelRequest struct {
	CallerID          string `json:"callerId"`
	ForfeitedByCaller bool   `json:"forfeitedByCaller"`
}

type statusRequest struct {
	Status model.PlayerStatus `json:"status"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_match"
	var req createMatchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	var pz model.Puzzle
	switch {
	case req.Puzzle != nil:
		pz = *req.Puzzle
	case s.puzzles != nil:
		d := req.Difficulty
		if d == "" {
			d = model.DifficultyMedium
		}
		pz, _ = s.puzzles.Pick(r.Context(), d)
	default:
		s.fail(w, r, op, badRequest(ErrNoPuzzle))
		return
	}
	m, err := s.deps.CreateMatch(r.Context(), req.Mode, pz, req.Players[0].player(), req.Players[1].player())
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_match"
	m, err := s.deps.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMatchStream(w http.ResponseWriter, r *http.Request) {
	mid := chi.URLParam(r, "matchID")
	stream(s, w, r, "match", func(ctx context.Context) (<-chan *model.Match, error) {
		return s.deps.ObserveMatch(ctx, mid)
	}, nil)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_match"
	if err := s.deps.StartMatch(r.Context(), chi.URLParam(r, "matchID")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_match"
	var req endRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := s.deps.EndMatch(r.Context(), chi.URLParam(r, "matchID"), req.WinnerID, req.Reason); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	const op = "api.cancel_match"
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	err := s.deps.CancelMatch(r.Context(), chi.URLParam(r, "matchID"), req.CallerID, req.ForfeitedByCaller)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_player_status"
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	err := s.deps.UpdatePlayerStatus(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID"), req.Status)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_player_result"
	var res model.PlayerResult
	if err := decode(r, &res); err != nil {
		s.fail(w, r, op, err)
		return
	}
	err := s.deps.SubmitPlayerResult(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID"), res)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
