package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
)

type joinRequest struct {
	PlayerID    string     `json:"playerId"`
	DisplayName string     `json:"displayName"`
	RatingHint  int        `json:"ratingHint"`
	Mode        model.Mode `json:"mode"`
}

type tryRequest struct {
	Mode model.Mode `json:"mode"`
}

type tryResponse struct {
	Matched bool   `json:"matched"`
	MatchID string `json:"matchId,omitempty"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	const op = "api.join_matchmaking"
	var req joinRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	p := coordinator.Player{ID: req.PlayerID, DisplayName: req.DisplayName, RatingHint: req.RatingHint}
	mr, err := s.deps.JoinMatchmaking(r.Context(), p, req.Mode)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, mr)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_matchmaking"
	mr, err := s.deps.GetMatchmakingRequest(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if mr == nil {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	const op = "api.leave_matchmaking"
	if err := s.deps.LeaveMatchmaking(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleTry(w http.ResponseWriter, r *http.Request) {
	const op = "api.try_matchmaking"
	var req tryRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	mid, err := s.deps.TryMatchmaking(r.Context(), chi.URLParam(r, "playerID"), req.Mode)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, tryResponse{Matched: mid != "", MatchID: mid})
}

func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "playerID")
	stream(s, w, r, "matchmaking", func(ctx context.Context) (<-chan *model.MatchmakingRequest, error) {
		return s.deps.ObserveMatchmaking(ctx, pid)
	}, nil)
}
