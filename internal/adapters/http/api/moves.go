package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/gridduel/internal/domain/model"
)

func (s *Server) handleSubmitMove(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_move"
	var mv model.PvpMove
	if err := decode(r, &mv); err != nil {
		s.fail(w, r, op, err)
		return
	}
	mv.MatchID = chi.URLParam(r, "matchID")
	if err := s.deps.SubmitMove(r.Context(), mv); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleListMoves(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_moves"
	moves, err := s.deps.ListMoves(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if moves == nil {
		moves = []model.PvpMove{}
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *Server) handleMovesStream(w http.ResponseWriter, r *http.Request) {
	mid := chi.URLParam(r, "matchID")
	stream(s, w, r, "moves", func(ctx context.Context) (<-chan []model.PvpMove, error) {
		return s.deps.ObserveMoves(ctx, mid)
	}, nil)
}
