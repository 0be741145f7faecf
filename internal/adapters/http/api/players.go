package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/gridduel/internal/domain/puzzle"
)

type validateRequest struct {
	Clue     string `json:"clue"`
	Solution string `json:"solution"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.player_stats"
	st, err := s.deps.GetStats(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleValidatePuzzle(w http.ResponseWriter, r *http.Request) {
	const op = "api.validate_puzzle"
	var req validateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := puzzle.ValidateDetailed(req.Clue, req.Solution); err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}
