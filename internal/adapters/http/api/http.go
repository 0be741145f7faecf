// Package api exposes the match coordinator over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/okian/gridduel/internal/adapters/http/swagger"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/pkg/logger"
)

// Coordinator is the set of coordinator operations the handlers call.
type Coordinator interface {
	JoinMatchmaking(ctx context.Context, p coordinator.Player, mode model.Mode) (*model.MatchmakingRequest, error)
	LeaveMatchmaking(ctx context.Context, playerID string) error
	GetMatchmakingRequest(ctx context.Context, playerID string) (*model.MatchmakingRequest, error)
	ObserveMatchmaking(ctx context.Context, playerID string) (<-chan *model.MatchmakingRequest, error)
	TryMatchmaking(ctx context.Context, playerID string, mode model.Mode) (string, error)

	CreateMatch(ctx context.Context, mode model.Mode, pz model.Puzzle, a, b coordinator.Player) (*model.Match, error)
	GetMatch(ctx context.Context, matchID string) (*model.Match, error)
	ObserveMatch(ctx context.Context, matchID string) (<-chan *model.Match, error)
	StartMatch(ctx context.Context, matchID string) error
	EndMatch(ctx context.Context, matchID, winnerID string, reason model.EndReason) error
	CancelMatch(ctx context.Context, matchID, callerID string, forfeitedByCaller bool) error
	UpdatePlayerStatus(ctx context.Context, matchID, playerID string, status model.PlayerStatus) error
	SubmitPlayerResult(ctx context.Context, matchID, playerID string, r model.PlayerResult) error

	SubmitMove(ctx context.Context, m model.PvpMove) error
	ListMoves(ctx context.Context, matchID string) ([]model.PvpMove, error)
	ObserveMoves(ctx context.Context, matchID string) (<-chan []model.PvpMove, error)

	StartMatchPresence(ctx context.Context, matchID, playerID string) error
	UpdateHeartbeat(ctx context.Context, matchID, playerID string) error
	StopMatchPresence(ctx context.Context, matchID, playerID string) error
	DropMatchPresence(ctx context.Context, matchID, playerID string) error
	ObserveOpponentPresence(ctx context.Context, matchID, opponentID string) (<-chan bool, error)
	PresenceTTL() time.Duration

	GetStats(ctx context.Context, playerID string) (*model.PlayerStats, error)
}

// PuzzlePicker supplies a puzzle when createMatch is called without one.
type PuzzlePicker interface {
	Pick(ctx context.Context, d model.Difficulty) (model.Puzzle, bool)
}

// Server wires HTTP routes for the coordinator API.
type Server struct {
	deps     Coordinator
	puzzles  PuzzlePicker
	health   *HealthHandler
	stats    *StatsHandler
	log      logger.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l.Named("api")
		}
	}
}

// WithAllowedOrigins restricts CORS and websocket origins. Empty allows all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithPuzzles sets the puzzle source used by createMatch.
func WithPuzzles(p PuzzlePicker) Option {
	return func(s *Server) { s.puzzles = p }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Coordinator, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:   deps,
		health: NewHealthHandler(),
		stats:  NewStatsHandler(statsProvider),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.health.HandleHealth)
	r.Get("/stats", s.stats.HandleStats)
	swagger.Register(r)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/matchmaking", func(r chi.Router) {
			r.Post("/", s.handleJoin)
			r.Route("/{playerID}", func(r chi.Router) {
				r.Get("/", s.handleGetRequest)
				r.Delete("/", s.handleLeave)
				r.Post("/try", s.handleTry)
				r.Get("/stream", s.handleQueueStream)
			})
		})
		r.Route("/matches", func(r chi.Router) {
			r.Post("/", s.handleCreateMatch)
			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", s.handleGetMatch)
				r.Get("/stream", s.handleMatchStream)
				r.Post("/start", s.handleStart)
				r.Post("/end", s.handleEnd)
				r.Post("/cancel", s.handleCancel)
				r.Put("/players/{playerID}/status", s.handleStatus)
				r.Put("/players/{playerID}/result", s.handleResult)
				r.Post("/moves", s.handleSubmitMove)
				r.Get("/moves", s.handleListMoves)
				r.Get("/moves/stream", s.handleMovesStream)
				r.Route("/presence/{playerID}", func(r chi.Router) {
					r.Post("/", s.handlePresenceStart)
					r.Put("/", s.handleHeartbeat)
					r.Delete("/", s.handlePresenceStop)
					r.Get("/stream", s.handlePresenceStream)
					r.Get("/connect", s.handlePresenceConnect)
				})
			})
		})
		r.Get("/players/{playerID}/stats", s.handlePlayerStats)
		r.Post("/puzzles/validate", s.handleValidatePuzzle)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	})
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.origins) == 0 {
		return []string{"*"}
	}
	return s.origins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status string `json:"status"`
}

var ack = ackResponse{Status: "ok"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail translates a coordinator or store error into its HTTP shape.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(err)
	}
	return nil
}
