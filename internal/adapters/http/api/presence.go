package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

const defaultPresenceTTL = 15 * time.Second

type presenceEvent struct {
	PlayerID string `json:"playerId"`
	Online   bool   `json:"online"`
}

func (s *Server) handlePresenceStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_presence"
	if err := s.deps.StartMatchPresence(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	const op = "api.heartbeat"
	if err := s.deps.UpdateHeartbeat(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handlePresenceStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop_presence"
	if err := s.deps.StopMatchPresence(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID")); err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handlePresenceStream(w http.ResponseWriter, r *http.Request) {
	mid, pid := chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID")
	stream(s, w, r, "presence", func(ctx context.Context) (<-chan bool, error) {
		return s.deps.ObserveOpponentPresence(ctx, mid, pid)
	}, func(online bool) any {
		return presenceEvent{PlayerID: pid, Online: online}
	})
}

// handlePresenceConnect holds a player's presence for as long as the
// websocket lives. A clean close stops presence; any other loss of the
// connection fires the offline will at once instead of waiting for the TTL.
func (s *Server) handlePresenceConnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.presence_connect"
	mid, pid := chi.URLParam(r, "matchID"), chi.URLParam(r, "playerID")
	ctx := r.Context()
	if err := s.deps.StartMatchPresence(ctx, mid, pid); err != nil {
		s.fail(w, r, op, err)
		return
	}
	bg := context.WithoutCancel(ctx)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(ctx, "presence upgrade failed", logger.String("matchID", mid), logger.Error(err))
		_ = s.deps.DropMatchPresence(bg, mid, pid)
		return
	}
	defer conn.Close()
	metrics.UpdateWebsocketConnections(1)
	defer metrics.UpdateWebsocketConnections(-1)

	ttl := s.deps.PresenceTTL()
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	ended := make(chan error, 1)
	go func() { ended <- readPump(conn, ttl) }()

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case err := <-ended:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				_ = s.deps.StopMatchPresence(bg, mid, pid)
				return
			}
			s.log.Info(ctx, "presence connection lost",
				logger.String("matchID", mid),
				logger.String("playerID", pid),
				logger.Error(err),
			)
			_ = s.deps.DropMatchPresence(bg, mid, pid)
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				continue
			}
			if err := s.deps.UpdateHeartbeat(ctx, mid, pid); err != nil {
				s.log.Warn(ctx, "presence heartbeat failed", logger.String("matchID", mid), logger.Error(err))
			}
		}
	}
}
