package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 4096
)

// stream subscribes with open and pushes every value to a websocket as JSON
// until either side goes away. Subscription errors are reported as plain
// HTTP errors before the upgrade.
func stream[T any](s *Server, w http.ResponseWriter, r *http.Request, name string,
	open func(ctx context.Context) (<-chan T, error), view func(T) any,
) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, err := open(ctx)
	if err != nil {
		s.fail(w, r, "api.stream_"+name, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(ctx, "websocket upgrade failed", logger.String("stream", name), logger.Error(err))
		return
	}
	defer conn.Close()
	metrics.UpdateWebsocketConnections(1)
	defer metrics.UpdateWebsocketConnections(-1)

	go func() {
		_ = readPump(conn, pongWait)
		cancel()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			closeWith(conn, websocket.CloseGoingAway)
			return
		case v, ok := <-ch:
			if !ok {
				closeWith(conn, websocket.CloseNormalClosure)
				return
			}
			var out any = v
			if view != nil {
				out = view(v)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(out); err != nil {
				s.log.Debug(ctx, "websocket write failed", logger.String("stream", name), logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames so pongs and close frames are handled.
// It returns the error that ended the connection.
func readPump(conn *websocket.Conn, wait time.Duration) error {
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
}

func closeWith(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
