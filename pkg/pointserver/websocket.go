package pointserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/pitchscope/pkg/stream"
)

// handleWS streams points to one client. The current snapshot is sent
// first, then live points as they are appended. After a sink Reset the
// client sees idx restart at 0.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	s.cfg.Metrics.AddStreamClients(ctx, 1)
	defer s.cfg.Metrics.AddStreamClients(ctx, -1)

	snapshot, points, cancel := s.p.Sink().Follow(s.cfg.SubscriberBuffer)
	defer cancel()

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("stream client connected")
	defer logger.Info("stream client disconnected")

	// The read loop only services control frames and notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, p := range snapshot {
		if err := s.writePoint(conn, p); err != nil {
			return
		}
	}

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case p, ok := <-points:
			if !ok {
				return
			}
			if err := s.writePoint(conn, p); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
			return
		}
	}
}

func (s *Server) writePoint(conn *websocket.Conn, p stream.Point) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(p)
}
