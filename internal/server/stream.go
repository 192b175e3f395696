package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/session"
)

const (
	writeWait    = 10 * time.Second
	maxReadBytes = 4096
)

// CloseStreams disconnects every websocket client. Hijacked connections are
// not closed by http.Server.Shutdown, so register this with
// RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.shutdown) })
}

// StreamClients returns the number of connected websocket clients.
func (s *Server) StreamClients() int {
	return int(s.streams.Load())
}

// stateFrame is the first message on every stream.
type stateFrame struct {
	Type  string        `json:"type"`
	State session.State `json:"state"`
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// handleStream upgrades to a websocket and forwards controller events until
// the client disconnects or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	events, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	s.metrics.SetStreamClients(int(s.streams.Add(1)))
	defer func() { s.metrics.SetStreamClients(int(s.streams.Add(-1))) }()

	pongWait := 3 * s.cfg.PingInterval
	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only send control frames; the reader exists to process
	// pongs and notice disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeFrame(conn, stateFrame{Type: "state", State: s.ctrl.State(r.Context())}); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-s.shutdown:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeFrame(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
