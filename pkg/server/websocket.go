package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn carries one JSON document per WebSocket text message.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex // serializes writes
}

func newWSConn(ws *websocket.Conn, maxFrame int, writeTimeout time.Duration) *wsConn {
	ws.SetReadLimit(int64(maxFrame))
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// Send writes a frame as one text message without its line terminator.
func (c *wsConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte{'\n'}))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// originChecker returns the upgrader origin policy. With no configured
// origins gorilla's same-origin check applies.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

// StartWebSocket serves the chat protocol on /ws when WebSocketAddr is set.
// WebSocket sessions share rooms and users with TCP sessions.
func (s *Server) StartWebSocket() error {
	addr := s.cfg.WebSocketAddr
	if addr == "" {
		return nil // WebSocket transport disabled
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(s.cfg.AllowedOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		if !s.track() {
			_ = ws.Close()
			return
		}
		defer s.conns.Done()
		s.serveConn(newWSConn(ws, s.cfg.MaxFrameSize, s.cfg.WriteTimeout))
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen websocket: %w", err)
	}
	s.wsListener = ln
	s.wsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("websocket listening", "addr", ln.Addr().String())
		if err := s.wsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("websocket HTTP error", "err", err)
		}
	}()
	return nil
}
