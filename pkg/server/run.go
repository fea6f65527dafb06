package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/roomchat/pkg/version"
)

// Start prepares the room registry and starts every listener. It returns once
// the server is accepting connections.
func (s *Server) Start() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}

	// Load rooms from YAML config if provided
	if s.cfg.RoomsFile != "" {
		if err := LoadRoomsFromYAML(s.ctx, s.cfg.RoomsFile, s.store); err != nil {
			slog.Error("failed to load rooms config", "err", err)
		}
	}

	if err := s.loadRooms(); err != nil {
		return err
	}

	if err := s.StartListener(); err != nil {
		return err
	}
	if err := s.StartWebSocket(); err != nil {
		return err
	}

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging
	s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.ctx.Done())
	return nil
}

// loadRooms registers every durable room in the live registry.
func (s *Server) loadRooms() error {
	ctx, cancel := s.storeCtx()
	defer cancel()
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("server: load rooms: %w", err)
	}
	for _, r := range rooms {
		s.rooms.Create(r.Name, r.IsPrivate)
	}
	slog.Info("rooms loaded", "count", len(rooms))
	return nil
}

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		s.Shutdown()
		return err
	}

	slog.Info("roomchat server running",
		"addr", s.cfg.Addr,
		"websocket", s.cfg.WebSocketAddr,
		"metrics", s.cfg.MetricsAddr,
		"version", version.String(),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: listeners close, every session is
// closed and cleaned up, pending writes are flushed, then the store closes.
// It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.connMu.Lock()
		s.cancel()
		s.connMu.Unlock()

		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.wsServer != nil {
			_ = s.wsServer.Close()
		}
		for _, sess := range s.sessions.All() {
			sess.closeConn()
		}
		s.conns.Wait()

		s.persist.close()
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				slog.Warn("close store", "err", err)
			}
		}
		slog.Info("server stopped")
	})
}
