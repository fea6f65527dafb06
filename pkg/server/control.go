package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// StartListener starts the TCP (or TLS) chat listener and its accept loop.
func (s *Server) StartListener() error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLS {
		cert, terr := loadOrGenerateTLS(s.cfg)
		if terr != nil {
			return fmt.Errorf("server: tls: %w", terr)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}
		ln, err = tls.Listen("tcp", s.cfg.Addr, tlsCfg)
	} else {
		ln, err = net.Listen("tcp", s.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln

	slog.Info("chat listener started", "addr", ln.Addr().String(), "tls", s.cfg.TLS)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("accept error", "err", err)
				continue
			}
			if !s.track() {
				_ = conn.Close()
				return
			}
			go func() {
				defer s.conns.Done()
				s.serveConn(newStreamConn(conn, s.cfg.MaxFrameSize, s.cfg.WriteTimeout))
			}()
		}
	}()

	return nil
}

// track registers one connection goroutine. It reports false once shutdown
// has begun.
func (s *Server) track() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns.Add(1)
	return true
}

// serveConn runs one session until its connection fails or the server stops.
func (s *Server) serveConn(conn Conn) {
	sess := newSession(conn)
	s.sessions.Add(sess)
	defer s.closeSession(sess)

	remote := conn.RemoteAddr()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "remote", remote, "session", sess.ID)

	// Shutdown may have closed every tracked session before this one was added.
	if s.ctx.Err() != nil {
		return
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				s.metrics.ProtocolErrors.Add(1)
				slog.Debug("oversized frame", "session", sess.ID, "remote", remote)
				s.sendError(sess, "Message too large.")
				continue
			}
			if errors.Is(err, io.EOF) || isClosedErr(err) {
				return
			}
			slog.Debug("read error", "session", sess.ID, "user", sess.username, "err", err)
			return
		}

		s.handleFrame(sess, frame)
	}
}

// closeSession removes every trace of a session: active time is credited,
// room membership is dropped with a departure notice, the username is
// released and the connection is closed.
func (s *Server) closeSession(sess *Session) {
	s.creditActiveTime(sess)
	if sess.room != "" {
		s.rooms.Leave(sess.room, sess.username, disconnectedNotice(sess.username))
		sess.exitRoom()
	}
	if sess.username != "" {
		s.clients.Remove(sess.username, sess)
	}
	s.sessions.Remove(sess.ID)
	sess.close()

	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	slog.Info("client disconnected", "user", sess.username, "session", sess.ID, "remote", sess.conn.RemoteAddr())
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		err.Error() == "use of closed network connection" ||
		err.Error() == "tls: use of closed connection"
}
