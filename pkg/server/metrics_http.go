package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :65433 by default, configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("roomchat_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("roomchat_connections_active", "Current open client connections.", "gauge",
		m.ActiveConnections.Load())
	write("roomchat_connections_total", "Lifetime client connections accepted.", "counter",
		m.TotalConnections.Load())
	write("roomchat_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("roomchat_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("roomchat_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())
	write("roomchat_registrations_total", "Accounts registered.", "counter",
		m.Registrations.Load())
	write("roomchat_users_online", "Users currently logged in.", "gauge",
		int64(s.clients.Count()))

	write("roomchat_rooms", "Live rooms.", "gauge",
		int64(s.rooms.Len()))
	write("roomchat_rooms_created_total", "Rooms created.", "counter",
		m.RoomsCreated.Load())
	write("roomchat_messages_total", "User messages broadcast.", "counter",
		m.MessagesSent.Load())
	write("roomchat_broadcast_deliveries_total", "Chat frames delivered to room members.", "counter",
		m.BroadcastDeliveries.Load())
	write("roomchat_broadcast_failures_total", "Chat frames that failed to write.", "counter",
		m.BroadcastFailures.Load())

	write("roomchat_protocol_errors_total", "Malformed, oversized or unknown requests.", "counter",
		m.ProtocolErrors.Load())
	write("roomchat_storage_errors_total", "Failed persistence calls.", "counter",
		m.StorageErrors.Load())
}
