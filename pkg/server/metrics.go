package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP and WebSocket)
	ActiveConnections atomic.Int64 // current open connections
	FailedAuths       atomic.Int64 // failed auth requests
	SuccessfulAuths   atomic.Int64 // successful auth requests
	Registrations     atomic.Int64 // accounts registered during this run
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Chat counters
	MessagesSent        atomic.Int64 // user messages broadcast
	BroadcastDeliveries atomic.Int64 // chat frames written to members
	BroadcastFailures   atomic.Int64 // chat frames that failed to write
	RoomsCreated        atomic.Int64 // rooms created during this run

	// Error counters
	ProtocolErrors atomic.Int64 // malformed, oversized or unknown requests
	StorageErrors  atomic.Int64 // failed gateway calls
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	Registrations     int64 `json:"registrations"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	MessagesSent        int64 `json:"messages_sent"`
	BroadcastDeliveries int64 `json:"broadcast_deliveries"`
	BroadcastFailures   int64 `json:"broadcast_failures"`
	RoomsCreated        int64 `json:"rooms_created"`

	ProtocolErrors int64 `json:"protocol_errors"`
	StorageErrors  int64 `json:"storage_errors"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		Registrations:       m.Registrations.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		MessagesSent:        m.MessagesSent.Load(),
		BroadcastDeliveries: m.BroadcastDeliveries.Load(),
		BroadcastFailures:   m.BroadcastFailures.Load(),
		RoomsCreated:        m.RoomsCreated.Load(),
		ProtocolErrors:      m.ProtocolErrors.Load(),
		StorageErrors:       m.StorageErrors.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"messages", s.MessagesSent,
		"deliveries", s.BroadcastDeliveries,
		"delivery_failures", s.BroadcastFailures,
		"storage_errors", s.StorageErrors,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
