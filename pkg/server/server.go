// Package server implements the roomchat server: connection acceptors, the
// per-connection session state machine, the room registry and broadcast.
package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NicolasHaas/roomchat/pkg/datastore"
	"github.com/NicolasHaas/roomchat/pkg/model"
	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// Config holds server configuration. Fields tagged env can be set from the
// process environment (see LoadConfigFromEnv).
type Config struct {
	Addr          string `env:"ROOMCHAT_ADDR"`         // TCP bind address
	DatabaseURL   string `env:"DATABASE_URL"`          // SQLite path or postgres DSN
	WebSocketAddr string `env:"ROOMCHAT_WS_ADDR"`      // HTTP bind address for /ws (empty = disabled)
	MetricsAddr   string `env:"ROOMCHAT_METRICS_ADDR"` // HTTP bind address for /metrics (empty = disabled)
	RoomsFile     string `env:"ROOMCHAT_ROOMS_FILE"`   // YAML file of rooms to create on startup
	TLS           bool   `env:"ROOMCHAT_TLS"`          // serve the TCP listener over TLS
	CertFile      string `env:"ROOMCHAT_TLS_CERT"`     // TLS certificate file path
	KeyFile       string `env:"ROOMCHAT_TLS_KEY"`      // TLS private key file path
	DataDir       string `env:"ROOMCHAT_DATA_DIR"`     // directory for generated certs

	// Accepted WebSocket origins. Empty allows same-origin requests only.
	AllowedOrigins []string `env:"ROOMCHAT_ALLOWED_ORIGINS" envSeparator:","`

	HistoryLimit       int           `env:"ROOMCHAT_HISTORY_LIMIT"`
	LeaderboardLimit   int           `env:"ROOMCHAT_LEADERBOARD_LIMIT"`
	MaxFrameSize       int           `env:"ROOMCHAT_MAX_FRAME_SIZE"`
	WriteTimeout       time.Duration `env:"ROOMCHAT_WRITE_TIMEOUT"`   // per-frame write deadline
	StoreTimeout       time.Duration `env:"ROOMCHAT_STORE_TIMEOUT"`   // per gateway call
	PersistQueue       int           `env:"ROOMCHAT_PERSIST_QUEUE"`   // pending async writes before senders block
	MetricsLogInterval time.Duration `env:"ROOMCHAT_METRICS_LOG_INTERVAL"`

	// CLI-only actions (run and exit)
	ExportRooms       bool
	ExportLeaderboard bool
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.Gateway
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:               "0.0.0.0:65432",
		DatabaseURL:        "roomchat.db",
		MetricsAddr:        ":65433",
		DataDir:            ".",
		HistoryLimit:       model.HistoryLimit,
		LeaderboardLimit:   model.LeaderboardLimit,
		MaxFrameSize:       protocol.MaxFrameSize,
		WriteTimeout:       5 * time.Second,
		StoreTimeout:       5 * time.Second,
		PersistQueue:       1024,
		MetricsLogInterval: 60 * time.Second,
	}
}

// sanitize replaces unusable values with defaults.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.LeaderboardLimit <= 0 {
		c.LeaderboardLimit = def.LeaderboardLimit
	}
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > protocol.MaxFrameSize {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.PersistQueue <= 0 {
		c.PersistQueue = def.PersistQueue
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	return c
}

// loadOrGenerateTLS loads TLS cert/key from disk or generates a self-signed pair.
func loadOrGenerateTLS(cfg Config) (tls.Certificate, error) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile

	if certPath == "" {
		certPath = filepath.Join(cfg.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.DataDir, "server.key")
	}

	// Try loading existing cert
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		slog.Info("loaded TLS certificate", "cert", certPath)
		return cert, nil
	}

	// Generate self-signed certificate
	slog.Info("generating self-signed TLS certificate")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"roomchat server"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}

	certOut, err := os.Create(certPath) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write cert: %w", err)
	}
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		_ = certOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode cert: %w", err)
	}
	if err := certOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close cert file: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write key: %w", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		_ = keyOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode key: %w", err)
	}
	if err := keyOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close key file: %w", err)
	}

	slog.Info("TLS certificate generated", "cert", certPath, "key", keyPath)

	return tls.LoadX509KeyPair(certPath, keyPath)
}

// Server is the chat server.
type Server struct {
	cfg      Config
	store    datastore.Gateway
	rooms    *RoomRegistry
	clients  *ClientRegistry
	sessions *SessionManager
	persist  *persister
	metrics  *Metrics

	listener   net.Listener
	wsListener net.Listener
	wsServer   *http.Server
	connMu     sync.Mutex     // orders conns.Add against shutdown
	conns      sync.WaitGroup // one per live connection goroutine

	now func() time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	cfg = cfg.sanitize()
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		store:    deps.Store,
		rooms:    NewRoomRegistry(metrics),
		clients:  NewClientRegistry(),
		sessions: NewSessionManager(),
		persist:  newPersister(metrics, cfg.PersistQueue, cfg.StoreTimeout),
		metrics:  metrics,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Rooms returns the room registry.
func (s *Server) Rooms() *RoomRegistry {
	return s.rooms
}

// Clients returns the registry of logged-in users.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound TCP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebSocketAddr returns the bound WebSocket address, or nil when disabled.
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// storeCtx bounds one synchronous gateway call.
func (s *Server) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.StoreTimeout)
}
