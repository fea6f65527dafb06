package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/NicolasHaas/roomchat/pkg/datastore"
	"github.com/NicolasHaas/roomchat/pkg/logging"
	"github.com/NicolasHaas/roomchat/pkg/server"
	"github.com/NicolasHaas/roomchat/pkg/version"
)

func main() {
	// A missing .env file is fine; anything else is reported.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	if err := server.LoadConfigFromEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	logOpts := logging.Options{Level: "info", Format: "text"}
	if err := env.Parse(&logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP chat bind address")
	flag.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "SQLite file path or postgres:// URL")
	flag.StringVar(&cfg.WebSocketAddr, "ws", cfg.WebSocketAddr, "HTTP bind address for the /ws endpoint (empty to disable)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.StringVar(&cfg.RoomsFile, "rooms-file", cfg.RoomsFile, "YAML file defining rooms to create on startup")
	flag.BoolVar(&cfg.TLS, "tls", cfg.TLS, "Serve the chat listener over TLS")
	flag.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate file (auto-generated if empty)")
	flag.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS private key file (auto-generated if empty)")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for generated files")
	flag.IntVar(&cfg.HistoryLimit, "history", cfg.HistoryLimit, "Messages returned by join and chat_history")
	flag.BoolVar(&cfg.ExportRooms, "export-rooms", false, "Export all rooms as YAML and exit")
	flag.BoolVar(&cfg.ExportLeaderboard, "leaderboard", false, "Print the leaderboard as YAML and exit")
	flag.StringVar(&logOpts.Level, "log-level", logOpts.Level, "Log level: "+logging.LevelNames())
	flag.StringVar(&logOpts.Format, "log-format", logOpts.Format, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	logOpts.Output = os.Stdout
	if err := logging.Setup(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	slog.Info("starting roomchat", version.LogAttrs()...)

	st, err := datastore.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	slog.Info("database ready", "backend", st.Backend())

	// Handle export commands (run and exit)
	if cfg.ExportRooms || cfg.ExportLeaderboard {
		err := export(cfg, st)
		_ = st.Close()
		if err != nil {
			slog.Error("export", "err", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func export(cfg server.Config, st *datastore.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.ExportRooms {
		data, err := server.ExportRoomsYAML(ctx, st)
		if err != nil {
			return fmt.Errorf("export rooms: %w", err)
		}
		fmt.Print(string(data))
	}
	if cfg.ExportLeaderboard {
		data, err := server.ExportLeaderboardYAML(ctx, st, cfg.LeaderboardLimit)
		if err != nil {
			return fmt.Errorf("export leaderboard: %w", err)
		}
		fmt.Print(string(data))
	}
	return nil
}
