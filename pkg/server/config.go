package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/roomchat/pkg/datastore"
	"github.com/NicolasHaas/roomchat/pkg/model"
)

// LoadConfigFromEnv overrides cfg fields from the environment. Variables that
// are not set leave the field unchanged.
func LoadConfigFromEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("server: parse env: %w", err)
	}
	return nil
}

// RoomYAML represents a room in YAML config.
type RoomYAML struct {
	Name    string `yaml:"name"`
	Private bool   `yaml:"private,omitempty"`
}

// RoomsConfig is the top-level YAML config for rooms.
type RoomsConfig struct {
	Rooms []RoomYAML `yaml:"rooms"`
}

// LeaderboardExport is the top-level YAML for leaderboard export.
type LeaderboardExport struct {
	Leaderboard []model.LeaderboardEntry `yaml:"leaderboard"`
}

// LoadRoomsFromYAML reads a rooms YAML file and creates the rooms missing
// from the store.
func LoadRoomsFromYAML(ctx context.Context, path string, rooms datastore.RoomProvider) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read rooms config: %w", err)
	}
	return ImportRoomsFromYAML(ctx, data, rooms)
}

// ImportRoomsFromYAML parses YAML data and creates the rooms missing from the
// store. Existing rooms keep their privacy flag.
func ImportRoomsFromYAML(ctx context.Context, data []byte, rooms datastore.RoomProvider) error {
	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse rooms config: %w", err)
	}

	created := 0
	for _, r := range cfg.Rooms {
		room := &model.Room{Name: model.NormalizeRoomName(r.Name), IsPrivate: r.Private}
		err := rooms.CreateRoom(ctx, room)
		switch {
		case err == nil:
			created++
			slog.Debug("created room from config", "room", room.Name)
		case errors.Is(err, datastore.ErrRoomExists):
		default:
			slog.Error("failed to create room from config", "room", r.Name, "err", err)
		}
	}

	slog.Info("imported rooms from YAML", "count", len(cfg.Rooms), "created", created)
	return nil
}

// ExportRoomsYAML exports all rooms as YAML in the same shape the rooms file
// is read in.
func ExportRoomsYAML(ctx context.Context, rooms datastore.RoomProvider) ([]byte, error) {
	list, err := rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	cfg := RoomsConfig{Rooms: make([]RoomYAML, 0, len(list))}
	for _, r := range list {
		cfg.Rooms = append(cfg.Rooms, RoomYAML{Name: r.Name, Private: r.IsPrivate})
	}
	return yaml.Marshal(&cfg)
}

// ExportLeaderboardYAML exports the current leaderboard as YAML.
func ExportLeaderboardYAML(ctx context.Context, activity datastore.ActivityProvider, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = model.LeaderboardLimit
	}
	board, err := activity.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	export := LeaderboardExport{Leaderboard: board}
	if export.Leaderboard == nil {
		export.Leaderboard = []model.LeaderboardEntry{}
	}
	return yaml.Marshal(&export)
}
