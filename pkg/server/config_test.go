package server

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/roomchat/pkg/datastore"
	"github.com/NicolasHaas/roomchat/pkg/model"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ROOMCHAT_ADDR", "127.0.0.1:7000")
	t.Setenv("DATABASE_URL", "postgres://chat@db/chat")
	t.Setenv("ROOMCHAT_TLS", "true")
	t.Setenv("ROOMCHAT_HISTORY_LIMIT", "20")
	t.Setenv("ROOMCHAT_WRITE_TIMEOUT", "2s")
	t.Setenv("ROOMCHAT_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := DefaultConfig()
	if err := LoadConfigFromEnv(&cfg); err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}

	want := DefaultConfig()
	want.Addr = "127.0.0.1:7000"
	want.DatabaseURL = "postgres://chat@db/chat"
	want.TLS = true
	want.HistoryLimit = 20
	want.WriteTimeout = 2 * time.Second
	want.AllowedOrigins = []string{"https://a.example", "https://b.example"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("ROOMCHAT_HISTORY_LIMIT", "lots")
	cfg := DefaultConfig()
	if err := LoadConfigFromEnv(&cfg); err == nil {
		t.Fatal("expected an error for a non-numeric limit")
	}
}

func TestConfigSanitize(t *testing.T) {
	cfg := Config{MaxFrameSize: 1 << 30}.sanitize()
	def := DefaultConfig()
	if cfg.HistoryLimit != def.HistoryLimit || cfg.MaxFrameSize != def.MaxFrameSize ||
		cfg.WriteTimeout != def.WriteTimeout || cfg.PersistQueue != def.PersistQueue {
		t.Errorf("sanitize = %+v", cfg)
	}
}

func TestImportAndExportRoomsYAML(t *testing.T) {
	ctx := context.Background()
	st := datastore.NewMemory()
	if err := st.CreateRoom(ctx, &model.Room{Name: "lobby"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rooms.yaml")
	data := "rooms:\n  - name: lobby\n    private: true\n  - name: staff\n    private: true\n  - name: \"\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadRoomsFromYAML(ctx, path, st); err != nil {
		t.Fatalf("LoadRoomsFromYAML: %v", err)
	}

	out, err := ExportRoomsYAML(ctx, st)
	if err != nil {
		t.Fatalf("ExportRoomsYAML: %v", err)
	}
	want := "rooms:\n    - name: lobby\n    - name: staff\n      private: true\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("export (-want +got):\n%s", diff)
	}

	if err := ImportRoomsFromYAML(ctx, []byte("rooms: [oops"), st); err == nil {
		t.Error("expected parse error")
	}
	if err := LoadRoomsFromYAML(ctx, filepath.Join(t.TempDir(), "missing.yaml"), st); err == nil {
		t.Error("expected read error")
	}
}

func TestExportLeaderboardYAML(t *testing.T) {
	ctx := context.Background()
	st := datastore.NewMemory()

	out, err := ExportLeaderboardYAML(ctx, st, 0)
	if err != nil {
		t.Fatalf("ExportLeaderboardYAML: %v", err)
	}
	if string(out) != "leaderboard: []\n" {
		t.Errorf("empty export = %q", out)
	}

	user, err := st.Register(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	room := &model.Room{Name: "lobby"}
	if err := st.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := st.BumpActivity(ctx, user.ID, room.ID, 3, 42); err != nil {
		t.Fatalf("BumpActivity: %v", err)
	}
	out, err = ExportLeaderboardYAML(ctx, st, 10)
	if err != nil {
		t.Fatalf("ExportLeaderboardYAML: %v", err)
	}
	want := "leaderboard:\n    - username: alice\n      messages_sent: 3\n      active_time_seconds: 42\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("export (-want +got):\n%s", diff)
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatal("no configured origins should defer to the same-origin default")
	}
	check := originChecker([]string{"https://chat.example/"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://chat.example", true},
		{"HTTPS://CHAT.EXAMPLE", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q allowed = %v, want %v", tt.origin, got, tt.want)
		}
	}
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	if !originChecker([]string{"*"})(r) {
		t.Error("* should allow every origin")
	}
}
