package model

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
		{"sql injection", "' OR '1'='1", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "hunter2", nil},
		{"spaces allowed", "correct horse battery staple", nil},
		{"max length", strings.Repeat("p", MaxPasswordLength), nil},
		{"empty", "", ErrPasswordEmpty},
		{"too long", strings.Repeat("p", MaxPasswordLength+1), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.input); err != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestRoomName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantErr  error
	}{
		{"plain", "lobby", "lobby", nil},
		{"case kept", "Lobby", "Lobby", nil},
		{"trimmed", "  general  ", "general", nil},
		{"escape stripped", "gen\x1b[31meral", "gen[31meral", nil},
		{"only whitespace", "   ", "", ErrRoomNameEmpty},
		{"too long", strings.Repeat("r", MaxRoomNameLength+1), strings.Repeat("r", MaxRoomNameLength+1), ErrRoomNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRoomName(tt.input)
			if got != tt.wantName {
				t.Fatalf("NormalizeRoomName(%q) = %q, want %q", tt.input, got, tt.wantName)
			}
			if err := ValidateRoomName(got); err != tt.wantErr {
				t.Errorf("ValidateRoomName(%q) = %v, want %v", got, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid", "hi", nil},
		{"max", strings.Repeat("x", MessageMaxBodyLength), nil},
		{"empty", "", ErrMessageBodyEmpty},
		{"blank", " \t ", ErrMessageBodyEmpty},
		{"too long", strings.Repeat("x", MessageMaxBodyLength+1), ErrMessageBodyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Body: tt.input}
			if err := m.Validate(); err != tt.wantErr {
				t.Errorf("Validate(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("a\nb\rc\x00d\x07e")
	if got != "a b cde" {
		t.Errorf("SanitizeText = %q, want %q", got, "a b cde")
	}
}

func TestLeaderboardEntryLess(t *testing.T) {
	entries := []LeaderboardEntry{
		{Username: "carol", MessagesSent: 3, ActiveTimeSeconds: 10},
		{Username: "alice", MessagesSent: 5, ActiveTimeSeconds: 1},
		{Username: "bob", MessagesSent: 3, ActiveTimeSeconds: 40},
		{Username: "dave", MessagesSent: 3, ActiveTimeSeconds: 10},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })

	var got []string
	for _, e := range entries {
		got = append(got, e.Username)
	}
	want := []string{"alice", "bob", "carol", "dave"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("leaderboard order mismatch (-want +got):\n%s", diff)
	}
}
