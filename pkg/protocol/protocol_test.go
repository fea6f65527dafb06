package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameReader(t *testing.T) {
	input := "{\"type\":\"auth\"}\n\n  \r\n{\"type\":\"list_rooms\"}\r\n{\"type\":\"leaderboard\"}"
	fr := NewFrameReader(strings.NewReader(input), 0)

	var got []string
	for {
		frame, err := fr.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: unexpected error: %v", err)
		}
		got = append(got, string(frame))
	}

	want := []string{`{"type":"auth"}`, `{"type":"list_rooms"}`, `{"type":"leaderboard"}`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameReaderTooLarge(t *testing.T) {
	big := strings.Repeat("x", 10000)
	input := big + "\n" + `{"type":"auth"}` + "\n"
	fr := NewFrameReader(strings.NewReader(input), 1024)

	if _, err := fr.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame: err = %v, want %v", err, ErrFrameTooLarge)
	}

	frame, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame after oversized frame: %v", err)
	}
	if string(frame) != `{"type":"auth"}` {
		t.Fatalf("ReadFrame = %q, want the next frame", frame)
	}

	if _, err := fr.ReadFrame(); err != io.EOF {
		t.Fatalf("ReadFrame at end: err = %v, want io.EOF", err)
	}
}

func TestWriteFrameChat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, NewChat("A", "lobby", "hi")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := `{"type":"chat","sender":"A","room":"lobby","message":"hi"}` + "\n"
	if buf.String() != want {
		t.Errorf("WriteFrame = %q, want %q", buf.String(), want)
	}
}

func TestEncodeResponses(t *testing.T) {
	tests := map[string]struct {
		msg  any
		want string
	}{
		"auth failure omits username": {
			msg:  &AuthResponse{Type: TypeAuthResponse, Success: false, Message: "Invalid username or password."},
			want: `{"type":"auth_response","success":false,"message":"Invalid username or password."}`,
		},
		"join success carries room": {
			msg:  &RoomJoinResponse{Type: TypeRoomJoinResponse, Success: true, Message: "Joined room 'lobby'.", Room: "lobby"},
			want: `{"type":"room_join_response","success":true,"message":"Joined room 'lobby'.","room":"lobby"}`,
		},
		"empty history is a list": {
			msg:  &ChatHistory{Type: TypeChatHistory, Room: "lobby", History: []HistoryEntry{}},
			want: `{"type":"chat_history","room":"lobby","history":[]}`,
		},
		"room info": {
			msg:  &RoomInfo{Type: TypeRoomInfo, RoomName: "lobby", ActiveUsers: []string{"A", "B"}, TotalUsersInRoom: 2, TotalMessagesInRoom: 7},
			want: `{"type":"room_info","room_name":"lobby","active_users":["A","B"],"total_users_in_room":2,"total_messages_in_room":7}`,
		},
		"error": {
			msg:  NewError("Unknown command."),
			want: `{"type":"error","message":"Unknown command."}`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got := strings.TrimSuffix(string(data), "\n"); got != tc.want {
				t.Errorf("Encode = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    *Request
		wantErr error
	}{
		"auth": {
			input: `{"type":"auth","username":"alice","password":"pw"}`,
			want:  &Request{Type: TypeAuth, Username: "alice", Password: "pw"},
		},
		"create private room": {
			input: `{"type":"create_room","room_name":"lobby","is_private":true}`,
			want:  &Request{Type: TypeCreateRoom, RoomName: "lobby", IsPrivate: true},
		},
		"unknown fields ignored": {
			input: `{"type":"leave_room","extra":1}`,
			want:  &Request{Type: TypeLeaveRoom},
		},
		"missing type": {
			input:   `{"username":"alice"}`,
			wantErr: ErrMissingType,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tc.input))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("DecodeRequest err = %v, want %v", err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("DecodeRequest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	for _, input := range []string{`{"type":`, `not json`, `["type"]`} {
		if _, err := DecodeRequest([]byte(input)); err == nil {
			t.Errorf("DecodeRequest(%q): expected error", input)
		}
	}
}
