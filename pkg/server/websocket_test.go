package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.WebSocketAddr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestWebSocketSharesRoomsWithTCP(t *testing.T) {
	srv, st := newTestServer(t)
	srv.cfg.WebSocketAddr = "127.0.0.1:0"
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustRegister(t, st, "web")
	mustRegister(t, st, "term")
	mustCreateRoom(t, srv, st, "lobby")

	ws := dialWS(t, srv)
	tcp := dialServer(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth","username":"web","password":"pw-web"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readWS(t, ws); got["success"] != true {
		t.Fatalf("ws auth: %v", got)
	}
	tcp.send(t, `{"type":"auth","username":"term","password":"pw-term"}`)
	tcp.read(t)
	tcp.send(t, `{"type":"join_room","room_name":"lobby"}`)
	tcp.readUntil(t, "chat_history")

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room","room_name":"lobby"}`))
	for {
		if readWS(t, ws)["type"] == "chat_history" {
			break
		}
	}
	tcp.read(t) // arrival notice

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","message":"from the browser"}`))
	if diff := cmp.Diff(chatMsg("web", "lobby", "from the browser"), tcp.read(t)); diff != "" {
		t.Errorf("tcp (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(chatMsg("web", "lobby", "from the browser"), readWS(t, ws)); diff != "" {
		t.Errorf("ws (-want +got):\n%s", diff)
	}

	tcp.send(t, `{"type":"message","message":"from the terminal"}`)
	if diff := cmp.Diff(chatMsg("term", "lobby", "from the terminal"), readWS(t, ws)); diff != "" {
		t.Errorf("ws (-want +got):\n%s", diff)
	}

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`nonsense`))
	if diff := cmp.Diff(errorMsg("Invalid JSON format."), readWS(t, ws)); diff != "" {
		t.Errorf("bad frame (-want +got):\n%s", diff)
	}
}
