package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/NicolasHaas/roomchat/pkg/datastore"
	"github.com/NicolasHaas/roomchat/pkg/model"
	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// historyTimeLayout formats chat_history timestamps (UTC).
const historyTimeLayout = "2006-01-02 15:04:05"

// validationErrors are the model errors whose text is safe to show clients.
var validationErrors = []error{
	model.ErrUsernameEmpty,
	model.ErrUsernameTooLong,
	model.ErrUsernameInvalidChars,
	model.ErrPasswordEmpty,
	model.ErrPasswordTooLong,
	model.ErrRoomNameEmpty,
	model.ErrRoomNameTooLong,
}

// validationMessage returns the text of the model error wrapped by err, if any.
func validationMessage(err error) (string, bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return v.Error(), true
		}
	}
	return "", false
}

// handleFrame decodes one request frame and dispatches it.
func (s *Server) handleFrame(sess *Session, frame []byte) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		s.metrics.ProtocolErrors.Add(1)
		slog.Debug("bad request", "session", sess.ID, "err", err)
		if errors.Is(err, protocol.ErrMissingType) {
			s.sendError(sess, "Missing request type.")
			return
		}
		s.sendError(sess, "Invalid JSON format.")
		return
	}

	s.creditActiveTime(sess)
	s.dispatch(sess, req)
}

func (s *Server) dispatch(sess *Session, req *protocol.Request) {
	switch req.Type {
	case protocol.TypeAuth:
		s.handleAuth(sess, req)
		return
	case protocol.TypeRegister:
		s.handleRegister(sess, req)
		return
	case protocol.TypeListRooms:
		s.handleListRooms(sess)
		return
	}

	if sess.State() < StateAuthenticated {
		s.sendError(sess, "Authentication required.")
		return
	}

	switch req.Type {
	case protocol.TypeCreateRoom:
		s.handleCreateRoom(sess, req)
	case protocol.TypeJoinRoom:
		s.handleJoinRoom(sess, req)
	case protocol.TypeLeaveRoom:
		s.handleLeaveRoom(sess)
	case protocol.TypeMessage:
		s.handleMessage(sess, req)
	case protocol.TypeRoomInfo:
		s.handleRoomInfo(sess)
	case protocol.TypeChatHistory:
		s.handleChatHistory(sess, req)
	case protocol.TypeLeaderboard:
		s.handleLeaderboard(sess)
	default:
		s.metrics.ProtocolErrors.Add(1)
		slog.Debug("unknown request type", "session", sess.ID, "type", req.Type)
		s.sendError(sess, "Unknown command.")
	}
}

// send encodes and writes one response to the session. A failed write closes
// the connection so the read loop ends and cleanup runs.
func (s *Server) send(sess *Session, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode response", "session", sess.ID, "err", err)
		return
	}
	if err := sess.conn.Send(frame); err != nil {
		slog.Debug("response write failed", "session", sess.ID, "user", sess.username, "err", err)
		sess.closeConn()
	}
}

func (s *Server) sendError(sess *Session, message string) {
	s.send(sess, protocol.NewError(message))
}

func (s *Server) storageFailure(op string, err error) {
	s.metrics.StorageErrors.Add(1)
	slog.Warn("storage call failed", "op", op, "err", err)
}

// creditActiveTime queues the whole seconds spent in the current room since
// the last credit.
func (s *Server) creditActiveTime(sess *Session) {
	secs := sess.takeActiveTime(s.now())
	if secs == 0 || sess.roomID == 0 {
		return
	}
	userID, roomID := sess.userID, sess.roomID
	s.persist.enqueue("bump_activity", func(ctx context.Context) error {
		return s.store.BumpActivity(ctx, userID, roomID, 0, secs)
	})
}

// bindUser attaches user to the session. Switching to a different user
// leaves the current room and releases the previous name first. It reports
// false if the user is logged in on another session.
func (s *Server) bindUser(sess *Session, user *model.User) bool {
	if sess.username == user.Username {
		sess.bind(user.Username, user.ID)
		return true
	}
	if !s.clients.Register(user.Username, sess) {
		return false
	}
	if sess.username != "" {
		s.leaveCurrentRoom(sess, leftNotice(sess.username))
		s.clients.Remove(sess.username, sess)
	}
	sess.bind(user.Username, user.ID)
	return true
}

// leaveCurrentRoom drops the session's room membership and broadcasts notice
// to the members left behind.
func (s *Server) leaveCurrentRoom(sess *Session, notice string) bool {
	if sess.room == "" {
		return false
	}
	ok := s.rooms.Leave(sess.room, sess.username, notice)
	sess.exitRoom()
	return ok
}

func (s *Server) handleAuth(sess *Session, req *protocol.Request) {
	fail := func(message string) {
		s.metrics.FailedAuths.Add(1)
		s.send(sess, &protocol.AuthResponse{Type: protocol.TypeAuthResponse, Message: message})
	}

	if req.Username == "" || req.Password == "" {
		fail("Username and password are required.")
		return
	}

	ctx, cancel := s.storeCtx()
	defer cancel()
	user, err := s.store.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, datastore.ErrInvalidCredentials) {
		slog.Info("auth rejected", "user", req.Username, "session", sess.ID)
		fail("Invalid username or password.")
		return
	}
	if err != nil {
		s.storageFailure("authenticate", err)
		fail("Authentication failed, try again later.")
		return
	}

	if !s.bindUser(sess, user) {
		slog.Info("auth rejected, already logged in", "user", user.Username, "session", sess.ID)
		fail("User already logged in.")
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("user authenticated", "user", user.Username, "session", sess.ID, "remote", sess.conn.RemoteAddr())
	s.send(sess, &protocol.AuthResponse{
		Type:     protocol.TypeAuthResponse,
		Success:  true,
		Message:  "Authentication successful.",
		Username: user.Username,
	})
}

func (s *Server) handleRegister(sess *Session, req *protocol.Request) {
	respond := func(ok bool, message string) {
		s.send(sess, &protocol.RegisterResponse{Type: protocol.TypeRegisterResponse, Success: ok, Message: message})
	}

	if req.Username == "" || req.Password == "" {
		respond(false, "Username and password are required.")
		return
	}

	ctx, cancel := s.storeCtx()
	defer cancel()
	user, err := s.store.Register(ctx, req.Username, req.Password)
	if errors.Is(err, datastore.ErrUserExists) {
		respond(false, "Username already exists.")
		return
	}
	if msg, ok := validationMessage(err); ok {
		respond(false, "Registration failed: "+msg+".")
		return
	}
	if err != nil {
		s.storageFailure("register", err)
		respond(false, "Registration failed, try again later.")
		return
	}

	s.metrics.Registrations.Add(1)
	if !s.bindUser(sess, user) {
		slog.Warn("registered user already logged in", "user", user.Username, "session", sess.ID)
	}
	slog.Info("user registered", "user", user.Username, "session", sess.ID)
	respond(true, "Registration successful.")
}

func (s *Server) handleCreateRoom(sess *Session, req *protocol.Request) {
	respond := func(ok bool, message string) {
		s.send(sess, &protocol.RoomCreationResponse{Type: protocol.TypeRoomCreationResponse, Success: ok, Message: message})
	}

	room := &model.Room{
		Name:      model.NormalizeRoomName(req.RoomName),
		IsPrivate: req.IsPrivate,
		OwnerID:   sess.userID,
	}
	if err := room.Validate(); err != nil {
		respond(false, "Invalid room name: "+err.Error()+".")
		return
	}

	ctx, cancel := s.storeCtx()
	defer cancel()
	err := s.store.CreateRoom(ctx, room)
	if errors.Is(err, datastore.ErrRoomExists) {
		respond(false, fmt.Sprintf("Room '%s' already exists.", room.Name))
		return
	}
	if err != nil {
		s.storageFailure("create_room", err)
		respond(false, fmt.Sprintf("Failed to create room '%s'.", room.Name))
		return
	}

	s.rooms.Create(room.Name, room.IsPrivate)
	s.metrics.RoomsCreated.Add(1)
	slog.Info("room created", "room", room.Name, "private", room.IsPrivate, "user", sess.username)
	respond(true, fmt.Sprintf("Room '%s' created successfully.", room.Name))
}

func (s *Server) handleJoinRoom(sess *Session, req *protocol.Request) {
	fail := func(message string) {
		s.send(sess, &protocol.RoomJoinResponse{Type: protocol.TypeRoomJoinResponse, Message: message})
	}

	name := model.NormalizeRoomName(req.RoomName)
	if name == "" {
		fail("Room name is required.")
		return
	}
	if !s.rooms.Exists(name) {
		fail(fmt.Sprintf("Room '%s' does not exist.", name))
		return
	}

	// Resolved before any room lock is taken; 0 disables activity counters.
	roomID := s.lookupRoomID(name)

	resp := &protocol.RoomJoinResponse{
		Type:    protocol.TypeRoomJoinResponse,
		Success: true,
		Message: fmt.Sprintf("Joined room '%s'.", name),
		Room:    name,
	}
	// History is read before the room is locked and sent right after the
	// arrival notice, so no room traffic lands in between.
	history := s.loadHistory(name)
	joined := func() { s.send(sess, resp) }
	arrived := func() { s.send(sess, history) }
	if !s.rooms.Join(sess.username, sess.conn, sess.room, name, joined, arrived) {
		fail(fmt.Sprintf("Room '%s' does not exist.", name))
		return
	}
	sess.enterRoom(name, roomID, s.now())
	slog.Info("user joined room", "user", sess.username, "room", name)
}

func (s *Server) lookupRoomID(name string) int64 {
	ctx, cancel := s.storeCtx()
	defer cancel()
	id, err := s.store.LookupRoomID(ctx, name)
	if err != nil {
		s.storageFailure("lookup_room_id", err)
		return 0
	}
	return id
}

func (s *Server) handleLeaveRoom(sess *Session) {
	if sess.State() != StateInRoom {
		s.send(sess, &protocol.RoomLeaveResponse{
			Type:    protocol.TypeRoomLeaveResponse,
			Message: "You are not currently in any room.",
		})
		return
	}

	name := sess.room
	s.leaveCurrentRoom(sess, leftNotice(sess.username))
	slog.Info("user left room", "user", sess.username, "room", name)
	s.send(sess, &protocol.RoomLeaveResponse{
		Type:    protocol.TypeRoomLeaveResponse,
		Success: true,
		Message: fmt.Sprintf("Left room '%s'.", name),
		Room:    name,
	})
}

// handleMessage broadcasts a chat line to the session's current room. The
// request's room_name is not consulted and the text is relayed unchanged.
func (s *Server) handleMessage(sess *Session, req *protocol.Request) {
	if sess.State() != StateInRoom {
		s.sendError(sess, "You must join a room to send messages.")
		return
	}

	text := req.Message
	if err := model.ValidateMessageBody(text); err != nil {
		if errors.Is(err, model.ErrMessageBodyEmpty) {
			s.sendError(sess, "Message cannot be empty.")
			return
		}
		s.sendError(sess, fmt.Sprintf("Message exceeds %d characters.", model.MessageMaxBodyLength))
		return
	}

	room, username := sess.room, sess.username
	userID, roomID := sess.userID, sess.roomID

	s.rooms.Post(room, username, text)
	s.metrics.MessagesSent.Add(1)

	s.persist.enqueue("append_message", func(ctx context.Context) error {
		return s.store.AppendMessage(ctx, room, username, text)
	})
	if roomID != 0 {
		s.persist.enqueue("bump_activity", func(ctx context.Context) error {
			return s.store.BumpActivity(ctx, userID, roomID, 1, 0)
		})
	}
}

func (s *Server) handleListRooms(sess *Session) {
	ctx, cancel := s.storeCtx()
	defer cancel()
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		s.storageFailure("list_rooms", err)
		s.sendError(sess, "Could not list rooms.")
		return
	}

	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, protocol.RoomSummary{Name: r.Name, IsPrivate: r.IsPrivate})
	}
	s.send(sess, &protocol.RoomList{Type: protocol.TypeRoomList, Rooms: summaries})
}

func (s *Server) handleRoomInfo(sess *Session) {
	if sess.State() != StateInRoom {
		s.sendError(sess, "You are not in any room.")
		return
	}
	snap, ok := s.rooms.Snapshot(sess.room)
	if !ok {
		s.sendError(sess, "You are not in any room.")
		return
	}
	s.send(sess, &protocol.RoomInfo{
		Type:                protocol.TypeRoomInfo,
		RoomName:            snap.Name,
		ActiveUsers:         snap.Members,
		TotalUsersInRoom:    len(snap.Members),
		TotalMessagesInRoom: snap.TotalMessages,
	})
}

func (s *Server) handleChatHistory(sess *Session, req *protocol.Request) {
	name := model.NormalizeRoomName(req.RoomName)
	if name == "" {
		s.sendError(sess, "Room name is required.")
		return
	}
	s.send(sess, s.loadHistory(name))
}

// loadHistory builds the chat_history response for a room, oldest first.
// Queued message writes land before the read. A storage failure yields an
// error response.
func (s *Server) loadHistory(room string) any {
	s.persist.flush()

	ctx, cancel := s.storeCtx()
	defer cancel()
	msgs, err := s.store.RoomHistory(ctx, room, s.cfg.HistoryLimit)
	if err != nil {
		s.storageFailure("room_history", err)
		return protocol.NewError("Could not load chat history.")
	}

	entries := make([]protocol.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, protocol.HistoryEntry{
			Username:  m.Username,
			Message:   m.Body,
			Timestamp: m.CreatedAt.UTC().Format(historyTimeLayout),
		})
	}
	return &protocol.ChatHistory{Type: protocol.TypeChatHistory, Room: room, History: entries}
}

func (s *Server) handleLeaderboard(sess *Session) {
	ctx, cancel := s.storeCtx()
	defer cancel()
	board, err := s.store.Leaderboard(ctx, s.cfg.LeaderboardLimit)
	if err != nil {
		s.storageFailure("leaderboard", err)
		s.sendError(sess, "Could not load leaderboard.")
		return
	}

	rows := make([]protocol.LeaderboardRow, 0, len(board))
	for _, e := range board {
		rows = append(rows, protocol.LeaderboardRow{
			Username:          e.Username,
			MessagesSent:      e.MessagesSent,
			ActiveTimeSeconds: e.ActiveTimeSeconds,
		})
	}
	s.send(sess, &protocol.LeaderboardData{Type: protocol.TypeLeaderboardData, Leaderboard: rows})
}
