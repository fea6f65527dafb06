package protocol

// Request types sent by clients.
const (
	TypeAuth        = "auth"
	TypeRegister    = "register"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeMessage     = "message"
	TypeListRooms   = "list_rooms"
	TypeRoomInfo    = "room_info"
	TypeChatHistory = "chat_history"
	TypeLeaderboard = "leaderboard"
)

// Response and event types sent by the server.
const (
	TypeAuthResponse         = "auth_response"
	TypeRegisterResponse     = "register_response"
	TypeRoomCreationResponse = "room_creation_response"
	TypeRoomJoinResponse     = "room_join_response"
	TypeRoomLeaveResponse    = "room_leave_response"
	TypeChat                 = "chat"
	TypeRoomList             = "room_list"
	TypeLeaderboardData      = "leaderboard_data"
	TypeError                = "error"
	// chat_history and room_info reuse the request type names.
)

// Request is the union of every client request. Only the fields relevant to
// Type are read.
type Request struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
	IsPrivate bool   `json:"is_private,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ----- Responses -----

type AuthResponse struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

type RegisterResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RoomCreationResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RoomJoinResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

type RoomLeaveResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

// Chat is the broadcast event for user and system lines alike.
type Chat struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Room    string `json:"room"`
	Message string `json:"message"`
}

type HistoryEntry struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ChatHistory struct {
	Type    string         `json:"type"`
	Room    string         `json:"room"`
	History []HistoryEntry `json:"history"`
}

type RoomSummary struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

type RoomList struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

type RoomInfo struct {
	Type                string   `json:"type"`
	RoomName            string   `json:"room_name"`
	ActiveUsers         []string `json:"active_users"`
	TotalUsersInRoom    int      `json:"total_users_in_room"`
	TotalMessagesInRoom int64    `json:"total_messages_in_room"`
}

type LeaderboardRow struct {
	Username          string `json:"username"`
	MessagesSent      int64  `json:"messages_sent"`
	ActiveTimeSeconds int64  `json:"active_time_seconds"`
}

type LeaderboardData struct {
	Type        string           `json:"type"`
	Leaderboard []LeaderboardRow `json:"leaderboard"`
}

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error response.
func NewError(message string) *ErrorResponse {
	return &ErrorResponse{Type: TypeError, Message: message}
}

// NewChat builds a chat event.
func NewChat(sender, room, message string) *Chat {
	return &Chat{Type: TypeChat, Sender: sender, Room: room, Message: message}
}
