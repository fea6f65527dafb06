package datastore

import (
	"context"
	"errors"

	"github.com/NicolasHaas/roomchat/pkg/model"
)

var (
	ErrNotFound           = errors.New("datastore: not found")
	ErrUserExists         = errors.New("datastore: username already exists")
	ErrRoomExists         = errors.New("datastore: room already exists")
	ErrInvalidCredentials = errors.New("datastore: invalid username or password")
)

// Gateway is the durable side of the chat server: accounts, rooms, message
// history and per-user activity counters. Implementations must be safe for
// concurrent use; every call may block on I/O.
type Gateway interface {
	AccountProvider
	RoomProvider
	MessageProvider
	ActivityProvider

	// Close releases the underlying storage connection.
	Close() error
}

// Compile-time checks.
var (
	_ Gateway = (*Store)(nil)
	_ Gateway = (*MemoryStore)(nil)
)

type AccountProvider interface {
	// Register creates an account. Returns ErrUserExists on a duplicate username.
	Register(ctx context.Context, username, password string) (*model.User, error)

	// Authenticate checks credentials. Returns ErrInvalidCredentials when the
	// user is unknown or the password does not match.
	Authenticate(ctx context.Context, username, password string) (*model.User, error)

	// LookupUserID returns ErrNotFound for unknown usernames.
	LookupUserID(ctx context.Context, username string) (int64, error)
}

type RoomProvider interface {
	// CreateRoom inserts room and fills in ID and CreatedAt. Returns
	// ErrRoomExists on a duplicate name.
	CreateRoom(ctx context.Context, room *model.Room) error

	// LookupRoomID returns ErrNotFound for unknown rooms.
	LookupRoomID(ctx context.Context, name string) (int64, error)

	// ListRooms returns every room in creation order.
	ListRooms(ctx context.Context) ([]model.Room, error)
}

type MessageProvider interface {
	// AppendMessage stores a chat line. Returns ErrNotFound if the room or
	// user does not exist.
	AppendMessage(ctx context.Context, room, username, body string) error

	// RoomHistory returns up to limit of the most recent messages of a room,
	// oldest first. Unknown rooms yield an empty slice.
	RoomHistory(ctx context.Context, room string, limit int) ([]model.Message, error)
}

type ActivityProvider interface {
	// BumpActivity adds to a user's per-room counters, creating them on first use.
	BumpActivity(ctx context.Context, userID, roomID, messages, activeSeconds int64) error

	// Leaderboard ranks users by total messages, then total active time.
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
