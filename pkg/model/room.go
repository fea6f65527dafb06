package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxRoomNameLength = 64

var ErrRoomNameEmpty = errors.New("room name must not be empty")
var ErrRoomNameTooLong = errors.New("room name too long")

// Room is the durable record of a chat room. Name and IsPrivate never change
// after creation.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	OwnerID   int64     `json:"owner_id"` // 0 = created by the server (seed file)
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeRoomName strips control characters and surrounding whitespace.
// Room names are otherwise case-sensitive and kept as given.
func NormalizeRoomName(name string) string {
	return strings.TrimSpace(SanitizeText(name))
}

// ValidateRoomName checks an already normalized room name.
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	return nil
}

// Validate checks the room's fields.
func (r *Room) Validate() error {
	return ValidateRoomName(r.Name)
}
