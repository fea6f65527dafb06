package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MessageMaxBodyLength = 2000

	// HistoryLimit is how many persisted messages a join or chat_history returns.
	HistoryLimit = 50

	// LeaderboardLimit is how many users the leaderboard ranks.
	LeaderboardLimit = 10
)

var ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// Message is a persisted chat line.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) Validate() error {
	return ValidateMessageBody(m.Body)
}

// ValidateMessageBody checks a chat line.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrMessageBodyEmpty
	} else if utf8.RuneCountInString(body) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}

	return nil
}

// LeaderboardEntry is one user's totals summed across all rooms.
type LeaderboardEntry struct {
	Username          string `json:"username" yaml:"username"`
	MessagesSent      int64  `json:"messages_sent" yaml:"messages_sent"`
	ActiveTimeSeconds int64  `json:"active_time_seconds" yaml:"active_time_seconds"`
}

// Less reports whether e ranks strictly ahead of o: more messages first,
// then more active time, then username for a stable order.
func (e LeaderboardEntry) Less(o LeaderboardEntry) bool {
	if e.MessagesSent != o.MessagesSent {
		return e.MessagesSent > o.MessagesSent
	}
	if e.ActiveTimeSeconds != o.ActiveTimeSeconds {
		return e.ActiveTimeSeconds > o.ActiveTimeSeconds
	}
	return e.Username < o.Username
}
