package server

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// State is the position of a session in its lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server side of one client connection. Its fields are only
// touched by the goroutine serving the connection; conn is safe to share.
type Session struct {
	ID   uint32
	conn Conn

	state    State
	username string
	userID   int64
	room     string
	roomID   int64

	// lastActivity is the point up to which active time has been credited.
	lastActivity time.Time

	closeOnce sync.Once
}

func newSession(conn Conn) *Session {
	return &Session{conn: conn}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Username returns the bound username, or "" while anonymous.
func (s *Session) Username() string { return s.username }

// Room returns the current room, or "" when not in one.
func (s *Session) Room() string { return s.room }

// bind records a successful auth. A session in a room stays there.
func (s *Session) bind(username string, userID int64) {
	s.username = username
	s.userID = userID
	if s.state == StateAnonymous {
		s.state = StateAuthenticated
	}
}

// enterRoom moves the session into a room and restarts activity accounting.
func (s *Session) enterRoom(name string, roomID int64, now time.Time) {
	s.room = name
	s.roomID = roomID
	s.state = StateInRoom
	s.lastActivity = now
}

func (s *Session) exitRoom() {
	s.room = ""
	s.roomID = 0
	s.state = StateAuthenticated
}

// takeActiveTime returns the whole seconds elapsed since the last credit and
// advances the mark by that amount. Sub-second remainders carry over.
func (s *Session) takeActiveTime(now time.Time) int64 {
	if s.state != StateInRoom {
		return 0
	}
	elapsed := now.Sub(s.lastActivity)
	if elapsed < time.Second {
		return 0
	}
	secs := int64(elapsed / time.Second)
	s.lastActivity = s.lastActivity.Add(time.Duration(secs) * time.Second)
	return secs
}

// close marks the session closed and releases the connection once.
func (s *Session) close() {
	s.state = StateClosed
	s.closeConn()
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// SessionManager tracks every live connection, authenticated or not.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session // sessionID -> session
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint32]*Session),
	}
}

// Add assigns a fresh random ID to sess and tracks it.
func (sm *SessionManager) Add(sess *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Generate random session ID
	var id uint32
	for {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id = binary.BigEndian.Uint32(b)
		if id != 0 {
			if _, exists := sm.sessions[id]; !exists {
				break
			}
		}
	}

	sess.ID = id
	sm.sessions[id] = sess
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id uint32) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Remove removes a session.
func (sm *SessionManager) Remove(id uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns all active sessions (snapshot).
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		result = append(result, s)
	}
	return result
}
