package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/roomchat/pkg/crypto"
	"github.com/NicolasHaas/roomchat/pkg/model"
)

// MemoryStore provides an in-memory Gateway implementation for tests.
// It mirrors the SQL store's validation and error behavior.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID    int64
	nextRoomID    int64
	nextMessageID int64

	usersByName map[string]*model.User
	roomsByName map[string]*model.Room
	roomOrder   []string
	messages    map[string][]model.Message // room name -> messages, oldest first
	activity    map[activityKey]*activityRow

	// failing, when set, is returned by every call. Tests use it to simulate
	// an unreachable database.
	failing error
}

type activityKey struct {
	userID int64
	roomID int64
}

type activityRow struct {
	messages      int64
	activeSeconds int64
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:           now,
		nextUserID:    1,
		nextRoomID:    1,
		nextMessageID: 1,
		usersByName:   make(map[string]*model.User),
		roomsByName:   make(map[string]*model.Room),
		messages:      make(map[string][]model.Message),
		activity:      make(map[activityKey]*activityRow),
	}
}

// SetFailure makes every subsequent call return err (nil restores normal operation).
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Register(_ context.Context, username, password string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: register: %w", err)
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("datastore: register: %w", err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("datastore: register: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	if _, exists := s.usersByName[username]; exists {
		return nil, ErrUserExists
	}
	user := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	s.nextUserID++
	s.usersByName[username] = user
	copyUser := *user
	return &copyUser, nil
}

func (s *MemoryStore) Authenticate(_ context.Context, username, password string) (*model.User, error) {
	s.mu.RLock()
	if s.failing != nil {
		s.mu.RUnlock()
		return nil, s.failing
	}
	user, ok := s.usersByName[username]
	var copyUser model.User
	if ok {
		copyUser = *user
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	match, err := crypto.VerifyPassword(copyUser.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("datastore: authenticate %q: %w", username, err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return &copyUser, nil
}

func (s *MemoryStore) LookupUserID(_ context.Context, username string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return 0, s.failing
	}
	user, ok := s.usersByName[username]
	if !ok {
		return 0, ErrNotFound
	}
	return user.ID, nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *model.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("datastore: create room: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	if _, exists := s.roomsByName[room.Name]; exists {
		return ErrRoomExists
	}
	room.ID = s.nextRoomID
	room.CreatedAt = s.now().UTC()
	s.nextRoomID++
	copyRoom := *room
	s.roomsByName[room.Name] = &copyRoom
	s.roomOrder = append(s.roomOrder, room.Name)
	return nil
}

func (s *MemoryStore) LookupRoomID(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return 0, s.failing
	}
	room, ok := s.roomsByName[name]
	if !ok {
		return 0, ErrNotFound
	}
	return room.ID, nil
}

func (s *MemoryStore) ListRooms(_ context.Context) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}
	rooms := make([]model.Room, 0, len(s.roomOrder))
	for _, name := range s.roomOrder {
		rooms = append(rooms, *s.roomsByName[name])
	}
	return rooms, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, room, username, body string) error {
	m := model.Message{Room: room, Username: username, Body: body}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	_, roomOK := s.roomsByName[room]
	_, userOK := s.usersByName[username]
	if !roomOK || !userOK {
		return fmt.Errorf("datastore: append message to %q by %q: %w", room, username, ErrNotFound)
	}
	m.ID = s.nextMessageID
	m.CreatedAt = s.now().UTC()
	s.nextMessageID++
	s.messages[room] = append(s.messages[room], m)
	return nil
}

func (s *MemoryStore) RoomHistory(_ context.Context, room string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = model.HistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}
	all := s.messages[room]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStore) BumpActivity(_ context.Context, userID, roomID, messages, activeSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	key := activityKey{userID: userID, roomID: roomID}
	row, ok := s.activity[key]
	if !ok {
		row = &activityRow{}
		s.activity[key] = row
	}
	row.messages += messages
	row.activeSeconds += activeSeconds
	return nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = model.LeaderboardLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, s.failing
	}

	names := make(map[int64]string, len(s.usersByName))
	for _, u := range s.usersByName {
		names[u.ID] = u.Username
	}
	totals := make(map[int64]*model.LeaderboardEntry)
	for key, row := range s.activity {
		e, ok := totals[key.userID]
		if !ok {
			e = &model.LeaderboardEntry{Username: names[key.userID]}
			totals[key.userID] = e
		}
		e.MessagesSent += row.messages
		e.ActiveTimeSeconds += row.activeSeconds
	}

	entries := make([]model.LeaderboardEntry, 0, len(totals))
	for _, e := range totals {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
