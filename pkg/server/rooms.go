package server

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// SystemSender is the sender label of server-generated chat lines.
const SystemSender = "SERVER"

func joinedNotice(username string) string       { return username + " has joined the room." }
func leftNotice(username string) string         { return username + " has left the room." }
func disconnectedNotice(username string) string { return username + " has disconnected." }

// room is one live room. Members and the message counter are guarded by mu;
// name and private never change.
type room struct {
	name    string
	private bool

	mu            sync.Mutex
	members       map[string]Conn // username -> connection (not owned)
	totalMessages int64
}

// RoomRegistry manages live rooms and their members.
type RoomRegistry struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	metrics *Metrics
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(metrics *Metrics) *RoomRegistry {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &RoomRegistry{
		rooms:   make(map[string]*room),
		metrics: metrics,
	}
}

// Create registers a room. It reports false if the name is already taken.
func (r *RoomRegistry) Create(name string, private bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[name]; exists {
		return false
	}
	r.rooms[name] = &room{
		name:    name,
		private: private,
		members: make(map[string]Conn),
	}
	return true
}

func (r *RoomRegistry) get(name string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[name]
}

// Exists reports whether a room is registered.
func (r *RoomRegistry) Exists(name string) bool {
	return r.get(name) != nil
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Join moves username into room to, removing it from room from first when
// from is non-empty. Both rooms stay locked for the whole move: the departure
// notice goes to from, then joined runs, then the arrival notice goes to every
// member of to, including the joiner, then arrived runs. No room traffic can
// reach the joiner between joined and arrived. It reports false if to does
// not exist.
func (r *RoomRegistry) Join(username string, conn Conn, from, to string, joined, arrived func()) bool {
	target := r.get(to)
	if target == nil {
		return false
	}
	var prev *room
	if from != "" {
		prev = r.get(from)
	}

	unlock := lockPair(prev, target)
	defer unlock()

	if prev != nil {
		if _, ok := prev.members[username]; ok {
			delete(prev.members, username)
			prev.broadcastLocked(SystemSender, leftNotice(username), r.metrics)
		}
	}
	target.members[username] = conn
	if joined != nil {
		joined()
	}
	target.broadcastLocked(SystemSender, joinedNotice(username), r.metrics)
	if arrived != nil {
		arrived()
	}
	return true
}

// lockPair locks one or two rooms in name order and returns the unlock func.
func lockPair(a, b *room) func() {
	if a == nil || a == b {
		b.mu.Lock()
		return b.mu.Unlock
	}
	first, second := a, b
	if second.name < first.name {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// Leave removes username from a room and, when notice is non-empty,
// broadcasts it to the remaining members. It reports false if the user was
// not a member.
func (r *RoomRegistry) Leave(name, username, notice string) bool {
	rm := r.get(name)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.members[username]; !ok {
		return false
	}
	delete(rm.members, username)
	if notice != "" {
		rm.broadcastLocked(SystemSender, notice, r.metrics)
	}
	return true
}

// Members returns the sorted usernames in a room.
func (r *RoomRegistry) Members(name string) []string {
	rm := r.get(name)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.memberNamesLocked()
}

// Stats returns the active member count and the message counter of a room.
func (r *RoomRegistry) Stats(name string) (active int, totalMessages int64, ok bool) {
	rm := r.get(name)
	if rm == nil {
		return 0, 0, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members), rm.totalMessages, true
}

// RoomSnapshot is a consistent view of one room.
type RoomSnapshot struct {
	Name          string
	Private       bool
	Members       []string
	TotalMessages int64
}

// Snapshot returns members and counters read under a single lock.
func (r *RoomRegistry) Snapshot(name string) (RoomSnapshot, bool) {
	rm := r.get(name)
	if rm == nil {
		return RoomSnapshot{}, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return RoomSnapshot{
		Name:          rm.name,
		Private:       rm.private,
		Members:       rm.memberNamesLocked(),
		TotalMessages: rm.totalMessages,
	}, true
}

// IncrementMessages bumps a room's message counter.
func (r *RoomRegistry) IncrementMessages(name string) {
	rm := r.get(name)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	rm.totalMessages++
	rm.mu.Unlock()
}

// Broadcast sends a chat line to every member of a room, the sender
// included, and returns the number of successful deliveries.
func (r *RoomRegistry) Broadcast(name, sender, text string) int {
	rm := r.get(name)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.broadcastLocked(sender, text, r.metrics)
}

// Post counts one chat message against a room and broadcasts it under the
// same lock, so readers never see a delivered line with a stale counter.
// It reports false if the room does not exist.
func (r *RoomRegistry) Post(name, sender, text string) (int, bool) {
	rm := r.get(name)
	if rm == nil {
		return 0, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.totalMessages++
	return rm.broadcastLocked(sender, text, r.metrics), true
}

func (rm *room) memberNamesLocked() []string {
	names := make([]string, 0, len(rm.members))
	for username := range rm.members {
		names = append(names, username)
	}
	sort.Strings(names)
	return names
}

// broadcastLocked writes one chat event to every member. A failed write is
// counted and skipped; the member stays until its own session disconnects.
func (rm *room) broadcastLocked(sender, text string, metrics *Metrics) int {
	frame, err := protocol.Encode(protocol.NewChat(sender, rm.name, text))
	if err != nil {
		slog.Error("encode broadcast", "room", rm.name, "err", err)
		return 0
	}
	delivered := 0
	for username, conn := range rm.members {
		if err := conn.Send(frame); err != nil {
			metrics.BroadcastFailures.Add(1)
			slog.Debug("broadcast write failed", "room", rm.name, "user", username, "err", err)
			continue
		}
		delivered++
	}
	metrics.BroadcastDeliveries.Add(int64(delivered))
	return delivered
}
