package server

import (
	"sort"
	"sync"
)

// ClientRegistry maps logged-in usernames to their session. A username has
// at most one live session.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Session
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Session)}
}

// Register binds username to sess. It reports false if another session
// already holds the name.
func (c *ClientRegistry) Register(username string, sess *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.clients[username]; ok && cur != sess {
		return false
	}
	c.clients[username] = sess
	return true
}

// Remove drops username if it is still bound to sess.
func (c *ClientRegistry) Remove(username string, sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.clients[username]; ok && cur == sess {
		delete(c.clients, username)
	}
}

// Get returns the session bound to username, or nil.
func (c *ClientRegistry) Get(username string) *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clients[username]
}

// Count returns the number of logged-in users.
func (c *ClientRegistry) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Usernames returns the logged-in usernames, sorted.
func (c *ClientRegistry) Usernames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.clients))
	for name := range c.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
