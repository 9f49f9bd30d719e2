package handlers

import (
	"sync"
	"time"

	"github.com/tech-arch1tect/secondfactor/services/enrollment"
)

// sessionCache keeps in-flight enrollment sessions in process memory so the
// browser only round-trips an opaque session id. It is not the record
// store: sessions die with the process or the TTL, which is exactly the
// ephemerality the enrollment flow wants.
type sessionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]cachedSession
}

type cachedSession struct {
	session   *enrollment.Session
	expiresAt time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	return &sessionCache{
		ttl:      ttl,
		sessions: make(map[string]cachedSession),
	}
}

func (c *sessionCache) Put(session *enrollment.Session) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.sessions {
		if now.After(entry.expiresAt) {
			delete(c.sessions, id)
		}
	}

	c.sessions[session.ID] = cachedSession{
		session:   session,
		expiresAt: now.Add(c.ttl),
	}
}

// Get returns the session for id and userID, or nil when it is missing,
// expired, or belongs to someone else.
func (c *sessionCache) Get(id, userID string) *enrollment.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sessions[id]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.sessions, id)
		return nil
	}
	if entry.session.UserID != userID {
		return nil
	}
	return entry.session
}

func (c *sessionCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}
