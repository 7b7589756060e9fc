package httpapi

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// SessionRegistry tracks active streaming sessions and supports graceful
// draining. When draining is enabled, new sessions are rejected while
// in-flight sessions finish naturally.
//
// Sessions are indexed both by user and by connection so that a user opening
// a second stream displaces the first, and teardown paths that only hold the
// connection can still find their session.
//
// The mu mutex makes the draining check and wg.Add atomic in Register(),
// preventing a TOCTOU race where StartDraining+Wait could be called between
// the draining check and wg.Add.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64

	byUser map[string]*streamSession
	byConn map[*websocket.Conn]*streamSession
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]*streamSession),
		byConn: make(map[*websocket.Conn]*streamSession),
	}
}

// Register adds a new active session. It returns false if the registry is
// draining, meaning no new sessions should be accepted. If the same user
// already has a live session, that session is displaced: dropped from both
// indexes, its registry slot released, and returned so the caller can tear
// it down.
func (sr *SessionRegistry) Register(s *streamSession) (displaced *streamSession, ok bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return nil, false
	}

	if prev, exists := sr.byUser[s.userID]; exists {
		displaced = prev
		delete(sr.byConn, prev.conn)
		sr.count.Add(-1)
		sr.wg.Done()
	}
	sr.byUser[s.userID] = s
	sr.byConn[s.conn] = s

	sr.wg.Add(1)
	sr.count.Add(1)
	return displaced, true
}

// Remove drops a session from both indexes. It is a no-op if the session was
// already removed or displaced, so teardown paths can call it unconditionally.
func (sr *SessionRegistry) Remove(s *streamSession) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.byConn[s.conn] != s {
		return
	}
	delete(sr.byConn, s.conn)
	if sr.byUser[s.userID] == s {
		delete(sr.byUser, s.userID)
	}
	sr.count.Add(-1)
	sr.wg.Done()
}

// GetByUser returns the user's live session, or nil.
func (sr *SessionRegistry) GetByUser(userID string) *streamSession {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.byUser[userID]
}

// GetByConn returns the session bound to a downstream connection, or nil.
func (sr *SessionRegistry) GetByConn(conn *websocket.Conn) *streamSession {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.byConn[conn]
}

// StartDraining sets the draining flag so that future Register calls return
// false. Safe to call concurrently with Register.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently active sessions.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until all active sessions have completed.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
