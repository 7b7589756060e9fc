package httpapi

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestSession(userID string) *streamSession {
	return &streamSession{
		sessionID: newSessionID(),
		userID:    userID,
		conn:      &websocket.Conn{},
	}
}

func TestSessionRegistryRegisterRemove(t *testing.T) {
	reg := NewSessionRegistry()

	s := newTestSession("user-1")
	displaced, ok := reg.Register(s)
	if !ok {
		t.Fatal("Register returned false on a fresh registry")
	}
	if displaced != nil {
		t.Fatalf("displaced = %v, want nil", displaced)
	}
	if got := reg.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
	if reg.GetByUser("user-1") != s {
		t.Error("GetByUser did not return the registered session")
	}
	if reg.GetByConn(s.conn) != s {
		t.Error("GetByConn did not return the registered session")
	}

	reg.Remove(s)
	if got := reg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after Remove = %d, want 0", got)
	}
	if reg.GetByUser("user-1") != nil {
		t.Error("GetByUser returned a removed session")
	}

	// double Remove is a no-op
	reg.Remove(s)
	if got := reg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after double Remove = %d, want 0", got)
	}
}

func TestSessionRegistryDisplacesSameUser(t *testing.T) {
	reg := NewSessionRegistry()

	first := newTestSession("user-1")
	if _, ok := reg.Register(first); !ok {
		t.Fatal("Register(first) returned false")
	}

	second := newTestSession("user-1")
	displaced, ok := reg.Register(second)
	if !ok {
		t.Fatal("Register(second) returned false")
	}
	if displaced != first {
		t.Fatalf("displaced = %v, want the first session", displaced)
	}
	if got := reg.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
	if reg.GetByUser("user-1") != second {
		t.Error("GetByUser should return the newer session")
	}
	if reg.GetByConn(first.conn) != nil {
		t.Error("displaced session still indexed by connection")
	}

	// the displaced session's own teardown must not release the slot twice
	reg.Remove(first)
	if got := reg.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount after removing displaced = %d, want 1", got)
	}

	reg.Remove(second)
	if got := reg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}

func TestSessionRegistryDraining(t *testing.T) {
	reg := NewSessionRegistry()

	s := newTestSession("user-1")
	if _, ok := reg.Register(s); !ok {
		t.Fatal("Register returned false before draining")
	}

	reg.StartDraining()
	if !reg.IsDraining() {
		t.Error("IsDraining = false after StartDraining")
	}
	if _, ok := reg.Register(newTestSession("user-2")); ok {
		t.Error("Register succeeded while draining")
	}

	done := make(chan struct{})
	go func() {
		reg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while a session was still active")
	case <-time.After(50 * time.Millisecond):
	}

	reg.Remove(s)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the last session finished")
	}
}
