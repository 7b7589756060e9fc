package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeProvider is a minimal stand-in for the streaming endpoint: it hands
// out tokens and runs a scripted WebSocket session.
type fakeProvider struct {
	srv        *httptest.Server
	tokenFails atomic.Bool
	script     func(t *testing.T, conn *websocket.Conn)
	t          *testing.T
}

func newFakeProvider(t *testing.T, script func(t *testing.T, conn *websocket.Conn)) *fakeProvider {
	p := &fakeProvider{script: script, t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if p.tokenFails.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		p.script(t, conn)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) config() AssemblyAIConfig {
	return AssemblyAIConfig{
		APIKey:           "test-key",
		TokenURL:         p.srv.URL + "/token",
		StreamURL:        strings.Replace(p.srv.URL, "http", "ws", 1) + "/ws",
		ReconnectDelay:   10 * time.Millisecond,
		MaxReconnects:    2,
		TerminateTimeout: 50 * time.Millisecond,
	}
}

func sendMessage(t *testing.T, conn *websocket.Conn, m map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(m); err != nil {
		t.Errorf("write message: %v", err)
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestAssemblyAISessionBeginAndTurns(t *testing.T) {
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		sendMessage(t, conn, map[string]any{
			"type": "Begin", "id": "sess-1", "expires_at": time.Now().Add(10 * time.Minute).Unix(),
		})
		sendMessage(t, conn, map[string]any{
			"type": "Turn", "transcript": "second nephi", "end_of_turn": false,
		})
		sendMessage(t, conn, map[string]any{
			"type": "Turn", "transcript": "Second Nephi chapter one verse one.",
			"end_of_turn": true, "turn_is_formatted": true,
		})
		// hold the connection open until the client hangs up
		conn.ReadMessage()
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	defer s.Close()

	ev := nextEvent(t, s.Events())
	if ev.Type != EventBegin || ev.Begin == nil || ev.Begin.SessionID != "sess-1" {
		t.Fatalf("first event = %+v, want Begin sess-1", ev)
	}

	ev = nextEvent(t, s.Events())
	if ev.Type != EventTurn || ev.Turn.IsFinal {
		t.Fatalf("second event = %+v, want partial Turn", ev)
	}

	ev = nextEvent(t, s.Events())
	if ev.Type != EventTurn || !ev.Turn.IsFinal || !ev.Turn.Formatted {
		t.Fatalf("third event = %+v, want final formatted Turn", ev)
	}
	if ev.Turn.Transcript != "Second Nephi chapter one verse one." {
		t.Errorf("transcript = %q", ev.Turn.Transcript)
	}
}

func TestAssemblyAISessionForwardsAudio(t *testing.T) {
	received := make(chan []byte, 1)
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			received <- msg
		}
		conn.ReadMessage()
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	defer s.Close()

	chunk := []byte{0x01, 0x02, 0x03, 0x04}
	if err := s.SendAudio(context.Background(), chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(chunk) {
			t.Errorf("provider received %v, want %v", got, chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("provider never received audio")
	}
}

func TestAssemblyAISessionTermination(t *testing.T) {
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		sendMessage(t, conn, map[string]any{
			"type": "Termination", "audio_duration_seconds": 12.5, "session_duration_seconds": 14.0,
		})
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	defer s.Close()

	ev := nextEvent(t, s.Events())
	if ev.Type != EventTermination || ev.Termination.AudioDuration != 12.5 {
		t.Fatalf("event = %+v, want Termination with 12.5s audio", ev)
	}

	// the stream ends after a clean termination
	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatal("received event after termination")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after termination")
	}
}

func TestAssemblyAISessionTerminalErrorAfterRetries(t *testing.T) {
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		// drop the transport immediately without a close handshake
		conn.Close()
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	defer s.Close()

	// make every reconnect fail at the token stage
	provider.tokenFails.Store(true)

	var terminal int
	for ev := range s.Events() {
		if ev.Type != EventError {
			continue
		}
		if ev.Err.Terminal {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("got %d terminal errors, want exactly 1", terminal)
	}
}

func TestAssemblyAISessionReconnects(t *testing.T) {
	var sessions atomic.Int32
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		n := sessions.Add(1)
		sendMessage(t, conn, map[string]any{
			"type": "Begin", "id": "sess-" + string(rune('0'+n)), "expires_at": time.Now().Unix(),
		})
		if n == 1 {
			// first session dies, the client should come back
			conn.Close()
			return
		}
		conn.ReadMessage()
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	defer s.Close()

	ev := nextEvent(t, s.Events())
	if ev.Type != EventBegin {
		t.Fatalf("first event = %+v, want Begin", ev)
	}
	ev = nextEvent(t, s.Events())
	if ev.Type != EventReconnect || ev.Reconnect.Attempt != 1 {
		t.Fatalf("second event = %+v, want first reconnect attempt", ev)
	}
	ev = nextEvent(t, s.Events())
	if ev.Type != EventBegin {
		t.Fatalf("expected a second Begin after reconnect, got %+v", ev)
	}
	if sessions.Load() != 2 {
		t.Errorf("provider saw %d sessions, want 2", sessions.Load())
	}
}

func TestAssemblyAISessionSendAfterCloseIsDropped(t *testing.T) {
	provider := newFakeProvider(t, func(t *testing.T, conn *websocket.Conn) {
		conn.ReadMessage()
	})

	s, err := NewAssemblyAISession(context.Background(), provider.config())
	if err != nil {
		t.Fatalf("NewAssemblyAISession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SendAudio(context.Background(), []byte{1, 2}); err != nil {
		t.Errorf("SendAudio after close = %v, want silent drop", err)
	}
}

func TestNewAssemblyAISessionRequiresAPIKey(t *testing.T) {
	if _, err := NewAssemblyAISession(context.Background(), AssemblyAIConfig{}); err == nil {
		t.Fatal("expected an error without an api key")
	}
}
