package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/versestream/backend/internal/notifications"
	"github.com/versestream/backend/internal/stt"
)

// fakeUpstream stands in for the provider session. Tests drive its event
// channel directly and inspect the audio it received.
type fakeUpstream struct {
	mu     sync.Mutex
	audio  [][]byte
	events chan stt.Event
	once   sync.Once
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{events: make(chan stt.Event, 16)}
}

func (f *fakeUpstream) SendAudio(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	f.audio = append(f.audio, buf)
	return nil
}

func (f *fakeUpstream) Events() <-chan stt.Event { return f.events }

func (f *fakeUpstream) Close() error {
	f.once.Do(func() {
		f.events <- stt.Event{
			Type:        stt.EventTermination,
			Termination: &stt.TerminationEvent{AudioDuration: 12.5, SessionDuration: 13},
		}
		close(f.events)
	})
	return nil
}

func (f *fakeUpstream) emit(ev stt.Event) { f.events <- ev }

func (f *fakeUpstream) emitBegin(id string) {
	f.emit(stt.Event{Type: stt.EventBegin, Begin: &stt.BeginEvent{
		SessionID: id,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}})
}

func (f *fakeUpstream) emitTurn(transcript string, final bool) {
	f.emit(stt.Event{Type: stt.EventTurn, Turn: &stt.TurnEvent{
		Transcript: transcript,
		IsFinal:    final,
		Formatted:  final,
	}})
}

func (f *fakeUpstream) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

// upstreamRecorder captures every session the injected factory opens.
type upstreamRecorder struct {
	mu       sync.Mutex
	sessions []*fakeUpstream
}

func (u *upstreamRecorder) factory(_ context.Context) (stt.Session, error) {
	fu := newFakeUpstream()
	u.mu.Lock()
	u.sessions = append(u.sessions, fu)
	u.mu.Unlock()
	return fu, nil
}

func (u *upstreamRecorder) waitFor(t *testing.T, n int) *fakeUpstream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u.mu.Lock()
		if len(u.sessions) >= n {
			fu := u.sessions[n-1]
			u.mu.Unlock()
			return fu
		}
		u.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("upstream session %d was never opened", n)
	return nil
}

func newStreamTestServer(t *testing.T) (*Router, *httptest.Server, *upstreamRecorder) {
	t.Helper()
	rec := &upstreamRecorder{}
	r := newTestRouter(t)
	r.cfg.AssemblyAIAPIKey = "test-key"
	r.discord = notifications.NewDiscord("", r.logger)
	r.upstreamFactory = rec.factory

	srv := httptest.NewServer(r.mux)
	t.Cleanup(srv.Close)
	return r, srv, rec
}

func dialStream(t *testing.T, r *Router, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	token, _, err := r.generateJWT(userID)
	if err != nil {
		t.Fatalf("generateJWT: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads the next server event and returns its type tag plus the
// raw frame for typed decoding.
func readEvent(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return env.Type, msg
}

func expectEvent(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	typ, msg := readEvent(t, conn)
	if typ != want {
		t.Fatalf("event type = %q, want %q (frame: %s)", typ, want, msg)
	}
	return msg
}

func sendControl(t *testing.T, conn *websocket.Conn, msgType string) {
	t.Helper()
	if err := conn.WriteJSON(clientMessage{Type: msgType}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

func TestStreamRequiresToken(t *testing.T) {
	_, srv, _ := newStreamTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without a token succeeded")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("resp = %v, want 401", resp)
	}
}

func TestStreamRequiresProviderKey(t *testing.T) {
	r, srv, _ := newStreamTestServer(t)
	r.cfg.AssemblyAIAPIKey = ""

	token, _, err := r.generateJWT("user-1")
	if err != nil {
		t.Fatalf("generateJWT: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded without a provider key")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("resp = %v, want 503", resp)
	}
}

func TestStreamLifecycle(t *testing.T) {
	r, srv, rec := newStreamTestServer(t)
	conn := dialStream(t, r, srv, "user-1")

	expectEvent(t, conn, "connection")

	sendControl(t, conn, "StartStreaming")
	fu := rec.waitFor(t, 1)

	fu.emitBegin("upstream-abc")
	msg := expectEvent(t, conn, "SessionBegin")
	var begin sessionBeginEvent
	if err := json.Unmarshal(msg, &begin); err != nil {
		t.Fatalf("decode SessionBegin: %v", err)
	}
	if begin.UpstreamSessionID != "upstream-abc" {
		t.Errorf("UpstreamSessionID = %q, want %q", begin.UpstreamSessionID, "upstream-abc")
	}

	// A finalized turn carrying a citation is enriched with the reference.
	fu.emitTurn("Please turn with me to Alma 32:21.", true)
	msg = expectEvent(t, conn, "Turn")
	var turn turnEvent
	if err := json.Unmarshal(msg, &turn); err != nil {
		t.Fatalf("decode Turn: %v", err)
	}
	if !turn.IsFinal {
		t.Error("IsFinal = false, want true")
	}
	if len(turn.References) != 1 {
		t.Fatalf("got %d references, want 1 (frame: %s)", len(turn.References), msg)
	}
	wantURL := "https://www.churchofjesuschrist.org/study/bofm/alma/32/21?lang=eng"
	if turn.References[0].URL != wantURL {
		t.Errorf("URL = %q, want %q", turn.References[0].URL, wantURL)
	}
	if !strings.Contains(string(msg), `"scriptureReferences"`) {
		t.Error("Turn frame missing the scriptureReferences field")
	}

	// The same citation repeated later in the session is not re-delivered.
	fu.emitTurn("As Alma 32:21 teaches, faith is not a perfect knowledge.", true)
	msg = expectEvent(t, conn, "Turn")
	turn = turnEvent{}
	if err := json.Unmarshal(msg, &turn); err != nil {
		t.Fatalf("decode Turn: %v", err)
	}
	if len(turn.References) != 0 {
		t.Errorf("repeated citation delivered %d references, want 0", len(turn.References))
	}

	// Binary frames are raw audio for the provider.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fu.audioCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fu.audioCount(); got != 1 {
		t.Fatalf("upstream received %d audio frames, want 1", got)
	}

	sendControl(t, conn, "StopStreaming")
	msg = expectEvent(t, conn, "Summary")
	var sum summaryEvent
	if err := json.Unmarshal(msg, &sum); err != nil {
		t.Fatalf("decode Summary: %v", err)
	}
	if len(sum.References) != 1 {
		t.Errorf("summary lists %d references, want 1", len(sum.References))
	}
	if sum.AudioDurationSeconds != 12.5 {
		t.Errorf("AudioDurationSeconds = %v, want 12.5", sum.AudioDurationSeconds)
	}

	msg = expectEvent(t, conn, "StreamingStopped")
	var stopped stoppedEvent
	if err := json.Unmarshal(msg, &stopped); err != nil {
		t.Fatalf("decode StreamingStopped: %v", err)
	}
	if !strings.Contains(stopped.FinalTranscript, "Alma 32:21") {
		t.Errorf("FinalTranscript = %q, want the finalized turns", stopped.FinalTranscript)
	}
}

func TestStreamNonFinalTurnSkipsDetection(t *testing.T) {
	r, srv, rec := newStreamTestServer(t)
	conn := dialStream(t, r, srv, "user-1")

	expectEvent(t, conn, "connection")
	sendControl(t, conn, "StartStreaming")
	fu := rec.waitFor(t, 1)

	// A partial cut off mid-citation must not resolve: "Alma 32:2" here is
	// a truncation of "Alma 32:21", not a real citation.
	fu.emitTurn("Please turn to Alma 32:2", false)
	msg := expectEvent(t, conn, "Turn")
	var turn turnEvent
	if err := json.Unmarshal(msg, &turn); err != nil {
		t.Fatalf("decode Turn: %v", err)
	}
	if turn.IsFinal {
		t.Error("IsFinal = true, want false")
	}
	if len(turn.References) != 0 {
		t.Fatalf("partial turn delivered %d references, want 0 (frame: %s)", len(turn.References), msg)
	}

	// The finalized turn still resolves cleanly: the partial claimed nothing.
	fu.emitTurn("Please turn to Alma 32:21.", true)
	msg = expectEvent(t, conn, "Turn")
	turn = turnEvent{}
	if err := json.Unmarshal(msg, &turn); err != nil {
		t.Fatalf("decode Turn: %v", err)
	}
	if len(turn.References) != 1 {
		t.Fatalf("final turn delivered %d references, want 1", len(turn.References))
	}
	wantURL := "https://www.churchofjesuschrist.org/study/bofm/alma/32/21?lang=eng"
	if turn.References[0].URL != wantURL {
		t.Errorf("URL = %q, want %q", turn.References[0].URL, wantURL)
	}
}

func TestStreamBase64AudioBuffer(t *testing.T) {
	r, srv, rec := newStreamTestServer(t)
	conn := dialStream(t, r, srv, "user-1")

	expectEvent(t, conn, "connection")
	sendControl(t, conn, "StartStreaming")
	fu := rec.waitFor(t, 1)

	chunk := []byte{0x10, 0x20, 0x30, 0x40}
	err := conn.WriteJSON(clientMessage{
		Type:    "SendAudioBuffer",
		Payload: base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		t.Fatalf("send SendAudioBuffer: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fu.audioCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fu.audioCount(); got != 1 {
		t.Fatalf("upstream received %d audio frames, want 1", got)
	}
	fu.mu.Lock()
	got := fu.audio[0]
	fu.mu.Unlock()
	if string(got) != string(chunk) {
		t.Errorf("upstream received %v, want %v", got, chunk)
	}
}

func TestStreamStopWithoutStart(t *testing.T) {
	r, srv, _ := newStreamTestServer(t)
	conn := dialStream(t, r, srv, "user-1")

	expectEvent(t, conn, "connection")
	sendControl(t, conn, "StopStreaming")
	expectEvent(t, conn, "StreamingStopped")
}

func TestStreamTerminalUpstreamError(t *testing.T) {
	r, srv, rec := newStreamTestServer(t)
	conn := dialStream(t, r, srv, "user-1")

	expectEvent(t, conn, "connection")
	sendControl(t, conn, "StartStreaming")
	fu := rec.waitFor(t, 1)

	fu.emit(stt.Event{Type: stt.EventError, Err: &stt.ErrorEvent{
		Err:      fmt.Errorf("gave up after 5 reconnect attempts"),
		Terminal: true,
	}})

	msg := expectEvent(t, conn, "connectionError")
	var ev errorEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode connectionError: %v", err)
	}
	if !strings.Contains(ev.Message, "reconnect") {
		t.Errorf("Message = %q, want the upstream failure message", ev.Message)
	}
}

func TestStreamDisplacesSameUser(t *testing.T) {
	r, srv, _ := newStreamTestServer(t)

	first := dialStream(t, r, srv, "user-1")
	expectEvent(t, first, "connection")

	second := dialStream(t, r, srv, "user-1")
	expectEvent(t, second, "connection")

	// The older stream is torn down once the newer one registers.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	if got := r.sessions.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
}

func TestStreamRejectsWhileDraining(t *testing.T) {
	r, srv, _ := newStreamTestServer(t)
	r.sessions.StartDraining()

	conn := dialStream(t, r, srv, "user-1")
	msg := expectEvent(t, conn, "connectionError")
	var ev errorEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode connectionError: %v", err)
	}
	if ev.Message != "server is shutting down" {
		t.Errorf("Message = %q, want %q", ev.Message, "server is shutting down")
	}
}
