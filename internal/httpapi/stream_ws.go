package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/versestream/backend/internal/eventlog"
	"github.com/versestream/backend/internal/llm"
	"github.com/versestream/backend/internal/notifications"
	"github.com/versestream/backend/internal/scripture"
	"github.com/versestream/backend/internal/store"
	"github.com/versestream/backend/internal/stt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Control messages the client sends as text frames. Audio normally arrives
// as binary frames; clients that cannot send binary use SendAudioBuffer with
// a base64 payload instead.
type clientMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// Server events, all sent as JSON text frames.
type connectionEvent struct {
	Type      string `json:"type"` // "connection"
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type sessionBeginEvent struct {
	Type              string    `json:"type"` // "SessionBegin"
	UpstreamSessionID string    `json:"upstreamSessionId"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

type turnEvent struct {
	Type       string                `json:"type"` // "Turn"
	Transcript string                `json:"transcript"`
	IsFinal    bool                  `json:"isFinal"`
	Formatted  bool                  `json:"formatted"`
	References []scripture.Reference `json:"scriptureReferences"`
}

type referencesEvent struct {
	Type       string                `json:"type"` // "References"
	References []scripture.Reference `json:"references"`
}

type summaryEvent struct {
	Type                 string                `json:"type"` // "Summary"
	Summary              string                `json:"summary,omitempty"`
	References           []scripture.Reference `json:"references"`
	AudioDurationSeconds float64               `json:"audioDurationSeconds"`
}

type stoppedEvent struct {
	Type            string `json:"type"` // "StreamingStopped"
	Message         string `json:"message"`
	FinalTranscript string `json:"finalTranscript,omitempty"`
}

type errorEvent struct {
	Type    string `json:"type"` // "connectionError"
	Message string `json:"message"`
}

// streamSession manages a single client's live transcription stream: the
// downstream WebSocket, the upstream provider session, citation detection
// state and the end-of-session archive.
type streamSession struct {
	sessionID string
	userID    string

	conn   *websocket.Conn
	connMu sync.Mutex

	upstreamMu sync.Mutex
	upstream   stt.Session

	detector        *scripture.Detector
	llmClient       llm.Client
	upstreamFactory func(ctx context.Context) (stt.Session, error)

	registry *SessionRegistry
	store    *store.Store
	eventLog *eventlog.Logger
	apns     *notifications.APNsClient
	discord  *notifications.Discord
	logger   *log.Logger
	cfg      RouterConfig

	// Citation state. A reference is delivered to the client at most once
	// per session, however many turns repeat it.
	refMu      sync.Mutex
	delivered  map[string]bool
	references []scripture.Reference
	finalTurns []string

	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	if r.cfg.AssemblyAIAPIKey == "" {
		r.logger.Printf("stream_ws: missing AssemblyAI API key")
		captureError(req, fmt.Errorf("streaming not configured: missing API key"), "stream_ws: configuration error")
		http.Error(w, "streaming not configured", http.StatusServiceUnavailable)
		return
	}

	// The browser WebSocket API cannot set headers, so the JWT rides in the
	// query string.
	user, err := r.authenticateToken(req.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stream_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	session := &streamSession{
		sessionID:       newSessionID(),
		userID:          user.ID,
		conn:            conn,
		detector:        scripture.NewDetector(),
		llmClient:       r.llmClient,
		upstreamFactory: r.upstreamFactory,
		registry:        r.sessions,
		store:           r.store,
		eventLog:        r.eventLog,
		apns:            r.apns,
		discord:         r.discord,
		logger:          r.logger,
		cfg:             r.cfg,
		delivered:       make(map[string]bool),
		startedAt:       nowUTC(),
		ctx:             ctx,
		cancel:          cancel,
	}

	displaced, ok := r.sessions.Register(session)
	if !ok {
		session.writeEvent(errorEvent{Type: "connectionError", Message: "server is shutting down"})
		cancel()
		conn.Close()
		return
	}
	if displaced != nil {
		r.logger.Printf("stream_ws: user %s opened a second stream, displacing session %s", user.ID, displaced.sessionID)
		displaced.shutdown()
	}

	session.writeEvent(connectionEvent{
		Type:      "connection",
		Message:   "Connected",
		SessionID: session.sessionID,
	})
	r.logger.Printf("stream_ws: session %s established for user %s", session.sessionID, user.ID)

	session.run()
}

func (s *streamSession) run() {
	defer s.cleanup()

	s.eventLog.LogAsync(s.sessionID, eventlog.EventSessionStarted, map[string]any{"user_id": s.userID})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("stream_ws: client closed session %s", s.sessionID)
			} else {
				s.logger.Printf("stream_ws: read error for session %s: %v", s.sessionID, err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := s.handleAudio(msg); err != nil {
				s.logger.Printf("stream_ws: audio error for session %s: %v", s.sessionID, err)
			}

		case websocket.TextMessage:
			var cm clientMessage
			if err := json.Unmarshal(msg, &cm); err != nil {
				s.logger.Printf("stream_ws: failed to parse control message: %v", err)
				continue
			}
			switch cm.Type {
			case "StartStreaming":
				if err := s.handleStart(); err != nil {
					s.logger.Printf("stream_ws: start error for session %s: %v", s.sessionID, err)
					s.writeEvent(errorEvent{Type: "connectionError", Message: "failed to start transcription"})
					return
				}
			case "StopStreaming":
				s.handleStop()
			case "SendAudioBuffer":
				audio, err := base64.StdEncoding.DecodeString(cm.Payload)
				if err != nil {
					s.logger.Printf("stream_ws: invalid audio payload for session %s: %v", s.sessionID, err)
					continue
				}
				if err := s.handleAudio(audio); err != nil {
					s.logger.Printf("stream_ws: audio error for session %s: %v", s.sessionID, err)
				}
			default:
				s.logger.Printf("stream_ws: unknown control message %q", cm.Type)
			}
		}
	}
}

// handleStart opens the upstream provider session and begins pumping its
// events to the client. A second StartStreaming on a live session is ignored.
func (s *streamSession) handleStart() error {
	s.upstreamMu.Lock()
	defer s.upstreamMu.Unlock()

	if s.upstream != nil {
		s.logger.Printf("stream_ws: session %s already streaming", s.sessionID)
		return nil
	}

	upstream, err := s.upstreamFactory(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to open upstream session: %w", err)
	}
	s.upstream = upstream

	go s.pumpUpstreamEvents(upstream)
	return nil
}

// handleStop asks the upstream session to terminate. The final Summary and
// StreamingStopped events are driven by the provider's Termination message.
func (s *streamSession) handleStop() {
	s.upstreamMu.Lock()
	upstream := s.upstream
	s.upstreamMu.Unlock()

	if upstream == nil {
		// Nothing was ever started; acknowledge the stop directly.
		s.writeEvent(stoppedEvent{Type: "StreamingStopped", Message: "Streaming stopped"})
		return
	}
	if err := upstream.Close(); err != nil {
		s.logger.Printf("stream_ws: upstream close error for session %s: %v", s.sessionID, err)
	}
}

// handleAudio forwards one binary frame to the provider. Audio received
// before StartStreaming is dropped.
func (s *streamSession) handleAudio(audio []byte) error {
	s.upstreamMu.Lock()
	upstream := s.upstream
	s.upstreamMu.Unlock()

	if upstream == nil {
		return nil
	}
	return upstream.SendAudio(s.ctx, audio)
}

// pumpUpstreamEvents relays provider events to the client, enriching turns
// with detected citations.
func (s *streamSession) pumpUpstreamEvents(upstream stt.Session) {
	for ev := range upstream.Events() {
		switch ev.Type {
		case stt.EventBegin:
			s.writeEvent(sessionBeginEvent{
				Type:              "SessionBegin",
				UpstreamSessionID: ev.Begin.SessionID,
				ExpiresAt:         ev.Begin.ExpiresAt,
			})
			s.eventLog.LogAsync(s.sessionID, eventlog.EventUpstreamConnected, map[string]any{
				"upstream_session_id": ev.Begin.SessionID,
			})

		case stt.EventReconnect:
			s.logger.Printf("stream_ws: upstream reconnect %d/%d for session %s",
				ev.Reconnect.Attempt, ev.Reconnect.MaxAttempts, s.sessionID)
			s.eventLog.LogAsync(s.sessionID, eventlog.EventReconnectAttempt, map[string]any{
				"attempt":      ev.Reconnect.Attempt,
				"max_attempts": ev.Reconnect.MaxAttempts,
			})

		case stt.EventTurn:
			s.handleTurn(ev.Turn)

		case stt.EventTermination:
			s.finish(ev.Termination)
			return

		case stt.EventError:
			if ev.Err.Terminal {
				s.logger.Printf("stream_ws: upstream lost for session %s: %v", s.sessionID, ev.Err.Err)
				s.writeEvent(errorEvent{Type: "connectionError", Message: ev.Err.Err.Error()})
				s.eventLog.LogAsync(s.sessionID, eventlog.EventConnectionFailed, map[string]any{"error": ev.Err.Err.Error()})
				s.discord.NotifyStreamFailure(context.Background(), s.userID, s.sessionID, ev.Err.Err)
				s.cancel()
				return
			}
			s.logger.Printf("stream_ws: upstream error for session %s: %v", s.sessionID, ev.Err.Err)
		}
	}
}

// handleTurn relays a transcript segment. Citation detection runs only on
// finalized turns: partials are truncated mid-word and would resolve to
// wrong references, so they are forwarded with an empty list.
func (s *streamSession) handleTurn(turn *stt.TurnEvent) {
	refs := []scripture.Reference{}
	if turn.IsFinal {
		refs = append(refs, s.claimNew(s.detector.Detect(turn.Transcript))...)
	}

	s.writeEvent(turnEvent{
		Type:       "Turn",
		Transcript: turn.Transcript,
		IsFinal:    turn.IsFinal,
		Formatted:  turn.Formatted,
		References: refs,
	})

	if !turn.IsFinal || strings.TrimSpace(turn.Transcript) == "" {
		return
	}

	s.refMu.Lock()
	s.finalTurns = append(s.finalTurns, turn.Transcript)
	s.refMu.Unlock()

	s.eventLog.LogAsync(s.sessionID, eventlog.EventTurnFinalized, map[string]any{
		"transcript": turn.Transcript,
		"references": len(refs),
	})
	if len(refs) > 0 {
		s.eventLog.LogAsync(s.sessionID, eventlog.EventReferencesDetected, map[string]any{
			"source":     "regex",
			"references": len(refs),
		})
	}

	if s.llmClient != nil && s.cfg.LLMDetectionEnabled {
		go s.llmDetect(turn.Transcript)
	}
}

// llmDetect runs the second-pass model detection over a finalized turn. The
// result is discarded when the session ended while the call was in flight.
func (s *streamSession) llmDetect(transcript string) {
	found, err := s.llmClient.DetectScriptures(s.ctx, transcript)
	if err != nil {
		s.logger.Printf("stream_ws: llm detection failed for session %s: %v", s.sessionID, err)
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	var refs []scripture.Reference
	for _, d := range found {
		ref, ok := s.detector.Resolve(formatCitation(d))
		if !ok {
			continue
		}
		refs = append(refs, ref)
	}
	refs = s.claimNew(refs)
	if len(refs) == 0 {
		return
	}

	s.writeEvent(referencesEvent{Type: "References", References: refs})
	s.eventLog.LogAsync(s.sessionID, eventlog.EventReferencesDetected, map[string]any{"source": "llm", "references": len(refs)})
}

// formatCitation renders a model detection as citation text the resolver
// understands.
func formatCitation(d llm.DetectedScripture) string {
	switch {
	case d.Verse > 0 && d.EndVerse > 0:
		return fmt.Sprintf("%s %d:%d-%d", d.Book, d.Chapter, d.Verse, d.EndVerse)
	case d.Verse > 0:
		return fmt.Sprintf("%s %d:%d", d.Book, d.Chapter, d.Verse)
	default:
		return fmt.Sprintf("%s %d", d.Book, d.Chapter)
	}
}

// claimNew filters out references already delivered this session and records
// the rest, preserving first-occurrence order.
func (s *streamSession) claimNew(refs []scripture.Reference) []scripture.Reference {
	if len(refs) == 0 {
		return nil
	}
	s.refMu.Lock()
	defer s.refMu.Unlock()

	var out []scripture.Reference
	for _, ref := range refs {
		key := ref.Key()
		if s.delivered[key] {
			continue
		}
		s.delivered[key] = true
		s.references = append(s.references, ref)
		out = append(out, ref)
	}
	return out
}

// finish wraps up a cleanly terminated session: summary, archive, push.
func (s *streamSession) finish(term *stt.TerminationEvent) {
	s.refMu.Lock()
	transcript := strings.Join(s.finalTurns, "\n")
	references := make([]scripture.Reference, len(s.references))
	copy(references, s.references)
	s.refMu.Unlock()

	var summary string
	if s.llmClient != nil && transcript != "" {
		var err error
		summary, err = s.llmClient.Summarize(s.ctx, transcript)
		if err != nil {
			s.logger.Printf("stream_ws: summary failed for session %s: %v", s.sessionID, err)
		}
	}

	s.writeEvent(summaryEvent{
		Type:                 "Summary",
		Summary:              summary,
		References:           references,
		AudioDurationSeconds: term.AudioDuration,
	})
	s.writeEvent(stoppedEvent{
		Type:            "StreamingStopped",
		Message:         "Streaming stopped",
		FinalTranscript: transcript,
	})

	s.archive(transcript, summary, references, term)
	s.notifySummary(summary, len(references))

	s.eventLog.LogAsync(s.sessionID, eventlog.EventSessionEnded, map[string]any{
		"audio_seconds": term.AudioDuration,
		"references":    len(references),
	})
}

// archive persists the finished session and its citations.
func (s *streamSession) archive(transcript, summary string, references []scripture.Reference, term *stt.TerminationEvent) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := store.SessionRecord{
		ID:           s.sessionID,
		UserID:       s.userID,
		StartedAt:    s.startedAt,
		EndedAt:      nowUTC(),
		AudioSeconds: term.AudioDuration,
		Transcript:   transcript,
		Summary:      summary,
	}
	if err := s.store.InsertSession(ctx, rec); err != nil {
		s.logger.Printf("stream_ws: failed to archive session %s: %v", s.sessionID, err)
		captureErr(err, "stream_ws: archive session")
		return
	}
	if err := s.store.InsertReferences(ctx, s.sessionID, references); err != nil {
		s.logger.Printf("stream_ws: failed to archive references for session %s: %v", s.sessionID, err)
		captureErr(err, "stream_ws: archive references")
	}
}

// notifySummary pushes the session recap to the user's registered devices.
func (s *streamSession) notifySummary(summary string, referenceCount int) {
	if s.apns == nil || s.store == nil || summary == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tokens, err := s.store.GetUserPushTokens(ctx, s.userID)
	if err != nil {
		s.logger.Printf("stream_ws: failed to load push tokens for user %s: %v", s.userID, err)
		return
	}
	for _, tok := range tokens {
		if err := s.apns.SendSummaryNotification(tok.Token, notifications.SummaryNotification{
			SessionID:      s.sessionID,
			Summary:        summary,
			ReferenceCount: referenceCount,
		}); err != nil {
			s.logger.Printf("stream_ws: push to device failed: %v", err)
		}
	}
}

// writeEvent sends one JSON event to the client. Writers from the read loop,
// the upstream pump and async detection are serialized by connMu.
func (s *streamSession) writeEvent(v any) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.Printf("stream_ws: write error for session %s: %v", s.sessionID, err)
	}
}

// shutdown tears the session down from outside its own read loop, used when
// a newer stream for the same user displaces it.
func (s *streamSession) shutdown() {
	s.cancel()
	s.upstreamMu.Lock()
	upstream := s.upstream
	s.upstreamMu.Unlock()
	if upstream != nil {
		_ = upstream.Close()
	}
	s.conn.Close()
}

func (s *streamSession) cleanup() {
	s.cancel()

	s.upstreamMu.Lock()
	upstream := s.upstream
	s.upstream = nil
	s.upstreamMu.Unlock()
	if upstream != nil {
		_ = upstream.Close()
	}

	s.registry.Remove(s)
	s.conn.Close()
	s.logger.Printf("stream_ws: session %s closed", s.sessionID)
}
