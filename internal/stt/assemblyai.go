package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	assemblyTokenURL  = "https://streaming.assemblyai.com/v3/token"
	assemblyStreamURL = "wss://streaming.assemblyai.com/v3/ws"

	// Temporary token lifetime and the hard cap on a single session.
	tokenExpirySeconds        = 600
	maxSessionDurationSeconds = 10800
)

// AssemblyAIConfig holds configuration for an AssemblyAI streaming session.
type AssemblyAIConfig struct {
	APIKey           string
	TokenURL         string        // defaults to the production token endpoint
	StreamURL        string        // defaults to the production streaming endpoint
	SampleRate       int           // e.g., 16000 for PCM16 microphone audio
	Encoding         string        // e.g., "pcm_s16le"
	FormatTurns      bool          // request punctuated, cased transcripts
	WordBoost        []string      // vocabulary bias terms
	ConnectTimeout   time.Duration // handshake timeout, default 10s
	ReconnectDelay   time.Duration // pause between reconnect attempts, default 2s
	MaxReconnects    int           // attempts before giving up, default 5
	TerminateTimeout time.Duration // wait for the final Termination summary on Close, default 3s
	HTTPClient       *http.Client  // used for token fetches
	Logger           *log.Logger
}

// AssemblyAISession implements Session against AssemblyAI's v3 streaming API.
// A dropped upstream connection is re-established transparently: audio sent
// while reconnecting is discarded, and only after the retry budget is spent
// does the session report a single terminal error.
type AssemblyAISession struct {
	cfg    AssemblyAIConfig
	logger *log.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	open          bool
	stopRequested bool

	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	eventsOnce sync.Once
	wg         sync.WaitGroup
}

// NewAssemblyAISession fetches a temporary streaming token, opens the
// WebSocket session and starts reading events.
func NewAssemblyAISession(ctx context.Context, cfg AssemblyAIConfig) (*AssemblyAISession, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assemblyai: api key is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = assemblyTokenURL
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = assemblyStreamURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "pcm_s16le"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.TerminateTimeout == 0 {
		cfg.TerminateTimeout = 3 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.ConnectTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &AssemblyAISession{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.open = true

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// connect fetches a fresh token and dials the streaming endpoint. Tokens are
// single-use, so every reconnect goes through here.
func (s *AssemblyAISession) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := s.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sample_rate", fmt.Sprintf("%d", s.cfg.SampleRate))
	q.Set("encoding", s.cfg.Encoding)
	q.Set("format_turns", fmt.Sprintf("%t", s.cfg.FormatTurns))
	q.Set("token", token)
	if len(s.cfg.WordBoost) > 0 {
		boost, err := json.Marshal(s.cfg.WordBoost)
		if err != nil {
			return nil, fmt.Errorf("assemblyai: encode word boost: %w", err)
		}
		q.Set("word_boost", string(boost))
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.StreamURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}
	return conn, nil
}

// fetchToken exchanges the API key for a short-lived streaming token.
func (s *AssemblyAISession) fetchToken(ctx context.Context) (string, error) {
	u := fmt.Sprintf("%s?expires_in_seconds=%d&max_session_duration_seconds=%d",
		s.cfg.TokenURL, tokenExpirySeconds, maxSessionDurationSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("assemblyai: build token request: %w", err)
	}
	req.Header.Set("Authorization", s.cfg.APIKey)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("assemblyai: token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("assemblyai: decode token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("assemblyai: token endpoint returned empty token")
	}
	return out.Token, nil
}

// SendAudio forwards one chunk of raw audio. Chunks are silently dropped
// while the session is reconnecting or closing.
func (s *AssemblyAISession) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || s.stopRequested {
		return nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("assemblyai: send audio: %w", err)
	}
	return nil
}

// Events returns the session's event stream.
func (s *AssemblyAISession) Events() <-chan Event {
	return s.events
}

// Close asks the provider to terminate and waits up to TerminateTimeout for
// its final Termination summary before tearing the transport down.
func (s *AssemblyAISession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested = true
		conn := s.conn
		open := s.open
		if conn != nil && open {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Terminate"}`))
		}
		s.mu.Unlock()

		if conn != nil && open {
			finished := make(chan struct{})
			go func() {
				s.wg.Wait()
				close(finished)
			}()
			select {
			case <-finished:
			case <-time.After(s.cfg.TerminateTimeout):
			}
		}

		close(s.done)
		if conn != nil {
			err = conn.Close()
		}

		s.wg.Wait()
		s.eventsOnce.Do(func() { close(s.events) })
	})
	return err
}

// assemblyMessage is the superset of fields across the v3 message types.
type assemblyMessage struct {
	Type string `json:"type"`

	// Begin
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`

	// Turn
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`

	// Termination
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`

	// Error
	Error string `json:"error"`
}

// emit delivers an event unless the session is shutting down.
func (s *AssemblyAISession) emit(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// readLoop reads provider messages, demultiplexes them into events and
// drives reconnection when the transport drops.
func (s *AssemblyAISession) readLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if !s.reconnect(err) {
				return
			}
			continue
		}

		var m assemblyMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			s.logger.Printf("assemblyai: unparseable message: %v", err)
			continue
		}

		switch m.Type {
		case "Begin":
			s.emit(Event{Type: EventBegin, Begin: &BeginEvent{
				SessionID: m.ID,
				ExpiresAt: time.Unix(m.ExpiresAt, 0),
			}})
		case "Turn":
			s.emit(Event{Type: EventTurn, Turn: &TurnEvent{
				Transcript: m.Transcript,
				IsFinal:    m.EndOfTurn,
				Formatted:  m.TurnIsFormatted,
			}})
		case "Termination":
			s.emit(Event{Type: EventTermination, Termination: &TerminationEvent{
				AudioDuration:   m.AudioDurationSeconds,
				SessionDuration: m.SessionDurationSeconds,
			}})
			s.mu.Lock()
			s.open = false
			s.mu.Unlock()
			s.eventsOnce.Do(func() { close(s.events) })
			return
		case "Error", "error":
			s.emit(Event{Type: EventError, Err: &ErrorEvent{
				Err: fmt.Errorf("assemblyai: %s", m.Error),
			}})
		default:
			s.logger.Printf("assemblyai: unhandled message type %q", m.Type)
		}
	}
}

// reconnect tries to re-establish the session after a transport failure.
// It reports whether reading should resume. On giving up it emits a single
// terminal error and closes the event stream.
func (s *AssemblyAISession) reconnect(cause error) bool {
	s.mu.Lock()
	s.open = false
	stopped := s.stopRequested
	s.mu.Unlock()
	if stopped {
		return false
	}

	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		select {
		case <-s.done:
			return false
		case <-time.After(s.cfg.ReconnectDelay):
		}

		s.logger.Printf("assemblyai: reconnect attempt %d/%d after: %v", attempt, s.cfg.MaxReconnects, cause)
		s.emit(Event{Type: EventReconnect, Reconnect: &ReconnectEvent{
			Attempt:     attempt,
			MaxAttempts: s.cfg.MaxReconnects,
		}})

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		conn, err := s.connect(ctx)
		cancel()
		if err != nil {
			s.logger.Printf("assemblyai: reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		s.mu.Lock()
		if s.stopRequested {
			s.mu.Unlock()
			conn.Close()
			return false
		}
		s.conn = conn
		s.open = true
		s.mu.Unlock()
		return true
	}

	s.emit(Event{Type: EventError, Err: &ErrorEvent{
		Err:      fmt.Errorf("assemblyai: connection lost after %d reconnect attempts: %w", s.cfg.MaxReconnects, cause),
		Terminal: true,
	}})
	s.eventsOnce.Do(func() { close(s.events) })
	return false
}
