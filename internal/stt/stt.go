package stt

import (
	"context"
	"time"
)

// EventType discriminates the streaming events a provider session emits.
type EventType int

const (
	// EventBegin is sent once when the provider session opens (and again
	// after a successful reconnect).
	EventBegin EventType = iota
	// EventTurn carries a transcript segment. Final turns close a spoken
	// utterance; non-final turns are running partials.
	EventTurn
	// EventTermination is sent when the provider closes the session cleanly.
	EventTermination
	// EventError carries a provider or transport failure. Terminal errors
	// mean the session is dead and no further events will follow.
	EventError
	// EventReconnect announces one reconnect attempt after a dropped
	// transport, before the provider is redialed.
	EventReconnect
)

// Event is a tagged union of everything a streaming session can emit.
// Exactly one of the pointer fields matching Type is non-nil.
type Event struct {
	Type        EventType
	Begin       *BeginEvent
	Turn        *TurnEvent
	Termination *TerminationEvent
	Err         *ErrorEvent
	Reconnect   *ReconnectEvent
}

// BeginEvent announces a newly opened provider session.
type BeginEvent struct {
	SessionID string
	ExpiresAt time.Time
}

// TurnEvent is one transcript segment.
type TurnEvent struct {
	Transcript string
	// IsFinal marks the end of a spoken turn; the transcript will not be
	// revised further.
	IsFinal bool
	// Formatted reports whether the provider applied punctuation and casing.
	Formatted bool
}

// TerminationEvent reports session totals at clean shutdown.
type TerminationEvent struct {
	AudioDuration   float64 // seconds of audio processed
	SessionDuration float64 // seconds the session was open
}

// ReconnectEvent reports one attempt to re-establish a dropped transport.
type ReconnectEvent struct {
	Attempt     int
	MaxAttempts int
}

// ErrorEvent carries a session failure.
type ErrorEvent struct {
	Err error
	// Terminal means the session gave up, including after exhausting
	// reconnect attempts. A terminal error is emitted at most once.
	Terminal bool
}

// Session is a live streaming speech-to-text session.
type Session interface {
	// SendAudio forwards a chunk of raw audio to the provider. Chunks sent
	// while the session is reconnecting or closed are silently dropped.
	SendAudio(ctx context.Context, audio []byte) error

	// Events returns the session's event stream. The channel is closed
	// after Close returns or after a terminal error.
	Events() <-chan Event

	// Close terminates the session and releases the connection.
	Close() error
}
