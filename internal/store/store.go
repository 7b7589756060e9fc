package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versestream/backend/internal/scripture"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SessionRecord is one archived streaming session.
type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	AudioSeconds float64   `json:"audio_seconds"`
	Transcript   string    `json:"transcript,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertSession archives a finished session.
func (s *Store) InsertSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, started_at, ended_at, audio_seconds, transcript, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.StartedAt, rec.EndedAt, rec.AudioSeconds, rec.Transcript, rec.Summary)
	return err
}

// InsertReferences archives the citations detected during a session, in
// delivery order.
func (s *Store) InsertReferences(ctx context.Context, sessionID string, refs []scripture.Reference) error {
	if len(refs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, ref := range refs {
		batch.Queue(`
			INSERT INTO session_references (session_id, position, book, chapter, verse, end_verse, end_chapter, url, original_text)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, sessionID, i, ref.Book, ref.Chapter, ref.Verse, ref.EndVerse, ref.EndChapter, ref.URL, ref.OriginalText)
	}
	return s.db.SendBatch(ctx, batch).Close()
}

// ListSessions returns a user's archived sessions, newest first. Transcripts
// are omitted from listings to keep responses small.
func (s *Store) ListSessions(ctx context.Context, userID string, limit, offset int) ([]SessionRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, started_at, ended_at, audio_seconds, summary, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.StartedAt, &rec.EndedAt, &rec.AudioSeconds, &rec.Summary, &rec.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// GetSession returns one archived session with its citations in delivery
// order. Returns ErrNotFound for an unknown id.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, []scripture.Reference, error) {
	var rec SessionRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, started_at, ended_at, audio_seconds, transcript, summary, created_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.UserID, &rec.StartedAt, &rec.EndedAt, &rec.AudioSeconds, &rec.Transcript, &rec.Summary, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return SessionRecord{}, nil, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT book, chapter, verse, end_verse, end_chapter, url, original_text
		FROM session_references
		WHERE session_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return SessionRecord{}, nil, err
	}
	defer rows.Close()

	var refs []scripture.Reference
	for rows.Next() {
		var ref scripture.Reference
		if err := rows.Scan(&ref.Book, &ref.Chapter, &ref.Verse, &ref.EndVerse, &ref.EndChapter, &ref.URL, &ref.OriginalText); err != nil {
			return SessionRecord{}, nil, err
		}
		refs = append(refs, ref)
	}
	return rec, refs, rows.Err()
}
