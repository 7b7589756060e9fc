package llm

import "context"

// DetectedScripture is one citation the model found in a transcript. Verse
// and EndVerse are zero when the citation names only a chapter.
type DetectedScripture struct {
	Book         string `json:"book"`
	Chapter      int    `json:"chapter"`
	Verse        int    `json:"verse,omitempty"`
	EndVerse     int    `json:"endVerse,omitempty"`
	OriginalText string `json:"originalText"`
}

// Client defines the interface for LLM-backed transcript analysis.
type Client interface {
	// DetectScriptures finds scripture citations in one transcript segment.
	// An empty slice means the model found nothing.
	DetectScriptures(ctx context.Context, transcript string) ([]DetectedScripture, error)

	// DetectScripturesFromChunks runs detection over independent transcript
	// chunks in parallel and merges the results in chunk order, first
	// occurrence of each citation winning.
	DetectScripturesFromChunks(ctx context.Context, chunks []string) ([]DetectedScripture, error)

	// Summarize produces a short prose summary of a full session transcript.
	Summarize(ctx context.Context, transcript string) (string, error)
}
