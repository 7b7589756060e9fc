package httpapi

import (
	"net/http"

	"github.com/versestream/backend/internal/scripture"
)

// handleListBooks returns the full reference table.
func (r *Router) handleListBooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"books": scripture.AllBooks()})
}

// handleSearchBooks returns books matching ?q= by name or alias.
func (r *Router) handleSearchBooks(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query().Get("q")
	if q == "" {
		http.Error(w, `{"error": "q parameter is required"}`, http.StatusBadRequest)
		return
	}
	books := scripture.SearchBooks(q)
	if books == nil {
		books = []*scripture.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}
