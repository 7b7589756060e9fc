package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/versestream/backend/internal/store"
)

const defaultSessionPageSize = 20

// handleListSessions returns the caller's archived sessions, newest first.
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())

	limit := defaultSessionPageSize
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, `{"error": "limit must be between 1 and 100"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	offset := 0
	if v := req.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error": "offset must be non-negative"}`, http.StatusBadRequest)
			return
		}
		offset = n
	}

	sessions, err := r.store.ListSessions(req.Context(), user.ID, limit, offset)
	if err != nil {
		r.logger.Printf("sessions: list failed for user %s: %v", user.ID, err)
		captureError(req, err, "sessions: list")
		http.Error(w, `{"error": "failed to list sessions"}`, http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession returns one archived session with its citations.
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	id := req.PathValue("id")

	session, references, err := r.store.GetSession(req.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
			return
		}
		r.logger.Printf("sessions: get %s failed: %v", id, err)
		captureError(req, err, "sessions: get")
		http.Error(w, `{"error": "failed to load session"}`, http.StatusInternalServerError)
		return
	}
	if session.UserID != user.ID {
		// Do not reveal that the session exists.
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":    session,
		"references": references,
	})
}
