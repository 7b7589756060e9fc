package httpapi

import (
	"encoding/json"
	"net/http"
)

// handlePushRegister stores a device push token for the caller.
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())

	var body struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}
	if body.Platform == "" {
		body.Platform = "ios"
	}

	if err := r.store.RegisterPushToken(req.Context(), user.ID, body.Token, body.Platform); err != nil {
		r.logger.Printf("push: register failed for user %s: %v", user.ID, err)
		captureError(req, err, "push: register token")
		http.Error(w, `{"error": "failed to register token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handlePushUnregister removes a device push token.
func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.UnregisterPushToken(req.Context(), body.Token); err != nil {
		r.logger.Printf("push: unregister failed: %v", err)
		captureError(req, err, "push: unregister token")
		http.Error(w, `{"error": "failed to unregister token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
