package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const maxBodyBytes = int64(1 << 20)

// writeJSON encodes v as JSON with the provided status code and a JSON content-type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError returns a plain-text HTTP error. Used for malformed requests.
func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeAPIError answers with a machine-readable error code the client maps
// to a notification.
func writeAPIError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: code, Message: msg})
}

// writeFailure is the answer for a failed write: the cause is logged by the
// caller and never sent to the client.
func writeFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]bool{"ok": false})
}

// pathVar returns the mux path var value (or empty string if missing).
func pathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// decodeJSON decodes a JSON request body capped at maxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

// requestOrigin prefers the Origin header, as the browser sees the app, and
// falls back to the configured public origin.
func requestOrigin(r *http.Request, fallback string) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); o != "" && o != "null" {
		return strings.TrimRight(o, "/")
	}
	return strings.TrimRight(fallback, "/")
}
