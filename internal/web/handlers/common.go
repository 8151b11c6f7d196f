package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/enroll"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFromError maps domain errors onto HTTP statuses. Anything
// unclassified is an internal error: the detail goes to the log, the client
// gets an opaque message.
func respondFromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recognizer.ErrDecode):
		respondError(w, http.StatusBadRequest, "image could not be decoded")
	case errors.Is(err, enroll.ErrTooFewVectors):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, recognizer.ErrNoFace):
		respondError(w, http.StatusNotFound, "no face detected in image")
	case errors.Is(err, database.ErrPersonNotFound):
		respondError(w, http.StatusNotFound, "person not found")
	case errors.Is(err, enroll.ErrNoAnchor):
		respondError(w, http.StatusPreconditionFailed, "no face detected in the first image")
	default:
		log.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBase64Image decodes a base64 image payload, accepting both standard
// and data-URI forms.
func decodeBase64Image(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, recognizer.ErrDecode
	}
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, recognizer.ErrDecode
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
