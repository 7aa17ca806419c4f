package handlers

import (
	"encoding/json"
	"net/http"
)

// errorResponse mirrors the error body shape used across the API.
type errorResponse struct {
	Message    string `json:"message"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Message:    message,
		Error:      http.StatusText(status),
		StatusCode: status,
	})
}
