package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/storymint/mint-pipeline/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: message})
}

// respondServiceError maps the domain error taxonomy onto HTTP.
// Validation and not-found cross the boundary with their message;
// everything else is a 500 with the detail kept in the logs.
func respondServiceError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := de.HTTPStatus()
		if status < http.StatusInternalServerError {
			respondError(w, status, de.Message)
			return
		}
	}
	respondError(w, http.StatusInternalServerError, "internal error")
}
