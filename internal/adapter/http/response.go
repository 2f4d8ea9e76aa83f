package http

import (
	"encoding/json"
	"net/http"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, message string, statusCode int, fieldErrors []domain.FieldError) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:  message,
		Errors: fieldErrors,
	})
}
