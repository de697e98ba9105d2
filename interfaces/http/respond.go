package http

import (
	"encoding/json"
	"net/http"

	apperrors "noesis-backend/pkg/errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps the shared error taxonomy onto HTTP statuses. The kind
// travels in the body so clients can branch without parsing messages.
func respondError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := http.StatusInternalServerError

	switch kind {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindValidationFailed:
		status = http.StatusBadRequest
	case apperrors.KindUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.KindCircuitOpen:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "30")
	case apperrors.KindCompensationFailed:
		// The plan failed and left residual state; the client must not
		// simply retry.
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, errorBody{Error: errorDetail{
		Kind:    string(kind),
		Message: err.Error(),
	}})
}
