package handlers

import (
	"context"
	"dream-san/internal/auth"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/dream"
	"dream-san/internal/service/ledger"
	"dream-san/internal/service/session"
	"encoding/json"
	"errors"
	"net/http"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// sendServiceError maps domain errors to HTTP statuses
func sendServiceError(w http.ResponseWriter, err error) {
	status, message := statusForError(err)
	sendError(w, status, message, err)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, db.ErrInsufficientTokens):
		return http.StatusPaymentRequired, "Insufficient tokens"
	case errors.Is(err, db.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, db.ErrSessionNotFound):
		return http.StatusNotFound, "Dream session not found"
	case errors.Is(err, db.ErrSessionForbidden):
		return http.StatusForbidden, "Unauthorized"
	case errors.Is(err, db.ErrConcurrentModification):
		return http.StatusConflict, "Dream session changed, please retry"
	case errors.Is(err, db.ErrEmailTaken):
		return http.StatusConflict, "Email already registered"
	case errors.Is(err, db.ErrIdentityTaken):
		return http.StatusConflict, "Identity already linked to another account"
	case errors.Is(err, db.ErrAlreadyApplied):
		return http.StatusConflict, "Already processed"
	case errors.Is(err, db.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, db.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Storage unavailable"
	case errors.Is(err, dream.ErrEmptyPrompt),
		errors.Is(err, dream.ErrInvalidModel),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, session.ErrEmptyTurn):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Interpreter timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// claimsFromRequest returns the session claims set by the auth middleware
func claimsFromRequest(r *http.Request) *auth.Claims {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return &auth.Claims{}
	}
	return claims
}
