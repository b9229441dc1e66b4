package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adminsuite/authkit"
)

// Error codes exposed to API clients. The set is deliberately coarse so
// failure responses reveal as little as possible.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeUserDeactivated    = "USER_DEACTIVATED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// respondServiceError maps the service's sentinel errors onto status codes
// and client-facing codes. Unknown errors collapse to a 500 with no
// internals attached.
func respondServiceError(w http.ResponseWriter, err error) {
	var locked *authkit.LockedError
	if errors.As(err, &locked) {
		respondLocked(w, locked)
		return
	}

	var vErr *authkit.ValidationError
	if errors.As(err, &vErr) {
		respondError(w, http.StatusBadRequest, CodeValidation, vErr.Message, map[string]any{
			"field": vErr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, authkit.ErrValidation):
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid request", nil)
	case errors.Is(err, authkit.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password", nil)
	case errors.Is(err, authkit.ErrAccountLocked):
		respondError(w, http.StatusLocked, CodeAccountLocked, "account temporarily locked", nil)
	case errors.Is(err, authkit.ErrAccountDeactivated):
		respondError(w, http.StatusForbidden, CodeUserDeactivated, "account is deactivated", nil)
	case errors.Is(err, authkit.ErrAccountExists):
		respondError(w, http.StatusConflict, CodeAlreadyExists, "an account with this email already exists", nil)
	case errors.Is(err, authkit.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, CodeTokenExpired, "token expired", nil)
	case errors.Is(err, authkit.ErrTokenInvalid), errors.Is(err, authkit.ErrRefreshReuse):
		respondError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid token", nil)
	case errors.Is(err, authkit.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "session not found", nil)
	case errors.Is(err, authkit.ErrResetTokenInvalid):
		respondError(w, http.StatusBadRequest, CodeInvalidToken, "reset token is invalid or expired", nil)
	case errors.Is(err, authkit.ErrVerificationInvalid):
		respondError(w, http.StatusBadRequest, CodeInvalidToken, "verification token is invalid or expired", nil)
	case errors.Is(err, authkit.ErrUserNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "user not found", nil)
	default:
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func respondLocked(w http.ResponseWriter, locked *authkit.LockedError) {
	respondError(w, http.StatusLocked, CodeAccountLocked, "account temporarily locked", map[string]any{
		"lockedUntil":        locked.Until,
		"minutesUntilUnlock": locked.MinutesRemaining(),
	})
}
