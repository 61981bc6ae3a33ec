package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/storefront/internal/auth"
)

var errNotFound = errors.New("not found")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the error taxonomy. Anything unrecognised is
// logged and reported as a bare 500.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	WriteJSON(w, status, body)
}

func classify(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, ErrorBody{"invalid_input", err.Error()}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusBadRequest, ErrorBody{"invalid_token", "sign-in link is not valid"}
	case errors.Is(err, auth.ErrExpired):
		return http.StatusBadRequest, ErrorBody{"token_expired", "sign-in link has expired"}
	case errors.Is(err, auth.ErrAlreadyUsed):
		return http.StatusBadRequest, ErrorBody{"token_already_used", "sign-in link has already been used"}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorBody{"invalid_credentials", "email or password is incorrect"}
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorBody{"unauthorized", "sign in required"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, ErrorBody{"forbidden", "admin access required"}
	case errors.Is(err, errNotFound):
		return http.StatusNotFound, ErrorBody{"not_found", err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{"internal", "internal error"}
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", auth.ErrInvalidInput)
	}
	return nil
}
