package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// statusFor maps an error from the service layer to an HTTP status and a
// client-safe message. Error text from storage or dependencies is never
// returned to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrPasswordMismatch):
		return http.StatusBadRequest, "passwords do not match"
	case errors.Is(err, common.ErrWeakPassword):
		return http.StatusBadRequest, "password is too short"
	case errors.Is(err, common.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid email"
	case errors.Is(err, common.ErrMissingField):
		return http.StatusBadRequest, "missing required field"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, "email already registered"
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, "invalid request"

	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, common.ErrResetTokenNotFound):
		return http.StatusNotFound, "invalid or expired link"
	case errors.Is(err, common.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	}

	return http.StatusInternalServerError, "internal server error"
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

var successResponse = messageResponse{Message: "success"}

type registerRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}
