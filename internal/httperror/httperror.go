// Package httperror turns domain errors into the `{message}` JSON envelope
// returned by every failing endpoint.
package httperror

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
)

const defaultMessage = "An unknown error occurred!"

// HTTPError is an error with a client facing message and a status code.
// Err is kept for logging only and never leaves the process.
type HTTPError struct {
	Message string
	Code    int
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// New wraps err with the message and the status code shown to the client.
func New(message string, code int, err error) *HTTPError {
	return &HTTPError{
		Message: message,
		Code:    code,
		Err:     err,
	}
}

var defaults = []struct {
	target  error
	code    int
	message string
}{
	{models.ErrAssociationWriteFailed, http.StatusInternalServerError, "Saving changes failed, please try again."},
	{models.ErrValidationFailed, http.StatusUnprocessableEntity, "Invalid inputs passed, please check your data."},
	{models.ErrUnauthenticated, http.StatusForbidden, "Authentication failed!"},
	{models.ErrInvalidCredentials, http.StatusForbidden, "Invalid credentials, could not log you in."},
	{models.ErrForbidden, http.StatusUnauthorized, "You are not allowed to modify this place."},
	{models.ErrNotFound, http.StatusNotFound, "Could not find the requested resource."},
	{models.ErrConflict, http.StatusUnprocessableEntity, "User exists already, please login instead."},
	{models.ErrAddressNotFound, http.StatusUnprocessableEntity, "Could not find location for the specified address."},
	{models.ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests, please try again later."},
}

// FromError maps err onto the error taxonomy. An *HTTPError anywhere in the
// chain wins; unknown errors become a generic 500. A failed association
// write stays a 500 even when its cause is one of the other sentinels.
func FromError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	for _, d := range defaults {
		if errors.Is(err, d.target) {
			return New(d.message, d.code, err)
		}
	}

	return New(defaultMessage, http.StatusInternalServerError, err)
}

// Rephrase swaps the client message of err when it matches target and keeps
// the status code target maps to.
func Rephrase(err, target error, message string) error {
	if !errors.Is(err, target) {
		return err
	}
	mapped := FromError(target)
	if FromError(err).Code != mapped.Code {
		return err
	}

	return New(message, mapped.Code, err)
}

// Write sends err to the client as `{"message": ...}` with the mapped status.
func Write(response http.ResponseWriter, err error) {
	httpErr := FromError(err)

	if httpErr.Code >= http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "code", httpErr.Code, zap.Error(err))
	} else {
		logger.Log.Debugw("request rejected", "code", httpErr.Code, zap.Error(err))
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(httpErr.Code)
	if err := json.NewEncoder(response).Encode(models.MessageResponse{Message: httpErr.Message}); err != nil {
		logger.Log.Debugln("error encoding error response", zap.Error(err))
	}
}
