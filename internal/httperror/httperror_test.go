package httperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/placeshare/internal/models"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "validation", err: models.ErrValidationFailed, code: http.StatusUnprocessableEntity},
		{name: "unauthenticated", err: models.ErrUnauthenticated, code: http.StatusForbidden},
		{name: "invalid credentials", err: models.ErrInvalidCredentials, code: http.StatusForbidden},
		{name: "forbidden", err: models.ErrForbidden, code: http.StatusUnauthorized},
		{name: "not found wrapped", err: fmt.Errorf("lookup: %w", models.ErrNotFound), code: http.StatusNotFound},
		{name: "conflict", err: models.ErrConflict, code: http.StatusUnprocessableEntity},
		{name: "address", err: models.ErrAddressNotFound, code: http.StatusUnprocessableEntity},
		{name: "rate limited", err: models.ErrTooManyRequests, code: http.StatusTooManyRequests},
		{name: "association", err: fmt.Errorf("%w: %w", models.ErrAssociationWriteFailed, errors.New("tx")), code: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("connection refused"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, FromError(tt.err).Code)
		})
	}
}

func TestFromErrorKeepsExplicitMessage(t *testing.T) {
	explicit := New("Could not find a place for the provided id.", http.StatusNotFound, models.ErrNotFound)

	got := FromError(fmt.Errorf("handler: %w", explicit))

	assert.Same(t, explicit, got)
	assert.True(t, errors.Is(got, models.ErrNotFound))
}

func TestWriteHidesInternalDetails(t *testing.T) {
	recorder := httptest.NewRecorder()

	Write(recorder, errors.New("pq: relation \"places\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var body models.MessageResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, defaultMessage, body.Message)
	assert.NotContains(t, recorder.Body.String(), "relation")
}

func TestAssociationFailureWinsOverCause(t *testing.T) {
	err := fmt.Errorf("%w: LinkingUser: %w", models.ErrAssociationWriteFailed, models.ErrNotFound)

	assert.Equal(t, http.StatusInternalServerError, FromError(err).Code)
}

func TestRephrase(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", models.ErrNotFound)

	rephrased := FromError(Rephrase(notFound, models.ErrNotFound, "Could not find a place for the provided id."))
	assert.Equal(t, http.StatusNotFound, rephrased.Code)
	assert.Equal(t, "Could not find a place for the provided id.", rephrased.Message)

	untouched := Rephrase(notFound, models.ErrForbidden, "You are not allowed to edit this place.")
	assert.Same(t, notFound, untouched)

	association := fmt.Errorf("%w: %w", models.ErrAssociationWriteFailed, models.ErrNotFound)
	assert.Equal(t, http.StatusInternalServerError, FromError(Rephrase(association, models.ErrNotFound, "gone")).Code)
}
