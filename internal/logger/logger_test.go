package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	for _, level := range []string{"debug", "info", "warning", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			assert.NoError(t, Init(level))
		})
	}

	assert.Error(t, Init("loud"))
}

func TestWithLoggingHTTPMiddlewareKeepsResponse(t *testing.T) {
	require.NoError(t, Init("debug"))

	handler := WithLoggingHTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/kettle", nil))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.Equal(t, "short and stout", recorder.Body.String())
}
