package gzippedhttp

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWith(contentType string, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func TestGzipJSONResponse(t *testing.T) {
	tests := []struct {
		name        string
		accept      string
		contentType string
		status      int
		compressed  bool
	}{
		{name: "json for gzip client", accept: "gzip, deflate", contentType: "application/json", status: http.StatusOK, compressed: true},
		{name: "client without gzip", accept: "", contentType: "application/json", status: http.StatusOK, compressed: false},
		{name: "image stays raw", accept: "gzip", contentType: "image/png", status: http.StatusOK, compressed: false},
		{name: "errors stay raw", accept: "gzip", contentType: "application/json", status: http.StatusNotFound, compressed: false},
	}

	const body = `{"places":[{"title":"Empire State Building"}]}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set("Accept-Encoding", tt.accept)
			recorder := httptest.NewRecorder()

			GzipJSONResponse(serveWith(tt.contentType, tt.status, body)).ServeHTTP(recorder, request)

			assert.Equal(t, tt.status, recorder.Code)
			if tt.compressed {
				assert.Equal(t, "gzip", recorder.Header().Get("Content-Encoding"))
				assert.Equal(t, body, gunzip(t, recorder.Body.Bytes()))
			} else {
				assert.Empty(t, recorder.Header().Get("Content-Encoding"))
				assert.Equal(t, body, recorder.Body.String())
			}
		})
	}
}

func TestUngzipRequest(t *testing.T) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(`{"email":"a@x.io"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var received string
	h := UngzipRequest(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received = string(data)
	}))

	request := httptest.NewRequest(http.MethodPost, "/", &compressed)
	request.Header.Set("Content-Encoding", "gzip")
	h.ServeHTTP(httptest.NewRecorder(), request)
	assert.Equal(t, `{"email":"a@x.io"}`, received)

	broken := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("plain"))
	broken.Header.Set("Content-Encoding", "gzip")
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, broken)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
