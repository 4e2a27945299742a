package ipchecker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	checker, err := New("")
	require.NoError(t, err)
	assert.True(t, checker.IsTrustedSubnetEmpty())
	assert.False(t, checker.Check(net.ParseIP("127.0.0.1")))

	_, err = New("10.0.0.0/99")
	assert.Error(t, err)

	_, err = New("", WithTrustedProxies("not-a-cidr"))
	assert.Error(t, err)
}

func TestGetClientIP(t *testing.T) {
	direct, err := New("10.0.0.0/8")
	require.NoError(t, err)
	proxied, err := New("10.0.0.0/8", WithTrustedProxies("172.16.0.0/12", " 127.0.0.1/32"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		checker    *IPChecker
		realIP     string
		forwarded  string
		remoteAddr string
		expected   string
	}{
		{
			name:       "headers from a direct client are ignored",
			checker:    direct,
			realIP:     "10.1.1.1",
			forwarded:  "10.2.2.2",
			remoteAddr: "203.0.113.7:1234",
			expected:   "203.0.113.7",
		},
		{
			name:       "x-real-ip behind a trusted proxy",
			checker:    proxied,
			realIP:     "10.1.1.1",
			forwarded:  "192.168.0.1",
			remoteAddr: "172.16.0.5:80",
			expected:   "10.1.1.1",
		},
		{
			name:       "rightmost untrusted forwarded hop",
			checker:    proxied,
			forwarded:  "10.9.9.9, 198.51.100.4, 172.16.0.9",
			remoteAddr: "127.0.0.1:80",
			expected:   "198.51.100.4",
		},
		{
			name:       "forwarded chain of proxies only",
			checker:    proxied,
			forwarded:  "172.16.0.9",
			remoteAddr: "172.16.0.5:80",
			expected:   "172.16.0.5",
		},
		{
			name:       "headers from an untrusted peer are ignored",
			checker:    proxied,
			realIP:     "10.1.1.1",
			remoteAddr: "198.51.100.4:80",
			expected:   "198.51.100.4",
		},
		{
			name:       "remote addr",
			checker:    proxied,
			remoteAddr: "1.1.1.1:80",
			expected:   "1.1.1.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				request.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				request.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			ip, err := tt.checker.GetClientIP(request)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ip.String())
			assert.Equal(t, tt.expected, tt.checker.ClientKey(request))
		})
	}
}

func TestTrustedSubnetOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	trusted, err := New("10.0.0.0/8", WithTrustedProxies("192.0.2.1/32"))
	require.NoError(t, err)
	disabled, err := New("", WithTrustedProxies("192.0.2.1/32"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		checker    *IPChecker
		remoteAddr string
		realIP     string
		expected   int
	}{
		{name: "direct client inside subnet", checker: trusted, remoteAddr: "10.20.30.40:5000", expected: http.StatusOK},
		{name: "proxied client inside subnet", checker: trusted, remoteAddr: "192.0.2.1:5000", realIP: "10.20.30.40", expected: http.StatusOK},
		{name: "proxied client outside subnet", checker: trusted, remoteAddr: "192.0.2.1:5000", realIP: "192.168.1.1", expected: http.StatusForbidden},
		{name: "spoofed header from outside", checker: trusted, remoteAddr: "203.0.113.7:5000", realIP: "10.20.30.40", expected: http.StatusForbidden},
		{name: "no subnet configured", checker: disabled, remoteAddr: "192.0.2.1:5000", realIP: "10.20.30.40", expected: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
			request.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				request.Header.Set("X-Real-IP", tt.realIP)
			}
			recorder := httptest.NewRecorder()

			tt.checker.TrustedSubnetOnly(ok).ServeHTTP(recorder, request)

			assert.Equal(t, tt.expected, recorder.Code)
		})
	}
}
