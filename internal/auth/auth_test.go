package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("secret-for-tests")

func newProtectedServer(a *Auth) *httptest.Server {
	handler := a.AuthenticateUser(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		userID, ok := UserIDFromContext(request.Context())
		if !ok {
			userID = "anonymous"
		}
		response.WriteHeader(http.StatusOK)
		_, _ = response.Write([]byte(userID))
	}))

	return httptest.NewServer(handler)
}

func TestIssueTokenRoundTrip(t *testing.T) {
	a := New(testSecret, time.Hour)

	token, err := a.IssueToken("u1", "a@x.io")
	require.NoError(t, err)

	userID, err := a.GetUserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", claims.Email)
	assert.Equal(t, "u1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestGetUserIDFromTokenRejects(t *testing.T) {
	a := New(testSecret, time.Hour)

	expired, err := New(testSecret, -time.Minute).IssueToken("u1", "a@x.io")
	require.NoError(t, err)

	foreign, err := New([]byte("another-secret"), time.Hour).IssueToken("u1", "a@x.io")
	require.NoError(t, err)

	noExpiry, err := a.BuildJWTString(&Claims{UserID: "u1"})
	require.NoError(t, err)

	noSubject, err := a.BuildJWTString(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":    expired,
		"foreign":    foreign,
		"no expiry":  noExpiry,
		"no subject": noSubject,
		"alg none":   unsigned,
		"garbage":    "not.a.token",
		"empty":      "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.GetUserIDFromToken(token)
			assert.ErrorIs(t, err, ErrInvalidTokenOrJwtParsing)
		})
	}
}

func TestAuthenticateUser(t *testing.T) {
	a := New(testSecret, time.Hour)
	server := newProtectedServer(a)
	defer server.Close()

	token, err := a.IssueToken("u1", "a@x.io")
	require.NoError(t, err)

	tests := []struct {
		name         string
		method       string
		header       string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "valid bearer token",
			method:       http.MethodGet,
			header:       "Bearer " + token,
			expectedCode: http.StatusOK,
			expectedBody: "u1",
		},
		{
			name:         "missing header",
			method:       http.MethodGet,
			expectedCode: http.StatusForbidden,
			expectedBody: `{"message":"Authentication failed!"}`,
		},
		{
			name:         "wrong scheme",
			method:       http.MethodGet,
			header:       "Basic " + token,
			expectedCode: http.StatusForbidden,
			expectedBody: `{"message":"Authentication failed!"}`,
		},
		{
			name:         "tampered token",
			method:       http.MethodGet,
			header:       "Bearer " + token + "x",
			expectedCode: http.StatusForbidden,
			expectedBody: `{"message":"Authentication failed!"}`,
		},
		{
			name:         "pre-flight passes without token",
			method:       http.MethodOptions,
			expectedCode: http.StatusOK,
			expectedBody: "anonymous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := resty.New().R()
			request.Method = tt.method
			request.URL = server.URL
			if tt.header != "" {
				request.SetHeader("Authorization", tt.header)
			}

			resp, err := request.Send()
			require.NoError(t, err)

			assert.Equal(t, tt.expectedCode, resp.StatusCode())
			if tt.expectedCode == http.StatusOK {
				assert.Equal(t, tt.expectedBody, string(resp.Body()))
			} else {
				assert.JSONEq(t, tt.expectedBody, string(resp.Body()))
			}
		})
	}
}
