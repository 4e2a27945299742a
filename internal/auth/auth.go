// Package auth issues and verifies the bearer tokens that guard the place
// mutation endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/httperror"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
)

// ErrInvalidTokenOrJwtParsing is returned for any token that cannot be trusted.
var ErrInvalidTokenOrJwtParsing = errors.New("invalid token or error while jwt parsing")

const bearerPrefix = "Bearer "

// Auth signs tokens on signup/login and verifies them on protected routes.
type Auth struct {
	// signingSecretKey is the HMAC key used to sign and verify tokens.
	signingSecretKey []byte

	// tokenTTL is the lifetime of an issued token.
	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// New creates a new Auth with the given signing secret and token lifetime.
func New(signingSecretKey []byte, tokenTTL time.Duration) *Auth {
	return &Auth{
		signingSecretKey: signingSecretKey,
		tokenTTL:         tokenTTL,
	}
}

// AuthenticateUser admits requests carrying a valid `Authorization: Bearer`
// token and stores the token subject under UserIDKey. Pre-flight requests
// pass through untouched.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodOptions {
			h.ServeHTTP(response, request)
			return
		}

		header := request.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			httperror.Write(response, fmt.Errorf("missing bearer token: %w", models.ErrUnauthenticated))
			return
		}

		userID, err := a.GetUserIDFromToken(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			logger.Log.Debugln("Error calling the `a.GetUserIDFromToken()`: ", zap.Error(err))
			httperror.Write(response, fmt.Errorf("%w: %w", models.ErrUnauthenticated, err))
			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, userID)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// UserIDFromContext returns the user id put into ctx by AuthenticateUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// IssueToken builds a signed token for the user.
func (a *Auth) IssueToken(userID, email string) (string, error) {
	issuedAt := time.Now()
	return a.BuildJWTString(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(a.tokenTTL)),
		},
		UserID: userID,
		Email:  email,
	})
}

// BuildJWTString signs claims with HS256.
func (a *Auth) BuildJWTString(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.signingSecretKey)
	if err != nil {
		return "", fmt.Errorf("in internal/auth/auth.go/BuildJWTString(): error while `token.SignedString()` calling: %w", err)
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies tokenString and returns the user id it was
// issued for. Tokens without an expiry are rejected.
func (a *Auth) GetUserIDFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTokenOrJwtParsing, err)
	}
	if !token.Valid || claims.ExpiresAt == nil || claims.UserID == "" {
		return "", ErrInvalidTokenOrJwtParsing
	}

	return claims.UserID, nil
}
