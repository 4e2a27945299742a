// Package ratelimit throttles requests per client with token buckets.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/patric-chuzhbe/placeshare/internal/httperror"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	keyFunc  func(*http.Request) string
}

type InitOption func(*Limiter)

// WithKeyFunc sets how a request is mapped to a client key. The default is
// the host part of RemoteAddr.
func WithKeyFunc(keyFunc func(*http.Request) string) InitOption {
	return func(l *Limiter) {
		l.keyFunc = keyFunc
	}
}

// New allows requestsPerSecond on average with bursts of up to burst
// requests per client.
func New(requestsPerSecond float64, burst int, optionsProto ...InitOption) *Limiter {
	l := &Limiter{
		visitors: map[string]*visitor{},
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		keyFunc:  remoteHost,
	}
	for _, protoOption := range optionsProto {
		protoOption(l)
	}

	return l
}

func remoteHost(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

// Cleanup forgets clients not seen for longer than idle.
func (l *Limiter) Cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, v := range l.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}

// Handler rejects requests over the limit with 429.
func (l *Limiter) Handler(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		key := l.keyFunc(request)
		if !l.Allow(key) {
			logger.Log.Infow("rate limit exceeded", "key", key, "path", request.URL.Path)
			response.Header().Set("Retry-After", "1")
			httperror.Write(response, fmt.Errorf("client %s: %w", key, models.ErrTooManyRequests))
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
