// Package ipchecker provides utilities for extracting and validating
// client IP addresses from HTTP requests. It supports checking whether
// a given IP falls within a trusted subnet.
package ipchecker

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/placeshare/internal/httperror"
	"github.com/patric-chuzhbe/placeshare/internal/logger"
)

// IPChecker is responsible for extracting a client's IP address from
// an HTTP request and validating whether it belongs to a trusted subnet.
// Forwarding headers are honored only when the connection comes from one of
// the trusted proxies.
type IPChecker struct {
	trustedSubnet  *net.IPNet
	trustedProxies []*net.IPNet
}

type InitOption func(*initOptions)

type initOptions struct {
	trustedProxies []string
}

// WithTrustedProxies lists, in CIDR notation, the reverse proxies whose
// X-Real-IP and X-Forwarded-For headers are believed.
func WithTrustedProxies(cidrs ...string) InitOption {
	return func(options *initOptions) {
		options.trustedProxies = append(options.trustedProxies, cidrs...)
	}
}

// New creates a new IPChecker instance configured with a trusted subnet.
// If the input trustedSubnet is an empty string, the IPChecker will be
// initialized in a disabled state - so the IsTrustedSubnetEmpty will return true
//
// The trustedSubnet must be in CIDR notation (e.g., "192.168.1.0/24").
// Returns an error if a CIDR string cannot be parsed.
func New(trustedSubnet string, optionsProto ...InitOption) (*IPChecker, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	checker := &IPChecker{}
	for _, cidr := range options.trustedProxies {
		_, proxyNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling for a trusted proxy: %w", err)
		}
		checker.trustedProxies = append(checker.trustedProxies, proxyNet)
	}

	if trustedSubnet == "" {
		return checker, nil
	}
	_, allowedNet, err := net.ParseCIDR(trustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/New(): error while `net.ParseCIDR()` calling: %w", err)
	}
	checker.trustedSubnet = allowedNet

	return checker, nil
}

// Check verifies whether the given IP address belongs to the configured
// trusted subnet. If no trusted subnet is configured, it returns false.
func (checker *IPChecker) Check(clientIP net.IP) bool {
	return checker.trustedSubnet != nil && checker.trustedSubnet.Contains(clientIP)
}

func (checker *IPChecker) isTrustedProxy(ip net.IP) bool {
	for _, proxyNet := range checker.trustedProxies {
		if proxyNet.Contains(ip) {
			return true
		}
	}
	return false
}

// GetClientIP extracts the client's IP address from an HTTP request.
// The peer address from RemoteAddr is used unless the peer is a trusted
// proxy. Behind a trusted proxy the "X-Real-IP" header is checked first,
// then "X-Forwarded-For" from right to left, skipping trusted proxies.
//
// Returns the parsed IP address or an error if extraction fails.
func (checker *IPChecker) GetClientIP(request *http.Request) (net.IP, error) {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("in internal/ipchecker/ipchecker.go/GetClientIP(): error while `net.SplitHostPort()` calling: %w", err)
	}
	peer := net.ParseIP(host)
	if peer == nil || !checker.isTrustedProxy(peer) {
		return peer, nil
	}

	if ip := net.ParseIP(strings.TrimSpace(request.Header.Get("X-Real-IP"))); ip != nil {
		return ip, nil
	}

	if xff := request.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !checker.isTrustedProxy(ip) {
				return ip, nil
			}
		}
	}

	return peer, nil
}

// IsTrustedSubnetEmpty returns true if the IPChecker was initialized
// without a trusted subnet.
func (checker *IPChecker) IsTrustedSubnetEmpty() bool {
	return checker.trustedSubnet == nil
}

// ClientKey returns the client IP as a string, falling back to RemoteAddr.
// It is used to key per-client rate limits.
func (checker *IPChecker) ClientKey(request *http.Request) string {
	ip, err := checker.GetClientIP(request)
	if err != nil || ip == nil {
		return request.RemoteAddr
	}
	return ip.String()
}

// TrustedSubnetOnly admits only clients from the trusted subnet. With no
// subnet configured every request is refused.
func (checker *IPChecker) TrustedSubnetOnly(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		clientIP, err := checker.GetClientIP(request)
		if err != nil {
			logger.Log.Debugln("Error calling the `checker.GetClientIP()`: ", err)
		}
		if clientIP == nil || !checker.Check(clientIP) {
			httperror.Write(response, httperror.New("Access denied.", http.StatusForbidden, err))
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
