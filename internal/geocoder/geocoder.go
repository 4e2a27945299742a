// Package geocoder resolves free-text addresses to coordinates with a single
// Nominatim search request per lookup.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
)

const (
	searchPath     = "/search"
	zeroResults    = "ZERO_RESULTS"
	cacheKeyPrefix = "geocode:"
)

// Cache keeps resolved locations between lookups.
type Cache interface {
	Get(ctx context.Context, key string) (models.Location, bool, error)
	Set(ctx context.Context, key string, location models.Location, ttl time.Duration) error
}

type Geocoder struct {
	client   *resty.Client
	cache    Cache
	cacheTTL time.Duration
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type statusReply struct {
	Status string `json:"status"`
}

type InitOption func(*initOptions)

type initOptions struct {
	userAgent    string
	timeout      time.Duration
	retryCount   int
	retryWait    time.Duration
	retryMaxWait time.Duration
	cache        Cache
	cacheTTL     time.Duration
}

func WithUserAgent(userAgent string) InitOption {
	return func(options *initOptions) {
		options.userAgent = userAgent
	}
}

func WithTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		options.timeout = timeout
	}
}

// WithRetry sets how many extra attempts are made and the backoff bounds between them.
func WithRetry(count int, wait, maxWait time.Duration) InitOption {
	return func(options *initOptions) {
		options.retryCount = count
		options.retryWait = wait
		options.retryMaxWait = maxWait
	}
}

func WithCache(cache Cache, ttl time.Duration) InitOption {
	return func(options *initOptions) {
		options.cache = cache
		options.cacheTTL = ttl
	}
}

// New creates a Geocoder talking to the Nominatim compatible service at baseURL.
func New(baseURL string, optionsProto ...InitOption) *Geocoder {
	options := &initOptions{
		userAgent:    "placeshare/1.0",
		timeout:      5 * time.Second,
		retryCount:   2,
		retryWait:    200 * time.Millisecond,
		retryMaxWait: 2 * time.Second,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(options.timeout).
		SetHeader("User-Agent", options.userAgent).
		SetHeader("Accept", "application/json").
		SetRetryCount(options.retryCount).
		SetRetryWaitTime(options.retryWait).
		SetRetryMaxWaitTime(options.retryMaxWait).
		AddRetryCondition(func(response *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return response.StatusCode() == http.StatusTooManyRequests ||
				response.StatusCode() >= http.StatusInternalServerError
		})

	return &Geocoder{
		client:   client,
		cache:    options.cache,
		cacheTTL: options.cacheTTL,
	}
}

func cacheKey(address string) string {
	return cacheKeyPrefix + strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Coordinates returns the location of address or models.ErrAddressNotFound
// when the service has no match for it.
func (g *Geocoder) Coordinates(ctx context.Context, address string) (models.Location, error) {
	key := cacheKey(address)
	if g.cache != nil {
		location, found, err := g.cache.Get(ctx, key)
		if err != nil {
			logger.Log.Debugln("geocoder cache read failed", zap.Error(err))
		}
		if found {
			return location, nil
		}
	}

	location, err := g.lookup(ctx, address)
	if err != nil {
		return models.Location{}, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, location, g.cacheTTL); err != nil {
			logger.Log.Debugln("geocoder cache write failed", zap.Error(err))
		}
	}

	return location, nil
}

func (g *Geocoder) lookup(ctx context.Context, address string) (models.Location, error) {
	response, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":              address,
			"format":         "json",
			"limit":          "1",
			"addressdetails": "1",
		}).
		Get(searchPath)
	if err != nil {
		return models.Location{}, fmt.Errorf("in internal/geocoder/geocoder.go/lookup(): error while `client.Get()` calling: %w", err)
	}
	if response.IsError() {
		return models.Location{}, fmt.Errorf(
			"in internal/geocoder/geocoder.go/lookup(): geocoding service replied with status %d",
			response.StatusCode(),
		)
	}

	return parseReply(response.Body())
}

func parseReply(body []byte) (models.Location, error) {
	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		var status statusReply
		if json.Unmarshal(body, &status) == nil && status.Status == zeroResults {
			return models.Location{}, models.ErrAddressNotFound
		}
		return models.Location{}, fmt.Errorf("in internal/geocoder/geocoder.go/parseReply(): error while `json.Unmarshal()` calling: %w", err)
	}
	if len(results) == 0 {
		return models.Location{}, models.ErrAddressNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: bad latitude %q", models.ErrAddressNotFound, results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("%w: bad longitude %q", models.ErrAddressNotFound, results[0].Lon)
	}

	return models.Location{Lat: lat, Lng: lng}, nil
}
