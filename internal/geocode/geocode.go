// Package geocode resolves city names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrNotFound means the geocoder has no match for the query. Callers
	// abort; coordinates are never defaulted.
	ErrNotFound = errors.New("city not found")

	// ErrUnavailable means the upstream could not be reached, including
	// when the circuit breaker is open.
	ErrUnavailable = errors.New("geocoder unavailable")
)

// Location is a resolved place.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name,omitempty"`
}

// Geocoder resolves a free-form place name.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Location, error)
}

// Recorder receives one outcome per lookup ("ok", "not_found", "retry",
// "error", "open").
type Recorder interface {
	GeocodeLookup(outcome string)
}

// Config configures a Nominatim client.
type Config struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	RetryTimeout time.Duration

	// Breaker trips after BreakerMinRequests lookups in an interval with a
	// failure ratio of at least BreakerFailureRatio.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// DefaultConfig returns the settings used against the public Nominatim API.
func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://nominatim.openstreetmap.org",
		UserAgent:           "inside_time_app",
		Timeout:             10 * time.Second,
		RetryTimeout:        15 * time.Second,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.8,
		BreakerOpenTimeout:  60 * time.Second,
	}
}

// Nominatim queries an OpenStreetMap Nominatim search endpoint.
//
// A timeout-class failure (deadline, network timeout, upstream 5xx) is
// retried exactly once with RetryTimeout. An empty result is final.
type Nominatim struct {
	cfg      Config
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
	recorder Recorder
}

var _ Geocoder = (*Nominatim)(nil)

// NewNominatim creates a client. recorder may be nil.
func NewNominatim(cfg Config, logger *slog.Logger, recorder Recorder) *Nominatim {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = defaults.RetryTimeout
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = defaults.BreakerMinRequests
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = defaults.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}

	n := &Nominatim{
		cfg:      cfg,
		client:   &http.Client{},
		logger:   logger,
		recorder: recorder,
	}

	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nominatim",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("geocoder circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// A miss is a valid answer, not an upstream failure.
		// A caller hanging up says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})

	return n
}

// Geocode resolves query to coordinates.
func (n *Nominatim) Geocode(ctx context.Context, query string) (Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		n.record("not_found")
		return Location{}, ErrNotFound
	}

	loc, err := n.attempt(ctx, query, n.cfg.Timeout)
	if err != nil && isTimeoutClass(ctx, err) {
		n.logger.Warn("geocoder timed out, retrying",
			slog.String("city", query),
			slog.Duration("retry_timeout", n.cfg.RetryTimeout),
			slog.Any("error", err),
		)
		n.record("retry")
		loc, err = n.attempt(ctx, query, n.cfg.RetryTimeout)
	}

	switch {
	case err == nil:
		n.record("ok")
		return loc, nil
	case errors.Is(err, ErrNotFound):
		n.record("not_found")
		return Location{}, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		n.record("open")
		return Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case ctx.Err() != nil:
		n.record("error")
		return Location{}, ctx.Err()
	default:
		n.record("error")
		return Location{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (n *Nominatim) attempt(ctx context.Context, query string, timeout time.Duration) (Location, error) {
	result, err := n.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return n.search(attemptCtx, query)
	})
	if err != nil {
		return Location{}, err
	}
	return result.(Location), nil
}

// searchResult is one element of the Nominatim jsonv2 response.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// upstreamError is a non-2xx response.
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("nominatim returned HTTP %d", e.status)
}

func (n *Nominatim) search(ctx context.Context, query string) (Location, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	endpoint := strings.TrimRight(n.cfg.BaseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, &upstreamError{status: resp.StatusCode}
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return Location{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}

	return Location{Latitude: lat, Longitude: lon, DisplayName: results[0].DisplayName}, nil
}

// isTimeoutClass reports whether err warrants the single retry. A canceled
// or expired caller context never does.
func isTimeoutClass(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var upErr *upstreamError
	if errors.As(err, &upErr) {
		return upErr.status >= 500 || upErr.status == http.StatusTooManyRequests
	}
	return false
}

func (n *Nominatim) record(outcome string) {
	if n.recorder != nil {
		n.recorder.GeocodeLookup(outcome)
	}
}
