package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls retries of remote grid downloads.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used when no backoff is configured.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errClientError = errors.New("client error")
	errTooLarge    = errors.New("response too large")
	errCircuitOpen = errors.New("circuit breaker open")
)

// DefaultMaxBytes bounds the size of a downloaded grid file.
const DefaultMaxBytes int64 = 1 << 30

// RemoteSource downloads grid files over HTTP behind a circuit breaker.
type RemoteSource struct {
	client   *http.Client
	backoff  BackoffConfig
	maxBytes int64
	circuit  *gobreaker.CircuitBreaker
	logger   *slog.Logger

	mu      sync.Mutex
	onState func(name string, to gobreaker.State)
}

// NewRemoteSource creates a RemoteSource. A nil client gets a default one
// with the given timeout.
func NewRemoteSource(client *http.Client, timeout time.Duration, backoff BackoffConfig, logger *slog.Logger) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if backoff.InitialInterval <= 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &RemoteSource{client: client, backoff: backoff, maxBytes: DefaultMaxBytes, logger: logger}
	s.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-grid",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// a missing or forbidden grid says nothing about the server's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClientError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			s.mu.Lock()
			fn := s.onState
			s.mu.Unlock()
			if fn != nil {
				fn(name, to)
			}
		},
	})
	return s
}

// OnStateChange registers a callback for circuit breaker transitions.
func (s *RemoteSource) OnStateChange(fn func(name string, to gobreaker.State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Fetch downloads url with retries and exponential backoff. An open circuit,
// a 4xx status other than 429 or an oversized body fails immediately.
func (s *RemoteSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.circuit.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := s.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, errServerError
			case resp.StatusCode >= 400:
				return nil, fmt.Errorf("%w: %d", errClientError, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
			if err != nil {
				return nil, err
			}
			if int64(len(data)) > s.maxBytes {
				return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, s.maxBytes)
			}
			return data, nil
		})
		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errClientError) || errors.Is(err, errTooLarge) {
			return nil, err
		}
		if attempt >= s.backoff.MaxRetries {
			return nil, err
		}

		delay := s.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if s.backoff.MaxInterval > 0 && delay > s.backoff.MaxInterval {
			delay = s.backoff.MaxInterval
		}
		s.logger.Debug("remote grid fetch failed, retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
