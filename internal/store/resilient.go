package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/buoyworks/swell/internal/circuitbreaker"
	"github.com/rs/zerolog"
)

// ResilientBackend wraps a store backend with circuit breaker and retry
// logic. Remote archive servers shed load under polling bursts, so reads
// retry with exponential backoff; a missing object is a definitive answer
// and is never retried.
type ResilientBackend struct {
	backend Backend
	cb      *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger

	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// ResilientConfig holds configuration for the resilient backend
type ResilientConfig struct {
	// Circuit breaker settings
	MaxFailures         int
	Timeout             time.Duration
	HalfOpenMaxRequests int

	// Retry settings
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// DefaultResilientConfig returns default resilient backend configuration
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
		MaxRetries:          3,
		RetryDelay:          100 * time.Millisecond,
		RetryMaxDelay:       5 * time.Second,
	}
}

// NewResilientBackend creates a new resilient store backend
func NewResilientBackend(backend Backend, cfg *ResilientConfig, logger zerolog.Logger) *ResilientBackend {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}

	cbConfig := &circuitbreaker.Config{
		Name:                "store",
		MaxFailures:         cfg.MaxFailures,
		Timeout:             cfg.Timeout,
		HalfOpenMaxRequests: cfg.HalfOpenMaxRequests,
	}

	return &ResilientBackend{
		backend:       backend,
		cb:            circuitbreaker.New(cbConfig, logger),
		logger:        logger.With().Str("component", "resilient-store").Logger(),
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
	}
}

// retryable reports whether an operation error is worth another attempt
func retryable(err error) bool {
	return err != nil &&
		err != circuitbreaker.ErrCircuitOpen &&
		!errors.Is(err, ErrObjectNotFound)
}

// Read reads an object with retries
func (r *ResilientBackend) Read(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	var data []byte

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(func() error {
			var readErr error
			data, readErr = r.backend.Read(ctx, path)
			return readErr
		})

		if err == nil {
			return data, nil
		}

		lastErr = err

		if !retryable(err) {
			if err == circuitbreaker.ErrCircuitOpen {
				r.logger.Warn().
					Str("path", path).
					Msg("Store read rejected - circuit breaker open")
			}
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := r.backoff(attempt)

		r.logger.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt+1).
			Int("max_retries", r.maxRetries).
			Dur("retry_delay", delay).
			Msg("Store read failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("store read failed after %d retries: %w", r.maxRetries, lastErr)
}

// ReadTo streams an object into the writer with retries
func (r *ResilientBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(func() error {
			return r.backend.ReadTo(ctx, path, writer)
		})

		if err == nil {
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("store read failed after %d retries: %w", r.maxRetries, lastErr)
}

// List lists object paths with retries
func (r *ResilientBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var lastErr error
	var paths []string

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(func() error {
			var listErr error
			paths, listErr = r.backend.List(ctx, prefix)
			return listErr
		})

		if err == nil {
			return paths, nil
		}

		lastErr = err

		if !retryable(err) {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("store list failed after %d retries: %w", r.maxRetries, lastErr)
}

// Exists checks object existence with retries
func (r *ResilientBackend) Exists(ctx context.Context, path string) (bool, error) {
	var lastErr error
	var exists bool

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(func() error {
			var existsErr error
			exists, existsErr = r.backend.Exists(ctx, path)
			return existsErr
		})

		if err == nil {
			return exists, nil
		}

		lastErr = err

		if !retryable(err) {
			return false, err
		}

		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return false, fmt.Errorf("store exists check failed after %d retries: %w", r.maxRetries, lastErr)
}

// Stat fetches object metadata with retries
func (r *ResilientBackend) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	var lastErr error
	var info ObjectInfo

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(func() error {
			var statErr error
			info, statErr = r.backend.Stat(ctx, path)
			return statErr
		})

		if err == nil {
			return info, nil
		}

		lastErr = err

		if !retryable(err) {
			return ObjectInfo{}, err
		}

		if ctx.Err() != nil {
			return ObjectInfo{}, ctx.Err()
		}

		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return ObjectInfo{}, ctx.Err()
		}
	}

	return ObjectInfo{}, fmt.Errorf("store stat failed after %d retries: %w", r.maxRetries, lastErr)
}

// backoff computes the exponential retry delay for an attempt
func (r *ResilientBackend) backoff(attempt int) time.Duration {
	delay := r.retryDelay * time.Duration(1<<uint(attempt))
	if delay > r.retryMaxDelay {
		delay = r.retryMaxDelay
	}
	return delay
}

// Close closes the underlying store backend
func (r *ResilientBackend) Close() error {
	return r.backend.Close()
}

// Type returns the underlying store type identifier
func (r *ResilientBackend) Type() string {
	return r.backend.Type()
}

// CircuitBreakerStats returns circuit breaker statistics
func (r *ResilientBackend) CircuitBreakerStats() map[string]interface{} {
	return r.cb.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open
func (r *ResilientBackend) IsCircuitOpen() bool {
	return r.cb.IsOpen()
}

// ResetCircuitBreaker resets the circuit breaker
func (r *ResilientBackend) ResetCircuitBreaker() {
	r.cb.Reset()
}
