// Package circuitbreaker sheds requests to an upstream object store that is
// actively failing. Repeated failures trip the breaker open; after a cool-off
// period a limited number of probe requests decide whether it closes again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the breaker position.
type State int

const (
	// StateClosed passes requests through.
	StateClosed State = iota
	// StateOpen rejects requests outright.
	StateOpen
	// StateHalfOpen admits a few probes to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned for requests rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config tunes one breaker.
type Config struct {
	// Name identifies the breaker in logs and stats.
	Name string

	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int

	// Timeout is the open-state cool-off before probing resumes.
	Timeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes while half-open; the same
	// number of consecutive probe successes closes the circuit.
	HalfOpenMaxRequests int

	// OnStateChange, when set, observes every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the standard tuning for a named breaker.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker guards calls to one upstream.
type CircuitBreaker struct {
	cfg    *Config
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	probes      int
}

// New creates a breaker in the closed state.
func New(cfg *Config, logger zerolog.Logger) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger.With().Str("component", "circuit-breaker").Str("name", cfg.Name).Logger(),
		state:  StateClosed,
	}
}

// Execute runs fn under the breaker. Rejected requests return ErrCircuitOpen
// without invoking fn; otherwise fn's error is recorded and returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		cb.logger.Warn().
			Str("state", cb.State().String()).
			Msg("Request rejected by circuit breaker")
		return ErrCircuitOpen
	}

	err := fn()
	cb.observe(err)
	return err
}

// admit decides whether a request may go upstream.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.cfg.Timeout {
			cb.transition(StateHalfOpen)
			cb.probes = 0
			return true
		}
		return false

	case StateHalfOpen:
		cb.probes++
		return cb.probes <= cb.cfg.HalfOpenMaxRequests

	default:
		return true
	}
}

// observe records the outcome of an attempted request.
func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()

		cb.logger.Debug().
			Int("failures", cb.failures).
			Int("max_failures", cb.cfg.MaxFailures).
			Str("state", cb.state.String()).
			Msg("Recorded failure")

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.cfg.MaxFailures {
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// One failed probe is enough.
			cb.transition(StateOpen)
		}
		return
	}

	cb.successes++

	cb.logger.Debug().
		Int("successes", cb.successes).
		Str("state", cb.state.String()).
		Msg("Recorded success")

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successes >= cb.cfg.HalfOpenMaxRequests {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0

	cb.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether requests are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.failures = 0
	cb.successes = 0

	cb.logger.Info().Msg("Circuit breaker reset")
}

// Stats reports the breaker's counters for diagnostics.
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":              cb.cfg.Name,
		"state":             cb.state.String(),
		"failures":          cb.failures,
		"successes":         cb.successes,
		"max_failures":      cb.cfg.MaxFailures,
		"timeout_seconds":   cb.cfg.Timeout.Seconds(),
		"last_failure_time": cb.lastFailure,
	}
}
