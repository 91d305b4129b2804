// Package shutdown drains the service in a fixed order when it stops: the
// HTTP server first so no new requests arrive, then scheduled work, then the
// stores underneath, all within one deadline.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Shutdownable is a component with teardown of its own.
type Shutdownable interface {
	Close() error
}

// ShutdownFunc is a context-aware cleanup step.
type ShutdownFunc func(ctx context.Context) error

// Ordering for the service's components. Lower runs first.
const (
	PriorityHTTPServer = 10 // stop accepting requests
	PriorityRefresher  = 20 // stop scheduled snapshot refreshes
	PriorityIndex      = 30 // close the catalog index
	PriorityStore      = 40 // store backends last
)

type step struct {
	name     string
	priority int
	hook     ShutdownFunc
	closer   Shutdownable
}

// Coordinator collects components and hooks and tears them down in priority
// order under a single timeout.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	hooks []step
	comps []step

	once    sync.Once
	trigger sync.Once
	done    chan struct{}
}

// New creates a coordinator with the given overall shutdown timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
		done:    make(chan struct{}),
	}
}

// Register adds a component whose Close runs during shutdown. Lower priority
// closes first.
func (c *Coordinator) Register(name string, component Shutdownable, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comps = append(c.comps, step{name: name, priority: priority, closer: component})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered component for shutdown")
}

// RegisterHook adds a cleanup function. Hooks run before components, also in
// priority order.
func (c *Coordinator) RegisterHook(name string, hook ShutdownFunc, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, step{name: name, priority: priority, hook: hook})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown hook")
}

// WaitForSignal blocks until SIGINT/SIGTERM/SIGQUIT arrives or
// TriggerShutdown is called.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		c.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return sig
	case <-c.done:
		return syscall.SIGTERM
	}
}

// TriggerShutdown unblocks WaitForSignal without an OS signal. Safe to call
// from any goroutine, any number of times.
func (c *Coordinator) TriggerShutdown() {
	c.trigger.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.done)
	})
}

// Shutdown runs every hook, then closes every component, lowest priority
// first, until done or the timeout expires. The first error encountered is
// returned; later steps still run unless the deadline is hit. Only the first
// call does anything.
func (c *Coordinator) Shutdown() error {
	var firstErr error

	c.once.Do(func() {
		c.trigger.Do(func() { close(c.done) })

		c.mu.Lock()
		hooks := sortSteps(c.hooks)
		comps := sortSteps(c.comps)
		c.mu.Unlock()

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("components", len(comps)).
			Int("hooks", len(hooks)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()

		runAll := func(kind string, steps []step, run func(step) error) bool {
			for _, s := range steps {
				select {
				case <-ctx.Done():
					c.logger.Warn().
						Str(kind, s.name).
						Msg("Shutdown timeout reached, skipping remaining steps")
					firstErr = ctx.Err()
					return false
				default:
				}

				c.logger.Debug().
					Str(kind, s.name).
					Int("priority", s.priority).
					Msg("Running shutdown step")

				if err := run(s); err != nil {
					c.logger.Error().
						Err(err).
						Str(kind, s.name).
						Msg("Shutdown step failed")
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return true
		}

		if !runAll("hook", hooks, func(s step) error { return s.hook(ctx) }) {
			return
		}
		if !runAll("component", comps, func(s step) error { return s.closer.Close() }) {
			return
		}

		c.logger.Info().
			Dur("duration", time.Since(start)).
			Msg("Graceful shutdown complete")
	})

	return firstErr
}

// sortSteps returns a priority-ordered copy; registration order breaks ties.
func sortSteps(steps []step) []step {
	out := make([]step, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}
