package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errUpstream = errors.New("upstream failure")

func newBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	return New(&Config{
		Name:                "test",
		MaxFailures:         maxFailures,
		Timeout:             timeout,
		HalfOpenMaxRequests: 2,
	}, zerolog.Nop())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("fetch")

	if cfg.Name != "fetch" {
		t.Errorf("Name = %s, want fetch", cfg.Name)
	}
	if cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cfg.MaxFailures)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.HalfOpenMaxRequests != 3 {
		t.Errorf("HalfOpenMaxRequests = %d, want 3", cfg.HalfOpenMaxRequests)
	}
}

func TestNewNilConfig(t *testing.T) {
	cb := New(nil, zerolog.Nop())
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if cb.Stats()["name"] != "default" {
		t.Errorf("name = %v, want default", cb.Stats()["name"])
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := newBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errUpstream })
	}
	if cb.State() != StateClosed {
		t.Fatalf("State = %v after 2 failures, want closed", cb.State())
	}

	cb.Execute(func() error { return errUpstream })
	if cb.State() != StateOpen {
		t.Fatalf("State = %v after 3 failures, want open", cb.State())
	}
	if !cb.IsOpen() {
		t.Error("IsOpen() = false, want true")
	}
}

func TestOpenRejectsWithoutCalling(t *testing.T) {
	cb := newBreaker(1, time.Minute)
	cb.Execute(func() error { return errUpstream })

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function was invoked while circuit open")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newBreaker(3, time.Minute)

	cb.Execute(func() error { return errUpstream })
	cb.Execute(func() error { return errUpstream })
	cb.Execute(func() error { return nil })

	if got := cb.Stats()["failures"].(int); got != 0 {
		t.Errorf("failures = %d after success, want 0", got)
	}

	// The counter starts over, so two more failures are not enough.
	cb.Execute(func() error { return errUpstream })
	cb.Execute(func() error { return errUpstream })
	if cb.State() != StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
}

func TestHalfOpenClosesAfterProbeSuccesses(t *testing.T) {
	cb := newBreaker(1, 10*time.Millisecond)
	cb.Execute(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	// First probe moves the breaker to half-open.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State = %v, want half-open", cb.State())
	}

	cb.Execute(func() error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("State = %v after probe successes, want closed", cb.State())
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	cb := newBreaker(1, 10*time.Millisecond)
	cb.Execute(func() error { return errUpstream })
	time.Sleep(20 * time.Millisecond)

	cb.Execute(func() error { return errUpstream })
	if cb.State() != StateOpen {
		t.Errorf("State = %v after failed probe, want open", cb.State())
	}
}

func TestReset(t *testing.T) {
	cb := newBreaker(1, time.Minute)
	cb.Execute(func() error { return errUpstream })
	if !cb.IsOpen() {
		t.Fatal("breaker should be open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State = %v after reset, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after reset = %v, want nil", err)
	}
}

func TestStats(t *testing.T) {
	cb := newBreaker(5, 30*time.Second)
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errUpstream })

	stats := cb.Stats()
	if stats["name"] != "test" {
		t.Errorf("name = %v, want test", stats["name"])
	}
	if stats["state"] != "closed" {
		t.Errorf("state = %v, want closed", stats["state"])
	}
	if stats["failures"].(int) != 1 {
		t.Errorf("failures = %v, want 1", stats["failures"])
	}
	if stats["max_failures"] != 5 {
		t.Errorf("max_failures = %v, want 5", stats["max_failures"])
	}
	if stats["timeout_seconds"] != 30.0 {
		t.Errorf("timeout_seconds = %v, want 30", stats["timeout_seconds"])
	}
}

func TestOnStateChange(t *testing.T) {
	type change struct{ from, to State }
	var changes []change

	cb := New(&Config{
		Name:                "test",
		MaxFailures:         1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(name string, from, to State) {
			if name != "test" {
				t.Errorf("callback name = %s, want test", name)
			}
			changes = append(changes, change{from, to})
		},
	}, zerolog.Nop())

	cb.Execute(func() error { return errUpstream })
	cb.Reset()

	want := []change{{StateClosed, StateOpen}, {StateOpen, StateClosed}}
	if len(changes) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(changes), len(want))
	}
	for i, c := range changes {
		if c != want[i] {
			t.Errorf("transition %d = %v->%v, want %v->%v", i, c.from, c.to, want[i].from, want[i].to)
		}
	}
}
