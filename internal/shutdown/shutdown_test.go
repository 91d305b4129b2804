package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// closer records whether and when it was closed.
type closer struct {
	mu      sync.Mutex
	closed  bool
	err     error
	delay   time.Duration
	onClose func()
}

func (c *closer) Close() error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.onClose != nil {
		c.onClose()
	}
	return c.err
}

func (c *closer) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestCoordinator() *Coordinator {
	return New(5*time.Second, zerolog.Nop())
}

func TestNew(t *testing.T) {
	c := New(10*time.Second, zerolog.Nop())
	if c.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", c.timeout)
	}
	if c.done == nil {
		t.Error("done channel not initialized")
	}
}

func TestRegister(t *testing.T) {
	c := newTestCoordinator()
	c.Register("store", &closer{}, PriorityStore)

	if len(c.comps) != 1 {
		t.Fatalf("got %d components, want 1", len(c.comps))
	}
	if c.comps[0].name != "store" || c.comps[0].priority != PriorityStore {
		t.Errorf("component = %q/%d, want store/%d", c.comps[0].name, c.comps[0].priority, PriorityStore)
	}
}

func TestRegisterHook(t *testing.T) {
	c := newTestCoordinator()
	c.RegisterHook("hook-store", func(ctx context.Context) error { return nil }, PriorityIndex)

	if len(c.hooks) != 1 {
		t.Fatalf("got %d hooks, want 1", len(c.hooks))
	}
	if c.hooks[0].name != "hook-store" {
		t.Errorf("hook name = %q, want hook-store", c.hooks[0].name)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	c := newTestCoordinator()
	store := &closer{}
	index := &closer{}
	hookRan := false

	c.Register("store", store, PriorityStore)
	c.Register("index", index, PriorityIndex)
	c.RegisterHook("flush", func(ctx context.Context) error {
		hookRan = true
		return nil
	}, PriorityHTTPServer)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !store.wasClosed() || !index.wasClosed() {
		t.Error("not all components were closed")
	}
	if !hookRan {
		t.Error("hook did not run")
	}
}

func TestShutdownOrder(t *testing.T) {
	c := newTestCoordinator()
	var order []string
	record := func(name string) func() { return func() { order = append(order, name) } }

	c.Register("store", &closer{onClose: record("store")}, PriorityStore)
	c.Register("index", &closer{onClose: record("index")}, PriorityIndex)
	c.RegisterHook("server", func(ctx context.Context) error {
		order = append(order, "server")
		return nil
	}, PriorityHTTPServer)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// Hooks first, then components by ascending priority.
	want := []string{"server", "index", "store"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdownReturnsFirstError(t *testing.T) {
	c := newTestCoordinator()
	errFirst := errors.New("index close failed")
	errSecond := errors.New("store close failed")
	store := &closer{err: errSecond}

	c.Register("index", &closer{err: errFirst}, PriorityIndex)
	c.Register("store", store, PriorityStore)

	err := c.Shutdown()
	if !errors.Is(err, errFirst) {
		t.Errorf("Shutdown() error = %v, want %v", err, errFirst)
	}
	// Later components still close despite the earlier failure.
	if !store.wasClosed() {
		t.Error("store was skipped after earlier error")
	}
}

func TestShutdownHookError(t *testing.T) {
	c := newTestCoordinator()
	errHook := errors.New("flush failed")
	store := &closer{}

	c.RegisterHook("flush", func(ctx context.Context) error { return errHook }, PriorityHTTPServer)
	c.Register("store", store, PriorityStore)

	if err := c.Shutdown(); !errors.Is(err, errHook) {
		t.Errorf("Shutdown() error = %v, want %v", err, errHook)
	}
	if !store.wasClosed() {
		t.Error("component skipped after hook error")
	}
}

func TestShutdownTimeout(t *testing.T) {
	c := New(50*time.Millisecond, zerolog.Nop())
	slow := &closer{delay: 100 * time.Millisecond}
	last := &closer{}

	c.Register("slow", slow, PriorityIndex)
	c.Register("last", last, PriorityStore)

	err := c.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if last.wasClosed() {
		t.Error("component ran after the deadline")
	}
}

func TestShutdownOnlyOnce(t *testing.T) {
	c := newTestCoordinator()
	count := 0
	c.RegisterHook("counted", func(ctx context.Context) error {
		count++
		return nil
	}, PriorityHTTPServer)

	c.Shutdown()
	c.Shutdown()

	if count != 1 {
		t.Errorf("hook ran %d times, want 1", count)
	}
}

func TestTriggerShutdownUnblocksWait(t *testing.T) {
	c := newTestCoordinator()

	got := make(chan struct{})
	go func() {
		c.WaitForSignal()
		close(got)
	}()

	// Give the waiter a moment to install its signal handler.
	time.Sleep(10 * time.Millisecond)
	c.TriggerShutdown()
	c.TriggerShutdown() // second call is a no-op

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("WaitForSignal did not return after TriggerShutdown")
	}
}

func TestSortStepsStable(t *testing.T) {
	steps := []step{
		{name: "b", priority: 20},
		{name: "a", priority: 10},
		{name: "c", priority: 20},
	}
	sorted := sortSteps(steps)

	want := []string{"a", "b", "c"}
	for i, s := range sorted {
		if s.name != want[i] {
			t.Errorf("sorted[%d] = %s, want %s", i, s.name, want[i])
		}
	}
	// The input slice is left untouched.
	if steps[0].name != "b" {
		t.Error("sortSteps mutated its input")
	}
}
