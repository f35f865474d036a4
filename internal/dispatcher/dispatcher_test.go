package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("loadout:fire", "7", "P13")

	if e.ID == uuid.Nil {
		t.Error("expected an event id")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	if !reflect.DeepEqual(e.Args, []string{"7", "P13"}) {
		t.Errorf("unexpected args %v", e.Args)
	}
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("mission:get", func(_ context.Context, e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(context.Background(), Event{Command: "mission:get", Args: []string{"1"}})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "result" {
		t.Errorf("expected 'result', got %v", result)
	}
	if got.ID == uuid.Nil || got.Timestamp.IsZero() {
		t.Error("dispatch should stamp events without id or timestamp")
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), Event{Command: "mission:delete"})

	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(context.Background(), NewEvent("fatigue:refresh"))
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedIgnoresCallerCancel(t *testing.T) {
	d, _ := newTestDispatcher(t)

	seen := make(chan error, 1)
	d.Register("fatigue:refresh", func(ctx context.Context, e Event) (any, error) {
		seen <- ctx.Err()
		return nil, nil
	}, Buffered(1))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := d.Dispatch(ctx, NewEvent("fatigue:refresh")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	select {
	case err := <-seen:
		if err != nil {
			t.Errorf("handler saw cancelled context: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	ctx := context.Background()
	d.Dispatch(ctx, NewEvent("fatigue:refresh")) // being processed
	<-started
	d.Dispatch(ctx, NewEvent("fatigue:refresh")) // queued
	d.Dispatch(ctx, NewEvent("fatigue:refresh")) // queued

	_, err := d.Dispatch(ctx, NewEvent("fatigue:refresh"))

	if err == nil {
		t.Error("expected error when queue is full")
	}

	close(block)
	d.Close()
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	ctx := context.Background()
	d.Dispatch(ctx, NewEvent("fatigue:refresh"))
	<-started
	d.Dispatch(ctx, NewEvent("fatigue:refresh"))

	done := make(chan struct{})
	go func() {
		d.Dispatch(ctx, NewEvent("fatigue:refresh"))
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	d.Close()
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		if _, err := d.Dispatch(context.Background(), NewEvent("fatigue:refresh")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after close, got %d", processed.Load())
	}

	_, err := d.Dispatch(context.Background(), NewEvent("fatigue:refresh"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// second close is a no-op
	d.Close()
}

func TestDispatcher_BufferedErrorLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		return nil, fmt.Errorf("launcher not found")
	}, Buffered(1))

	d.Dispatch(context.Background(), NewEvent("fatigue:refresh"))
	d.Close()

	found := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR: buffered event failed") {
			found = true
		}
	}
	if !found {
		t.Error("expected buffered failure to be logged")
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("mission:get", func(_ context.Context, e Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(context.Background(), Event{Command: "mission:get", Args: []string{"a", "b"}})

	if n := len(logger.snapshot()); n < 2 {
		t.Errorf("expected at least 2 log messages, got %d", n)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("mission:get", func(_ context.Context, e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(context.Background(), Event{Command: "mission:get"})

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	noop := func(context.Context, Event) (any, error) { return nil, nil }
	d.Register("mission:get", noop)
	d.Register("fatigue:status", noop)

	if !d.HasHandler("mission:get") {
		t.Error("expected handler to exist")
	}
	if d.HasHandler("mission:delete") {
		t.Error("expected handler to not exist")
	}

	want := []string{"fatigue:status", "mission:get"}
	if got := d.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32

	d.Register("fatigue:refresh", func(_ context.Context, e Event) (any, error) {
		processed.Add(1)
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(context.Background(), NewEvent("fatigue:refresh"))

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "queued" {
		t.Errorf("expected 'queued', got %v", result)
	}

	d.Close()

	if processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", processed.Load())
	}
	if n := len(logger.snapshot()); n < 2 {
		t.Errorf("expected log messages, got %d", n)
	}
}
