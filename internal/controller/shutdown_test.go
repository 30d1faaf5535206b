package controller

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andywolf/mountrace/internal/config"
)

func TestGracefulShutdown_FlushLogs(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	flushed := false
	c.logFlushFn = func() error {
		flushed = true
		return nil
	}

	c.gracefulShutdown()

	if !flushed {
		t.Error("expected logFlushFn to be called during shutdown")
	}
}

func TestGracefulShutdown_FlushLogsWithError(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	c.logFlushFn = func() error {
		return errors.New("flush error")
	}

	// Should not panic even if flush returns error
	c.gracefulShutdown()
}

func TestGracefulShutdown_NoFlushFunc(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	c.gracefulShutdown()
}

func TestGracefulShutdown_RunsHooksInOrder(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	var order []int
	var mu sync.Mutex

	for i := 1; i <= 3; i++ {
		n := i
		c.AddShutdownHook(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		})
	}

	c.gracefulShutdown()

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 3 {
		t.Fatalf("expected 3 hooks to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("hook %d ran in position %d", v, i)
		}
	}
}

func TestGracefulShutdown_HookError(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	hookCalled := false
	c.AddShutdownHook(func(ctx context.Context) error {
		return errors.New("hook error")
	})
	c.AddShutdownHook(func(ctx context.Context) error {
		hookCalled = true
		return nil
	})

	// Should continue to next hook even if one fails
	c.gracefulShutdown()

	if !hookCalled {
		t.Error("second hook should still be called after first hook error")
	}
}

func TestGracefulShutdown_ClearsCredentials(t *testing.T) {
	cfg := config.Default()
	c := &Controller{
		config:     cfg,
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	c.gracefulShutdown()

	if cfg.Server.Password != "" {
		t.Error("server password should be cleared")
	}
	if cfg.Device.Password != "" {
		t.Error("device password should be cleared")
	}
}

func TestGracefulShutdown_OnlyRunsOnce(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	var callCount int32
	c.logFlushFn = func() error {
		atomic.AddInt32(&callCount, 1)
		return nil
	}

	// Call shutdown multiple times concurrently
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.gracefulShutdown()
		}()
	}
	wg.Wait()

	count := atomic.LoadInt32(&callCount)
	if count != 1 {
		t.Errorf("expected flush to be called exactly once, got %d", count)
	}
}

func TestGracefulShutdown_ClosesShutdownChannel(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	c.gracefulShutdown()

	select {
	case <-c.shutdownCh:
		// Expected - channel is closed
	default:
		t.Error("shutdownCh should be closed after gracefulShutdown")
	}
}

func TestGracefulShutdown_ClosesSink(t *testing.T) {
	sink := &memSink{}
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
		sink:       sink,
	}

	c.gracefulShutdown()

	if !sink.closed {
		t.Error("probe sink should be closed")
	}
}

func TestSetupSignalHandler_CancelContext(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	ctx, cancel := c.setupSignalHandler(context.Background())
	defer cancel()

	cancel()

	select {
	case <-ctx.Done():
		// Expected
	case <-time.After(time.Second):
		t.Error("context should be cancelled immediately")
	}
}

func TestAddShutdownHook(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	if len(c.shutdownHooks) != 0 {
		t.Errorf("expected 0 hooks initially, got %d", len(c.shutdownHooks))
	}

	c.AddShutdownHook(func(ctx context.Context) error { return nil })
	c.AddShutdownHook(func(ctx context.Context) error { return nil })

	if len(c.shutdownHooks) != 2 {
		t.Errorf("expected 2 hooks, got %d", len(c.shutdownHooks))
	}
}

func TestFlushLogs_RespectsContextTimeout(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	release := make(chan struct{})
	defer close(release)
	c.logFlushFn = func() error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	c.flushLogs(ctx)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("flushLogs should respect context timeout, took %v", elapsed)
	}
}

func TestGracefulShutdown_ShutdownSequenceOrder(t *testing.T) {
	c := &Controller{
		logger:     newTestLogger(),
		shutdownCh: make(chan struct{}),
	}

	var sequence []string
	var mu sync.Mutex

	c.logFlushFn = func() error {
		mu.Lock()
		sequence = append(sequence, "flush")
		mu.Unlock()
		return nil
	}

	c.AddShutdownHook(func(ctx context.Context) error {
		mu.Lock()
		sequence = append(sequence, "hook")
		mu.Unlock()
		return nil
	})

	c.gracefulShutdown()

	mu.Lock()
	defer mu.Unlock()

	// Hooks may log, so they run before the flush
	if len(sequence) != 2 || sequence[0] != "hook" || sequence[1] != "flush" {
		t.Errorf("sequence = %v, want [hook flush]", sequence)
	}
}

// newTestLogger creates a logger for testing that discards output
func newTestLogger() *log.Logger {
	return log.New(io.Discard, "[test] ", log.LstdFlags)
}
