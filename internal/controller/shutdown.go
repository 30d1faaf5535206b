package controller

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// AddShutdownHook registers a function to be called during graceful shutdown.
// Hooks are executed in the order they were added.
func (c *Controller) AddShutdownHook(hook ShutdownHook) {
	c.shutdownHooks = append(c.shutdownHooks, hook)
}

// SetLogFlushFunc sets the function used to flush pending log writes.
// This is called with a timeout during shutdown to ensure logs are persisted.
func (c *Controller) SetLogFlushFunc(fn func() error) {
	c.logFlushFn = fn
}

// setupSignalHandler sets up OS signal handling for graceful shutdown.
// It returns a new context that will be cancelled when a shutdown signal is received.
func (c *Controller) setupSignalHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			c.logInfo("Received signal %v, stopping search", sig)
			cancel()
		case <-ctx.Done():
			// Context was cancelled by other means
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func (c *Controller) cleanup() {
	c.logInfo("Initiating graceful shutdown")
	c.gracefulShutdown()
}

// gracefulShutdown performs a controlled shutdown sequence:
// 1. Run registered shutdown hooks (cleanup unmount)
// 2. Flush pending log writes (with timeout)
// 3. Clear credentials from memory
// 4. Close the probe sink and the structured logger
func (c *Controller) gracefulShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		c.runShutdownHooks(ctx)

		c.flushLogs(ctx)

		c.clearSensitiveData()

		if c.sink != nil {
			if err := c.sink.Close(); err != nil {
				c.logWarning("failed to close probe sink: %v", err)
			}
		}

		c.logger.Printf("Graceful shutdown complete")

		if c.cloudLogger != nil {
			if err := c.cloudLogger.Close(); err != nil {
				c.logger.Printf("Warning: failed to close structured logger: %v", err)
			}
		}
	})
}

// flushLogs ensures all pending log writes are sent before shutdown.
// It uses a timeout to prevent blocking indefinitely on log flush.
func (c *Controller) flushLogs(ctx context.Context) {
	if c.logFlushFn == nil {
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, LogFlushTimeout)
	defer cancel()

	// Run flush in a goroutine so we can respect the timeout
	done := make(chan error, 1)
	go func() {
		done <- c.logFlushFn()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Printf("Warning: log flush completed with error: %v", err)
		}
	case <-flushCtx.Done():
		c.logger.Printf("Warning: log flush timed out, some logs may be lost")
	}
}

// runShutdownHooks executes all registered shutdown hooks in order.
// Each hook receives the shutdown context and should respect cancellation.
func (c *Controller) runShutdownHooks(ctx context.Context) {
	if len(c.shutdownHooks) == 0 {
		return
	}

	c.logInfo("Running %d shutdown hooks", len(c.shutdownHooks))

	for i, hook := range c.shutdownHooks {
		select {
		case <-ctx.Done():
			c.logWarning("shutdown timeout reached, skipping remaining %d hooks", len(c.shutdownHooks)-i)
			return
		default:
		}

		if err := hook(ctx); err != nil {
			c.logWarning("shutdown hook %d failed: %v", i+1, err)
		}
	}
}

// clearSensitiveData removes credentials from memory
func (c *Controller) clearSensitiveData() {
	if c.config == nil {
		return
	}
	c.config.Server.Password = ""
	c.config.Device.Password = ""
}
