// Package controller runs the race-window search: it mounts a device,
// unmounts it after a scheduled delay once the connection is observed, and
// re-synchronizes the server before the next probe.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/andywolf/mountrace/internal/clock"
	"github.com/andywolf/mountrace/internal/cloud/gcp"
	"github.com/andywolf/mountrace/internal/config"
	"github.com/andywolf/mountrace/internal/device"
	"github.com/andywolf/mountrace/internal/events"
	"github.com/andywolf/mountrace/internal/observe"
)

const (
	// ShutdownTimeout bounds the whole shutdown sequence
	ShutdownTimeout = 30 * time.Second

	// LogFlushTimeout bounds flushing the structured logger during shutdown
	LogFlushTimeout = 5 * time.Second
)

// ShutdownHook is run once during graceful shutdown
type ShutdownHook func(ctx context.Context) error

// ProbeSink receives one record per probe cycle. *events.FileSink satisfies it.
type ProbeSink interface {
	WriteOne(record events.ProbeRecord) error
	Close() error
}

// Deps are the collaborators of a Controller. Client and Oracle are
// required; the rest default to the real clock, stdout logging and no sink.
type Deps struct {
	Client      device.Client
	Oracle      *observe.Oracle
	Clock       clock.Clock
	Sink        ProbeSink
	CloudLogger gcp.LoggerInterface
	Logger      *log.Logger
}

// Controller drives the race-window search
type Controller struct {
	config      *config.Config
	runID       string
	client      device.Client
	oracle      *observe.Oracle
	clock       clock.Clock
	sink        ProbeSink
	cloudLogger gcp.LoggerInterface // may be nil
	logger      *log.Logger
	schedule    *DelaySchedule
	cycle       int
	state       State

	shutdownHooks []ShutdownHook
	logFlushFn    func() error
	shutdownOnce  sync.Once
	shutdownCh    chan struct{}
}

// New creates a search controller
func New(cfg *config.Config, runID string, deps Deps) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Client == nil {
		return nil, errors.New("lifecycle client is required")
	}
	if deps.Oracle == nil {
		return nil, errors.New("observation oracle is required")
	}

	schedule, err := NewDelaySchedule(cfg.Search.Floor, cfg.Search.Ceiling, cfg.Search.Step)
	if err != nil {
		return nil, fmt.Errorf("invalid delay schedule: %w", err)
	}

	c := &Controller{
		config:      cfg,
		runID:       runID,
		client:      deps.Client,
		oracle:      deps.Oracle,
		clock:       deps.Clock,
		sink:        deps.Sink,
		cloudLogger: deps.CloudLogger,
		logger:      deps.Logger,
		schedule:    schedule,
		shutdownCh:  make(chan struct{}),
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = log.New(os.Stdout, "[mountrace] ", log.LstdFlags)
	}
	if c.cloudLogger != nil {
		c.SetLogFlushFunc(c.cloudLogger.Flush)
	}
	if cfg.Search.CleanupUnmount {
		c.AddShutdownHook(c.cleanupUnmount)
	}

	return c, nil
}

// Run executes the search loop until a fatal condition, the configured
// cycle limit, or cancellation of ctx (including SIGINT/SIGTERM). External
// termination returns nil; fatal conditions are returned as errors.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := c.setupSignalHandler(ctx)
	defer cancel()
	defer c.cleanup()

	s := c.config.Search
	c.logInfo("Starting search run %s", c.runID)
	c.logInfo("Server: %s, node: %s", c.config.Server.BaseURL, c.config.Server.NodeID)
	c.logInfo("Delay ramp: %s to %s in steps of %s", s.Floor, s.Ceiling, s.Step)

	for {
		if ctx.Err() != nil {
			c.logInfo("Search stopped after %d cycles", c.cycle)
			return nil
		}
		if s.MaxCycles > 0 && c.cycle >= s.MaxCycles {
			c.logInfo("Reached cycle limit (%d), stopping search", s.MaxCycles)
			return nil
		}

		c.cycle++
		if c.cloudLogger != nil {
			c.cloudLogger.SetCycle(c.cycle)
		}

		record, err := c.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logInfo("Search interrupted during %s of cycle %d", c.state, c.cycle)
				return nil
			}
			record.Outcome = fatalOutcome(err)
			record.Error = err.Error()
			c.recordProbe(record)
			c.logError("%s during %s of cycle %d: %v", record.Outcome, c.state, c.cycle, err)
			return fmt.Errorf("search halted in cycle %d: %w", c.cycle, err)
		}

		c.recordProbe(record)

		if record.Outcome == events.OutcomeMountedEarly {
			c.schedule.Reset()
			continue
		}
		if c.schedule.Advance() {
			c.logInfo("Delay ramp reached %s, restarting at %s", c.schedule.Ceiling(), c.schedule.Floor())
		}
	}
}

// Cycle returns the number of the current (or last) probe cycle.
func (c *Controller) Cycle() int {
	return c.cycle
}

// Schedule exposes the delay ramp
func (c *Controller) Schedule() *DelaySchedule {
	return c.schedule
}

// recordProbe writes the record to the probe sink and the structured log.
// Sink failures are logged and do not stop the search.
func (c *Controller) recordProbe(record events.ProbeRecord) {
	if c.sink != nil {
		if err := c.sink.WriteOne(record); err != nil {
			c.logWarning("failed to record probe %d: %v", record.Cycle, err)
		}
	}

	c.logInfo("Cycle %d: delay=%dms outcome=%s connected=%t disconnected=%t healthy=%t",
		record.Cycle, record.DelayMS, record.Outcome, record.Connected, record.Disconnected, record.Healthy)

	if c.cloudLogger == nil {
		return
	}
	severity := gcp.SeverityInfo
	switch {
	case record.Outcome.Fatal():
		severity = gcp.SeverityCritical
	case !record.Healthy:
		severity = gcp.SeverityWarning
	}
	c.cloudLogger.Log(severity, fmt.Sprintf("probe %s", record.Outcome), map[string]interface{}{
		"delay_ms":     record.DelayMS,
		"outcome":      string(record.Outcome),
		"connected":    record.Connected,
		"disconnected": record.Disconnected,
		"healthy":      record.Healthy,
		"duration_ms":  record.DurationMS,
	})
}

// fatalOutcome maps a cycle error onto the outcome recorded for it
func fatalOutcome(err error) events.Outcome {
	switch {
	case errors.Is(err, observe.ErrMountConflict):
		return events.OutcomeConflict
	case errors.Is(err, device.ErrInconsistentStatus):
		return events.OutcomeInconsistent
	default:
		return events.OutcomeTransportError
	}
}
