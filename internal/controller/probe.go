package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/mountrace/internal/device"
	"github.com/andywolf/mountrace/internal/events"
	"github.com/andywolf/mountrace/internal/observe"
)

// State is a step of one probe cycle
type State string

const (
	StateIdle         State = "IDLE"
	StateMounting     State = "MOUNTING"
	StateAwaitConnect State = "AWAIT_CONNECT"
	StateRaceSleep    State = "RACE_SLEEP"
	StateCheckOutcome State = "CHECK_OUTCOME"
	StateForceResync  State = "FORCE_RESYNC"
	StateHealthcheck  State = "HEALTHCHECK"
	StateStatusCheck  State = "STATUS_CHECK"
)

func (c *Controller) enter(state State) {
	c.state = state
	c.logDebug("cycle %d: %s", c.cycle, state)
}

// runCycle executes one probe. The returned record is filled in as far as
// the cycle got; a non-nil error is fatal or a cancellation.
func (c *Controller) runCycle(ctx context.Context) (events.ProbeRecord, error) {
	s := c.config.Search
	node := c.config.Server.NodeID
	delay := c.schedule.Current()
	start := c.clock.Now()

	record := events.ProbeRecord{
		RunID:   c.runID,
		Cycle:   c.cycle,
		DelayMS: delay.Milliseconds(),
	}
	finish := func() events.ProbeRecord {
		now := c.clock.Now()
		record.Timestamp = now
		record.DurationMS = now.Sub(start).Milliseconds()
		return record
	}

	c.enter(StateMounting)
	if err := c.client.Mount(ctx, node, c.config.Device); err != nil {
		return finish(), err
	}

	c.enter(StateAwaitConnect)
	window, connected, err := c.oracle.WaitFor(ctx, observe.PromptResolved, s.ConnectTimeout)
	if err != nil {
		return finish(), err
	}
	record.Connected = connected

	if !connected {
		record.Outcome = events.OutcomeNoConnect
		c.logWarning("no %s within %s, skipping race and waiting %s", observe.PromptResolved, s.ConnectTimeout, s.Ceiling)
		if err := c.clock.Sleep(ctx, s.Ceiling); err != nil {
			return finish(), err
		}
	} else {
		// A mount confirmed in the same read as the prompt already beat the probe
		mountedEarly := window.Has(observe.DeviceMounted)

		c.enter(StateRaceSleep)
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return finish(), err
		}

		c.enter(StateCheckOutcome)
		window, err = c.oracle.Observe()
		if err != nil {
			return finish(), err
		}
		c.logDebug("cycle %d: window before unmount %s", c.cycle, window)
		if window.Has(observe.DeviceMounted) {
			mountedEarly = true
		}

		if mountedEarly {
			record.Outcome = events.OutcomeMountedEarly
		} else {
			record.Outcome = events.OutcomeRaced
		}
	}

	c.enter(StateForceResync)
	disconnected, err := c.resync(ctx)
	if err != nil {
		return finish(), err
	}
	record.Disconnected = disconnected

	c.enter(StateHealthcheck)
	healthy, err := c.healthcheck(ctx)
	if err != nil {
		return finish(), err
	}
	record.Healthy = healthy

	if s.StatusCheck {
		c.enter(StateStatusCheck)
		if err := c.checkStatus(ctx); err != nil {
			return finish(), err
		}
	}

	c.enter(StateIdle)
	return finish(), nil
}

// resync issues the unmount once and waits for the server to report the
// disconnect. A missing disconnect is logged and reported as false.
func (c *Controller) resync(ctx context.Context) (bool, error) {
	node := c.config.Server.NodeID
	timeout := c.config.Search.UnmountTimeout

	if err := c.client.Unmount(ctx, node); err != nil {
		return false, err
	}

	window, ok, err := c.oracle.WaitFor(ctx, observe.DeviceDisconnected, timeout)
	if err != nil {
		return false, err
	}
	if !ok {
		c.logWarning("no %s within %s after unmounting %s", observe.DeviceDisconnected, timeout, node)
		return false, nil
	}
	if window.Has(observe.DeviceMounted) {
		c.logDebug("cycle %d: mount confirmed alongside disconnect", c.cycle)
	}
	return true, nil
}

// healthcheck mounts without any race, waits for the mount to settle, then
// tears it down again. Timeouts make the check unhealthy but are not fatal.
func (c *Controller) healthcheck(ctx context.Context) (bool, error) {
	s := c.config.Search
	node := c.config.Server.NodeID

	if err := c.client.Mount(ctx, node, c.config.Device); err != nil {
		return false, err
	}

	settled := false
	window, connected, err := c.oracle.WaitFor(ctx, observe.PromptResolved, s.ConnectTimeout)
	if err != nil {
		return false, err
	}
	switch {
	case !connected:
		c.logWarning("healthcheck: no %s within %s", observe.PromptResolved, s.ConnectTimeout)
	case window.Has(observe.DeviceMounted):
		settled = true
	default:
		_, settled, err = c.oracle.WaitFor(ctx, observe.DeviceMounted, s.HealthcheckTimeout)
		if err != nil {
			return false, err
		}
		if !settled {
			c.logWarning("healthcheck: no %s within %s", observe.DeviceMounted, s.HealthcheckTimeout)
		}
	}

	disconnected, err := c.resync(ctx)
	if err != nil {
		return false, err
	}
	return settled && disconnected, nil
}

// checkStatus queries the operational topology and fails when it carries
// the inconsistency marker.
func (c *Controller) checkStatus(ctx context.Context) error {
	status, err := c.client.MountStatus(ctx, c.config.Server.Topology)
	if err != nil {
		return err
	}
	if err := device.CheckStatus(status, c.config.Search.StatusMarker); err != nil {
		return fmt.Errorf("topology %s: %w", c.config.Server.Topology, err)
	}
	return nil
}

// cleanupUnmount is registered as a shutdown hook when cleanup_unmount is
// enabled. It leaves the node unmounted on exit.
func (c *Controller) cleanupUnmount(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Search.UnmountTimeout+time.Second)
	defer cancel()

	c.logInfo("Unmounting %s before exit", c.config.Server.NodeID)
	if err := c.client.Unmount(ctx, c.config.Server.NodeID); err != nil {
		return fmt.Errorf("cleanup unmount: %w", err)
	}
	return nil
}
