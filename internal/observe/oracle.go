package observe

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/mountrace/internal/clock"
)

// DefaultPollInterval is the polling quantum used while waiting for an event.
const DefaultPollInterval = 10 * time.Millisecond

// LineSource yields log lines appended since the previous call.
// *logtail.Cursor satisfies it.
type LineSource interface {
	ReadNew() ([]string, error)
}

// Oracle owns the server log and reports lifecycle events seen in it.
type Oracle struct {
	source       LineSource
	classifier   *Classifier
	clock        clock.Clock
	pollInterval time.Duration
}

// NewOracle creates an oracle reading from source.
func NewOracle(source LineSource, classifier *Classifier, clk clock.Clock, pollInterval time.Duration) *Oracle {
	if clk == nil {
		clk = clock.Real()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Oracle{
		source:       source,
		classifier:   classifier,
		clock:        clk,
		pollInterval: pollInterval,
	}
}

// Observe reads the lines appended since the last call and classifies them.
// The returned window holds only those lines' events.
func (o *Oracle) Observe() (Window, error) {
	lines, err := o.source.ReadNew()
	if err != nil {
		return nil, fmt.Errorf("failed to read server log: %w", err)
	}
	window, err := o.classifier.Classify(lines)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// WaitFor polls until a read contains event or timeout elapses. It returns
// the window in which event appeared so the caller can inspect events that
// arrived alongside it. A timeout is reported as found=false with a nil
// error; errors are fatal (conflict, unreadable log) or ctx cancellation.
func (o *Oracle) WaitFor(ctx context.Context, event Event, timeout time.Duration) (Window, bool, error) {
	deadline := o.clock.Now().Add(timeout)
	for {
		window, err := o.Observe()
		if err != nil {
			return nil, false, err
		}
		if window.Has(event) {
			return window, true, nil
		}
		if !o.clock.Now().Before(deadline) {
			return nil, false, nil
		}
		if err := o.clock.Sleep(ctx, o.pollInterval); err != nil {
			return nil, false, err
		}
	}
}

// Drain discards the backlog without classifying it, so events written by an
// earlier run are not mistaken for this one's. It returns the number of
// discarded lines.
func (o *Oracle) Drain() (int, error) {
	total := 0
	for {
		lines, err := o.source.ReadNew()
		if err != nil {
			return total, fmt.Errorf("failed to read server log: %w", err)
		}
		if len(lines) == 0 {
			return total, nil
		}
		total += len(lines)
	}
}
