package controller

import (
	"fmt"
	"time"
)

// DelaySchedule is the ramp of race delays probed by the search. Current
// always lies in [floor, ceiling).
type DelaySchedule struct {
	floor   time.Duration
	ceiling time.Duration
	step    time.Duration
	current time.Duration
}

// NewDelaySchedule creates a schedule starting at floor.
func NewDelaySchedule(floor, ceiling, step time.Duration) (*DelaySchedule, error) {
	if floor < 0 {
		return nil, fmt.Errorf("delay floor must not be negative, got %s", floor)
	}
	if ceiling <= floor {
		return nil, fmt.Errorf("delay ceiling (%s) must be greater than floor (%s)", ceiling, floor)
	}
	if step <= 0 {
		return nil, fmt.Errorf("delay step must be positive, got %s", step)
	}
	return &DelaySchedule{
		floor:   floor,
		ceiling: ceiling,
		step:    step,
		current: floor,
	}, nil
}

// Current returns the delay for the next probe.
func (s *DelaySchedule) Current() time.Duration { return s.current }

// Floor returns the lowest delay of the ramp.
func (s *DelaySchedule) Floor() time.Duration { return s.floor }

// Ceiling returns the exclusive upper bound of the ramp.
func (s *DelaySchedule) Ceiling() time.Duration { return s.ceiling }

// Advance moves to the next delay, wrapping to floor when the ceiling is
// reached. It reports whether the ramp wrapped.
func (s *DelaySchedule) Advance() bool {
	s.current += s.step
	if s.current >= s.ceiling {
		s.current = s.floor
		return true
	}
	return false
}

// Reset restarts the ramp at floor.
func (s *DelaySchedule) Reset() {
	s.current = s.floor
}
