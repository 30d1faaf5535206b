package observe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMountConflict is returned when the server logs a duplicate mount point.
// It is fatal: the search must stop.
var ErrMountConflict = errors.New("mount point conflict detected")

// Markers are the substrings that identify each lifecycle event in a log line.
type Markers struct {
	Conflict     string `mapstructure:"conflict" yaml:"conflict"`
	Mounted      string `mapstructure:"mounted" yaml:"mounted"`
	Prompt       string `mapstructure:"prompt" yaml:"prompt"`
	Disconnected string `mapstructure:"disconnected" yaml:"disconnected"`
}

// DefaultMarkers returns the markers printed by the CLI mount point
// implementation of the lifecycle server.
func DefaultMarkers() Markers {
	return Markers{
		Conflict:     "Mount point already exists",
		Mounted:      "Device successfully mounted",
		Prompt:       "Prompt resolved",
		Disconnected: "Device state updated successfully: onDeviceDisconnected",
	}
}

// Validate checks that every marker is set.
func (m Markers) Validate() error {
	switch {
	case m.Conflict == "":
		return fmt.Errorf("conflict marker is required")
	case m.Mounted == "":
		return fmt.Errorf("mounted marker is required")
	case m.Prompt == "":
		return fmt.Errorf("prompt marker is required")
	case m.Disconnected == "":
		return fmt.Errorf("disconnected marker is required")
	}
	return nil
}

// Classifier maps raw log lines to lifecycle events.
type Classifier struct {
	rules    []rule
	conflict string
}

type rule struct {
	marker string
	event  Event
}

// NewClassifier creates a classifier. Priority per line is fixed: conflict,
// mounted, prompt resolved, disconnected.
func NewClassifier(m Markers) *Classifier {
	return &Classifier{
		conflict: m.Conflict,
		rules: []rule{
			{marker: m.Mounted, event: DeviceMounted},
			{marker: m.Prompt, event: PromptResolved},
			{marker: m.Disconnected, event: DeviceDisconnected},
		},
	}
}

// Classify returns the set of events found in lines. The first matching
// marker wins for each line. A conflict line anywhere in the batch aborts
// classification with ErrMountConflict, regardless of what else the batch
// contains.
func (c *Classifier) Classify(lines []string) (Window, error) {
	window := make(Window)
	for _, line := range lines {
		if c.conflict != "" && strings.Contains(line, c.conflict) {
			return nil, fmt.Errorf("%w: %s", ErrMountConflict, strings.TrimSpace(line))
		}
		for _, r := range c.rules {
			if r.marker != "" && strings.Contains(line, r.marker) {
				window.Add(r.event)
				break
			}
		}
	}
	return window, nil
}
