// Package observe turns the lifecycle server's log output into lifecycle
// events and answers "what has happened since the last check".
package observe

import (
	"sort"
	"strings"
)

// Event is a lifecycle event recognized in the server log.
type Event string

const (
	PromptResolved     Event = "PROMPT_RESOLVED"
	DeviceMounted      Event = "DEVICE_MOUNTED"
	DeviceDisconnected Event = "DEVICE_DISCONNECTED"
	MountConflict      Event = "MOUNT_CONFLICT"
	Unknown            Event = "UNKNOWN"
)

// Window is the set of distinct events seen during one read. It is built
// fresh for every read and never carries events over from an earlier one.
type Window map[Event]struct{}

// Add records e in the window.
func (w Window) Add(e Event) {
	w[e] = struct{}{}
}

// Has reports whether e was seen.
func (w Window) Has(e Event) bool {
	_, ok := w[e]
	return ok
}

// Empty reports whether nothing was seen ("no signal yet").
func (w Window) Empty() bool {
	return len(w) == 0
}

// Events returns the events in a stable order.
func (w Window) Events() []Event {
	out := make([]Event, 0, len(w))
	for e := range w {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w Window) String() string {
	if w.Empty() {
		return string(Unknown)
	}
	events := w.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = string(e)
	}
	return "{" + strings.Join(names, ",") + "}"
}
