// Package events records the outcome of every race probe as JSON lines so a
// search run can be analyzed after the fact.
package events

import (
	"time"
)

// Outcome classifies how a single probe cycle ended.
type Outcome string

const (
	// OutcomeRaced means the unmount was issued after the prompt resolved and
	// before the mount was confirmed: the probe landed inside the race window.
	OutcomeRaced Outcome = "raced"
	// OutcomeMountedEarly means the mount was confirmed before the unmount was
	// issued; the delay ramp restarts at its floor.
	OutcomeMountedEarly Outcome = "mounted_early"
	// OutcomeNoConnect means the prompt never resolved within the connect timeout.
	OutcomeNoConnect Outcome = "no_connect"
	// OutcomeConflict means the server logged a duplicate mount point (fatal).
	OutcomeConflict Outcome = "conflict"
	// OutcomeInconsistent means the mount status query reported an inconsistency (fatal).
	OutcomeInconsistent Outcome = "inconsistent_status"
	// OutcomeTransportError means a lifecycle request could not be completed (fatal).
	OutcomeTransportError Outcome = "transport_error"
)

// Fatal reports whether the outcome stops the search.
func (o Outcome) Fatal() bool {
	switch o {
	case OutcomeConflict, OutcomeInconsistent, OutcomeTransportError:
		return true
	}
	return false
}

// ProbeRecord describes one probe cycle.
type ProbeRecord struct {
	// Timestamp is when the cycle finished.
	Timestamp time.Time `json:"timestamp"`

	// RunID identifies the search run.
	RunID string `json:"run_id"`

	// Cycle is the probe number within the run (1-indexed).
	Cycle int `json:"cycle"`

	// DelayMS is the race delay scheduled for this cycle in milliseconds.
	DelayMS int64 `json:"delay_ms"`

	// Outcome classifies the cycle.
	Outcome Outcome `json:"outcome"`

	// Connected is true when the prompt resolved before the connect timeout.
	Connected bool `json:"connected"`

	// Disconnected is true when the forced unmount was confirmed in the log.
	Disconnected bool `json:"disconnected"`

	// Healthy is true when the healthcheck mount settled and was torn down.
	Healthy bool `json:"healthy"`

	// DurationMS is the wall time of the whole cycle.
	DurationMS int64 `json:"duration_ms"`

	// Error carries the diagnostic for fatal outcomes.
	Error string `json:"error,omitempty"`
}
