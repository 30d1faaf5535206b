package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInconsistentStatus is returned when a mount status response contains the
// configured inconsistency marker.
var ErrInconsistentStatus = errors.New("mount status reports an inconsistent mount point")

// MountParams describes the device connection registered by a mount request
type MountParams struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	TransportType     string `mapstructure:"transport_type" yaml:"transport_type"` // "telnet" or "ssh"
	DeviceType        string `mapstructure:"device_type" yaml:"device_type"`       // e.g. "ios xr"
	DeviceVersion     string `mapstructure:"device_version" yaml:"device_version"`
	Username          string `mapstructure:"username" yaml:"username"`
	Password          string `mapstructure:"password" yaml:"password,omitempty"`
	PasswordSecret    string `mapstructure:"password_secret" yaml:"password_secret,omitempty"` // Secret Manager path, overrides Password
	Reconcile         bool   `mapstructure:"reconcile" yaml:"reconcile"`
	JournalSize       int    `mapstructure:"journal_size" yaml:"journal_size"`
	DryRunJournalSize int    `mapstructure:"dry_run_journal_size" yaml:"dry_run_journal_size"`
	KeepaliveTimeout  int    `mapstructure:"keepalive_timeout" yaml:"keepalive_timeout"` // seconds
}

// Client drives the mount point lifecycle on the server.
// Mount and Unmount return once the server accepted the request, not once the
// device is actually mounted or unmounted; completion is observed in the log.
type Client interface {
	// Mount creates or replaces the mount point nodeID
	Mount(ctx context.Context, nodeID string, params MountParams) error

	// Unmount deletes the mount point nodeID
	Unmount(ctx context.Context, nodeID string) error

	// MountStatus returns the raw operational view of a topology
	MountStatus(ctx context.Context, topology string) (string, error)
}

// RequestError is returned when a lifecycle request could not be completed:
// either the transport failed (StatusCode == 0) or the server answered with a
// non-success status.
type RequestError struct {
	Op         string // "mount", "unmount" or "status"
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request to %s failed: %v", e.Op, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s request to %s returned status %d: %s", e.Op, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s request to %s returned status %d", e.Op, e.URL, e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// CheckStatus returns ErrInconsistentStatus when status contains marker.
func CheckStatus(status, marker string) error {
	if marker == "" {
		return nil
	}
	if idx := strings.Index(status, marker); idx >= 0 {
		end := idx + len(marker) + 80
		if end > len(status) {
			end = len(status)
		}
		return fmt.Errorf("%w: %s", ErrInconsistentStatus, status[idx:end])
	}
	return nil
}
