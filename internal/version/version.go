// Package version provides build-time version information for mountrace.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set via ldflags.
// Example: go build -ldflags="-X github.com/andywolf/mountrace/internal/version.Version=v1.0.0"
var (
	// Version is the semantic version (e.g., "v1.2.3"). Set via ldflags.
	Version = "dev"

	// Commit is the git commit SHA. Set via ldflags.
	Commit = "unknown"

	// BuildDate is the RFC3339 timestamp of the build. Set via ldflags.
	BuildDate = "unknown"
)

// Short returns the version string (e.g., "v1.2.3" or "dev").
func Short() string {
	return Version
}

// shortCommit returns the first 7 characters of Commit.
func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Info returns a single-line version string with commit and build info.
// Format: "mountrace v1.2.3 (commit: abc1234, built: 2024-01-15T10:30:00Z, go: go1.24.x)"
func Info() string {
	return fmt.Sprintf("mountrace %s (commit: %s, built: %s, go: %s)",
		Version, shortCommit(), BuildDate, runtime.Version())
}

// Full returns a multi-line verbose version output.
func Full() string {
	return fmt.Sprintf(`mountrace %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s/%s`,
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies mountrace in lifecycle requests, e.g. "mountrace/v1.2.3 (abc1234)".
func UserAgent() string {
	return fmt.Sprintf("mountrace/%s (%s)", Version, shortCommit())
}
