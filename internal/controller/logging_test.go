package controller

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/andywolf/mountrace/internal/cloud/gcp"
	"github.com/andywolf/mountrace/internal/config"
)

func TestLogHelpers(t *testing.T) {
	var local, structured bytes.Buffer
	c := &Controller{
		config:      config.Default(),
		logger:      log.New(&local, "", 0),
		cloudLogger: gcp.NewFallbackLogger(&structured, "run-1"),
	}

	c.logInfo("cycle %d", 1)
	c.logWarning("no %s", "disconnect")
	c.logError("halted")

	wantLocal := "cycle 1\nWarning: no disconnect\nError: halted\n"
	if local.String() != wantLocal {
		t.Errorf("local log = %q, want %q", local.String(), wantLocal)
	}

	lines := strings.Split(strings.TrimSpace(structured.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 structured entries, got %d", len(lines))
	}
	wantSeverity := []gcp.Severity{gcp.SeverityInfo, gcp.SeverityWarning, gcp.SeverityError}
	for i, line := range lines {
		var entry gcp.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if entry.Severity != wantSeverity[i] {
			t.Errorf("entry %d severity = %q, want %q", i, entry.Severity, wantSeverity[i])
		}
	}
}

func TestLogHelpers_NilCloudLogger(t *testing.T) {
	var local bytes.Buffer
	c := &Controller{logger: log.New(&local, "", 0)}

	// Should not panic when cloudLogger is nil
	c.logInfo("info")
	c.logWarning("warning")
	c.logError("error")

	if !strings.Contains(local.String(), "Warning: warning") {
		t.Errorf("local log = %q", local.String())
	}
}

func TestLogDebug_OnlyWhenVerbose(t *testing.T) {
	var local bytes.Buffer
	cfg := config.Default()
	c := &Controller{config: cfg, logger: log.New(&local, "", 0)}

	c.logDebug("hidden")
	if local.Len() != 0 {
		t.Errorf("debug output without verbose: %q", local.String())
	}

	cfg.Logging.Verbose = true
	c.logDebug("state %s", StateRaceSleep)
	if local.String() != "Debug: state RACE_SLEEP\n" {
		t.Errorf("debug output = %q", local.String())
	}
}
