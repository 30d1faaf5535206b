package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/andywolf/mountrace/internal/security"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// cloudSeverity maps a Severity onto the Cloud Logging enum.
func (s Severity) cloudSeverity() logging.Severity {
	return logging.ParseSeverity(string(s))
}

// LogEntry is the JSON shape written by FallbackLogger. Cloud Logging agents
// recognize the severity and message fields.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Cycle     int                    `json:"cycle"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerInterface defines the interface for structured logging operations
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetCycle(cycle int)
	Flush() error
	Close() error
}

// entryLogger is the subset of *logging.Logger used by CloudLogger.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudLogger sends entries to Cloud Logging through the logging client
// library. Entries are buffered by the library and sent in the background;
// Flush blocks until buffered entries are delivered.
type CloudLogger struct {
	logger    entryLogger
	closer    io.Closer
	runID     string
	cycle     int
	labels    map[string]string
	sanitizer *security.LogSanitizer
	mu        sync.Mutex
	closed    bool
}

// cloudLoggerConfig collects options for NewCloudLogger
type cloudLoggerConfig struct {
	labels        map[string]string
	sanitizer     *security.LogSanitizer
	clientOptions []option.ClientOption
}

// CloudLoggerOption allows configuring the CloudLogger
type CloudLoggerOption func(*cloudLoggerConfig)

// WithLabels adds custom labels to all log entries
func WithLabels(labels map[string]string) CloudLoggerOption {
	return func(c *cloudLoggerConfig) {
		for k, v := range labels {
			c.labels[k] = v
		}
	}
}

// WithSanitizer redacts credentials from every message before it is sent
func WithSanitizer(s *security.LogSanitizer) CloudLoggerOption {
	return func(c *cloudLoggerConfig) {
		c.sanitizer = s
	}
}

// WithClientOptions passes options through to the Cloud Logging client
func WithClientOptions(opts ...option.ClientOption) CloudLoggerOption {
	return func(c *cloudLoggerConfig) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

func newCloudLoggerConfig(runID string, opts []CloudLoggerOption) *cloudLoggerConfig {
	cfg := &cloudLoggerConfig{
		labels: map[string]string{
			"run_id":    runID,
			"component": "mountrace",
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sanitizer == nil {
		cfg.sanitizer = security.NewLogSanitizer()
	}
	cfg.labels = cfg.sanitizer.SanitizeMap(cfg.labels)
	return cfg
}

// NewCloudLogger creates a CloudLogger writing to logID in projectID.
func NewCloudLogger(ctx context.Context, projectID, logID, runID string, opts ...CloudLoggerOption) (*CloudLogger, error) {
	if projectID == "" {
		return nil, fmt.Errorf("cloud logging requires a project id")
	}

	cfg := newCloudLoggerConfig(runID, opts)

	client, err := logging.NewClient(ctx, projectID, cfg.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}

	logger := client.Logger(logID, logging.CommonLabels(cfg.labels))
	return newCloudLogger(logger, client, runID, cfg), nil
}

func newCloudLogger(logger entryLogger, closer io.Closer, runID string, cfg *cloudLoggerConfig) *CloudLogger {
	return &CloudLogger{
		logger:    logger,
		closer:    closer,
		runID:     runID,
		labels:    cfg.labels,
		sanitizer: cfg.sanitizer,
	}
}

// Log sends a structured log entry
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	payload := map[string]interface{}{
		"message": cl.sanitizer.Sanitize(message),
		"cycle":   cl.cycle,
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}

	cl.logger.Log(logging.Entry{
		Timestamp: time.Now().UTC(),
		Severity:  severity.cloudSeverity(),
		Payload:   payload,
	})
}

// LogInfo writes an INFO level log entry
func (cl *CloudLogger) LogInfo(message string) {
	cl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (cl *CloudLogger) LogWarning(message string) {
	cl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (cl *CloudLogger) LogError(message string) {
	cl.Log(SeverityError, message, nil)
}

// SetCycle updates the current search cycle for subsequent logs
func (cl *CloudLogger) SetCycle(cycle int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.cycle = cycle
}

// Flush blocks until buffered entries have been sent
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	return cl.logger.Flush()
}

// Close flushes remaining entries and closes the client
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true

	flushErr := cl.logger.Flush()
	if cl.closer != nil {
		if err := cl.closer.Close(); err != nil {
			return fmt.Errorf("failed to close cloud logging client: %w", err)
		}
	}
	return flushErr
}

// FallbackLogger is a structured logger that writes to a local io.Writer.
// It produces JSON-structured output compatible with Cloud Logging's
// structured log format, for hosts where a logging agent tails stdout.
type FallbackLogger struct {
	writer    io.Writer
	runID     string
	cycle     int
	labels    map[string]string
	sanitizer *security.LogSanitizer
	mu        sync.Mutex
}

// NewFallbackLogger creates a logger that writes structured JSON to the given writer
func NewFallbackLogger(writer io.Writer, runID string, opts ...CloudLoggerOption) *FallbackLogger {
	cfg := newCloudLoggerConfig(runID, opts)
	return &FallbackLogger{
		writer:    writer,
		runID:     runID,
		labels:    cfg.labels,
		sanitizer: cfg.sanitizer,
	}
}

// Log writes a structured log entry to the writer
func (fl *FallbackLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	entry := LogEntry{
		Severity:  severity,
		Message:   fl.sanitizer.Sanitize(message),
		Timestamp: time.Now().UTC(),
		RunID:     fl.runID,
		Cycle:     fl.cycle,
		Labels:    fl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(fl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(fl.writer, "%s\n", data)
}

// LogInfo writes an INFO level log entry
func (fl *FallbackLogger) LogInfo(message string) {
	fl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (fl *FallbackLogger) LogWarning(message string) {
	fl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (fl *FallbackLogger) LogError(message string) {
	fl.Log(SeverityError, message, nil)
}

// SetCycle updates the current search cycle for subsequent logs
func (fl *FallbackLogger) SetCycle(cycle int) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.cycle = cycle
}

// Flush is a no-op for the fallback logger (writes are synchronous)
func (fl *FallbackLogger) Flush() error {
	return nil
}

// Close is a no-op for the fallback logger
func (fl *FallbackLogger) Close() error {
	return nil
}

// NewLogger picks the structured logger for the environment. A non-empty
// projectID selects Cloud Logging; otherwise entries go to w as JSON lines.
func NewLogger(ctx context.Context, projectID, logID, runID string, w io.Writer, opts ...CloudLoggerOption) (LoggerInterface, error) {
	if projectID != "" {
		return NewCloudLogger(ctx, projectID, logID, runID, opts...)
	}
	return NewFallbackLogger(w, runID, opts...), nil
}

// Ensure CloudLogger implements LoggerInterface
var _ LoggerInterface = (*CloudLogger)(nil)

// Ensure FallbackLogger implements LoggerInterface
var _ LoggerInterface = (*FallbackLogger)(nil)
