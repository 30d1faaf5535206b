package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileSink writes ProbeRecords to a JSONL file.
// It is safe for concurrent use from multiple goroutines.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewFileSink creates a FileSink appending to path. Missing parent
// directories are created.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create probes directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open probes file: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write writes a batch of records, one JSON object per line.
func (s *FileSink) Write(records []ProbeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("probes file %s is closed", s.path)
	}

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal probe record: %w", err)
		}

		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write probe record: %w", err)
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	// Flush so a killed process keeps every finished probe
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush probe records: %w", err)
	}

	return nil
}

// WriteOne writes a single record.
func (s *FileSink) WriteOne(record ProbeRecord) error {
	return s.Write([]ProbeRecord{record})
}

// Close flushes any remaining data and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		// Still try to close the file even if flush fails
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}

	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("failed to close probes file: %w", err)
	}

	s.file = nil
	return nil
}

// Path returns the path to the probes file.
func (s *FileSink) Path() string {
	return s.path
}

// ReadRecords reads all records from a JSONL file.
func ReadRecords(path string) ([]ProbeRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open probes file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []ProbeRecord
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record ProbeRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse probe record on line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read probes file: %w", err)
	}

	return records, nil
}

// FilterByOutcome filters records by outcome.
// With no outcomes given, all records are returned.
func FilterByOutcome(records []ProbeRecord, outcomes ...Outcome) []ProbeRecord {
	if len(outcomes) == 0 {
		return records
	}

	set := make(map[Outcome]bool)
	for _, o := range outcomes {
		set[o] = true
	}

	var filtered []ProbeRecord
	for _, record := range records {
		if set[record.Outcome] {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// FilterByRun filters records by run id. An empty id returns all records.
func FilterByRun(records []ProbeRecord, runID string) []ProbeRecord {
	if runID == "" {
		return records
	}

	var filtered []ProbeRecord
	for _, record := range records {
		if record.RunID == runID {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// DelaySummary aggregates the probes run at one delay.
type DelaySummary struct {
	DelayMS   int64
	Probes    int
	Outcomes  map[Outcome]int
	Unhealthy int
}

// SummarizeByDelay groups records by delay, ordered by delay.
func SummarizeByDelay(records []ProbeRecord) []DelaySummary {
	byDelay := make(map[int64]*DelaySummary)
	for _, r := range records {
		s, ok := byDelay[r.DelayMS]
		if !ok {
			s = &DelaySummary{DelayMS: r.DelayMS, Outcomes: make(map[Outcome]int)}
			byDelay[r.DelayMS] = s
		}
		s.Probes++
		s.Outcomes[r.Outcome]++
		if !r.Healthy && !r.Outcome.Fatal() {
			s.Unhealthy++
		}
	}

	out := make([]DelaySummary, 0, len(byDelay))
	for _, s := range byDelay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DelayMS < out[j].DelayMS })
	return out
}
