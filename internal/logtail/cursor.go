// Package logtail follows an append-only log file that may be rotated or
// truncated by its writer, returning only the lines appended since the
// previous read.
//
// Rotation is detected by comparing the current file length with the length
// observed on the previous read: a shrink means the file was truncated or
// replaced, and reading restarts at offset 0 of a freshly opened handle.
// A replacement that grows past the previous length between two reads is not
// detected; with the short poll interval used by the search loop this does not
// happen in practice.
package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"unicode/utf8"
)

// maxReadChunk bounds how much of the backlog a single ReadNew consumes.
const maxReadChunk = 1 << 20

// Cursor tracks a read position into a log file.
type Cursor struct {
	path     string
	file     *os.File
	offset   int64
	lastSize int64
	skipped  int
	logger   *log.Logger
}

// Open binds a cursor to path. The cursor starts at offset 0, so the first
// ReadNew returns the existing content; callers that only care about new
// output discard it once.
func Open(path string, logger *log.Logger) (*Cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat log file %s: %w", path, err)
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Cursor{
		path:     path,
		file:     file,
		lastSize: info.Size(),
		logger:   logger,
	}, nil
}

// ReadNew returns the complete lines appended since the last call.
// A trailing line without its newline is left for a later call. Lines that
// are not valid UTF-8 are skipped.
func (c *Cursor) ReadNew() ([]string, error) {
	if c.file == nil {
		return nil, fmt.Errorf("log cursor for %s is closed", c.path)
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Writer moved the file away and has not recreated it yet.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat log file %s: %w", c.path, err)
	}

	size := info.Size()
	if size < c.lastSize || size < c.offset {
		c.logger.Printf("Warning: detected log rotation on %s (new length: %d, old length: %d), reading from start",
			c.path, size, c.lastSize)
		if err := c.reopen(); err != nil {
			return nil, err
		}
		c.offset = 0
	}
	c.lastSize = size

	pending := size - c.offset
	if pending <= 0 {
		return nil, nil
	}
	if pending > maxReadChunk {
		pending = maxReadChunk
	}

	buf := make([]byte, pending)
	n, err := c.file.ReadAt(buf, c.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read log file %s: %w", c.path, err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		if n < maxReadChunk {
			return nil, nil
		}
		// A full chunk with no newline cannot be a marker line; drop it.
		c.offset += int64(n)
		c.skipped++
		return nil, nil
	}

	c.offset += int64(end + 1)
	return c.splitLines(buf[:end+1]), nil
}

// Offset returns the byte offset of the next unread line.
func (c *Cursor) Offset() int64 {
	return c.offset
}

// Skipped returns how many undecodable or oversized lines were dropped.
func (c *Cursor) Skipped() int {
	return c.skipped
}

// Path returns the log file path.
func (c *Cursor) Path() string {
	return c.path
}

// Close releases the underlying file handle.
func (c *Cursor) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file %s: %w", c.path, err)
	}
	return nil
}

func (c *Cursor) reopen() error {
	file, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("failed to reopen rotated log file %s: %w", c.path, err)
	}
	_ = c.file.Close()
	c.file = file
	return nil
}

func (c *Cursor) splitLines(data []byte) []string {
	raw := bytes.Split(data, []byte{'\n'})
	lines := make([]string, 0, len(raw))
	// data ends with '\n', so the last element is always empty.
	for _, line := range raw[:len(raw)-1] {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if !utf8.Valid(line) {
			c.skipped++
			continue
		}
		lines = append(lines, string(line))
	}
	return lines
}
