// Package annotation collects one manifest record per written clip and writes them as path|text lines.
package annotation

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record is one manifest line
type Record struct {
	Path string
	Text string
}

// FormatLine renders r as "path|text\n"
func FormatLine(r Record) string {
	return r.Path + "|" + r.Text + "\n"
}

// textCleaner keeps each record on one line with exactly one field separator
var textCleaner = strings.NewReplacer("\r\n", "", "\n", "", "\r", "", "|", "")

// Accumulator keeps records in insertion order until they are flushed
type Accumulator struct {
	mu      sync.Mutex
	records []Record
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Record appends a record. Line breaks and '|' are removed from text so each record
// stays on one line and splits unambiguously at its first separator.
func (a *Accumulator) Record(path, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, Record{Path: path, Text: textCleaner.Replace(text)})
}

// Append adds records collected elsewhere, keeping their order
func (a *Accumulator) Append(records ...Record) {
	for _, r := range records {
		a.Record(r.Path, r.Text)
	}
}

// Len returns the number of records
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a copy of the records in insertion order
func (a *Accumulator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// Flush writes every record to path, replacing any previous file.
// Nothing is visible at path until the complete file has been written.
func (a *Accumulator) Flush(path string) error {
	records := a.Records()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create annotation directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".anno-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create annotation temp file: %w", err)
	}
	tmpName := tmp.Name()

	bw := bufio.NewWriter(tmp)
	for _, r := range records {
		if _, err := bw.WriteString(FormatLine(r)); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to write annotation: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write annotation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close annotation temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set annotation permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move annotation into place: %w", err)
	}
	return nil
}
