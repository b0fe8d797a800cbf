package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"revstats/internal/config"
	"revstats/internal/logging"
)

// FileName returns the report file name for a run started at now.
func FileName(now time.Time, rng config.DateRange) string {
	switch {
	case rng.From == "":
		return fmt.Sprintf("widget_stats_yesterday_%s.csv", now.Format("20060102_1504"))
	case rng.To == "":
		return fmt.Sprintf("widget_stats_%s_to_today.csv", rng.From)
	default:
		return fmt.Sprintf("widget_stats_%s_%s.csv", rng.From, rng.To)
	}
}

// CSVSink writes report batches to a file, flushing after each batch.
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
	rows   int
	closed bool
}

// NewCSVSink creates (or truncates) dir/name, creating dir if needed.
func NewCSVSink(dir, name string) (*CSVSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", dir, err)
	}
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	logging.Logf(logging.Info, "Writing report to %s", path)
	return &CSVSink{path: path, file: file, writer: csv.NewWriter(file)}, nil
}

// Path is the report file path.
func (s *CSVSink) Path() string { return s.path }

// Rows is the number of data rows written so far.
func (s *CSVSink) Rows() int { return s.rows }

// WriteBatch writes the batch header (if any) and rows, then flushes.
func (s *CSVSink) WriteBatch(batch Batch) error {
	if s.closed {
		return fmt.Errorf("report file '%s' is closed", s.path)
	}
	if batch.Header != nil {
		if err := s.writer.Write(batch.Header); err != nil {
			return fmt.Errorf("failed to write report header: %w", err)
		}
	}
	if err := s.writer.WriteAll(batch.Rows); err != nil {
		return fmt.Errorf("failed to write report rows: %w", err)
	}
	s.rows += len(batch.Rows)
	return nil
}

// Close flushes and closes the file. Calling it again is a no-op.
func (s *CSVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush report file '%s': %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report file '%s': %w", s.path, closeErr)
	}
	return nil
}
