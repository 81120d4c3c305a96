package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JSONLinesSink appends accepted records to the output file, one JSON object
// per line, syncing after every write so a crash leaves all previously
// flushed records intact. Non-fatal failures go to a sibling
// <output>.failures.jsonl log.
type JSONLinesSink struct {
	mu       sync.Mutex
	out      *os.File
	failures *os.File
	logger   *zap.Logger
	closed   bool
}

type failureEntry struct {
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewJSONLinesSink opens (creating or appending) the output file and its
// failure log. Open errors wrap ErrOutputFile so the CLI can map them to the
// right exit code.
func NewJSONLinesSink(path string, logger *zap.Logger) (*JSONLinesSink, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrOutputFile, path, err)
	}
	failures, err := os.OpenFile(failurePath(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		cerr := out.Close()
		if cerr != nil {
			logger.Debug("close output after failure-log error", zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrOutputFile, failurePath(path), err)
	}
	return &JSONLinesSink{out: out, failures: failures, logger: logger}, nil
}

func failurePath(outputPath string) string {
	base := strings.TrimSuffix(outputPath, ".json")
	base = strings.TrimSuffix(base, ".jsonl")
	return base + ".failures.jsonl"
}

// Write appends one record and syncs it to disk.
func (s *JSONLinesSink) Write(record PageRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: sink closed", ErrOutputFile)
	}
	if _, err := s.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("%w: write record: %v", ErrOutputFile, err)
	}
	if err := s.out.Sync(); err != nil {
		return fmt.Errorf("%w: sync output: %v", ErrOutputFile, err)
	}
	return nil
}

// WriteFailure appends one failure entry. Failure-log errors are logged, not
// propagated; the failure log must never halt traversal.
func (s *JSONLinesSink) WriteFailure(url, reason string, at time.Time) error {
	payload, err := json.Marshal(failureEntry{URL: url, Reason: reason, Timestamp: at})
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if _, err := s.failures.Write(append(payload, '\n')); err != nil {
		s.logger.Warn("write failure log", zap.Error(err))
	}
	return nil
}

// Close flushes and closes both files. Safe to call once.
func (s *JSONLinesSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, f := range []*os.File{s.out, s.failures} {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("close sink: %w", firstErr)
	}
	return nil
}
