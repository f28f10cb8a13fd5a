package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"poolMonitor/internal/model"
)

// JSONL writes pool updates as JSON lines.
type JSONL struct {
	mu     sync.Mutex
	writer *bufio.Writer
	closer io.Closer
}

// NewJSONL writes to w. The caller owns w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{writer: bufio.NewWriter(w)}
}

// OpenJSONL appends to the file at path, creating it and its directory if
// needed. "-" writes to stdout.
func OpenJSONL(path string) (*JSONL, error) {
	if path == "-" {
		return NewJSONL(os.Stdout), nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONL{writer: bufio.NewWriter(file), closer: file}, nil
}

// Put writes one line and flushes it.
func (s *JSONL) Put(_ context.Context, update model.PoolUpdate) error {
	line, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal pool update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("write pool update: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes pending output and closes the file, if one was opened.
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
