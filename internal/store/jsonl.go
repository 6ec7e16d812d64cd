package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// ErrClosed is returned when appending to a closed store
var ErrClosed = errors.New("store: closed")

// JSONL appends one JSON document per line to a file.
// Each record is written with a single write call while holding the lock,
// so concurrent appends never interleave.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenJSONL opens (or creates) path for appending. Existing lines are never rewritten.
func OpenJSONL(path string) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create record directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}

	return &JSONL{file: f, path: path}, nil
}

// Append serializes rec and writes it as one line
func (s *JSONL) Append(_ context.Context, rec *record.FineTuneRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the document with '\n'
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync record file: %w", err)
	}
	return nil
}

// Path returns the file being appended to
func (s *JSONL) Path() string {
	return s.path
}

// Kind implements Store
func (s *JSONL) Kind() string {
	return config.StoreFile
}

// Close closes the underlying file
func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
