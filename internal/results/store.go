// Package results keeps the flat log of scored sessions.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spboyer/servicecounter/internal/models"
)

// Entry is one finished session in the result log.
type Entry struct {
	GeneratedAt time.Time             `json:"generated_at"`
	SessionID   string                `json:"session_id"`
	Model       string                `json:"model,omitempty"`
	Workplace   string                `json:"workplace"`
	JobType     string                `json:"job_type"`
	ActiveTask  *int                  `json:"active_task,omitempty"`
	Turns       int                   `json:"turns"`
	Outcome     *models.ReviewOutcome `json:"outcome"`
}

// Document is the on-disk layout of the result log.
type Document struct {
	Result []Entry `json:"result"`
}

// Store receives the outcome of each finished session.
type Store interface {
	Append(entry Entry) error
}

// FileStore is a [Store] backed by a single JSON document. Every append
// reads the whole document, adds the entry and writes it back.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The file is created on first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the result document.
func (s *FileStore) Path() string {
	return s.path
}

// Init writes an empty document when none exists yet.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking result store: %w", err)
	}
	return s.write(&Document{Result: []Entry{}})
}

// Load reads the document. A missing file yields an empty document.
func (s *FileStore) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append adds entry to the end of the document.
func (s *FileStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Result = append(doc.Result, entry)
	return s.write(doc)
}

func (s *FileStore) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{Result: []Entry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading result store: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing result store %s: %w", s.path, err)
	}
	if doc.Result == nil {
		doc.Result = []Entry{}
	}
	return &doc, nil
}

func (s *FileStore) write(doc *Document) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating result store directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing result store: %w", err)
	}
	return nil
}
