package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is the recorded outcome of one lifecycle stage.
type Entry struct {
	RunID         string          `json:"runId"`
	Stage         string          `json:"stage"`
	AppID         uint64          `json:"appId"`
	Sender        string          `json:"sender,omitempty"`
	TxIDs         []string        `json:"txIds,omitempty"`
	Confirmations []Confirmation  `json:"confirmations,omitempty"`
	ReturnValue   json.RawMessage `json:"returnValue,omitempty"`
	Error         string          `json:"error,omitempty"`
	At            time.Time       `json:"at"`
}

type Confirmation struct {
	TxID  string `json:"txId"`
	Round uint64 `json:"round"`
}

func (e Entry) OK() bool { return e.Error == "" }

// Store abstracts journal persistence. Entries are append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// List returns the entries of runID in the order they were appended.
	List(ctx context.Context, runID string) ([]Entry, error)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryStore) List(_ context.Context, runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRun(m.entries, runID), nil
}

// FileStore persists entries to a JSON file on disk.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries []Entry
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.entries)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Append(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.persist()
}

func (f *FileStore) List(_ context.Context, runID string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterRun(f.entries, runID), nil
}

func filterRun(entries []Entry, runID string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
