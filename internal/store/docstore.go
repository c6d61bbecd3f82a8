// Package store provides the shared document store every Triad process
// points at. Documents are plain JSON files in one folder (local disk or a
// synchronized cloud folder), so workers on different machines coordinate
// without shared memory.
//
// Writes are atomic (temp file + rename), so a concurrent reader never sees
// a half-written document. There is no cross-process locking: two writers
// updating the same document each read-modify-write independently and the
// last write wins. Callers that need stronger guarantees must design around
// read-then-conditionally-write races.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/triad-sh/triad/internal/coord"
)

// Document names in the shared folder.
const (
	DocMessages      = "messages"
	DocTasks         = "tasks"
	DocOutputs       = "outputs"
	DocHeartbeats    = "heartbeats"
	DocAccounts      = "accounts"
	DocUsageLog      = "usage-log"
	DocConvergences  = "convergences"
	DocOrchestration = "orchestration-state"
	DocManifest      = "manifest"
)

const (
	readRetries  = 3
	retryBackoff = 100 * time.Millisecond
)

// Store reads and writes named JSON documents under one directory.
// The embedded mutex only serializes access within this process; use
// Lock/Unlock to bracket a read-modify-write sequence.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the shared folder this store points at.
func (s *Store) Dir() string { return s.dir }

// Lock acquires the in-process exclusive lock.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the in-process exclusive lock.
func (s *Store) Unlock() { s.mu.Unlock() }

// RLock acquires the in-process shared lock.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases the in-process shared lock.
func (s *Store) RUnlock() { s.mu.RUnlock() }

func (s *Store) path(doc string) string {
	return filepath.Join(s.dir, doc+".json")
}

// Read unmarshals a document into out. A missing document leaves out at its
// zero value and returns nil: callers must tolerate a default on first use.
// Transient failures (a synchronized folder mid-write, a partially visible
// file) are retried with backoff; after the retries are exhausted, out is
// left at its default and the error wraps coord.ErrTransientStore.
func (s *Store) Read(doc string, out any) error {
	var lastErr error
	for i := 0; i < readRetries; i++ {
		data, err := os.ReadFile(s.path(doc))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			lastErr = err
		} else if err := json.Unmarshal(data, out); err != nil {
			lastErr = err
		} else {
			return nil
		}
		time.Sleep(retryBackoff * time.Duration(i+1))
	}
	return fmt.Errorf("read %s: %w: %v", doc, coord.ErrTransientStore, lastErr)
}

// Write atomically replaces a document: the value is marshaled to a temp
// file and renamed into place, so no reader observes a partial write.
func (s *Store) Write(doc string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", doc, err)
	}

	path := s.path(doc)
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s tmp: %w: %v", doc, coord.ErrTransientStore, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w: %v", doc, coord.ErrTransientStore, err)
	}
	return nil
}

// Load reads a document and returns it by value, defaulting missing
// documents to the zero value of T.
func Load[T any](s *Store, doc string) (T, error) {
	var v T
	err := s.Read(doc, &v)
	return v, err
}

// Append reads a slice document, appends items, and writes it back. The
// read-modify-write is bracketed by the in-process lock only; concurrent
// appenders in other processes follow last-writer-wins.
func Append[T any](s *Store, doc string, items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []T
	if err := s.Read(doc, &list); err != nil {
		return err
	}
	list = append(list, items...)
	return s.Write(doc, list)
}
