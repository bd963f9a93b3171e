// Package store persists the set of acknowledged notification ids across
// sessions. The on-disk format is a single JSON array of id strings, written
// atomically (temp file + rename) on every mutation.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ReadState is the durable set of notification ids the user has acknowledged.
// Local state is the source of truth for display; persistence failures are
// logged and do not roll back in-memory mutations.
type ReadState struct {
	mu     sync.Mutex
	path   string
	ids    map[string]struct{}
	logger *slog.Logger
}

// Load reads the persisted set, starting empty when the file does not exist
// or does not parse.
func Load(path string, logger *slog.Logger) *ReadState {
	rs := &ReadState{
		path:   path,
		ids:    make(map[string]struct{}),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("readstate: load failed, starting empty", "path", path, "err", err)
		}
		return rs
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Warn("readstate: corrupt state discarded", "path", path, "err", err)
		return rs
	}

	for _, id := range ids {
		rs.ids[id] = struct{}{}
	}
	return rs
}

// Contains reports whether the id has been marked read.
func (rs *ReadState) Contains(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.ids[id]
	return ok
}

// Add marks one id as read and persists.
func (rs *ReadState) Add(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.ids[id] = struct{}{}
	rs.persistLocked()
}

// AddAll marks every given id as read in one operation and persists once.
func (rs *ReadState) AddAll(ids []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, id := range ids {
		rs.ids[id] = struct{}{}
	}
	rs.persistLocked()
}

// Prune drops every id not present in keep. Called on each full refresh so
// the set cannot grow without bound.
func (rs *ReadState) Prune(keep map[string]struct{}) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	changed := false
	for id := range rs.ids {
		if _, ok := keep[id]; !ok {
			delete(rs.ids, id)
			changed = true
		}
	}
	if changed {
		rs.persistLocked()
	}
}

// IDs returns the read set in sorted order.
func (rs *ReadState) IDs() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ids := make([]string, 0, len(rs.ids))
	for id := range rs.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of acknowledged ids.
func (rs *ReadState) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.ids)
}

func (rs *ReadState) persistLocked() {
	ids := make([]string, 0, len(rs.ids))
	for id := range rs.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if err := writeAtomic(rs.path, ids); err != nil {
		rs.logger.Warn("readstate: persist failed, keeping in-memory state", "err", err)
	}
}

func writeAtomic(path string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("readstate: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".readstate-*")
	if err != nil {
		return fmt.Errorf("readstate: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("readstate: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("readstate: close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("readstate: rename: %w", err)
	}
	return nil
}
