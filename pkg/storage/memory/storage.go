// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package memory keeps key and item records in a map. It backs the
// software key store in tests and in stores that need not outlive the
// process. Keys follow the same rules as the file backend, so a record
// path accepted here is accepted on disk.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-securestore/pkg/storage"
)

// Storage is a storage.Backend over a map guarded by a read/write mutex.
// Records are copied on Put and Get, so callers never share a slice with
// the store.
type Storage struct {
	mu      sync.RWMutex
	records map[string][]byte
	closed  bool
}

// New returns an empty, open backend.
func New() *Storage {
	return &Storage{records: make(map[string][]byte)}
}

// Get returns a copy of the record at key, or storage.ErrNotFound.
func (s *Storage) Get(key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	record, ok := s.records[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), record...), nil
}

// Put stores a copy of value at key, replacing any existing record. Options
// only carry file permissions and are ignored.
func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	s.records[key] = append(make([]byte, 0, len(value)), value...)
	return nil
}

// Delete removes the record at key. A missing record is storage.ErrNotFound,
// which the key store maps to an item-not-found status.
func (s *Storage) Delete(key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.records[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns the keys under prefix in lexical order.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether a record is stored at key.
func (s *Storage) Exists(key string) (bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.records[key]
	return ok, nil
}

// Close discards every record. Later calls return storage.ErrClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}
