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

// Package itemstore persists encrypted items by name in a storage.Backend.
//
// An ItemStore is not secure on its own: it is a nonvolatile map that only
// ever receives ciphertext. Each identity gets its own namespace so that
// deleting one store never touches another's items.
package itemstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-securestore/pkg/storage"
)

var (
	// ErrInvalidName is returned for empty names or names containing a
	// path separator or null byte.
	ErrInvalidName = errors.New("itemstore: invalid item name")

	// ErrCorruptItem is returned when a stored record cannot be decoded.
	ErrCorruptItem = errors.New("itemstore: corrupt item record")
)

// ItemStore is the persisted map of encrypted items.
type ItemStore interface {
	// Get returns the ciphertext stored under name and whether it exists.
	Get(name string) (string, bool, error)

	// Set stores ciphertext under name, replacing any previous value.
	Set(name, ciphertext string) error

	// Delete removes name. Deleting a missing item succeeds.
	Delete(name string) error
}

// EncryptedItem is the persisted form of an item.
type EncryptedItem struct {
	Name       string    `json:"name"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is an ItemStore over a storage.Backend, scoped to one namespace.
// Writers to the same name are not serialized: the last write wins.
type Store struct {
	backend   storage.Backend
	namespace string
	now       func() time.Time
}

var _ ItemStore = (*Store)(nil)

// New returns a Store keeping items under namespace, which must end with
// "/" (see types.Identity.ItemNamespace).
func New(backend storage.Backend, namespace string) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("itemstore: backend is required")
	}
	if !strings.HasSuffix(namespace, "/") || storage.ValidateKey(strings.TrimSuffix(namespace, "/")) != nil {
		return nil, fmt.Errorf("itemstore: invalid namespace %q", namespace)
	}
	return &Store{backend: backend, namespace: namespace, now: time.Now}, nil
}

// Namespace returns the storage prefix of the store.
func (s *Store) Namespace() string {
	return s.namespace
}

// Get implements ItemStore.
func (s *Store) Get(name string) (string, bool, error) {
	key, err := s.key(name)
	if err != nil {
		return "", false, err
	}
	data, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("itemstore: failed to read %q: %w", name, err)
	}
	var item EncryptedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return "", false, fmt.Errorf("%w %q: %v", ErrCorruptItem, name, err)
	}
	return item.Ciphertext, true, nil
}

// Exists reports whether name is stored.
func (s *Store) Exists(name string) (bool, error) {
	key, err := s.key(name)
	if err != nil {
		return false, err
	}
	return s.backend.Exists(key)
}

// Set implements ItemStore.
func (s *Store) Set(name, ciphertext string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(&EncryptedItem{
		Name:       name,
		Ciphertext: ciphertext,
		UpdatedAt:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("itemstore: failed to encode %q: %w", name, err)
	}
	if err := s.backend.Put(key, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("itemstore: failed to write %q: %w", name, err)
	}
	return nil
}

// Delete implements ItemStore.
func (s *Store) Delete(name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("itemstore: failed to delete %q: %w", name, err)
	}
	return nil
}

// Names returns the stored item names in sorted order.
func (s *Store) Names() ([]string, error) {
	return storage.ListNames(s.backend, s.namespace)
}

// DeleteAll removes every item in the namespace and returns the count.
func (s *Store) DeleteAll() (int, error) {
	return storage.DeletePrefix(s.backend, s.namespace)
}

func (s *Store) key(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s.namespace + name, nil
}
