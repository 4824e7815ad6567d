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

package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// KeysPrefix holds software key store records.
const KeysPrefix = "keys/"

// KeyPath returns the storage path for a key record with the given tag.
// The path follows the convention: keys/{tag}
func KeyPath(tag string) string {
	return KeysPrefix + tag
}

// ListKeys returns the tags of all key records in the backend.
func ListKeys(backend Backend) ([]string, error) {
	return listIDs(backend, KeysPrefix)
}

// ListNames returns the entries under prefix with the prefix stripped.
func ListNames(backend Backend, prefix string) ([]string, error) {
	return listIDs(backend, prefix)
}

func listIDs(backend Backend, prefix string) ([]string, error) {
	keys, err := backend.List(prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, prefix); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeletePrefix removes every key under prefix and returns how many were
// removed. Keys that disappear concurrently are not an error.
func DeletePrefix(backend Backend, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: refusing to delete with an empty prefix", ErrInvalidKey)
	}
	keys, err := backend.List(prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := backend.Delete(k); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("storage: failed to delete %q: %w", k, err)
		}
		removed++
	}
	return removed, nil
}

// ValidateKey rejects empty keys, NUL bytes, absolute paths and keys that
// climb out of the store root.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: key contains null byte", ErrInvalidKey)
	case strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`):
		return fmt.Errorf("%w: key cannot be an absolute path", ErrInvalidKey)
	case strings.HasSuffix(key, "/"):
		return fmt.Errorf("%w: key cannot end with a separator", ErrInvalidKey)
	}
	cleaned := path.Clean(strings.ReplaceAll(key, `\`, "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%w: key contains path traversal attempt", ErrInvalidKey)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: key contains path traversal attempt", ErrInvalidKey)
		}
	}
	return nil
}
