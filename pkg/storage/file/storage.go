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

// Package file provides a directory-backed storage.Backend. Each key maps
// to one file below the root directory; writes are atomic (temp file and
// rename) so a crash never leaves a half-written item behind.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-securestore/pkg/storage"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Default file permissions (owner rw only)
	defaultFilePerms = 0600

	tempSuffix = ".tmp"
)

// FileStorage is a file-based implementation of storage.Backend.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
}

// New creates a FileStorage rooted at rootDir, creating the directory with
// 0700 permissions if it doesn't exist.
func New(rootDir string) (*FileStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to resolve root directory: %w", err)
	}
	if err := os.MkdirAll(abs, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}
	return &FileStorage{rootDir: abs}, nil
}

// Root returns the absolute root directory.
func (f *FileStorage) Root() string {
	return f.rootDir
}

func (f *FileStorage) Get(key string) ([]byte, error) {
	p, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Put writes value to a temporary file next to the target and renames it
// into place.
func (f *FileStorage) Put(key string, value []byte, opts *storage.Options) error {
	p, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, defaultDirPerms); err != nil {
		return fmt.Errorf("file storage: failed to create directory for key %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("file storage: failed to create temp file for key %q: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	if err = tmp.Chmod(permissions(opts)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file storage: failed to set permissions for key %q: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file storage: failed to sync key %q: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("file storage: failed to close key %q: %w", key, err)
	}
	if err = os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("file storage: failed to commit key %q: %w", key, err)
	}
	return nil
}

func (f *FileStorage) Delete(key string) error {
	p, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}
	f.pruneEmptyDirs(filepath.Dir(p))
	return nil
}

// List walks the root directory. Temporary files from interrupted writes
// are skipped.
func (f *FileStorage) List(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0)
	err := filepath.WalkDir(f.rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, tempSuffix) {
			return nil
		}
		rel, err := filepath.Rel(f.rootDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to list keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (f *FileStorage) Exists(key string) (bool, error) {
	p, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: failed to check key %q: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Close is a no-op; file storage holds no open handles between calls.
func (f *FileStorage) Close() error {
	return nil
}

func (f *FileStorage) keyToPath(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.rootDir, filepath.FromSlash(key)), nil
}

// pruneEmptyDirs removes now-empty parents up to, not including, the root.
func (f *FileStorage) pruneEmptyDirs(dir string) {
	for dir != f.rootDir && strings.HasPrefix(dir, f.rootDir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func permissions(opts *storage.Options) fs.FileMode {
	if opts != nil && opts.Permissions != 0 {
		return opts.Permissions
	}
	return defaultFilePerms
}
