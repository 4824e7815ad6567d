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

package storage_test

import (
	"testing"

	"github.com/jeremyhahn/go-securestore/pkg/storage"
	"github.com/jeremyhahn/go-securestore/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPath(t *testing.T) {
	assert.Equal(t, "keys/alicePrivateKey", storage.KeyPath("alicePrivateKey"))
}

func TestListKeysAndNames(t *testing.T) {
	backend := memory.New()
	require.NoError(t, backend.Put(storage.KeyPath("a"), []byte("1"), nil))
	require.NoError(t, backend.Put(storage.KeyPath("b"), []byte("2"), nil))
	require.NoError(t, backend.Put("items/alice/token", []byte("3"), nil))

	keys, err := storage.ListKeys(backend)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	names, err := storage.ListNames(backend, "items/alice/")
	require.NoError(t, err)
	assert.Equal(t, []string{"token"}, names)

	names, err = storage.ListNames(backend, "items/bob/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeletePrefix(t *testing.T) {
	backend := memory.New()
	for _, k := range []string{"items/alice/a", "items/alice/b", "items/alicia/c", "keys/x"} {
		require.NoError(t, backend.Put(k, []byte("v"), nil))
	}

	removed, err := storage.DeletePrefix(backend, "items/alice/")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := backend.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"items/alicia/c", "keys/x"}, remaining)

	removed, err = storage.DeletePrefix(backend, "items/alice/")
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = storage.DeletePrefix(backend, "")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"keys/alicePrivateKey", true},
		{"items/alice/token", true},
		{"items/alice/..hidden", true},
		{"", false},
		{"/etc/passwd", false},
		{`\windows`, false},
		{"../escape", false},
		{"items/../../escape", false},
		{"items/..", false},
		{"items/alice/", false},
		{"nul\x00byte", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := storage.ValidateKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, storage.ErrInvalidKey)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	assert.Equal(t, 0600, int(storage.DefaultOptions().Permissions))
}
