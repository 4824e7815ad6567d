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

package ecdh

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSharedSecret_Agreement(t *testing.T) {
	alice, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	bob, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := DeriveSharedSecret(alice, &bob.PublicKey)
	require.NoError(t, err)
	b, err := DeriveSharedSecret(bob, &alice.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestDeriveSharedSecret_Errors(t *testing.T) {
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	_, err = DeriveSharedSecret(nil, &p256.PublicKey)
	assert.ErrorIs(t, err, ErrNilKey)

	_, err = DeriveSharedSecret(p256, nil)
	assert.ErrorIs(t, err, ErrNilKey)

	_, err = DeriveSharedSecret(p256, &p384.PublicKey)
	assert.ErrorIs(t, err, ErrCurveMismatch)
}

func TestX963KDF_KnownAnswers(t *testing.T) {
	z := make([]byte, 32)
	for i := range z {
		z[i] = byte(i + 1)
	}

	tests := []struct {
		name   string
		info   []byte
		length int
		want   string
	}{
		{
			name:   "single block truncated",
			info:   []byte("sharedinfo"),
			length: 16,
			want:   "a5f48a35b3c73db01a7705b9ce13ccff",
		},
		{
			name:   "two blocks",
			info:   []byte("sharedinfo"),
			length: 48,
			want:   "a5f48a35b3c73db01a7705b9ce13ccffa3d2a18d6cc6be16daec1d599a30e81f1d4d2f13070d9f6e1d469749d03911bc",
		},
		{
			name:   "empty shared info",
			info:   nil,
			length: 32,
			want:   "c1f5124b1177700ea2c0db6d9b1c0cfa370aa91149fa1d94920a1040f0ccd54f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := X963KDF(z, tt.info, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(key))
		})
	}
}

func TestX963KDF_InvalidInput(t *testing.T) {
	_, err := X963KDF(nil, nil, 16)
	assert.Error(t, err)

	_, err = X963KDF([]byte{1}, nil, 0)
	assert.Error(t, err)
}
