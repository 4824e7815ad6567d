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

package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	err := NewAuthError(CodeUserCancel)
	assert.Equal(t, "keystore: com.apple.LocalAuthentication error -2", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), NewAuthError(CodeUserCancel))
	assert.NotErrorIs(t, err, NewAuthError(CodeAppCancel))
	assert.NotErrorIs(t, err, NewStatusError(DomainOSStatus, CodeUserCancel, ""))

	wrapped := fmt.Errorf("%w: detail", ErrParam)
	assert.ErrorIs(t, wrapped, NewStatusError(DomainOSStatus, CodeParam, "other text"))
	assert.Contains(t, ErrItemNotFound.Error(), "-25300")
}

func TestNewP256KeySpec(t *testing.T) {
	flags := types.AccessPolicyCurrentBiometricOrPasscode.Flags()
	spec := NewP256KeySpec("idPrivateKey", flags)
	assert.Equal(t, "idPrivateKey", spec.Tag)
	assert.Equal(t, 256, spec.SizeBits)
	assert.Equal(t, CurveP256, spec.Curve)
	assert.True(t, spec.HardwareBacked)
	assert.Equal(t, flags, spec.AccessFlags)
}

func TestRFC4754RoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("message"))

	for i := 0; i < 20; i++ {
		der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
		require.NoError(t, err)

		raw, err := RFC4754FromASN1(der, 32)
		require.NoError(t, err)
		assert.Len(t, raw, 64)
		assert.True(t, VerifyRFC4754(&key.PublicKey, digest[:], raw))

		back, err := ASN1FromRFC4754(raw)
		require.NoError(t, err)
		assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], back))
	}
}

func TestRFC4754FromASN1_PadsShortIntegers(t *testing.T) {
	// SEQUENCE { INTEGER 1, INTEGER 2 }
	der := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02}
	raw, err := RFC4754FromASN1(der, 32)
	require.NoError(t, err)

	want := make([]byte, 64)
	want[31] = 1
	want[63] = 2
	assert.Equal(t, want, raw)
}

func TestRFC4754_Invalid(t *testing.T) {
	_, err := RFC4754FromASN1([]byte{0x01, 0x02}, 32)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// trailing garbage after the sequence
	_, err = RFC4754FromASN1([]byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x02, 0x01, 0x02, 0x00}, 32)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// negative r
	_, err = RFC4754FromASN1([]byte{0x30, 0x06, 0x02, 0x01, 0xff, 0x02, 0x01, 0x02}, 32)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ASN1FromRFC4754([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.False(t, VerifyRFC4754(&key.PublicKey, make([]byte, 32), make([]byte, 63)))
	assert.False(t, VerifyRFC4754(nil, make([]byte, 32), make([]byte, 64)))
}
