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

// Package ecdh provides Elliptic Curve Diffie-Hellman key agreement and the
// ANSI X9.63 key derivation function used by the secure store's hybrid
// encryption.
//
// Example usage:
//
//	ephemeral, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
//	z, _ := ecdh.DeriveSharedSecret(ephemeral, recipientPub)
//	key, _ := ecdh.X963KDF(z, sharedInfo, 16)
package ecdh

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNilKey is returned when either side of the agreement is missing.
	ErrNilKey = errors.New("ecdh: key cannot be nil")

	// ErrCurveMismatch is returned when the keys are on different curves.
	ErrCurveMismatch = errors.New("ecdh: curve mismatch")
)

// DeriveSharedSecret performs ECDH between a private and a public key and
// returns the shared secret Z, the big-endian X coordinate of the shared
// point.
func DeriveSharedSecret(privateKey *ecdsa.PrivateKey, publicKey *ecdsa.PublicKey) ([]byte, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrNilKey
	}
	if privateKey.Curve != publicKey.Curve {
		return nil, fmt.Errorf("%w: private key uses %s, public key uses %s",
			ErrCurveMismatch, privateKey.Curve.Params().Name, publicKey.Curve.Params().Name)
	}

	priv, err := privateKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("ecdh: failed to convert private key: %w", err)
	}
	pub, err := publicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("ecdh: failed to convert public key: %w", err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: key agreement failed: %w", err)
	}
	return secret, nil
}

// X963KDF derives keyLength bytes from the shared secret z using the ANSI
// X9.63 KDF with SHA-256:
//
//	K = SHA256(z || 00000001 || sharedInfo) || SHA256(z || 00000002 || sharedInfo) || ...
//
// truncated to keyLength.
func X963KDF(z, sharedInfo []byte, keyLength int) ([]byte, error) {
	if len(z) == 0 {
		return nil, errors.New("ecdh: shared secret cannot be empty")
	}
	if keyLength <= 0 {
		return nil, fmt.Errorf("ecdh: key length must be positive, got %d", keyLength)
	}
	if uint64(keyLength) > uint64(sha256.Size)*math.MaxUint32 {
		return nil, fmt.Errorf("ecdh: key length %d too large", keyLength)
	}

	out := make([]byte, 0, keyLength+sha256.Size)
	var counter [4]byte
	for i := uint32(1); len(out) < keyLength; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h := sha256.New()
		h.Write(z)
		h.Write(counter[:])
		h.Write(sharedInfo)
		out = h.Sum(out)
	}
	return out[:keyLength], nil
}
