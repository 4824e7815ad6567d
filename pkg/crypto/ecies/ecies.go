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

// Package ecies implements the standard ECIES variant with the ANSI X9.63
// SHA-256 KDF and AES-GCM used by platform secure enclaves
// (ECIES-X963-SHA256-AESGCM), so ciphertexts interoperate with hardware
// key stores.
//
// The encryption format is:
//
//	[ephemeral_public_key || ciphertext || tag]
//
// Where:
//   - ephemeral_public_key: uncompressed X9.63 point (65 bytes for P-256)
//   - ciphertext: same length as the plaintext
//   - tag: 16 byte GCM authentication tag
//
// The AES key is derived with X9.63 KDF over the ECDH shared secret, using
// the ephemeral public key as shared info. AES-128 is used for curves up to
// 256 bits and AES-256 above. The GCM nonce is 16 zero bytes; every message
// uses a fresh ephemeral key so a key/nonce pair is never reused.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-securestore/pkg/crypto/ecdh"
)

const (
	// GCM nonce size (the variant uses a 16 byte all-zero IV)
	nonceSize = 16

	// GCM tag size (128 bits / 16 bytes)
	tagSize = 16
)

var (
	// ErrCiphertextTooShort is returned when the input cannot hold an
	// ephemeral key and a tag.
	ErrCiphertextTooShort = errors.New("ecies: ciphertext too short")

	// ErrInvalidEphemeralKey is returned when the embedded ephemeral key is
	// not a point on the recipient's curve.
	ErrInvalidEphemeralKey = errors.New("ecies: invalid ephemeral public key")

	// ErrAuthentication is returned when the GCM tag does not verify,
	// typically because the ciphertext was produced for another key.
	ErrAuthentication = errors.New("ecies: message authentication failed")
)

// Encrypt encrypts plaintext for the holder of publicKey.
func Encrypt(random io.Reader, publicKey *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	if random == nil {
		return nil, fmt.Errorf("ecies: random source cannot be nil")
	}
	if publicKey == nil {
		return nil, fmt.Errorf("ecies: public key cannot be nil")
	}

	ephemeral, err := ecdsa.GenerateKey(publicKey.Curve, random)
	if err != nil {
		return nil, fmt.Errorf("ecies: failed to generate ephemeral key: %w", err)
	}
	ephemeralPub := elliptic.Marshal(ephemeral.Curve, ephemeral.X, ephemeral.Y) //nolint:staticcheck // X9.63 encoding

	z, err := ecdh.DeriveSharedSecret(ephemeral, publicKey)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(z, ephemeralPub, publicKey.Curve)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephemeralPub)+len(plaintext)+tagSize)
	out = append(out, ephemeralPub...)
	return gcm.Seal(out, make([]byte, nonceSize), plaintext, nil), nil
}

// Decrypt reverses Encrypt using the recipient's private key.
func Decrypt(privateKey *ecdsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("ecies: private key cannot be nil")
	}

	pubSize := publicKeySize(privateKey.Curve)
	if len(ciphertext) < pubSize+tagSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d",
			ErrCiphertextTooShort, len(ciphertext), pubSize+tagSize)
	}
	ephemeralPub := ciphertext[:pubSize]

	x, y := elliptic.Unmarshal(privateKey.Curve, ephemeralPub) //nolint:staticcheck // X9.63 decoding
	if x == nil {
		return nil, ErrInvalidEphemeralKey
	}
	z, err := ecdh.DeriveSharedSecret(privateKey, &ecdsa.PublicKey{Curve: privateKey.Curve, X: x, Y: y})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEphemeralKey, err)
	}
	gcm, err := newGCM(z, ephemeralPub, privateKey.Curve)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, make([]byte, nonceSize), ciphertext[pubSize:], nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(z, ephemeralPub []byte, curve elliptic.Curve) (cipher.AEAD, error) {
	key, err := ecdh.X963KDF(z, ephemeralPub, aesKeySize(curve))
	if err != nil {
		return nil, fmt.Errorf("ecies: key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecies: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("ecies: failed to create GCM: %w", err)
	}
	return gcm, nil
}

func aesKeySize(curve elliptic.Curve) int {
	if curve.Params().BitSize <= 256 {
		return 16
	}
	return 32
}

// publicKeySize returns the size of an uncompressed point on curve.
func publicKeySize(curve elliptic.Curve) int {
	byteLen := (curve.Params().BitSize + 7) / 8
	return 1 + 2*byteLen
}
