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

// Package didkey formats P-256 public keys as did:key identifiers.
//
// A did:key for P-256 is "did:key:z" followed by the base58btc encoding of
// the multicodec prefix 0x80 0x24 and the 33 byte SEC1 compressed point.
package didkey

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"
)

const (
	// Prefix starts every did:key with a base58btc multibase payload.
	Prefix = "did:key:z"

	uncompressedSize = 65
	compressedSize   = 33
)

// MulticodecP256 is the varint multicodec prefix for p256-pub (0x1200).
var MulticodecP256 = []byte{0x80, 0x24}

var (
	// ErrInvalidKey is returned for malformed point encodings.
	ErrInvalidKey = errors.New("didkey: invalid P-256 public key")

	// ErrInvalidDID is returned for identifiers that are not P-256 did:keys.
	ErrInvalidDID = errors.New("didkey: invalid did:key")
)

// Compress converts 0x04 || X || Y to prefix || X, where prefix is
// 2 + (last byte of Y & 1).
func Compress(x963 []byte) ([]byte, error) {
	if len(x963) != uncompressedSize || x963[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected %d byte uncompressed point, got %d bytes", ErrInvalidKey, uncompressedSize, len(x963))
	}
	out := make([]byte, compressedSize)
	out[0] = 2 + (x963[uncompressedSize-1] & 1)
	copy(out[1:], x963[1:33])
	return out, nil
}

// Decompress recovers the uncompressed point from its compressed form.
func Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) != compressedSize {
		return nil, fmt.Errorf("%w: expected %d byte compressed point, got %d bytes", ErrInvalidKey, compressedSize, len(compressed))
	}
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), compressed)
	if x == nil {
		return nil, fmt.Errorf("%w: point is not on the curve", ErrInvalidKey)
	}
	return elliptic.Marshal(elliptic.P256(), x, y), nil //nolint:staticcheck // X9.63 encoding
}

// Format returns the did:key of an uncompressed P-256 public key.
func Format(x963 []byte) (string, error) {
	compressed, err := Compress(x963)
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, len(MulticodecP256)+len(compressed))
	payload = append(payload, MulticodecP256...)
	payload = append(payload, compressed...)
	return Prefix + Base58Encode(payload), nil
}

// Parse returns the uncompressed P-256 public key named by did.
func Parse(did string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(did, Prefix)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidDID, Prefix)
	}
	payload, err := Base58Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDID, err)
	}
	if len(payload) != len(MulticodecP256)+compressedSize ||
		payload[0] != MulticodecP256[0] || payload[1] != MulticodecP256[1] {
		return nil, fmt.Errorf("%w: not a p256-pub multicodec key", ErrInvalidDID)
	}
	return Decompress(payload[len(MulticodecP256):])
}
