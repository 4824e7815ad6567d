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

// Package jwk encodes P-256 public keys as JSON Web Keys (RFC 7517).
//
// Keys enter as the 65 byte uncompressed X9.63 encoding exported by the
// key store. Marshal produces canonical JSON: members in lexicographic
// order with no whitespace, so the same key always yields the same bytes.
package jwk

import (
	"crypto"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	// KeyTypeEC is the kty of elliptic curve keys
	KeyTypeEC = "EC"

	// CurveP256 is the crv of P-256 keys
	CurveP256 = "P-256"

	// UseSignature is the use of signing keys
	UseSignature = "sig"

	coordinateSize = 32
	x963Size       = 1 + 2*coordinateSize
)

// ErrInvalidKey is returned for input that is not an uncompressed P-256
// point or a P-256 JWK.
var ErrInvalidKey = errors.New("jwk: invalid P-256 public key")

// JWK is a P-256 public JSON Web Key. Fields are declared in sorted order
// so encoding/json emits canonical member order.
type JWK struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// FromX963 builds a signing JWK from 0x04 || X(32) || Y(32).
func FromX963(pub []byte) (*JWK, error) {
	if len(pub) != x963Size || pub[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected %d byte uncompressed point, got %d bytes", ErrInvalidKey, x963Size, len(pub))
	}
	return &JWK{
		Crv: CurveP256,
		Kty: KeyTypeEC,
		Use: UseSignature,
		X:   base64.RawURLEncoding.EncodeToString(pub[1 : 1+coordinateSize]),
		Y:   base64.RawURLEncoding.EncodeToString(pub[1+coordinateSize:]),
	}, nil
}

// Marshal returns the canonical JSON encoding.
func (k *JWK) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// Unmarshal parses a JWK and checks that it is a P-256 EC key.
func Unmarshal(data []byte) (*JWK, error) {
	var k JWK
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("jwk: failed to parse: %w", err)
	}
	if k.Kty != KeyTypeEC || k.Crv != CurveP256 {
		return nil, fmt.Errorf("%w: kty=%q crv=%q", ErrInvalidKey, k.Kty, k.Crv)
	}
	return &k, nil
}

// X963 returns the uncompressed point encoded by the JWK.
func (k *JWK) X963() ([]byte, error) {
	x, err := decodeCoordinate(k.X)
	if err != nil {
		return nil, err
	}
	y, err := decodeCoordinate(k.Y)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, x963Size)
	out = append(out, 0x04)
	out = append(out, x...)
	return append(out, y...), nil
}

// PublicKey parses the JWK with go-jose, which also checks that the point
// lies on the curve.
func (k *JWK) PublicKey() (*ecdsa.PublicKey, error) {
	data, err := k.Marshal()
	if err != nil {
		return nil, err
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, ok := jwk.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidKey, jwk.Key)
	}
	return pub, nil
}

// Thumbprint returns the base64url SHA-256 JWK thumbprint (RFC 7638).
func (k *JWK) Thumbprint() (string, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return "", err
	}
	sum, err := (&jose.JSONWebKey{Key: pub}).Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("jwk: thumbprint failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

func decodeCoordinate(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != coordinateSize {
		return nil, fmt.Errorf("%w: coordinate is %d bytes", ErrInvalidKey, len(b))
	}
	return b, nil
}
