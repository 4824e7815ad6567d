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

// Package keystore defines the capability surface the core requires from a
// hardware-backed secure key store.
//
// A SecureKeyStore holds asymmetric keys by tag, enforces the access policy a
// key was created with and performs the primitive operations. Private key
// material never crosses this interface; callers only ever hold references.
// Failures are reported as *StatusError values carrying the platform domain
// and code so they can be classified by the storeerror package.
package keystore

import "github.com/jeremyhahn/go-securestore/pkg/types"

// Algorithm names a primitive operation performed by the store.
type Algorithm string

const (
	// AlgorithmECIESX963SHA256AESGCM is ECIES with an ephemeral P-256 key,
	// the ANSI X9.63 KDF over SHA-256 and AES-GCM.
	AlgorithmECIESX963SHA256AESGCM Algorithm = "ecies-x963-sha256-aesgcm"

	// AlgorithmECDSARFC4754 signs a precomputed digest and returns the
	// fixed-length r||s encoding defined by RFC 4754.
	AlgorithmECDSARFC4754 Algorithm = "ecdsa-rfc4754"
)

// Curve names an elliptic curve.
type Curve string

// CurveP256 is the only curve the core requests.
const CurveP256 Curve = "P-256"

// KeySpec describes a key pair to generate.
type KeySpec struct {
	Tag            string
	SizeBits       int
	Curve          Curve
	HardwareBacked bool
	AccessFlags    types.AccessFlags
}

// NewP256KeySpec returns the spec the lifecycle manager uses for new keys.
func NewP256KeySpec(tag string, flags types.AccessFlags) *KeySpec {
	return &KeySpec{
		Tag:            tag,
		SizeBits:       256,
		Curve:          CurveP256,
		HardwareBacked: true,
		AccessFlags:    flags,
	}
}

// AuthContext carries the prompt shown when a key use requires user
// authentication. It is attached to a private key reference at lookup.
type AuthContext struct {
	Prompt types.PromptStrings
}

// PrivateKeyRef is an opaque reference to a private key held by the store.
type PrivateKeyRef interface {
	Tag() string
	AccessFlags() types.AccessFlags
}

// PublicKeyRef is an opaque reference to a public key held by the store.
type PublicKeyRef interface {
	Tag() string
}

// SecureKeyStore is the external key store collaborator.
type SecureKeyStore interface {
	// HardwareBacked reports whether keys live in a secure hardware module.
	// Access policies are only enforceable when this returns true.
	HardwareBacked() bool

	// GenerateKeyPair creates and persists a key pair under spec.Tag.
	// Returns ErrDuplicateItem if the tag is already in use.
	GenerateKeyPair(spec *KeySpec) (PrivateKeyRef, error)

	// FindKey looks up a private key by tag. Returns ErrItemNotFound when
	// no key exists. auth may be nil.
	FindKey(tag string, auth *AuthContext) (PrivateKeyRef, error)

	// DerivePublicKey returns the public half of a private key.
	DerivePublicKey(priv PrivateKeyRef) (PublicKeyRef, error)

	// DeleteKey removes the entry stored under tag. Returns ErrItemNotFound
	// when nothing is stored there.
	DeleteKey(tag string) error

	// Encrypt encrypts plaintext to the public key.
	Encrypt(pub PublicKeyRef, alg Algorithm, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the private key. May block while the
	// user authenticates.
	Decrypt(priv PrivateKeyRef, alg Algorithm, ciphertext []byte) ([]byte, error)

	// Sign signs a digest with the private key. May block while the user
	// authenticates.
	Sign(priv PrivateKeyRef, alg Algorithm, digest []byte) ([]byte, error)

	// ExportPublicKey returns the uncompressed X9.63 encoding of the key.
	ExportPublicKey(pub PublicKeyRef) ([]byte, error)
}
