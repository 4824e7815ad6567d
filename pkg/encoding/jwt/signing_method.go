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

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
)

var (
	// ErrInvalidKey is returned when a signing or verification key has the
	// wrong type.
	ErrInvalidKey = errors.New("jwt: invalid key type")
)

// DataSigner produces RFC 4754 ES256 signatures over the SHA-256 digest of
// data without exposing the private key. *engine.Engine implements it.
type DataSigner interface {
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// signingKey binds a DataSigner to the context of one signing call, since
// jwt.SigningMethod has no context parameter.
type signingKey struct {
	ctx    context.Context
	signer DataSigner
}

// SigningMethodStore implements jwt.SigningMethod for ES256 with keys held
// in a secure key store. Signing delegates to a DataSigner; verification
// takes an *ecdsa.PublicKey.
type SigningMethodStore struct{}

// SigningMethodES256Store is the ES256 signing method backed by the store.
var SigningMethodES256Store = &SigningMethodStore{}

var _ jwt.SigningMethod = (*SigningMethodStore)(nil)

// Alg returns "ES256".
func (m *SigningMethodStore) Alg() string {
	return "ES256"
}

// Sign signs signingString with the DataSigner carried by key.
func (m *SigningMethodStore) Sign(signingString string, key interface{}) ([]byte, error) {
	k, ok := key.(*signingKey)
	if !ok || k.signer == nil {
		return nil, ErrInvalidKey
	}
	return k.signer.Sign(k.ctx, []byte(signingString))
}

// Verify checks an r||s signature of signingString against an
// *ecdsa.PublicKey.
func (m *SigningMethodStore) Verify(signingString string, signature []byte, key interface{}) error {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return ErrInvalidKey
	}
	digest := sha256.Sum256([]byte(signingString))
	if !keystore.VerifyRFC4754(pub, digest[:], signature) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
