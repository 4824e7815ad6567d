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
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-securestore/pkg/engine"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/keystore/software"
	"github.com/jeremyhahn/go-securestore/pkg/lifecycle"
	"github.com/jeremyhahn/go-securestore/pkg/storage/memory"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keySigner signs with an in-memory key.
type keySigner struct {
	key *ecdsa.PrivateKey
	err error
}

func (s *keySigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	digest := sha256.Sum256(data)
	der, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, err
	}
	return keystore.RFC4754FromASN1(der, 32)
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &keySigner{key: key}
}

func TestSign_VerifiesWithStandardES256(t *testing.T) {
	ks := newKeySigner(t)
	signer := NewSigner(ks)

	tokenString, err := signer.Sign(context.Background(), Claims{
		"sub": "test-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	assert.Len(t, strings.Split(tokenString, "."), 3)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return &ks.key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "ES256", token.Header["alg"])
}

func TestSigningMethodStore_Verify(t *testing.T) {
	ks := newKeySigner(t)
	other := newKeySigner(t)

	sig, err := SigningMethodES256Store.Sign("header.payload", &signingKey{ctx: context.Background(), signer: ks})
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	assert.NoError(t, SigningMethodES256Store.Verify("header.payload", sig, &ks.key.PublicKey))
	assert.ErrorIs(t, SigningMethodES256Store.Verify("header.payload", sig, &other.key.PublicKey), jwt.ErrSignatureInvalid)
	assert.ErrorIs(t, SigningMethodES256Store.Verify("header.other", sig, &ks.key.PublicKey), jwt.ErrSignatureInvalid)
	assert.ErrorIs(t, SigningMethodES256Store.Verify("header.payload", sig, "not a key"), ErrInvalidKey)

	// Interoperates with the library's own ES256 implementation.
	assert.NoError(t, jwt.SigningMethodES256.Verify("header.payload", sig, &ks.key.PublicKey))
}

func TestSigningMethodStore_InvalidKey(t *testing.T) {
	_, err := SigningMethodES256Store.Sign("x.y", newKeySigner(t).key)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewSigner(nil).Sign(context.Background(), Claims{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSign_SignerError(t *testing.T) {
	ks := &keySigner{err: errors.New("user cancelled")}
	_, err := NewSigner(ks).Sign(context.Background(), Claims{"sub": "x"})
	assert.ErrorContains(t, err, "user cancelled")
}

func TestSignWithKeyID(t *testing.T) {
	ks := newKeySigner(t)
	tokenString, err := NewSigner(ks, WithKeyID("thumbprint-1")).Sign(context.Background(), Claims{"sub": "x"})
	require.NoError(t, err)

	kid, err := ExtractKID(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "thumbprint-1", kid)

	tokenString, err = NewSigner(ks).Sign(context.Background(), Claims{"sub": "x"})
	require.NoError(t, err)
	kid, err = ExtractKID(tokenString)
	require.NoError(t, err)
	assert.Empty(t, kid)

	_, err = ExtractKID("garbage")
	assert.Error(t, err)
}

func TestSignJSON(t *testing.T) {
	ks := newKeySigner(t)
	signer := NewSigner(ks)

	tokenString, err := signer.SignJSON(context.Background(), []byte(`{"iss":"securestore","n":1}`))
	require.NoError(t, err)

	token, err := Verify(tokenString, &ks.key.PublicKey, &VerifyOptions{ExpectedIssuer: "securestore"})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(1), claims["n"])

	_, err = signer.SignJSON(context.Background(), []byte(`["not","an","object"]`))
	assert.Error(t, err)
}

func TestVerify_Options(t *testing.T) {
	ks := newKeySigner(t)
	signer := NewSigner(ks)
	ctx := context.Background()

	tokenString, err := signer.Sign(ctx, Claims{
		"iss": "issuer-a",
		"aud": []string{"app-1", "app-2"},
	})
	require.NoError(t, err)

	_, err = Verify(tokenString, &ks.key.PublicKey, &VerifyOptions{ExpectedIssuer: "issuer-a", ExpectedAudience: "app-2"})
	assert.NoError(t, err)

	_, err = Verify(tokenString, &ks.key.PublicKey, &VerifyOptions{ExpectedIssuer: "issuer-b"})
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	_, err = Verify(tokenString, &ks.key.PublicKey, &VerifyOptions{ExpectedAudience: "app-3"})
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	_, err = Verify(tokenString, &ks.key.PublicKey, &VerifyOptions{RequireExpiry: true})
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	_, err = Verify(tokenString, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestVerify_Rejects(t *testing.T) {
	ks := newKeySigner(t)
	ctx := context.Background()

	expired, err := NewSigner(ks).Sign(ctx, Claims{"exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)
	_, err = Verify(expired, &ks.key.PublicKey, nil)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{"sub": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = Verify(hs, &ks.key.PublicKey, nil)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	valid, err := NewSigner(ks).Sign(ctx, Claims{"sub": "x"})
	require.NoError(t, err)
	_, err = Verify(valid, &newKeySigner(t).key.PublicKey, nil)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestSign_WithEngine(t *testing.T) {
	store, err := software.New(&software.Config{KeyStorage: memory.New()})
	require.NoError(t, err)
	manager, err := lifecycle.New(&lifecycle.Config{Store: store})
	require.NoError(t, err)
	identity, err := types.NewIdentity("jwt-signer", types.AccessPolicyOpen, nil)
	require.NoError(t, err)
	eng, err := engine.New(&engine.Config{Manager: manager, Identity: identity})
	require.NoError(t, err)

	ctx := context.Background()
	thumbprint, err := eng.Thumbprint(ctx)
	require.NoError(t, err)

	tokenString, err := NewSigner(eng, WithKeyID(thumbprint)).Sign(ctx, Claims{"sub": "device"})
	require.NoError(t, err)

	pub, err := eng.ECDSAPublicKey()
	require.NoError(t, err)
	token, err := Verify(tokenString, pub, nil)
	require.NoError(t, err)
	assert.Equal(t, thumbprint, token.Header["kid"])

	// ES256 signatures from the store are deterministic.
	again, err := NewSigner(eng, WithKeyID(thumbprint)).Sign(ctx, Claims{"sub": "device"})
	require.NoError(t, err)
	assert.Equal(t, tokenString, again)
}
