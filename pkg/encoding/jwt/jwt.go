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

// Package jwt signs and verifies compact ES256 JSON Web Tokens with a
// secure store identity's key.
//
// Tokens are produced by golang-jwt with SigningMethodES256Store, which
// hands the signing input to the store and appends the base64url r||s
// signature. They verify with any standard ES256 implementation.
package jwt

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-securestore/pkg/metrics"
)

// Claims is an alias for the golang-jwt map claims.
type Claims = jwt.MapClaims

// Signer signs JWT tokens with a DataSigner.
type Signer struct {
	signer DataSigner
	kid    string
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithKeyID sets the kid header of every signed token.
func WithKeyID(kid string) SignerOption {
	return func(s *Signer) {
		s.kid = kid
	}
}

// NewSigner creates a JWT signer.
func NewSigner(signer DataSigner, opts ...SignerOption) *Signer {
	s := &Signer{signer: signer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign creates and signs a JWT with the given claims.
//
// Example:
//
//	signer := jwt.NewSigner(eng, jwt.WithKeyID(thumbprint))
//	token, err := signer.Sign(ctx, jwt.Claims{
//	    "sub": "user123",
//	    "exp": time.Now().Add(time.Hour).Unix(),
//	})
func (s *Signer) Sign(ctx context.Context, claims jwt.Claims) (signed string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpSignJWT, start, err) }()

	if s.signer == nil {
		return "", ErrInvalidKey
	}
	token := jwt.NewWithClaims(SigningMethodES256Store, claims)
	if s.kid != "" {
		token.Header["kid"] = s.kid
	}
	signed, err = token.SignedString(&signingKey{ctx: ctx, signer: s.signer})
	if err != nil {
		return "", fmt.Errorf("jwt: failed to sign token: %w", err)
	}
	return signed, nil
}

// SignJSON signs a token whose payload is the JSON object claimsJSON.
func (s *Signer) SignJSON(ctx context.Context, claimsJSON []byte) (string, error) {
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return "", fmt.Errorf("jwt: claims must be a JSON object: %w", err)
	}
	return s.Sign(ctx, claims)
}

// VerifyOptions contains options for JWT verification.
type VerifyOptions struct {
	ExpectedIssuer   string
	ExpectedAudience string
	RequireExpiry    bool
}

// Verify parses tokenString and verifies its ES256 signature with
// publicKey. Other algorithms are rejected.
func Verify(tokenString string, publicKey *ecdsa.PublicKey, opts *VerifyOptions) (*jwt.Token, error) {
	if publicKey == nil {
		return nil, ErrInvalidKey
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{SigningMethodES256Store.Alg()})}
	if opts != nil {
		if opts.ExpectedIssuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(opts.ExpectedIssuer))
		}
		if opts.ExpectedAudience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(opts.ExpectedAudience))
		}
		if opts.RequireExpiry {
			parserOpts = append(parserOpts, jwt.WithExpirationRequired())
		}
	}

	token, err := jwt.NewParser(parserOpts...).Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return token, nil
}

// ExtractKID extracts the Key ID (kid) from a JWT token header without verifying the signature.
// Returns an empty string if no kid is present.
func ExtractKID(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return "", nil
	}
	return kid, nil
}
