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
	"errors"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ErrInvalidSignature is returned for signatures that are neither valid
// DER nor a raw r||s pair of the expected size.
var ErrInvalidSignature = errors.New("keystore: invalid signature encoding")

// RFC4754FromASN1 converts a DER ECDSA-Sig-Value into the fixed size r||s
// encoding of RFC 4754. size is the byte length of one coordinate (32 for
// P-256).
func RFC4754FromASN1(der []byte, size int) ([]byte, error) {
	var (
		r, s  = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, ErrInvalidSignature
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || len(r.Bytes()) > size || len(s.Bytes()) > size {
		return nil, ErrInvalidSignature
	}

	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}

// ASN1FromRFC4754 converts a raw r||s signature into DER.
func ASN1FromRFC4754(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, ErrInvalidSignature
	}
	size := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:size])
	s := new(big.Int).SetBytes(raw[size:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// VerifyRFC4754 reports whether raw is a valid r||s signature of digest by
// pub.
func VerifyRFC4754(pub *ecdsa.PublicKey, digest, raw []byte) bool {
	if pub == nil {
		return false
	}
	size := (pub.Curve.Params().BitSize + 7) / 8
	if len(raw) != 2*size {
		return false
	}
	der, err := ASN1FromRFC4754(raw)
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pub, digest, der)
}
