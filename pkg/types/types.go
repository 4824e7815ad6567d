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

// Package types defines the configuration values shared by the key lifecycle
// manager, the crypto engine and the secure store service.
package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIdentity is returned when an identity has no usable id.
	ErrInvalidIdentity = errors.New("types: invalid identity")

	// ErrInvalidAccessPolicy is returned when an access policy name is unknown.
	ErrInvalidAccessPolicy = errors.New("types: invalid access policy")

	// ErrInvalidKeyFormat is returned when a public key format is unknown.
	ErrInvalidKeyFormat = errors.New("types: invalid key format")
)

const (
	// PrivateKeySuffix is appended to an identity id to build the private key tag.
	PrivateKeySuffix = "PrivateKey"

	// LegacyPublicKeySuffix is appended to an identity id to build the tag
	// under which older releases persisted a copy of the public key.
	LegacyPublicKeySuffix = "PublicKey"
)

// PromptStrings are the localized strings shown by the platform when a key
// use requires user authentication.
type PromptStrings struct {
	Reason        string `yaml:"reason" json:"reason"`
	FallbackTitle string `yaml:"fallback_title" json:"fallback_title"`
	CancelTitle   string `yaml:"cancel_title" json:"cancel_title"`
}

// IsZero reports whether no prompt string is set.
func (p PromptStrings) IsZero() bool {
	return p.Reason == "" && p.FallbackTitle == "" && p.CancelTitle == ""
}

// Identity is the immutable configuration of a secure store. Id is the
// stable logical name every storage tag is derived from.
type Identity struct {
	ID           string
	AccessPolicy AccessPolicy
	Prompt       *PromptStrings
}

// NewIdentity returns a validated identity.
func NewIdentity(id string, policy AccessPolicy, prompt *PromptStrings) (Identity, error) {
	identity := Identity{
		ID:           id,
		AccessPolicy: policy,
		Prompt:       prompt,
	}
	if err := identity.Validate(); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// Validate checks that the identity can derive storage tags.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidIdentity)
	}
	if strings.ContainsAny(i.ID, "/\\\x00") {
		return fmt.Errorf("%w: id %q contains a path separator or null byte", ErrInvalidIdentity, i.ID)
	}
	if !i.AccessPolicy.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidAccessPolicy, i.AccessPolicy)
	}
	return nil
}

// PrivateKeyTag returns the canonical tag of the identity's private key.
func (i Identity) PrivateKeyTag() string {
	return i.ID + PrivateKeySuffix
}

// LegacyPublicKeyTag returns the tag older releases stored the public key under.
func (i Identity) LegacyPublicKeyTag() string {
	return i.ID + LegacyPublicKeySuffix
}

// LegacyGenerationTag returns the bare tag older releases generated keys under.
func (i Identity) LegacyGenerationTag() string {
	return i.ID
}

// ItemNamespace returns the storage prefix holding the identity's items.
func (i Identity) ItemNamespace() string {
	return "items/" + i.ID + "/"
}

// KeyFormat selects the wire format of an exported public key.
type KeyFormat int

const (
	// KeyFormatJWK exports a JSON Web Key (RFC 7517).
	KeyFormatJWK KeyFormat = iota

	// KeyFormatDID exports a did:key identifier.
	KeyFormatDID
)

// String returns the format name.
func (f KeyFormat) String() string {
	switch f {
	case KeyFormatJWK:
		return "jwk"
	case KeyFormatDID:
		return "did"
	default:
		return fmt.Sprintf("KeyFormat(%d)", int(f))
	}
}

// ParseKeyFormat parses "jwk" or "did" (case-insensitive).
func ParseKeyFormat(s string) (KeyFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jwk":
		return KeyFormatJWK, nil
	case "did", "did:key", "didkey":
		return KeyFormatDID, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKeyFormat, s)
	}
}
