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

// Package storeerror is the error taxonomy of the secure store.
//
// Platform failures surface as dozens of opaque status codes. Classify
// reduces them to a small closed set of kinds a caller can act on: retry
// (Recoverable), stop without retrying (UserCancelled), recreate state
// (Unrecoverable) or ask the user to configure a passcode
// (NoLocalAuthEnrolled). The original failure is always kept as the
// wrapped error.
package storeerror

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is a closed, string-backed enumeration of failure kinds.
type Kind string

const (
	KindUnableToRetrieveFromStore      Kind = "unableToRetrieveFromStore"
	KindUnableToSaveToStore            Kind = "unableToSaveToStore"
	KindCantGetPublicKeyFromPrivateKey Kind = "cantGetPublicKeyFromPrivateKey"
	KindCantCreateKey                  Kind = "cantCreateKey"
	KindCantDeleteKey                  Kind = "cantDeleteKey"
	KindCantStoreKey                   Kind = "cantStoreKey"
	KindCantRetrieveKey                Kind = "cantRetrieveKey"
	KindCantEncryptData                Kind = "cantEncryptData"
	KindCantDecryptData                Kind = "cantDecryptData"
	KindCantEncodeData                 Kind = "cantEncodeData"
	KindCantDecodeData                 Kind = "cantDecodeData"
	KindCantFormatData                 Kind = "cantFormatData"
	KindUnknownSignatureError          Kind = "unknownSignatureError"
	KindUserCancelled                  Kind = "userCancelled"
	KindRecoverable                    Kind = "recoverable"
	KindUnrecoverable                  Kind = "unrecoverable"
	KindNoLocalAuthEnrolled            Kind = "noLocalAuthEnrolled"
)

var kindReasons = map[Kind]string{
	KindUnableToRetrieveFromStore:      "Error while retrieving item from the item store",
	KindUnableToSaveToStore:            "Error while saving item to the item store",
	KindCantGetPublicKeyFromPrivateKey: "Error while getting public key from private key",
	KindCantCreateKey:                  "Error while creating key in the key store",
	KindCantDeleteKey:                  "Error while deleting key from the key store",
	KindCantStoreKey:                   "Error while storing key to the key store",
	KindCantRetrieveKey:                "Error while retrieving key from the key store",
	KindCantEncryptData:                "Error while encrypting data",
	KindCantDecryptData:                "Error while decrypting data",
	KindCantEncodeData:                 "Error while encoding data",
	KindCantDecodeData:                 "Error while decoding data",
	KindCantFormatData:                 "Error while formatting data",
	KindUnknownSignatureError:          "No signature or error was returned while signing",
	KindUserCancelled:                  "User cancelled the biometric prompt",
	KindRecoverable:                    "A recoverable error has been thrown",
	KindUnrecoverable:                  "A unrecoverable error has been thrown",
	KindNoLocalAuthEnrolled:            "Passcode is not set on the device",
}

// Kinds returns every defined kind.
func Kinds() []Kind {
	return []Kind{
		KindUnableToRetrieveFromStore,
		KindUnableToSaveToStore,
		KindCantGetPublicKeyFromPrivateKey,
		KindCantCreateKey,
		KindCantDeleteKey,
		KindCantStoreKey,
		KindCantRetrieveKey,
		KindCantEncryptData,
		KindCantDecryptData,
		KindCantEncodeData,
		KindCantDecodeData,
		KindCantFormatData,
		KindUnknownSignatureError,
		KindUserCancelled,
		KindRecoverable,
		KindUnrecoverable,
		KindNoLocalAuthEnrolled,
	}
}

// IsValid reports whether k is a defined kind.
func (k Kind) IsValid() bool {
	_, ok := kindReasons[k]
	return ok
}

// DefaultReason returns the reason used when none is supplied.
func (k Kind) DefaultReason() string {
	if reason, ok := kindReasons[k]; ok {
		return reason
	}
	return string(k)
}

// DefaultResolvable reports whether errors of kind k are resolvable unless
// stated otherwise. Unrecoverable errors and corrupt data are not: the key
// or item has to be deleted and recreated.
func (k Kind) DefaultResolvable() bool {
	switch k {
	case KindUnrecoverable, KindCantDecodeData, KindCantFormatData:
		return false
	default:
		return true
	}
}

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Reason     string
	Resolvable bool
	Err        error
}

// Option customizes an Error built by New.
type Option func(*Error)

// WithReason overrides the default reason.
func WithReason(reason string) Option {
	return func(e *Error) {
		if reason != "" {
			e.Reason = reason
		}
	}
}

// WithResolvable overrides the default resolvability.
func WithResolvable(resolvable bool) Option {
	return func(e *Error) {
		e.Resolvable = resolvable
	}
}

// WithOriginal attaches the underlying failure.
func WithOriginal(err error) Option {
	return func(e *Error) {
		e.Err = err
	}
}

// New returns an Error of kind with the kind's default reason and
// resolvability.
func New(kind Kind, opts ...Option) *Error {
	e := &Error{
		Kind:       kind,
		Reason:     kind.DefaultReason(),
		Resolvable: kind.DefaultResolvable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("securestore: %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("securestore: %s: %s", e.Kind, e.Reason)
}

// Unwrap returns the original error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, New(kind))
// tests the kind of a classified error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

type errorJSON struct {
	Kind          Kind   `json:"kind"`
	Reason        string `json:"reason"`
	Resolvable    bool   `json:"resolvable"`
	OriginalError string `json:"original_error,omitempty"`
}

// MarshalJSON serializes the error; the original error is rendered as text.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := errorJSON{
		Kind:       e.Kind,
		Reason:     e.Reason,
		Resolvable: e.Resolvable,
	}
	if e.Err != nil {
		out.OriginalError = e.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores kind, reason and resolvability. The original error
// comes back as a plain text error.
func (e *Error) UnmarshalJSON(data []byte) error {
	var in errorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Kind.IsValid() {
		return fmt.Errorf("storeerror: unknown kind %q", in.Kind)
	}
	e.Kind = in.Kind
	e.Reason = in.Reason
	if e.Reason == "" {
		e.Reason = in.Kind.DefaultReason()
	}
	e.Resolvable = in.Resolvable
	e.Err = nil
	if in.OriginalError != "" {
		e.Err = errors.New(in.OriginalError)
	}
	return nil
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err's chain contains a classified error of kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
