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

package storeerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_AuthenticationCodes(t *testing.T) {
	tests := []struct {
		name string
		code keystore.Code
		want Kind
	}{
		{"user cancel", keystore.CodeUserCancel, KindUserCancelled},
		{"system cancel", keystore.CodeSystemCancel, KindUserCancelled},
		{"app cancel", keystore.CodeAppCancel, KindUserCancelled},
		{"authentication failed", keystore.CodeAuthenticationFailed, KindRecoverable},
		{"user fallback", keystore.CodeUserFallback, KindRecoverable},
		{"invalid context", keystore.CodeInvalidContext, KindRecoverable},
		{"biometry not available", keystore.CodeBiometryNotAvailable, KindRecoverable},
		{"biometry not enrolled", keystore.CodeBiometryNotEnrolled, KindRecoverable},
		{"biometry lockout", keystore.CodeBiometryLockout, KindRecoverable},
		{"companion not available", keystore.CodeCompanionNotAvailable, KindRecoverable},
		{"not interactive", keystore.CodeNotInteractive, KindRecoverable},
		{"view service failure", keystore.CodeViewServiceInitializationFailure, KindRecoverable},
		{"authentication timed out", keystore.CodeAuthenticationTimedOut, KindRecoverable},
		{"ui activation timed out", keystore.CodeUIActivationTimedOut, KindRecoverable},
		{"invalidated by handle request", keystore.CodeInvalidatedByHandleRequest, KindRecoverable},
		{"passcode not set", keystore.CodePasscodeNotSet, KindNoLocalAuthEnrolled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := keystore.NewAuthError(tt.code)
			err := Classify(raw, nil)

			var classified *Error
			require.True(t, errors.As(err, &classified))
			assert.Equal(t, tt.want, classified.Kind)
			assert.Equal(t, tt.want.DefaultReason(), classified.Reason)
			assert.True(t, classified.Resolvable)
			assert.ErrorIs(t, err, raw, "original error must stay in the chain")
		})
	}
}

func TestClassify_StoreStatusCodes(t *testing.T) {
	err := Classify(keystore.ErrParam, nil)
	assert.True(t, IsKind(err, KindUnrecoverable))
	assert.ErrorIs(t, err, keystore.ErrParam)

	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.False(t, classified.Resolvable)

	err = Classify(keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeInteractionNotAllowed, ""), nil)
	assert.True(t, IsKind(err, KindRecoverable))
}

func TestClassify_NilReturnsFallback(t *testing.T) {
	fallback := New(KindCantDecryptData)
	assert.Same(t, fallback, Classify(nil, fallback))
	assert.NoError(t, Classify(nil, nil))
}

func TestClassify_UnknownPassesThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unknown auth code", keystore.NewAuthError(keystore.Code(-9999))},
		{"unknown status code", keystore.NewStatusError(keystore.DomainOSStatus, keystore.Code(-1), "")},
		{"item not found", keystore.ErrItemNotFound},
		{"duplicate item", keystore.ErrDuplicateItem},
		{"plain error", errors.New("disk on fire")},
		{"wrong domain", keystore.NewStatusError("other.domain", keystore.CodeUserCancel, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.err, Classify(tt.err, New(KindRecoverable)))
		})
	}
}

func TestClassify_WrappedStatus(t *testing.T) {
	raw := keystore.NewAuthError(keystore.CodeUserCancel)
	err := Classify(fmt.Errorf("decrypt: %w", raw), nil)
	assert.True(t, IsKind(err, KindUserCancelled))
	assert.ErrorIs(t, err, raw)
}

func TestClassify_AlreadyClassified(t *testing.T) {
	in := New(KindCantRetrieveKey, WithOriginal(keystore.NewAuthError(keystore.CodeUserCancel)))
	assert.Same(t, in, Classify(in, nil))
}

func TestClassifyOr(t *testing.T) {
	assert.NoError(t, ClassifyOr(nil, KindCantDecryptData))

	err := ClassifyOr(keystore.NewAuthError(keystore.CodeBiometryLockout), KindCantDecryptData)
	assert.True(t, IsKind(err, KindRecoverable))

	raw := errors.New("boom")
	err = ClassifyOr(raw, KindCantDecryptData)
	assert.True(t, IsKind(err, KindCantDecryptData))
	assert.ErrorIs(t, err, raw)
}

func TestNew_DefaultsAndOptions(t *testing.T) {
	for _, kind := range Kinds() {
		e := New(kind)
		assert.Equal(t, kind, e.Kind)
		assert.NotEmpty(t, e.Reason, "kind %s has no default reason", kind)
		assert.True(t, kind.IsValid())
	}

	assert.False(t, New(KindCantDecodeData).Resolvable)
	assert.False(t, New(KindCantFormatData).Resolvable)
	assert.True(t, New(KindCantEncryptData).Resolvable)

	e := New(KindRecoverable, WithReason("Authentication attempts throttled"), WithResolvable(false))
	assert.Equal(t, "Authentication attempts throttled", e.Reason)
	assert.False(t, e.Resolvable)

	e = New(KindRecoverable, WithReason(""))
	assert.Equal(t, KindRecoverable.DefaultReason(), e.Reason)

	assert.False(t, Kind("bogus").IsValid())
	assert.Equal(t, "bogus", Kind("bogus").DefaultReason())
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("op: %w", New(KindCantDeleteKey, WithReason("custom")))
	assert.ErrorIs(t, err, New(KindCantDeleteKey))
	assert.NotErrorIs(t, err, New(KindCantStoreKey))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "securestore: cantEncodeData: Error while encoding data", New(KindCantEncodeData).Error())
	e := New(KindCantEncodeData, WithOriginal(errors.New("bad input")))
	assert.Equal(t, "securestore: cantEncodeData: Error while encoding data: bad input", e.Error())
}

func TestError_JSON(t *testing.T) {
	e := New(KindUserCancelled, WithOriginal(errors.New("cancelled")))
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"userCancelled","reason":"User cancelled the biometric prompt","resolvable":true,"original_error":"cancelled"}`, string(data))

	var decoded Error
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, KindUserCancelled, decoded.Kind)
	assert.Equal(t, e.Reason, decoded.Reason)
	require.Error(t, decoded.Err)
	assert.Equal(t, "cancelled", decoded.Err.Error())

	data, err = json.Marshal(New(KindCantFormatData))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "original_error")

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"nope"}`), &decoded))

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"cantDeleteKey","resolvable":true}`), &decoded))
	assert.Equal(t, KindCantDeleteKey.DefaultReason(), decoded.Reason)
	assert.NoError(t, decoded.Err)
}

func TestKindOf(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)

	kind, ok := KindOf(fmt.Errorf("wrap: %w", New(KindNoLocalAuthEnrolled)))
	assert.True(t, ok)
	assert.Equal(t, KindNoLocalAuthEnrolled, kind)
}
