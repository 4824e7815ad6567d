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

package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/keystore/mocks"
	"github.com/jeremyhahn/go-securestore/pkg/keystore/software"
	"github.com/jeremyhahn/go-securestore/pkg/storage/memory"
	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSoftwareStore(t *testing.T, hardware bool) *software.Store {
	t.Helper()
	s, err := software.New(&software.Config{
		KeyStorage:       memory.New(),
		SimulateHardware: hardware,
	})
	require.NoError(t, err)
	return s
}

func newTestManager(t *testing.T, store keystore.SecureKeyStore) *Manager {
	t.Helper()
	m, err := New(&Config{Store: store})
	require.NoError(t, err)
	return m
}

func testIdentity(t *testing.T, id string, policy types.AccessPolicy) types.Identity {
	t.Helper()
	identity, err := types.NewIdentity(id, policy, &types.PromptStrings{Reason: "Unlock " + id})
	require.NoError(t, err)
	return identity
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)

	store := newSoftwareStore(t, false)
	m := newTestManager(t, store)
	assert.Same(t, store, m.Store())
}

func TestEnsureKeys_CreatesOnce(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
	m := newTestManager(t, mock)
	identity := testIdentity(t, "wallet", types.AccessPolicyAnyBiometricOrPasscode)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.EnsureKeys(identity))
	}

	generated, found, _ := mock.Calls()
	assert.Equal(t, []string{"walletPrivateKey"}, generated)
	assert.Len(t, found, 3)
}

func TestEnsureKeys_Concurrent(t *testing.T) {
	store := newSoftwareStore(t, true)
	m := newTestManager(t, store)
	identity := testIdentity(t, "concurrent", types.AccessPolicyOpen)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureKeys(identity)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	pair, err := m.RetrieveKeys(identity, nil)
	require.NoError(t, err)
	assert.Equal(t, "concurrentPrivateKey", pair.Private.Tag())
}

func TestEnsureKeys_DuplicateIsSuccess(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
	mock.GenerateKeyPairFunc = func(*keystore.KeySpec) (keystore.PrivateKeyRef, error) {
		return nil, keystore.ErrDuplicateItem
	}
	m := newTestManager(t, mock)

	assert.NoError(t, m.EnsureKeys(testIdentity(t, "dup", types.AccessPolicyOpen)))
}

func TestEnsureKeys_EffectiveFlags(t *testing.T) {
	identity := testIdentity(t, "flags", types.AccessPolicyCurrentBiometricOnly)

	t.Run("hardware", func(t *testing.T) {
		mock := mocks.NewMockKeyStore(newSoftwareStore(t, true))
		var got types.AccessFlags
		mock.GenerateKeyPairFunc = func(spec *keystore.KeySpec) (keystore.PrivateKeyRef, error) {
			got = spec.AccessFlags
			assert.Equal(t, keystore.CurveP256, spec.Curve)
			assert.Equal(t, 256, spec.SizeBits)
			return mock.Delegate.GenerateKeyPair(spec)
		}
		m := newTestManager(t, mock)
		require.NoError(t, m.EnsureKeys(identity))
		assert.Equal(t, types.AccessPolicyCurrentBiometricOnly.Flags(), got)
	})

	t.Run("software", func(t *testing.T) {
		m := newTestManager(t, newSoftwareStore(t, false))
		assert.Equal(t, types.AccessPolicyOpen.Flags(), m.EffectiveFlags(identity))
		require.NoError(t, m.EnsureKeys(identity))

		pair, err := m.RetrieveKeys(identity, nil)
		require.NoError(t, err)
		assert.False(t, pair.Private.AccessFlags().RequiresAuthentication())
	})
}

func TestEnsureKeys_Failures(t *testing.T) {
	identity := testIdentity(t, "fail", types.AccessPolicyOpen)

	t.Run("generate", func(t *testing.T) {
		mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
		mock.GenerateKeyPairFunc = func(*keystore.KeySpec) (keystore.PrivateKeyRef, error) {
			return nil, errors.New("secure enclave unavailable")
		}
		err := newTestManager(t, mock).EnsureKeys(identity)
		assert.True(t, storeerror.IsKind(err, storeerror.KindCantCreateKey))
		assert.ErrorContains(t, err, "secure enclave unavailable")
	})

	t.Run("lookup classified", func(t *testing.T) {
		mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
		mock.FindKeyFunc = func(string, *keystore.AuthContext) (keystore.PrivateKeyRef, error) {
			return nil, keystore.NewAuthError(keystore.CodeUserCancel)
		}
		err := newTestManager(t, mock).EnsureKeys(identity)
		assert.True(t, storeerror.IsKind(err, storeerror.KindUserCancelled))
		generated, _, _ := mock.Calls()
		assert.Empty(t, generated)
	})

	t.Run("invalid identity", func(t *testing.T) {
		m := newTestManager(t, newSoftwareStore(t, false))
		err := m.EnsureKeys(types.Identity{ID: ""})
		assert.True(t, storeerror.IsKind(err, storeerror.KindCantCreateKey))
		assert.ErrorIs(t, err, types.ErrInvalidIdentity)
	})
}

func TestRetrieveKeys(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, true))
	m := newTestManager(t, mock)
	identity := testIdentity(t, "retrieve", types.AccessPolicyAnyBiometricOnly)

	_, err := m.RetrieveKeys(identity, nil)
	assert.True(t, storeerror.IsKind(err, storeerror.KindCantRetrieveKey))
	assert.ErrorIs(t, err, keystore.ErrItemNotFound)

	require.NoError(t, m.EnsureKeys(identity))
	pair, err := m.RetrieveKeys(identity, nil)
	require.NoError(t, err)
	assert.Equal(t, identity.PrivateKeyTag(), pair.Private.Tag())
	assert.Equal(t, identity.PrivateKeyTag(), pair.Public.Tag())

	mock.FindKeyAuth = nil
	override := &types.PromptStrings{Reason: "Sign the transfer"}
	_, err = m.RetrieveKeys(identity, override)
	require.NoError(t, err)
	require.Len(t, mock.FindKeyAuth, 1)
	assert.Equal(t, "Sign the transfer", mock.FindKeyAuth[0].Prompt.Reason)

	mock.FindKeyAuth = nil
	_, err = m.RetrieveKeys(identity, nil)
	require.NoError(t, err)
	assert.Equal(t, "Unlock retrieve", mock.FindKeyAuth[0].Prompt.Reason)
}

func TestRetrieveKeys_NoPrompt(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
	m := newTestManager(t, mock)
	identity, err := types.NewIdentity("quiet", types.AccessPolicyOpen, nil)
	require.NoError(t, err)
	require.NoError(t, m.EnsureKeys(identity))

	mock.FindKeyAuth = nil
	_, err = m.RetrieveKeys(identity, nil)
	require.NoError(t, err)
	assert.Nil(t, mock.FindKeyAuth[0])
}

func TestRetrieveKeys_LookupClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind storeerror.Kind
	}{
		{"user cancel", keystore.NewAuthError(keystore.CodeUserCancel), storeerror.KindUserCancelled},
		{"corrupt key", keystore.ErrParam, storeerror.KindUnrecoverable},
		{"unknown failure", errors.New("enclave offline"), storeerror.KindCantRetrieveKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
			m := newTestManager(t, mock)
			identity := testIdentity(t, "lookup", types.AccessPolicyOpen)
			require.NoError(t, m.EnsureKeys(identity))

			mock.FindKeyFunc = func(string, *keystore.AuthContext) (keystore.PrivateKeyRef, error) {
				return nil, tt.err
			}
			_, err := m.RetrieveKeys(identity, nil)
			assert.True(t, storeerror.IsKind(err, tt.kind), "got %v", err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRetrieveKeys_DeriveFailure(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
	mock.DerivePublicKeyFunc = func(keystore.PrivateKeyRef) (keystore.PublicKeyRef, error) {
		return nil, errors.New("no public key")
	}
	m := newTestManager(t, mock)
	identity := testIdentity(t, "derive", types.AccessPolicyOpen)
	require.NoError(t, m.EnsureKeys(identity))

	_, err := m.RetrieveKeys(identity, nil)
	assert.True(t, storeerror.IsKind(err, storeerror.KindCantGetPublicKeyFromPrivateKey))
}

func TestDeleteKeys_Idempotent(t *testing.T) {
	m := newTestManager(t, newSoftwareStore(t, false))
	identity := testIdentity(t, "delete", types.AccessPolicyOpen)
	require.NoError(t, m.EnsureKeys(identity))

	require.NoError(t, m.DeleteKeys(identity))
	require.NoError(t, m.DeleteKeys(identity))
	require.NoError(t, m.DeleteKeysFor("delete"))

	_, err := m.RetrieveKeys(identity, nil)
	assert.True(t, storeerror.IsKind(err, storeerror.KindCantRetrieveKey))

	// A fresh key can be created after deletion.
	require.NoError(t, m.EnsureKeys(identity))
	_, err = m.RetrieveKeys(identity, nil)
	assert.NoError(t, err)
}

func TestDeleteKeys_RemovesLegacyPublicKey(t *testing.T) {
	store := newSoftwareStore(t, false)
	m := newTestManager(t, store)
	identity := testIdentity(t, "legacy", types.AccessPolicyOpen)
	_, err := store.GenerateKeyPair(keystore.NewP256KeySpec(identity.LegacyPublicKeyTag(), 0))
	require.NoError(t, err)

	require.NoError(t, m.DeleteKeys(identity))
	_, err = store.FindKey(identity.LegacyPublicKeyTag(), nil)
	assert.ErrorIs(t, err, keystore.ErrItemNotFound)
}

func TestDeleteKeys_Failure(t *testing.T) {
	mock := mocks.NewMockKeyStore(newSoftwareStore(t, false))
	mock.DeleteKeyFunc = func(tag string) error {
		if tag == "brokenPrivateKey" {
			return keystore.NewStatusError(keystore.DomainOSStatus, -25293, "auth failed")
		}
		return keystore.ErrItemNotFound
	}
	m := newTestManager(t, mock)

	err := m.DeleteKeys(testIdentity(t, "broken", types.AccessPolicyOpen))
	assert.True(t, storeerror.IsKind(err, storeerror.KindCantDeleteKey))
	_, _, deleted := mock.Calls()
	assert.Equal(t, []string{"brokenPrivateKey", "brokenPublicKey"}, deleted)
}

func TestPurgeLegacyEntries(t *testing.T) {
	store := newSoftwareStore(t, false)
	m := newTestManager(t, store)
	identity := testIdentity(t, "old", types.AccessPolicyOpen)

	purged, err := m.PurgeLegacyEntries(identity)
	require.NoError(t, err)
	assert.False(t, purged)

	require.NoError(t, m.EnsureKeys(identity))
	for _, tag := range []string{identity.LegacyGenerationTag(), identity.LegacyPublicKeyTag()} {
		_, err := store.GenerateKeyPair(keystore.NewP256KeySpec(tag, 0))
		require.NoError(t, err)
	}

	purged, err = m.PurgeLegacyEntries(identity)
	require.NoError(t, err)
	assert.True(t, purged)

	for _, tag := range []string{identity.LegacyGenerationTag(), identity.LegacyPublicKeyTag()} {
		_, err := store.FindKey(tag, nil)
		assert.ErrorIs(t, err, keystore.ErrItemNotFound)
	}
	_, err = m.RetrieveKeys(identity, nil)
	assert.NoError(t, err, "canonical key must survive the purge")
}

func TestPurgeLegacyEntries_RejectsCanonicalTagCollision(t *testing.T) {
	store := newSoftwareStore(t, false)
	m := newTestManager(t, store)
	foo := testIdentity(t, "foo", types.AccessPolicyOpen)
	require.NoError(t, m.EnsureKeys(foo))

	shadow := testIdentity(t, foo.PrivateKeyTag(), types.AccessPolicyOpen)
	purged, err := m.PurgeLegacyEntries(shadow)
	assert.False(t, purged)
	assert.True(t, storeerror.IsKind(err, storeerror.KindCantDeleteKey))
	assert.ErrorIs(t, err, ErrLegacyTagCollision)

	_, err = m.RetrieveKeys(foo, nil)
	assert.NoError(t, err, "the other identity's key must survive")
}
