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

package mocks

import (
	"sync"

	"github.com/jeremyhahn/go-securestore/pkg/keystore"
)

// MockKeyStore is a keystore.SecureKeyStore for tests. Every method calls
// its Func override when set and otherwise forwards to Delegate. Calls are
// tracked by tag.
type MockKeyStore struct {
	mu sync.Mutex

	// Delegate handles calls without an override. Required unless every
	// exercised method has one.
	Delegate keystore.SecureKeyStore

	// Configurable behavior
	HardwareBackedFunc  func() bool
	GenerateKeyPairFunc func(spec *keystore.KeySpec) (keystore.PrivateKeyRef, error)
	FindKeyFunc         func(tag string, auth *keystore.AuthContext) (keystore.PrivateKeyRef, error)
	DerivePublicKeyFunc func(priv keystore.PrivateKeyRef) (keystore.PublicKeyRef, error)
	DeleteKeyFunc       func(tag string) error
	EncryptFunc         func(pub keystore.PublicKeyRef, alg keystore.Algorithm, plaintext []byte) ([]byte, error)
	DecryptFunc         func(priv keystore.PrivateKeyRef, alg keystore.Algorithm, ciphertext []byte) ([]byte, error)
	SignFunc            func(priv keystore.PrivateKeyRef, alg keystore.Algorithm, digest []byte) ([]byte, error)
	ExportPublicKeyFunc func(pub keystore.PublicKeyRef) ([]byte, error)

	// Call tracking
	GenerateKeyPairCalls []string
	FindKeyCalls         []string
	FindKeyAuth          []*keystore.AuthContext
	DeleteKeyCalls       []string
	EncryptCalls         int
	DecryptCalls         int
	SignCalls            int
}

var _ keystore.SecureKeyStore = (*MockKeyStore)(nil)

// NewMockKeyStore returns a MockKeyStore forwarding to delegate.
func NewMockKeyStore(delegate keystore.SecureKeyStore) *MockKeyStore {
	return &MockKeyStore{Delegate: delegate}
}

// HardwareBacked implements keystore.SecureKeyStore.
func (m *MockKeyStore) HardwareBacked() bool {
	if m.HardwareBackedFunc != nil {
		return m.HardwareBackedFunc()
	}
	return m.Delegate.HardwareBacked()
}

// GenerateKeyPair implements keystore.SecureKeyStore.
func (m *MockKeyStore) GenerateKeyPair(spec *keystore.KeySpec) (keystore.PrivateKeyRef, error) {
	m.mu.Lock()
	m.GenerateKeyPairCalls = append(m.GenerateKeyPairCalls, spec.Tag)
	m.mu.Unlock()

	if m.GenerateKeyPairFunc != nil {
		return m.GenerateKeyPairFunc(spec)
	}
	return m.Delegate.GenerateKeyPair(spec)
}

// FindKey implements keystore.SecureKeyStore.
func (m *MockKeyStore) FindKey(tag string, auth *keystore.AuthContext) (keystore.PrivateKeyRef, error) {
	m.mu.Lock()
	m.FindKeyCalls = append(m.FindKeyCalls, tag)
	m.FindKeyAuth = append(m.FindKeyAuth, auth)
	m.mu.Unlock()

	if m.FindKeyFunc != nil {
		return m.FindKeyFunc(tag, auth)
	}
	return m.Delegate.FindKey(tag, auth)
}

// DerivePublicKey implements keystore.SecureKeyStore.
func (m *MockKeyStore) DerivePublicKey(priv keystore.PrivateKeyRef) (keystore.PublicKeyRef, error) {
	if m.DerivePublicKeyFunc != nil {
		return m.DerivePublicKeyFunc(priv)
	}
	return m.Delegate.DerivePublicKey(priv)
}

// DeleteKey implements keystore.SecureKeyStore.
func (m *MockKeyStore) DeleteKey(tag string) error {
	m.mu.Lock()
	m.DeleteKeyCalls = append(m.DeleteKeyCalls, tag)
	m.mu.Unlock()

	if m.DeleteKeyFunc != nil {
		return m.DeleteKeyFunc(tag)
	}
	return m.Delegate.DeleteKey(tag)
}

// Encrypt implements keystore.SecureKeyStore.
func (m *MockKeyStore) Encrypt(pub keystore.PublicKeyRef, alg keystore.Algorithm, plaintext []byte) ([]byte, error) {
	m.mu.Lock()
	m.EncryptCalls++
	m.mu.Unlock()

	if m.EncryptFunc != nil {
		return m.EncryptFunc(pub, alg, plaintext)
	}
	return m.Delegate.Encrypt(pub, alg, plaintext)
}

// Decrypt implements keystore.SecureKeyStore.
func (m *MockKeyStore) Decrypt(priv keystore.PrivateKeyRef, alg keystore.Algorithm, ciphertext []byte) ([]byte, error) {
	m.mu.Lock()
	m.DecryptCalls++
	m.mu.Unlock()

	if m.DecryptFunc != nil {
		return m.DecryptFunc(priv, alg, ciphertext)
	}
	return m.Delegate.Decrypt(priv, alg, ciphertext)
}

// Sign implements keystore.SecureKeyStore.
func (m *MockKeyStore) Sign(priv keystore.PrivateKeyRef, alg keystore.Algorithm, digest []byte) ([]byte, error) {
	m.mu.Lock()
	m.SignCalls++
	m.mu.Unlock()

	if m.SignFunc != nil {
		return m.SignFunc(priv, alg, digest)
	}
	return m.Delegate.Sign(priv, alg, digest)
}

// ExportPublicKey implements keystore.SecureKeyStore.
func (m *MockKeyStore) ExportPublicKey(pub keystore.PublicKeyRef) ([]byte, error) {
	if m.ExportPublicKeyFunc != nil {
		return m.ExportPublicKeyFunc(pub)
	}
	return m.Delegate.ExportPublicKey(pub)
}

// Calls returns copies of the tracked tags for GenerateKeyPair, FindKey and
// DeleteKey.
func (m *MockKeyStore) Calls() (generate, find, del []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.GenerateKeyPairCalls...),
		append([]string(nil), m.FindKeyCalls...),
		append([]string(nil), m.DeleteKeyCalls...)
}
