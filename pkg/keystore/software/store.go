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

// Package software implements keystore.SecureKeyStore in software for
// development machines, simulators and tests.
//
// Keys are P-256 private keys encoded as PKCS#8 (optionally encrypted with
// a passphrase) and persisted in a storage.Backend under keys/{tag}. The
// store is not hardware backed: access flags are recorded but only
// enforced when hardware simulation is enabled, in which case every
// decrypt or sign with an access-controlled key calls the configured
// Authenticator first.
package software

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeremyhahn/go-securestore/pkg/crypto/ecies"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/storage"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"github.com/youmark/pkcs8"
)

// Authenticator performs user authentication before an access-controlled
// key is used. A nil return lets the operation proceed; failures should be
// *keystore.StatusError values in the LocalAuthentication domain.
type Authenticator interface {
	Authenticate(tag string, flags types.AccessFlags, prompt types.PromptStrings) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(tag string, flags types.AccessFlags, prompt types.PromptStrings) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(tag string, flags types.AccessFlags, prompt types.PromptStrings) error {
	return f(tag, flags, prompt)
}

// Config contains configuration for the software key store.
type Config struct {
	// KeyStorage holds the key records. Required.
	KeyStorage storage.Backend

	// SimulateHardware makes the store report itself as hardware backed
	// and enforce access flags through Authenticator.
	SimulateHardware bool

	// Authenticator is consulted for access-controlled keys when
	// SimulateHardware is set. Nil approves every request.
	Authenticator Authenticator

	// Passphrase encrypts key records at rest (PKCS#8 PBES2). Empty
	// stores unencrypted PKCS#8.
	Passphrase []byte

	// Random defaults to crypto/rand.Reader.
	Random io.Reader

	Logger logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.KeyStorage == nil {
		return fmt.Errorf("KeyStorage is required")
	}
	return nil
}

// Store is the software SecureKeyStore.
//
// Thread-safe: GenerateKeyPair is an atomic add, concurrent callers for
// the same tag see exactly one success and keystore.ErrDuplicateItem.
type Store struct {
	mu            sync.Mutex
	storage       storage.Backend
	hardware      bool
	authenticator Authenticator
	passphrase    []byte
	random        io.Reader
	logger        logging.Logger
}

var _ keystore.SecureKeyStore = (*Store)(nil)

// record is the persisted form of a key.
type record struct {
	Tag         string            `json:"tag"`
	AccessFlags types.AccessFlags `json:"access_flags"`
	Encrypted   bool              `json:"encrypted"`
	PKCS8       []byte            `json:"pkcs8"`
	CreatedAt   time.Time         `json:"created_at"`
}

type privateKey struct {
	tag    string
	flags  types.AccessFlags
	key    *ecdsa.PrivateKey
	prompt types.PromptStrings
}

func (k *privateKey) Tag() string                    { return k.tag }
func (k *privateKey) AccessFlags() types.AccessFlags { return k.flags }

type publicKey struct {
	tag string
	key *ecdsa.PublicKey
}

func (k *publicKey) Tag() string { return k.tag }

// New creates a software key store.
func New(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	random := config.Random
	if random == nil {
		random = rand.Reader
	}
	return &Store{
		storage:       config.KeyStorage,
		hardware:      config.SimulateHardware,
		authenticator: config.Authenticator,
		passphrase:    append([]byte(nil), config.Passphrase...),
		random:        random,
		logger:        logging.OrNop(config.Logger),
	}, nil
}

// HardwareBacked reports whether hardware simulation is enabled.
func (s *Store) HardwareBacked() bool {
	return s.hardware
}

// GenerateKeyPair creates a P-256 key under spec.Tag.
func (s *Store) GenerateKeyPair(spec *keystore.KeySpec) (keystore.PrivateKeyRef, error) {
	if spec == nil || spec.Tag == "" {
		return nil, keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam, "key spec requires a tag")
	}
	if spec.Curve != keystore.CurveP256 || spec.SizeBits != 256 {
		return nil, keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam,
			fmt.Sprintf("unsupported key: %s/%d", spec.Curve, spec.SizeBits))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := storage.KeyPath(spec.Tag)
	exists, err := s.storage.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("failed to check key existence: %w", err)
	}
	if exists {
		return nil, keystore.ErrDuplicateItem
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), s.random)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	der, err := s.encodeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(&record{
		Tag:         spec.Tag,
		AccessFlags: spec.AccessFlags,
		Encrypted:   len(s.passphrase) > 0,
		PKCS8:       der,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode key record: %w", err)
	}
	if err := s.storage.Put(path, data, storage.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("failed to save key: %w", err)
	}

	s.logger.Debug("key pair generated",
		logging.String("tag", spec.Tag),
		logging.String("access_flags", spec.AccessFlags.String()))
	return &privateKey{tag: spec.Tag, flags: spec.AccessFlags, key: key}, nil
}

// FindKey loads the private key stored under tag.
func (s *Store) FindKey(tag string, auth *keystore.AuthContext) (keystore.PrivateKeyRef, error) {
	data, err := s.storage.Get(storage.KeyPath(tag))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, keystore.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load key %q: %w", tag, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, corrupt(tag, err)
	}
	key, err := s.decodeKey(rec.PKCS8, rec.Encrypted)
	if err != nil {
		return nil, corrupt(tag, err)
	}

	ref := &privateKey{tag: tag, flags: rec.AccessFlags, key: key}
	if auth != nil {
		ref.prompt = auth.Prompt
	}
	return ref, nil
}

// DerivePublicKey returns the public half of priv.
func (s *Store) DerivePublicKey(priv keystore.PrivateKeyRef) (keystore.PublicKeyRef, error) {
	k, err := asPrivate(priv)
	if err != nil {
		return nil, err
	}
	return &publicKey{tag: k.tag, key: &k.key.PublicKey}, nil
}

// DeleteKey removes the record stored under tag.
func (s *Store) DeleteKey(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(storage.KeyPath(tag)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return keystore.ErrItemNotFound
		}
		return fmt.Errorf("failed to delete key %q: %w", tag, err)
	}
	s.logger.Debug("key deleted", logging.String("tag", tag))
	return nil
}

// Tags returns the tags of every stored key in sorted order, including
// entries left by older tag schemes.
func (s *Store) Tags() ([]string, error) {
	tags, err := storage.ListKeys(s.storage)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return tags, nil
}

// Encrypt encrypts plaintext to pub with ECIES-X963-SHA256-AESGCM.
func (s *Store) Encrypt(pub keystore.PublicKeyRef, alg keystore.Algorithm, plaintext []byte) ([]byte, error) {
	if alg != keystore.AlgorithmECIESX963SHA256AESGCM {
		return nil, unsupported(alg)
	}
	k, ok := pub.(*publicKey)
	if !ok || k == nil {
		return nil, foreignRef()
	}
	return ecies.Encrypt(s.random, k.key, plaintext)
}

// Decrypt authenticates if required and decrypts ciphertext with priv.
// Ciphertext that does not authenticate under priv is reported as
// keystore.ErrParam, matching how hardware stores report a key mismatch.
func (s *Store) Decrypt(priv keystore.PrivateKeyRef, alg keystore.Algorithm, ciphertext []byte) ([]byte, error) {
	if alg != keystore.AlgorithmECIESX963SHA256AESGCM {
		return nil, unsupported(alg)
	}
	k, err := asPrivate(priv)
	if err != nil {
		return nil, err
	}
	if err := s.authenticate(k); err != nil {
		return nil, err
	}

	plaintext, err := ecies.Decrypt(k.key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keystore.ErrParam, err)
	}
	return plaintext, nil
}

// Sign authenticates if required and signs a SHA-256 digest, returning
// the RFC 4754 r||s encoding. Signatures are deterministic (RFC 6979).
func (s *Store) Sign(priv keystore.PrivateKeyRef, alg keystore.Algorithm, digest []byte) ([]byte, error) {
	if alg != keystore.AlgorithmECDSARFC4754 {
		return nil, unsupported(alg)
	}
	k, err := asPrivate(priv)
	if err != nil {
		return nil, err
	}
	if len(digest) != crypto.SHA256.Size() {
		return nil, keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam,
			fmt.Sprintf("digest must be %d bytes, got %d", crypto.SHA256.Size(), len(digest)))
	}
	if err := s.authenticate(k); err != nil {
		return nil, err
	}

	der, err := k.key.Sign(nil, digest, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return keystore.RFC4754FromASN1(der, 32)
}

// ExportPublicKey returns the 65 byte uncompressed point.
func (s *Store) ExportPublicKey(pub keystore.PublicKeyRef) ([]byte, error) {
	k, ok := pub.(*publicKey)
	if !ok || k == nil {
		return nil, foreignRef()
	}
	ecdhKey, err := k.key.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}
	return ecdhKey.Bytes(), nil
}

func (s *Store) authenticate(k *privateKey) error {
	if !s.hardware || !k.flags.RequiresAuthentication() || s.authenticator == nil {
		return nil
	}
	if err := s.authenticator.Authenticate(k.tag, k.flags, k.prompt); err != nil {
		s.logger.Debug("authentication failed", logging.String("tag", k.tag), logging.Err(err))
		return err
	}
	return nil
}

func (s *Store) encodeKey(key *ecdsa.PrivateKey) ([]byte, error) {
	if len(s.passphrase) > 0 {
		der, err := pkcs8.MarshalPrivateKey(key, s.passphrase, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt key: %w", err)
		}
		return der, nil
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}
	return der, nil
}

func (s *Store) decodeKey(der []byte, encrypted bool) (*ecdsa.PrivateKey, error) {
	var (
		parsed any
		err    error
	)
	if encrypted {
		if len(s.passphrase) == 0 {
			return nil, errors.New("key is encrypted and no passphrase is configured")
		}
		parsed, err = pkcs8.ParsePKCS8PrivateKey(der, s.passphrase)
	} else {
		parsed, err = x509.ParsePKCS8PrivateKey(der)
	}
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unexpected key type %T", parsed)
	}
	return key, nil
}

func asPrivate(ref keystore.PrivateKeyRef) (*privateKey, error) {
	k, ok := ref.(*privateKey)
	if !ok || k == nil {
		return nil, foreignRef()
	}
	return k, nil
}

func corrupt(tag string, err error) error {
	return keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam,
		fmt.Sprintf("key record %q is unreadable: %v", tag, err))
}

func unsupported(alg keystore.Algorithm) error {
	return keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam,
		fmt.Sprintf("algorithm %q is not supported", alg))
}

func foreignRef() error {
	return keystore.NewStatusError(keystore.DomainOSStatus, keystore.CodeParam,
		"key reference was not issued by this store")
}
