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

// Package lifecycle creates, retrieves and deletes the key pair that backs
// a secure store identity.
//
// Each identity owns at most one live private key, stored under
// "<id>PrivateKey". The public key is never stored separately: it is
// derived from the private key reference on every retrieval so the two
// halves cannot drift apart.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/metrics"
	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"golang.org/x/sync/singleflight"
)

// ErrLegacyTagCollision is returned by PurgeLegacyEntries for an id whose
// legacy tag is another identity's private key tag.
var ErrLegacyTagCollision = errors.New("lifecycle: legacy tag collides with a canonical key tag")

// KeyPair holds references to an identity's keys for the duration of a
// single call. Callers must not cache it.
type KeyPair struct {
	Private keystore.PrivateKeyRef
	Public  keystore.PublicKeyRef
}

// Config contains configuration for the Manager.
type Config struct {
	// Store is the secure key store. Required.
	Store keystore.SecureKeyStore

	Logger logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Store == nil {
		return fmt.Errorf("Store is required")
	}
	return nil
}

// Manager is the key lifecycle manager. It is safe for concurrent use.
type Manager struct {
	store  keystore.SecureKeyStore
	logger logging.Logger
	create singleflight.Group
}

// New creates a Manager.
func New(config *Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Manager{
		store:  config.Store,
		logger: logging.OrNop(config.Logger),
	}, nil
}

// Store returns the underlying key store.
func (m *Manager) Store() keystore.SecureKeyStore {
	return m.store
}

// EffectiveFlags returns the access flags a new key for identity is bound
// to. Outside secure hardware the policy cannot be enforced and Open flags
// are used instead.
func (m *Manager) EffectiveFlags(identity types.Identity) types.AccessFlags {
	if !m.store.HardwareBacked() {
		return types.AccessPolicyOpen.Flags()
	}
	return identity.AccessPolicy.Flags()
}

// EnsureKeys makes sure a private key exists for identity, creating one if
// needed. It is idempotent and safe under concurrent use: concurrent
// callers for the same identity share one attempt, and a duplicate add
// reported by the store counts as success.
func (m *Manager) EnsureKeys(identity types.Identity) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpEnsureKeys, start, err) }()

	if err := identity.Validate(); err != nil {
		return storeerror.New(storeerror.KindCantCreateKey, storeerror.WithOriginal(err))
	}

	tag := identity.PrivateKeyTag()
	_, err, _ = m.create.Do(tag, func() (any, error) {
		return nil, m.ensure(identity, tag)
	})
	return err
}

func (m *Manager) ensure(identity types.Identity, tag string) error {
	_, err := m.store.FindKey(tag, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, keystore.ErrItemNotFound) {
		m.logger.Warn("key lookup failed before creation",
			logging.String("tag", tag), logging.Err(err))
		return storeerror.ClassifyOr(err, storeerror.KindCantCreateKey)
	}

	flags := m.EffectiveFlags(identity)
	_, err = m.store.GenerateKeyPair(keystore.NewP256KeySpec(tag, flags))
	switch {
	case err == nil:
		metrics.RecordKeyCreated(policyLabel(identity, flags))
		m.logger.Info("key pair created",
			logging.String("identity", identity.ID),
			logging.String("access_flags", flags.String()),
			logging.Bool("hardware_backed", m.store.HardwareBacked()))
		return nil
	case errors.Is(err, keystore.ErrDuplicateItem):
		m.logger.Debug("key pair created concurrently", logging.String("tag", tag))
		return nil
	default:
		m.logger.Error("key pair creation failed",
			logging.String("identity", identity.ID), logging.Err(err))
		return storeerror.ClassifyOr(err, storeerror.KindCantCreateKey)
	}
}

// RetrieveKeys looks up identity's private key and derives its public key.
// The prompt shown if a later key use needs authentication is
// promptOverride when set, otherwise the identity's own prompt.
func (m *Manager) RetrieveKeys(identity types.Identity, promptOverride *types.PromptStrings) (pair *KeyPair, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpRetrieveKeys, start, err) }()

	if err := identity.Validate(); err != nil {
		return nil, storeerror.New(storeerror.KindCantRetrieveKey, storeerror.WithOriginal(err))
	}

	var auth *keystore.AuthContext
	if prompt := selectPrompt(identity, promptOverride); prompt != nil {
		auth = &keystore.AuthContext{Prompt: *prompt}
	}

	priv, err := m.store.FindKey(identity.PrivateKeyTag(), auth)
	switch {
	case errors.Is(err, keystore.ErrItemNotFound):
		return nil, storeerror.New(storeerror.KindCantRetrieveKey, storeerror.WithOriginal(err))
	case err != nil:
		m.logger.Warn("key lookup failed", logging.String("identity", identity.ID), logging.Err(err))
		return nil, storeerror.ClassifyOr(err, storeerror.KindCantRetrieveKey)
	}
	pub, err := m.store.DerivePublicKey(priv)
	if err != nil {
		return nil, storeerror.ClassifyOr(err, storeerror.KindCantGetPublicKeyFromPrivateKey)
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// DeleteKeys removes identity's private key and any legacy public key
// entry. Entries that do not exist are ignored, so repeated calls succeed.
// A partial failure is reported but not rolled back; calling again
// finishes the job.
func (m *Manager) DeleteKeys(identity types.Identity) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpDeleteKeys, start, err) }()

	if err := identity.Validate(); err != nil {
		return storeerror.New(storeerror.KindCantDeleteKey, storeerror.WithOriginal(err))
	}

	removed, err := m.deleteTags(identity.PrivateKeyTag(), identity.LegacyPublicKeyTag())
	if err != nil {
		m.logger.Error("key deletion failed", logging.String("identity", identity.ID), logging.Err(err))
		return storeerror.New(storeerror.KindCantDeleteKey, storeerror.WithOriginal(err))
	}
	if removed > 0 {
		m.logger.Info("keys deleted", logging.String("identity", identity.ID), logging.Int("entries", removed))
	}
	return nil
}

// DeleteKeysFor deletes the keys of the identity named id, without needing
// its access policy.
func (m *Manager) DeleteKeysFor(id string) error {
	return m.DeleteKeys(types.Identity{ID: id, AccessPolicy: types.AccessPolicyOpen})
}

// PurgeLegacyEntries is a one-time migration that removes entries written
// under the historical tag schemes: a key generated under the bare id and
// a separately stored public key. It reports whether anything was removed.
// The canonical private key is left alone.
//
// The legacy generation tag is the bare id, which for an id ending in
// types.PrivateKeySuffix is the canonical tag of another identity. Such ids
// are rejected.
func (m *Manager) PurgeLegacyEntries(identity types.Identity) (purged bool, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpPurgeLegacy, start, err) }()

	if err := identity.Validate(); err != nil {
		return false, storeerror.New(storeerror.KindCantDeleteKey, storeerror.WithOriginal(err))
	}
	if strings.HasSuffix(identity.ID, types.PrivateKeySuffix) {
		return false, storeerror.New(storeerror.KindCantDeleteKey, storeerror.WithOriginal(
			fmt.Errorf("%w: legacy tag of %q collides with the private key of %q",
				ErrLegacyTagCollision, identity.ID, strings.TrimSuffix(identity.ID, types.PrivateKeySuffix))))
	}

	removed, err := m.deleteTags(identity.LegacyGenerationTag(), identity.LegacyPublicKeyTag())
	if err != nil {
		return removed > 0, storeerror.New(storeerror.KindCantDeleteKey, storeerror.WithOriginal(err))
	}
	if removed > 0 {
		m.logger.Info("legacy key entries purged",
			logging.String("identity", identity.ID), logging.Int("entries", removed))
	}
	return removed > 0, nil
}

// deleteTags attempts every tag and joins the failures.
func (m *Manager) deleteTags(tags ...string) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, tag := range tags {
		err := m.store.DeleteKey(tag)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, keystore.ErrItemNotFound):
		default:
			errs = append(errs, fmt.Errorf("delete %q: %w", tag, err))
		}
	}
	metrics.RecordKeysDeleted(removed)
	return removed, errors.Join(errs...)
}

func selectPrompt(identity types.Identity, override *types.PromptStrings) *types.PromptStrings {
	if override != nil {
		return override
	}
	return identity.Prompt
}

func policyLabel(identity types.Identity, flags types.AccessFlags) string {
	if flags == types.AccessPolicyOpen.Flags() {
		return types.AccessPolicyOpen.String()
	}
	return identity.AccessPolicy.String()
}
