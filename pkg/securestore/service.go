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

// Package securestore stores named string items encrypted under a
// hardware-backed, optionally biometric-gated key.
//
// A Service ties together the key lifecycle manager, the crypto engine and
// an item store for one identity:
//
//	svc, err := securestore.New(&securestore.Config{
//	    Identity: identity,
//	    KeyStore: keyStore,
//	    Items:    backend,
//	})
//	err = svc.SaveItem(ctx, "refresh-token", token)
//	token, err = svc.ReadItem(ctx, "refresh-token", nil)
//
// Items are encrypted before they reach the item store, which may be any
// storage.Backend. Concurrent writers to the same item name are not
// serialized: the last write wins.
package securestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-securestore/pkg/correlation"
	"github.com/jeremyhahn/go-securestore/pkg/engine"
	"github.com/jeremyhahn/go-securestore/pkg/itemstore"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/lifecycle"
	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/metrics"
	"github.com/jeremyhahn/go-securestore/pkg/ratelimit"
	"github.com/jeremyhahn/go-securestore/pkg/storage"
	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
	"github.com/jeremyhahn/go-securestore/pkg/types"
)

// Config contains configuration for the Service.
type Config struct {
	// Identity selects the key pair and item namespace. Required.
	Identity types.Identity

	// KeyStore holds the key pair. Required.
	KeyStore keystore.SecureKeyStore

	// Items persists the encrypted items. Required.
	Items storage.Backend

	// Limiter throttles authentication prompts. Optional.
	Limiter *ratelimit.Limiter

	Logger logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.KeyStore == nil {
		return fmt.Errorf("KeyStore is required")
	}
	if c.Items == nil {
		return fmt.Errorf("Items is required")
	}
	return nil
}

// Service is the secure store of one identity. It is safe for concurrent
// use.
type Service struct {
	identity types.Identity
	manager  *lifecycle.Manager
	engine   *engine.Engine
	items    *itemstore.Store
	logger   logging.Logger
}

// New creates a Service. No key is created until the first item is saved.
func New(config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.OrNop(config.Logger)

	manager, err := lifecycle.New(&lifecycle.Config{
		Store:  config.KeyStore,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(&engine.Config{
		Manager:  manager,
		Identity: config.Identity,
		Limiter:  config.Limiter,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	items, err := itemstore.New(config.Items, config.Identity.ItemNamespace())
	if err != nil {
		return nil, err
	}

	return &Service{
		identity: config.Identity,
		manager:  manager,
		engine:   eng,
		items:    items,
		logger:   logger,
	}, nil
}

// Identity returns the service's identity.
func (s *Service) Identity() types.Identity {
	return s.identity
}

// Engine returns the crypto engine, for signing and key export.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Manager returns the key lifecycle manager.
func (s *Service) Manager() *lifecycle.Manager {
	return s.manager
}

// ItemExists reports whether an item named name is stored. It never
// prompts the user.
func (s *Service) ItemExists(ctx context.Context, name string) (exists bool, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpItemExists, start, err) }()

	exists, err = s.items.Exists(name)
	if err != nil {
		return false, storeerror.New(storeerror.KindUnableToRetrieveFromStore, storeerror.WithOriginal(err))
	}
	return exists, nil
}

// ReadItem decrypts and returns the item named name. Decryption may prompt
// the user; prompt overrides the identity's prompt strings when set. A
// missing item fails with storeerror.KindUnableToRetrieveFromStore.
func (s *Service) ReadItem(ctx context.Context, name string, prompt *types.PromptStrings) (value string, err error) {
	ctx, _ = correlation.Ensure(ctx)
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpReadItem, start, err) }()

	ciphertext, ok, err := s.items.Get(name)
	if err != nil {
		return "", storeerror.New(storeerror.KindUnableToRetrieveFromStore, storeerror.WithOriginal(err))
	}
	if !ok {
		return "", storeerror.New(storeerror.KindUnableToRetrieveFromStore,
			storeerror.WithOriginal(fmt.Errorf("item %q not found", name)))
	}
	return s.engine.Decrypt(ctx, ciphertext, prompt)
}

// SaveItem encrypts value and stores it as name, replacing any previous
// value. The key pair is created on first use.
func (s *Service) SaveItem(ctx context.Context, name, value string) (err error) {
	ctx, _ = correlation.Ensure(ctx)
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpSaveItem, start, err) }()

	ciphertext, err := s.engine.Encrypt(ctx, value)
	if err != nil {
		return err
	}
	if err := s.items.Set(name, ciphertext); err != nil {
		return storeerror.New(storeerror.KindUnableToSaveToStore, storeerror.WithOriginal(err))
	}
	logging.WithContext(ctx, s.logger).Debug("item saved",
		logging.String("identity", s.identity.ID), logging.String("item", name))
	return nil
}

// DeleteItem removes the item named name. Deleting a missing item
// succeeds.
func (s *Service) DeleteItem(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpDeleteItem, start, err) }()

	if err := s.items.Delete(name); err != nil {
		return storeerror.New(storeerror.KindUnableToSaveToStore, storeerror.WithOriginal(err))
	}
	return nil
}

// DeleteStore deletes the identity's key pair and every stored item. Both
// steps are attempted; a failure in either is reported. Calling it again
// after a partial failure finishes the job.
func (s *Service) DeleteStore(ctx context.Context) (err error) {
	ctx, _ = correlation.Ensure(ctx)
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpDeleteStore, start, err) }()
	log := logging.WithContext(ctx, s.logger).With(logging.String("identity", s.identity.ID))

	keyErr := s.manager.DeleteKeys(s.identity)
	removed, itemErr := s.items.DeleteAll()
	if itemErr != nil {
		itemErr = storeerror.New(storeerror.KindUnableToSaveToStore, storeerror.WithOriginal(itemErr))
	}
	if err := errors.Join(keyErr, itemErr); err != nil {
		log.Error("store deletion incomplete", logging.Err(err))
		return err
	}
	log.Info("store deleted", logging.Int("items", removed))
	return nil
}
