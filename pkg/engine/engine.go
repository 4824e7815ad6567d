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

// Package engine implements the cryptographic operations of a secure store
// identity on top of its managed key pair: hybrid encryption of strings,
// ECDSA signing and public key export.
//
// Every call takes a context.Context whose only role is carrying the
// operation ID used to correlate log lines. Key store calls may block on
// user authentication and are not cancellable; a cancelled prompt is
// reported as a storeerror.KindUserCancelled error.
package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jeremyhahn/go-securestore/pkg/correlation"
	"github.com/jeremyhahn/go-securestore/pkg/encoding/didkey"
	"github.com/jeremyhahn/go-securestore/pkg/encoding/jwk"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/lifecycle"
	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/metrics"
	"github.com/jeremyhahn/go-securestore/pkg/ratelimit"
	"github.com/jeremyhahn/go-securestore/pkg/storeerror"
	"github.com/jeremyhahn/go-securestore/pkg/types"
)

// ThrottledReason is the reason of the Recoverable error returned when the
// prompt limiter refuses an authenticated operation.
const ThrottledReason = "Authentication attempts throttled"

// Config contains configuration for the Engine.
type Config struct {
	// Manager owns the identity's key pair. Required.
	Manager *lifecycle.Manager

	// Identity selects the key pair. Required.
	Identity types.Identity

	// Limiter throttles operations that prompt the user. Nil disables
	// throttling.
	Limiter *ratelimit.Limiter

	Logger logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Manager == nil {
		return fmt.Errorf("Manager is required")
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	return nil
}

// Engine performs cryptographic operations for one identity. It is safe for
// concurrent use.
type Engine struct {
	manager  *lifecycle.Manager
	store    keystore.SecureKeyStore
	identity types.Identity
	limiter  *ratelimit.Limiter
	logger   logging.Logger
}

// New creates an Engine.
func New(config *Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		manager:  config.Manager,
		store:    config.Manager.Store(),
		identity: config.Identity,
		limiter:  config.Limiter,
		logger:   logging.OrNop(config.Logger),
	}, nil
}

// Identity returns the engine's identity.
func (e *Engine) Identity() types.Identity {
	return e.identity
}

// Manager returns the key lifecycle manager.
func (e *Engine) Manager() *lifecycle.Manager {
	return e.manager
}

// Encrypt encrypts the UTF-8 bytes of plaintext to the identity's public
// key, creating the key pair on first use, and returns standard base64.
// Encryption is randomized: equal plaintexts give different ciphertexts.
func (e *Engine) Encrypt(ctx context.Context, plaintext string) (ciphertext string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpEncrypt, start, err) }()
	log := e.operationLogger(ctx, metrics.OpEncrypt)

	pair, err := e.keys(nil, log)
	if err != nil {
		log.Warn("keys unavailable for encryption", logging.Err(err))
		return "", storeerror.New(storeerror.KindCantEncryptData, storeerror.WithOriginal(err))
	}

	sealed, err := e.store.Encrypt(pair.Public, keystore.AlgorithmECIESX963SHA256AESGCM, []byte(plaintext))
	if err != nil {
		log.Error("encryption failed", logging.Err(err))
		return "", storeerror.ClassifyOr(err, storeerror.KindCantEncryptData)
	}
	log.Debug("encrypted", logging.Int("bytes", len(sealed)))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Using the private key may prompt the user; the
// prompt shows override when set and the identity's prompt otherwise.
//
// When the key store reports an invalid parameter, either while loading the
// private key or while decrypting, the key material is corrupt or does not
// match the ciphertext. The key pair is then deleted so the next Encrypt
// starts over with a fresh one, and the Unrecoverable error is returned.
func (e *Engine) Decrypt(ctx context.Context, ciphertext string, override *types.PromptStrings) (plaintext string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpDecrypt, start, err) }()
	log := e.operationLogger(ctx, metrics.OpDecrypt)

	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", storeerror.New(storeerror.KindCantDecodeData, storeerror.WithOriginal(err))
	}

	pair, err := e.manager.RetrieveKeys(e.identity, override)
	if err != nil {
		log.Warn("private key unavailable", logging.Err(err))
		e.discardIfUnusable(err, log)
		return "", err
	}
	if err := e.throttle(pair.Private, log); err != nil {
		return "", err
	}

	opened, err := e.store.Decrypt(pair.Private, keystore.AlgorithmECIESX963SHA256AESGCM, sealed)
	if err != nil {
		classified := storeerror.ClassifyOr(err, storeerror.KindCantDecryptData)
		e.discardIfUnusable(classified, log)
		log.Warn("decryption failed",
			logging.String("kind", metrics.ErrorKind(classified)), logging.Err(err))
		return "", classified
	}

	if !utf8.Valid(opened) {
		return "", storeerror.New(storeerror.KindCantFormatData,
			storeerror.WithOriginal(fmt.Errorf("decrypted data is not valid UTF-8")))
	}
	return string(opened), nil
}

// Sign returns the RFC 4754 signature (r||s, 64 bytes) of the SHA-256
// digest of data. Signatures are deterministic (RFC 6979).
func (e *Engine) Sign(ctx context.Context, data []byte) (signature []byte, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpSign, start, err) }()
	log := e.operationLogger(ctx, metrics.OpSign)

	pair, err := e.keys(nil, log)
	if err != nil {
		log.Warn("keys unavailable for signing", logging.Err(err))
		return nil, storeerror.New(storeerror.KindUnknownSignatureError, storeerror.WithOriginal(err))
	}
	if err := e.throttle(pair.Private, log); err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	signature, err = e.store.Sign(pair.Private, keystore.AlgorithmECDSARFC4754, digest[:])
	if err != nil {
		log.Warn("signing failed", logging.Err(err))
		return nil, storeerror.ClassifyOr(err, storeerror.KindUnknownSignatureError)
	}
	return signature, nil
}

// PublicKey exports the identity's public key as a canonical JWK or a
// did:key identifier, creating the key pair on first use.
func (e *Engine) PublicKey(ctx context.Context, format types.KeyFormat) (encoded []byte, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpExportKey, start, err) }()
	log := e.operationLogger(ctx, metrics.OpExportKey)

	x963, err := e.exportX963(log)
	if err != nil {
		log.Warn("public key export failed", logging.Err(err))
		return nil, err
	}

	switch format {
	case types.KeyFormatJWK:
		key, err := jwk.FromX963(x963)
		if err != nil {
			return nil, storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
		}
		encoded, err = key.Marshal()
		if err != nil {
			return nil, storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
		}
		return encoded, nil
	case types.KeyFormatDID:
		did, err := didkey.Format(x963)
		if err != nil {
			return nil, storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
		}
		return []byte(did), nil
	default:
		return nil, storeerror.New(storeerror.KindCantEncodeData,
			storeerror.WithOriginal(fmt.Errorf("unsupported key format: %d", format)))
	}
}

// Thumbprint returns the base64url RFC 7638 SHA-256 thumbprint of the
// identity's public key.
func (e *Engine) Thumbprint(ctx context.Context) (thumbprint string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpThumbprint, start, err) }()
	log := e.operationLogger(ctx, metrics.OpThumbprint)

	x963, err := e.exportX963(log)
	if err != nil {
		return "", err
	}
	key, err := jwk.FromX963(x963)
	if err != nil {
		return "", storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
	}
	thumbprint, err = key.Thumbprint()
	if err != nil {
		return "", storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
	}
	log.Debug("thumbprint computed")
	return thumbprint, nil
}

// ECDSAPublicKey returns the identity's public key for signature
// verification.
func (e *Engine) ECDSAPublicKey() (*ecdsa.PublicKey, error) {
	x963, err := e.exportX963(e.logger)
	if err != nil {
		return nil, err
	}
	key, err := jwk.FromX963(x963)
	if err != nil {
		return nil, storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
	}
	pub, err := key.PublicKey()
	if err != nil {
		return nil, storeerror.New(storeerror.KindCantEncodeData, storeerror.WithOriginal(err))
	}
	return pub, nil
}

// Verify reports whether signature is a valid RFC 4754 signature of data by
// the identity's key.
func (e *Engine) Verify(data, signature []byte) (valid bool, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpVerifySignature, start, err) }()

	pub, err := e.ECDSAPublicKey()
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	return keystore.VerifyRFC4754(pub, digest[:], signature), nil
}

// keys ensures the key pair exists and retrieves it. A stored key the
// store cannot load is discarded, so the failing call is the only one.
func (e *Engine) keys(override *types.PromptStrings, log logging.Logger) (*lifecycle.KeyPair, error) {
	if err := e.manager.EnsureKeys(e.identity); err != nil {
		e.discardIfUnusable(err, log)
		return nil, err
	}
	pair, err := e.manager.RetrieveKeys(e.identity, override)
	if err != nil {
		e.discardIfUnusable(err, log)
		return nil, err
	}
	return pair, nil
}

func (e *Engine) exportX963(log logging.Logger) ([]byte, error) {
	pair, err := e.keys(nil, log)
	if err != nil {
		return nil, err
	}
	x963, err := e.store.ExportPublicKey(pair.Public)
	if err != nil {
		return nil, storeerror.ClassifyOr(err, storeerror.KindCantGetPublicKeyFromPrivateKey)
	}
	return x963, nil
}

// throttle applies the prompt limiter to keys that require authentication.
func (e *Engine) throttle(priv keystore.PrivateKeyRef, log logging.Logger) error {
	if !priv.AccessFlags().RequiresAuthentication() || !e.store.HardwareBacked() {
		return nil
	}
	if e.limiter.Allow(e.identity.ID) {
		return nil
	}
	metrics.RecordPromptThrottled()
	log.Warn("authentication prompt throttled")
	return storeerror.New(storeerror.KindRecoverable, storeerror.WithReason(ThrottledReason))
}

// discardIfUnusable deletes the key pair when err classifies as
// unrecoverable.
func (e *Engine) discardIfUnusable(err error, log logging.Logger) {
	if storeerror.IsKind(err, storeerror.KindUnrecoverable) {
		e.discardKeys(log)
	}
}

// discardKeys deletes a key pair the store reported as unusable.
func (e *Engine) discardKeys(log logging.Logger) {
	if err := e.manager.DeleteKeys(e.identity); err != nil {
		log.Error("failed to delete unusable keys", logging.Err(err))
		return
	}
	e.limiter.Reset(e.identity.ID)
	log.Warn("unusable keys deleted, a new key pair will be created on next use")
}

func (e *Engine) operationLogger(ctx context.Context, operation string) logging.Logger {
	ctx, _ = correlation.Ensure(ctx)
	return logging.WithContext(ctx, e.logger).With(
		logging.String("operation", operation),
		logging.String("identity", e.identity.ID))
}
