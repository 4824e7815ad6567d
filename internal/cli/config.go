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

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeremyhahn/go-securestore/internal/config"
	"github.com/jeremyhahn/go-securestore/pkg/keystore"
	"github.com/jeremyhahn/go-securestore/pkg/keystore/software"
	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/metrics"
	"github.com/jeremyhahn/go-securestore/pkg/ratelimit"
	"github.com/jeremyhahn/go-securestore/pkg/securestore"
	"github.com/jeremyhahn/go-securestore/pkg/storage"
	"github.com/jeremyhahn/go-securestore/pkg/storage/file"
	"github.com/jeremyhahn/go-securestore/pkg/storage/memory"
	"github.com/jeremyhahn/go-securestore/pkg/types"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// StoreDir overrides the store path from the configuration file
	StoreDir string

	// ID overrides the identity id
	ID string

	// Policy overrides the identity access policy
	Policy string

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// MetricsOut is a Prometheus textfile written after each command
	MetricsOut string

	// Verbose enables verbose logging
	Verbose bool

	// Resolved is the file configuration with flag overrides applied
	Resolved *config.Config

	// Stdin answers authentication prompts when hardware is simulated
	Stdin io.Reader

	// Stderr receives prompts and logs
	Stderr io.Writer
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Stdin:        os.Stdin,
		Stderr:       os.Stderr,
	}
}

// Resolve loads the configuration file and applies flag overrides.
func (c *Config) Resolve() error {
	resolved, err := config.Resolve(c.ConfigFile)
	if err != nil {
		return err
	}
	if c.StoreDir != "" {
		resolved.Store.Path = c.StoreDir
	}
	if c.ID != "" {
		resolved.Identity.ID = c.ID
	}
	if c.Policy != "" {
		resolved.Identity.AccessPolicy = c.Policy
	}
	if c.Verbose {
		resolved.Logging.Level = "debug"
	}
	if c.MetricsOut != "" {
		resolved.Metrics.Enabled = true
		resolved.Metrics.Textfile = c.MetricsOut
	}
	if err := resolved.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if resolved.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}
	c.Resolved = resolved
	return nil
}

// CreateLogger creates the slog logger configured by the logging section.
func (c *Config) CreateLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Resolved.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogAdapter(&logging.SlogConfig{
		Level:  level,
		Format: c.Resolved.Logging.Format,
		Output: c.Stderr,
	})
}

// CreateBackends creates the key and item storage backends.
func (c *Config) CreateBackends() (keys, items storage.Backend, err error) {
	store := c.Resolved.Store
	if store.Backend == "memory" {
		return memory.New(), memory.New(), nil
	}
	keys, err = file.New(store.KeysPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create key storage: %w", err)
	}
	items, err = file.New(store.ItemsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create item storage: %w", err)
	}
	return keys, items, nil
}

// CreateService creates the secure store service for the configured
// identity.
func (c *Config) CreateService() (*securestore.Service, error) {
	identity, err := c.Resolved.Identity.ToIdentity()
	if err != nil {
		return nil, err
	}
	logger, err := c.CreateLogger()
	if err != nil {
		return nil, err
	}
	keys, items, err := c.CreateBackends()
	if err != nil {
		return nil, err
	}

	keyStore, err := software.New(&software.Config{
		KeyStorage:       keys,
		SimulateHardware: c.Resolved.KeyStore.SimulateHardware,
		Authenticator:    &terminalAuthenticator{in: bufio.NewReader(c.Stdin), out: c.Stderr},
		Passphrase:       c.Resolved.KeyStore.Passphrase(),
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}

	rl := c.Resolved.RateLimit
	return securestore.New(&securestore.Config{
		Identity: identity,
		KeyStore: keyStore,
		Items:    items,
		Limiter: ratelimit.New(&ratelimit.Config{
			Enabled:          rl.Enabled,
			PromptsPerMinute: rl.PromptsPerMinute,
			Burst:            rl.Burst,
		}),
		Logger: logger,
	})
}

// WriteMetrics writes the metrics textfile when metrics are enabled.
func (c *Config) WriteMetrics() error {
	if c.Resolved == nil || !c.Resolved.Metrics.Enabled {
		return nil
	}
	if err := metrics.WriteTextfile(c.Resolved.Metrics.Textfile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// terminalAuthenticator stands in for the platform authentication prompt
// when hardware is simulated: it shows the prompt strings and asks for
// confirmation on the terminal.
type terminalAuthenticator struct {
	in  *bufio.Reader
	out io.Writer
}

func (a *terminalAuthenticator) Authenticate(tag string, flags types.AccessFlags, prompt types.PromptStrings) error {
	reason := prompt.Reason
	if reason == "" {
		reason = fmt.Sprintf("Use key %s", tag)
	}
	fmt.Fprintf(a.out, "%s [%s]\n", reason, flags)
	if prompt.FallbackTitle != "" {
		fmt.Fprintf(a.out, "  (p) %s\n", prompt.FallbackTitle)
	}
	cancel := prompt.CancelTitle
	if cancel == "" {
		cancel = "Cancel"
	}
	fmt.Fprintf(a.out, "Approve? (y) yes, (n) %s: ", cancel)

	answer, err := a.in.ReadString('\n')
	if err != nil && answer == "" {
		return keystore.NewAuthError(keystore.CodeNotInteractive)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	case "p":
		if prompt.FallbackTitle != "" && flags.Has(types.FlagDevicePasscode) {
			return nil
		}
		return keystore.NewAuthError(keystore.CodeUserFallback)
	default:
		return keystore.NewAuthError(keystore.CodeUserCancel)
	}
}
