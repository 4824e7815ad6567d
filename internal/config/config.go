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

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-securestore/pkg/logging"
	"github.com/jeremyhahn/go-securestore/pkg/types"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "SECURESTORE_CONFIG"

// Config represents the complete CLI configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Identity  IdentityConfig  `yaml:"identity"`
	KeyStore  KeyStoreConfig  `yaml:"keystore"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig controls where keys and items are persisted
type StoreConfig struct {
	Backend string `yaml:"backend"` // file, memory
	Path    string `yaml:"path"`
}

// IdentityConfig selects the secure store identity
type IdentityConfig struct {
	ID           string       `yaml:"id"`
	AccessPolicy string       `yaml:"access_policy"`
	Prompt       PromptConfig `yaml:"prompt"`
}

// PromptConfig holds the strings shown by the authentication prompt
type PromptConfig struct {
	Reason        string `yaml:"reason"`
	FallbackTitle string `yaml:"fallback_title"`
	CancelTitle   string `yaml:"cancel_title"`
}

// KeyStoreConfig controls the software key store
type KeyStoreConfig struct {
	SimulateHardware bool `yaml:"simulate_hardware"`

	// PassphraseEnv names an environment variable whose value encrypts key
	// records at rest. The passphrase itself never appears in the file.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls authentication prompt throttling
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	PromptsPerMinute int  `yaml:"prompts_per_minute"`
	Burst            int  `yaml:"burst"`
}

// MetricsConfig controls the metrics textfile written after each command
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "file",
			Path:    defaultStorePath(),
		},
		Identity: IdentityConfig{
			ID:           "default",
			AccessPolicy: types.AccessPolicyOpen.String(),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			PromptsPerMinute: 5,
			Burst:            3,
		},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "securestore")
	}
	return ".securestore"
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve loads path, or the file named by SECURESTORE_CONFIG when path is
// empty, or the defaults when neither is set.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("SECURESTORE_STORE_DIR"); dir != "" {
		cfg.Store.Path = dir
	}
	if id := os.Getenv("SECURESTORE_IDENTITY"); id != "" {
		cfg.Identity.ID = id
	}
	if level := os.Getenv("SECURESTORE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SECURESTORE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if ppm := os.Getenv("SECURESTORE_PROMPTS_PER_MINUTE"); ppm != "" {
		n, err := strconv.Atoi(ppm)
		if err != nil || n < 0 {
			log.Printf("Warning: invalid SECURESTORE_PROMPTS_PER_MINUTE value %q, using %d",
				ppm, cfg.RateLimit.PromptsPerMinute)
		} else {
			cfg.RateLimit.PromptsPerMinute = n
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store path must be specified for the file backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store backend: %q (must be file or memory)", c.Store.Backend)
	}

	if _, err := c.Identity.ToIdentity(); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.RateLimit.Enabled && c.RateLimit.PromptsPerMinute <= 0 {
		return fmt.Errorf("ratelimit prompts_per_minute must be positive when enabled")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit burst cannot be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics textfile is required when metrics are enabled")
	}
	return nil
}

// ToIdentity builds the secure store identity.
func (c IdentityConfig) ToIdentity() (types.Identity, error) {
	policy, err := types.ParseAccessPolicy(c.AccessPolicy)
	if err != nil {
		return types.Identity{}, err
	}
	var prompt *types.PromptStrings
	p := types.PromptStrings{
		Reason:        c.Prompt.Reason,
		FallbackTitle: c.Prompt.FallbackTitle,
		CancelTitle:   c.Prompt.CancelTitle,
	}
	if !p.IsZero() {
		prompt = &p
	}
	return types.NewIdentity(c.ID, policy, prompt)
}

// Passphrase returns the key store passphrase, or nil when none is
// configured.
func (c KeyStoreConfig) Passphrase() []byte {
	if c.PassphraseEnv == "" {
		return nil
	}
	if v := os.Getenv(c.PassphraseEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// KeysPath returns the directory holding key records.
func (c StoreConfig) KeysPath() string {
	return filepath.Join(c.Path, "keys")
}

// ItemsPath returns the directory holding encrypted items.
func (c StoreConfig) ItemsPath() string {
	return filepath.Join(c.Path, "items")
}
