// Package config handles configuration for the secure box CLI: file
// locations, the server secret, key derivation work factors, and output
// behavior.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/securebox/securebox/internal/crypto"
)

// Config is the on-disk configuration.
type Config struct {
	// StorePath is the bbolt database holding users, keys, links, and
	// secure objects.
	StorePath string `yaml:"store_path"`
	// SessionDir holds one snapshot file per session.
	SessionDir string `yaml:"session_dir"`
	// CookieJarPath is the CLI's stand-in for the browser cookie store.
	CookieJarPath string `yaml:"cookie_jar_path"`
	// ServerSecret is the base64-encoded deployment secret mixed into
	// every derived session key. Generated on first run.
	ServerSecret string `yaml:"server_secret"`
	// LogLevel is a zerolog level name ("debug", "info", "warn", ...).
	LogLevel string `yaml:"log_level"`
	// ClipboardTTL is how long copied secrets stay on the clipboard.
	ClipboardTTL time.Duration `yaml:"clipboard_ttl"`
	// KDF holds the Argon2id work factors for the wrap key.
	KDF crypto.Params `yaml:"kdf"`
}

// DefaultConfig returns the default configuration rooted under the user's
// data directory.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "securebox")
	return &Config{
		StorePath:     filepath.Join(dataDir, "box.db"),
		SessionDir:    filepath.Join(dataDir, "sessions"),
		CookieJarPath: filepath.Join(dataDir, "cookies.json"),
		LogLevel:      "warn",
		ClipboardTTL:  30 * time.Second,
		KDF:           crypto.DefaultParams(),
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "securebox", "config.yaml")
}

// Load reads the config at path, creating it with defaults (and a fresh
// server secret) when absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	cleanPath := filepath.Clean(path)

	if _, err := os.Stat(cleanPath); os.IsNotExist(err) {
		if err := cfg.ensureServerSecret(); err != nil {
			return nil, err
		}
		if err := Save(cfg, cleanPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kdf configuration: %w", err)
	}
	if cfg.ServerSecret == "" {
		if err := cfg.ensureServerSecret(); err != nil {
			return nil, err
		}
		if err := Save(cfg, cleanPath); err != nil {
			return nil, fmt.Errorf("failed to persist server secret: %w", err)
		}
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ServerSecretBytes decodes the configured server secret.
func (c *Config) ServerSecretBytes() ([]byte, error) {
	if c.ServerSecret == "" {
		return nil, fmt.Errorf("server secret not configured")
	}
	secret, err := base64.StdEncoding.DecodeString(c.ServerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode server secret: %w", err)
	}
	return secret, nil
}

func (c *Config) ensureServerSecret() error {
	secret, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return fmt.Errorf("failed to generate server secret: %w", err)
	}
	c.ServerSecret = base64.StdEncoding.EncodeToString(secret)
	return nil
}
