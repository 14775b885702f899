// Package config loads the credvault configuration from the environment, a
// YAML file and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/vault"
)

// Config represents the vault configuration
type Config struct {
	VaultPath    string         `yaml:"vault_path" env:"CREDVAULT_PATH"`
	Owner        string         `yaml:"owner" env:"CREDVAULT_OWNER"`
	LogLevel     string         `yaml:"log_level" env:"CREDVAULT_LOG_LEVEL"`
	LogFile      string         `yaml:"log_file" env:"CREDVAULT_LOG_FILE"`
	KeyFile      string         `yaml:"passkey_key_file" env:"CREDVAULT_PASSKEY_KEY_FILE"`
	ClipboardTTL time.Duration  `yaml:"clipboard_ttl" env:"CREDVAULT_CLIPBOARD_TTL"`
	KDF          KDFConfig      `yaml:"kdf" envPrefix:"CREDVAULT_KDF_"`
	Import       ImportConfig   `yaml:"import" envPrefix:"CREDVAULT_IMPORT_"`
	Security     SecurityConfig `yaml:"security" envPrefix:"CREDVAULT_"`
}

// KDFConfig represents KDF parameters for new keychain entries
type KDFConfig struct {
	Memory      uint32 `yaml:"memory" env:"MEMORY"`
	Iterations  uint32 `yaml:"iterations" env:"ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM"`
}

type ImportConfig struct {
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
}

// SecurityConfig represents security-related configuration
type SecurityConfig struct {
	SudoWindow        time.Duration `yaml:"sudo_window" env:"SUDO_WINDOW"`
	AutoLockTTL       time.Duration `yaml:"auto_lock_ttl" env:"AUTO_LOCK_TTL"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts" env:"MAX_FAILED_ATTEMPTS"`
}

// MaxBatchSize bounds import.batch_size.
const MaxBatchSize = 1000

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "credvault")
	return &Config{
		VaultPath:    filepath.Join(dataDir, "vault.db"),
		Owner:        "default",
		LogLevel:     "info",
		LogFile:      filepath.Join(dataDir, "credvault.log"),
		KeyFile:      filepath.Join(dataDir, "passkey.key"),
		ClipboardTTL: 30 * time.Second,
		KDF: KDFConfig{
			Memory:      vault.DefaultArgon2Memory,
			Iterations:  vault.DefaultArgon2Iterations,
			Parallelism: vault.DefaultArgon2Parallelism,
		},
		Import: ImportConfig{
			BatchSize: 50,
		},
		Security: SecurityConfig{
			SudoWindow:        5 * time.Minute,
			AutoLockTTL:       15 * time.Minute,
			MaxFailedAttempts: 5,
		},
	}
}

// DefaultPath returns $HOME/.config/credvault/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "credvault", "config.yaml")
}

// LoadConfig loads configuration from configPath, creating it with defaults
// when it does not exist. Environment variables override the file and the
// file overrides the defaults.
func LoadConfig(configPath string) (*Config, error) {
	b := newBuilder().withEnv()
	if configPath != "" {
		b = b.withFile(configPath)
	}
	return b.withDefaults().build()
}

// LoadFile loads configPath over the defaults, ignoring the environment.
// It is the view that "config set" edits and saves back.
func LoadFile(configPath string) (*Config, error) {
	return newBuilder().withFile(configPath).withDefaults().build()
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := store.AtomicWriteFile(cleanPath, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Argon2Params returns the KDF section as engine parameters.
func (c *Config) Argon2Params() vault.Argon2Params {
	return vault.Argon2Params{
		Memory:      c.KDF.Memory,
		Iterations:  c.KDF.Iterations,
		Parallelism: c.KDF.Parallelism,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.VaultPath == "" {
		errs = append(errs, errors.New("vault_path is required"))
	}
	if c.Owner == "" {
		errs = append(errs, errors.New("owner is required"))
	}
	if err := vault.ValidateArgon2Params(c.Argon2Params()); err != nil {
		errs = append(errs, fmt.Errorf("kdf: %w", err))
	}
	if c.Import.BatchSize < 1 || c.Import.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("import.batch_size must be between 1 and %d", MaxBatchSize))
	}
	if c.Security.MaxFailedAttempts < 1 {
		errs = append(errs, errors.New("security.max_failed_attempts must be at least 1"))
	}
	if c.Security.SudoWindow < 0 || c.Security.AutoLockTTL < 0 || c.ClipboardTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// builder collects partial configs from highest to lowest precedence.
type builder struct {
	configs []*Config
	err     error
}

func newBuilder() *builder {
	return &builder{configs: make([]*Config, 0, 3)}
}

func (b *builder) withEnv() *builder {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error getting env configs: %w", err))
		return b
	}
	b.configs = append(b.configs, cfg)
	return b
}

func (b *builder) withFile(path string) *builder {
	cleanPath := filepath.Clean(path)

	if _, err := os.Stat(cleanPath); errors.Is(err, os.ErrNotExist) {
		if err := SaveConfig(DefaultConfig(), cleanPath); err != nil {
			b.err = errors.Join(b.err, fmt.Errorf("failed to create default config: %w", err))
		}
		return b
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to read config file: %w", err))
		return b
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to parse config file: %w", err))
		return b
	}
	b.configs = append(b.configs, cfg)
	return b
}

func (b *builder) withDefaults() *builder {
	b.configs = append(b.configs, DefaultConfig())
	return b
}

func (b *builder) build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}

	cfg := &Config{}
	for _, c := range b.configs {
		if err := mergo.Merge(cfg, c); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
