package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the keymaster wallet.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	DataDir  DataDirConfig  `yaml:"data_dir"`
}

// RegistryConfig contains gatekeeper connection settings.
type RegistryConfig struct {
	URL            string `yaml:"url"`
	Name           string `yaml:"name"`            // peerbit, BTC, tBTC
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CachePath      string `yaml:"cache_path"` // SQLite resolution cache
}

// DataDirConfig contains data directory settings.
type DataDirConfig struct {
	Path       string `yaml:"path"`        // base data directory
	WalletFile string `yaml:"wallet_file"` // wallet JSON blob path
}

// DefaultConfig returns default configuration rooted under the user's home
// directory.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".keymaster")

	return &Config{
		Registry: RegistryConfig{
			URL:            "http://localhost:8080",
			Name:           "peerbit",
			TimeoutSeconds: 30,
			CachePath:      filepath.Join(dataDir, "registry-cache.db"),
		},
		DataDir: DataDirConfig{
			Path:       dataDir,
			WalletFile: filepath.Join(dataDir, "wallet.json"),
		},
	}
}

// LoadConfig loads configuration from an optional YAML file, layered under
// the defaults, then applies environment variable overrides. cfgFile == ""
// skips file loading and returns defaults plus environment overrides.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if val := os.Getenv("KEYMASTER_REGISTRY_URL"); val != "" {
		cfg.Registry.URL = val
	}
	if val := os.Getenv("KEYMASTER_REGISTRY_NAME"); val != "" {
		cfg.Registry.Name = val
	}
	if val := os.Getenv("KEYMASTER_REGISTRY_TIMEOUT"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			cfg.Registry.TimeoutSeconds = seconds
		}
	}
	if val := os.Getenv("KEYMASTER_DATA_DIR"); val != "" {
		cfg.DataDir.Path = val
		cfg.DataDir.WalletFile = filepath.Join(val, "wallet.json")
	}
	if val := os.Getenv("KEYMASTER_WALLET_FILE"); val != "" {
		cfg.DataDir.WalletFile = val
	}

	if err := os.MkdirAll(cfg.DataDir.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}
