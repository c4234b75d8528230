// File: config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"voting-ledger/blockchain/ledger"
	"voting-ledger/encryption"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ledger  ledger.Config `yaml:"ledger"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
	Seed    SeedConfig    `yaml:"seed"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type StorageConfig struct {
	// Path holds record snapshots and chain exports; empty keeps everything in memory
	Path   string `yaml:"path"`
	Keep   int    `yaml:"keep"`
	KeyDir string `yaml:"key_dir"`
}

type QueueConfig struct {
	Size int `yaml:"size"`
}

type SeedConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Ledger: ledger.DefaultConfig(),
		Storage: StorageConfig{
			Keep:   5,
			KeyDir: "data",
		},
		Queue: QueueConfig{Size: 100},
		Seed:  SeedConfig{Enabled: true},
	}
}

// Load reads path over the defaults and applies VOTING_ environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	if err := applyEnvOverrides(c); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnvOverrides replaces settings from VOTING_ prefixed variables
func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("VOTING_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("VOTING_DIFFICULTY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VOTING_DIFFICULTY: %w", err)
		}
		c.Ledger.Difficulty = n
	}
	if v := os.Getenv("VOTING_HASH"); v != "" {
		c.Ledger.HashAlgorithm = v
	}
	if v := os.Getenv("VOTING_MAX_NONCE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VOTING_MAX_NONCE: %w", err)
		}
		c.Ledger.MaxNonce = n
	}
	if v := os.Getenv("VOTING_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("VOTING_KEY_DIR"); v != "" {
		c.Storage.KeyDir = v
	}
	if v := os.Getenv("VOTING_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VOTING_QUEUE_SIZE: %w", err)
		}
		c.Queue.Size = n
	}
	if v := os.Getenv("VOTING_SEED_PATH"); v != "" {
		c.Seed.Path = v
	}
	if v := os.Getenv("VOTING_SEED_ENABLED"); v != "" {
		c.Seed.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Ledger.Difficulty < 0 || c.Ledger.Difficulty > encryption.DigestSize*2 {
		return fmt.Errorf("ledger.difficulty must be within [0, %d], got %d", encryption.DigestSize*2, c.Ledger.Difficulty)
	}
	if _, err := encryption.LookupHash(c.Ledger.HashAlgorithm); err != nil {
		return fmt.Errorf("ledger.hash: %w", err)
	}
	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue.size must be positive, got %d", c.Queue.Size)
	}
	if c.Storage.Keep < 0 {
		return fmt.Errorf("storage.keep must not be negative, got %d", c.Storage.Keep)
	}
	return nil
}
