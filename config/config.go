package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress      string   `toml:"RPCAddress"`
	DataDir         string   `toml:"DataDir"`
	NetworkName     string   `toml:"NetworkName"`
	TreasuryAddress string   `toml:"TreasuryAddress"`
	FeeDenominator  uint64   `toml:"FeeDenominator"`
	ListingFeeBps   uint32   `toml:"ListingFeeBps"`
	PausedModules   []string `toml:"PausedModules"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "unicus-local"
	}
	if cfg.FeeDenominator == 0 {
		cfg.FeeDenominator = 100
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted away.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if c.ListingFeeBps > 10_000 {
		return fmt.Errorf("ListingFeeBps %d exceeds 10000", c.ListingFeeBps)
	}
	if c.TreasuryAddress != "" {
		if _, err := c.Treasury(); err != nil {
			return err
		}
	}
	return nil
}

// Treasury decodes the configured treasury address. An empty setting yields
// the zero address, which disables listing fees.
func (c *Config) Treasury() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.TreasuryAddress), "0x")
	if trimmed == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("TreasuryAddress is not valid hex: %w", err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("TreasuryAddress must decode to 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// IsPaused reports whether transitions of the named module are suspended.
func (c *Config) IsPaused(module string) bool {
	for _, name := range c.PausedModules {
		if strings.EqualFold(strings.TrimSpace(name), module) {
			return true
		}
	}
	return false
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		DataDir:        "./unicus-data",
		NetworkName:    "unicus-local",
		FeeDenominator: 100,
		ListingFeeBps:  200,
		PausedModules:  []string{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
