package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stealthpay/crypto"
)

// Config carries the deployment identity the tooling signs and verifies
// against, plus local paths. ChainID and LedgerAddress feed the claim
// signature domain; a config pointing at the wrong deployment produces
// signatures no ledger will accept.
type Config struct {
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	ChainID       int64  `toml:"ChainID"`
	LedgerAddress string `toml:"LedgerAddress"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the deployment identity fields.
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("ChainID must be positive")
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		return fmt.Errorf("NetworkName must be set")
	}
	if addr := strings.TrimSpace(c.LedgerAddress); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("LedgerAddress: %w", err)
		}
	}
	return nil
}

// Ledger returns the decoded 20-byte ledger instance address, zero when the
// config leaves it unset.
func (c *Config) Ledger() ([20]byte, error) {
	var out [20]byte
	addr := strings.TrimSpace(c.LedgerAddress)
	if addr == "" {
		return out, nil
	}
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:     "./spay-data",
		NetworkName: "spay-localnet",
		ChainID:     1337,
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
