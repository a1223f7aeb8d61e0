package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"stealthpay/crypto"
)

var testLedgerAddr = func() string {
	var addr [20]byte
	addr[0] = 0x42
	addr[len(addr)-1] = 0x24
	return crypto.NewAddress(crypto.SpayPrefix, addr[:]).String()
}()

func TestLoadParsesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`DataDir = "/var/lib/spay"
NetworkName = "spay-testnet"
ChainID = 9000
LedgerAddress = %q
`, testLedgerAddr)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != "/var/lib/spay" {
		t.Fatalf("unexpected DataDir %q", cfg.DataDir)
	}
	if cfg.NetworkName != "spay-testnet" {
		t.Fatalf("unexpected NetworkName %q", cfg.NetworkName)
	}
	if cfg.ChainID != 9000 {
		t.Fatalf("unexpected ChainID %d", cfg.ChainID)
	}

	ledger, err := cfg.Ledger()
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger[0] != 0x42 || ledger[19] != 0x24 {
		t.Fatalf("unexpected ledger address %x", ledger)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ChainID != 1337 {
		t.Fatalf("unexpected default ChainID %d", cfg.ChainID)
	}
	if cfg.NetworkName != "spay-localnet" {
		t.Fatalf("unexpected default NetworkName %q", cfg.NetworkName)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	// Reloading reads the file written on first run.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if again.ChainID != cfg.ChainID || again.NetworkName != cfg.NetworkName {
		t.Fatal("reloaded config differs from default")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero chain id", Config{NetworkName: "spay-localnet"}},
		{"negative chain id", Config{NetworkName: "spay-localnet", ChainID: -5}},
		{"blank network name", Config{NetworkName: "  ", ChainID: 1}},
		{"bad ledger address", Config{NetworkName: "spay-localnet", ChainID: 1, LedgerAddress: "not-bech32"}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLedgerUnsetIsZero(t *testing.T) {
	cfg := Config{NetworkName: "spay-localnet", ChainID: 1}
	ledger, err := cfg.Ledger()
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger != ([20]byte{}) {
		t.Fatalf("expected zero ledger address, got %x", ledger)
	}
}
