package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Party addresses are 20-byte hex strings,
// with or without the 0x prefix.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	RPCAuthToken   string `toml:"RPCAuthToken"`
	PlatformFeeBps uint32 `toml:"PlatformFeeBps"`

	Owner        string `toml:"Owner"`
	Seller       string `toml:"Seller"`
	Inspector    string `toml:"Inspector"`
	Lender       string `toml:"Lender"`
	FeeRecipient string `toml:"FeeRecipient"`
	Compliance   string `toml:"Compliance"`
	Vault        string `toml:"Vault"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "deedchain-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./deedchain-data"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		DataDir:        "./deedchain-data",
		NetworkName:    "deedchain-local",
		PlatformFeeBps: 250,
		Vault:          hex.EncodeToString(defaultVault[:]),
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// defaultVault is the module custody address used when none is configured.
var defaultVault = [20]byte{0xde, 0xed, 0xc0, 0xde, 0xde, 0xed, 0xc0, 0xde, 0xde, 0xed, 0xc0, 0xde, 0xde, 0xed, 0xc0, 0xde, 0xde, 0xed, 0xc0, 0xde}

// DefaultVault returns the built-in custody address.
func DefaultVault() [20]byte { return defaultVault }

// ParseAddress decodes a 20-byte hex address, accepting an optional 0x prefix.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("empty address")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes, got %d", s, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// Validate checks field ranges and address formats. Empty party addresses are
// allowed; the daemon rejects operations for unset roles.
func (c *Config) Validate() error {
	if c.PlatformFeeBps > 1_000 {
		return fmt.Errorf("PlatformFeeBps %d above maximum 1000", c.PlatformFeeBps)
	}
	for name, value := range map[string]string{
		"Owner":        c.Owner,
		"Seller":       c.Seller,
		"Inspector":    c.Inspector,
		"Lender":       c.Lender,
		"FeeRecipient": c.FeeRecipient,
		"Compliance":   c.Compliance,
		"Vault":        c.Vault,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Address returns the parsed value of a configured address field, or the
// fallback when the field is empty.
func Address(value string, fallback [20]byte) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return ParseAddress(value)
}
