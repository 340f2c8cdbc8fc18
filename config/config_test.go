package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("default rpc address = %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "deedchain-local" {
		t.Fatalf("default network = %q", cfg.NetworkName)
	}
	if cfg.PlatformFeeBps != 250 {
		t.Fatalf("default fee = %d", cfg.PlatformFeeBps)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	// A second load reads the persisted file.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress {
		t.Fatalf("reload mismatch: %q vs %q", again.RPCAddress, cfg.RPCAddress)
	}
}

func TestLoadRejectsInvalidFee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "RPCAddress = \":8080\"\nPlatformFeeBps = 1001\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("fee above cap should be rejected")
	}
}

func TestLoadRejectsBadAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "Owner = \"not-hex\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed owner address should be rejected")
	}
}

func TestParseAddress(t *testing.T) {
	want := [20]byte{0xde, 0xad, 0xbe, 0xef}
	got, err := ParseAddress("0xdeadbeef00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != want {
		t.Fatalf("parsed address mismatch")
	}
	// The 0x prefix is optional.
	got, err = ParseAddress("deadbeef00000000000000000000000000000000")
	if err != nil || got != want {
		t.Fatalf("unprefixed parse failed: %v", err)
	}
	if _, err := ParseAddress("deadbeef"); err == nil {
		t.Fatalf("short address should fail")
	}
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("empty address should fail")
	}
}

func TestAddressFallback(t *testing.T) {
	fallback := [20]byte{0x01}
	got, err := Address("", fallback)
	if err != nil || got != fallback {
		t.Fatalf("empty value should yield fallback, got %x (%v)", got, err)
	}
	got, err = Address("0x0202020202020202020202020202020202020202", fallback)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got == fallback {
		t.Fatalf("explicit value should override fallback")
	}
}
