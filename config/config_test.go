package config

import (
	"os"
	"path/filepath"
	"testing"

	"collarcore/native/collar"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen address = %q", cfg.ListenAddress)
	}
	if cfg.Oracle.MaxAgeSecs != 300 {
		t.Fatalf("oracle max age = %d", cfg.Oracle.MaxAgeSecs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	// A second load reads the persisted file back.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.AssetPair != cfg.AssetPair {
		t.Fatalf("asset pair = %q, want %q", again.AssetPair, cfg.AssetPair)
	}
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("AssetPair = \"BTC-USD\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AssetPair != "BTC-USD" {
		t.Fatalf("asset pair = %q", cfg.AssetPair)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen address default not applied: %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "./collar-data" {
		t.Fatalf("data dir default not applied: %q", cfg.DataDir)
	}
}

func TestEnginePolicy(t *testing.T) {
	cfg := &Config{Policy: PolicyConfig{
		AllowedPairs:    []string{"ETH-USD", " "},
		MinPutStrikeBps: 5000,
		MaxCallBps:      20_000,
		MinDurationSecs: 3600,
	}}
	policy := cfg.EnginePolicy()
	if !policy.AllowOpen("ETH-USD", "collar.offers") {
		t.Fatal("allowed pair rejected")
	}
	if policy.AllowOpen("DOGE-USD", "collar.offers") {
		t.Fatal("unlisted pair accepted")
	}
	if policy.ValidStrikes(4000, 11_000) {
		t.Fatal("put below configured floor accepted")
	}
	if !policy.ValidStrikes(9000, 11_000) {
		t.Fatal("valid strikes rejected")
	}
	if policy.ValidDuration(60) {
		t.Fatal("short duration accepted")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00112233445566778899aabbccddeeff00112233")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[0] != 0x00 || addr[19] != 0x33 {
		t.Fatalf("bytes wrong: %x", addr)
	}

	zero, err := ParseAddress("")
	if err != nil {
		t.Fatalf("empty parse: %v", err)
	}
	if zero != (collar.Address{}) {
		t.Fatalf("empty address not zero: %x", zero)
	}

	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatal("short address accepted")
	}
	if _, err := ParseAddress("zz"); err == nil {
		t.Fatal("non-hex address accepted")
	}
}
