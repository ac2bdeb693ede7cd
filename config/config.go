package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"collarcore/native/collar"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	AssetPair     string `toml:"AssetPair"`
	AuthToken     string `toml:"AuthToken,omitempty"`

	Policy PolicyConfig `toml:"Policy"`
	Fees   FeeConfig    `toml:"Fees"`
	Oracle OracleConfig `toml:"Oracle"`

	GraceDelaySecs int64    `toml:"GraceDelaySecs"`
	PausedModules  []string `toml:"PausedModules"`
}

type PolicyConfig struct {
	AllowedPairs    []string `toml:"AllowedPairs"`
	MinPutStrikeBps uint64   `toml:"MinPutStrikeBps"`
	MaxCallBps      uint64   `toml:"MaxCallBps"`
	MinDurationSecs int64    `toml:"MinDurationSecs"`
	MaxDurationSecs int64    `toml:"MaxDurationSecs"`
}

type FeeConfig struct {
	APRBps    uint64 `toml:"APRBps"`
	Recipient string `toml:"Recipient,omitempty"`
}

type OracleConfig struct {
	Endpoint   string   `toml:"Endpoint,omitempty"`
	APIKey     string   `toml:"APIKey,omitempty"`
	MaxAgeSecs int64    `toml:"MaxAgeSecs"`
	Priority   []string `toml:"Priority"`
}

// Load loads the configuration from the given path, writing a commented
// default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./collar-data"
	}
	if strings.TrimSpace(cfg.AssetPair) == "" {
		cfg.AssetPair = "ETH-USD"
	}
	if cfg.Oracle.MaxAgeSecs <= 0 {
		cfg.Oracle.MaxAgeSecs = 300
	}
	if cfg.Oracle.Priority == nil {
		cfg.Oracle.Priority = []string{}
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}

	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./collar-data",
		AssetPair:     "ETH-USD",
		Policy: PolicyConfig{
			AllowedPairs: []string{},
		},
		Fees: FeeConfig{APRBps: 0},
		Oracle: OracleConfig{
			MaxAgeSecs: 300,
			Priority:   []string{"manual"},
		},
		GraceDelaySecs: 0,
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

// EnginePolicy converts the decoded policy section into the engines' view.
func (c *Config) EnginePolicy() *collar.Policy {
	pairs := make(map[string]bool, len(c.Policy.AllowedPairs))
	for _, pair := range c.Policy.AllowedPairs {
		if trimmed := strings.TrimSpace(pair); trimmed != "" {
			pairs[trimmed] = true
		}
	}
	return &collar.Policy{
		AllowedPairs:    pairs,
		MinPutStrikeBps: c.Policy.MinPutStrikeBps,
		MaxCallBps:      c.Policy.MaxCallBps,
		MinDurationSecs: c.Policy.MinDurationSecs,
		MaxDurationSecs: c.Policy.MaxDurationSecs,
	}
}

// FeeRecipient decodes the configured recipient address. An empty string
// yields the zero address, which disables fee collection.
func (c *Config) FeeRecipient() (collar.Address, error) {
	return ParseAddress(c.Fees.Recipient)
}

// ParseAddress decodes a 20-byte hex address, with or without an 0x prefix.
// The empty string decodes to the zero address.
func ParseAddress(raw string) (collar.Address, error) {
	var addr collar.Address
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return addr, nil
	}
	trimmed = strings.TrimPrefix(trimmed, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("config: invalid address %q: want %d bytes, got %d", raw, len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
