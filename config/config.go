package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. GUILD_NODE_LISTEN.
const EnvPrefix = "GUILD_"

// Config is the guildd runtime configuration.
type Config struct {
	Node         Node         `toml:"Node" yaml:"node" envPrefix:"NODE_"`
	Organization Organization `toml:"Organization" yaml:"organization" envPrefix:"ORG_"`
	Onboarding   Onboarding   `toml:"Onboarding" yaml:"onboarding" envPrefix:"ONBOARDING_"`
	Token        Token        `toml:"Token" yaml:"token" envPrefix:"TOKEN_"`
	Auth         Auth         `toml:"Auth" yaml:"auth" envPrefix:"AUTH_"`
	RateLimit    RateLimit    `toml:"RateLimit" yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Telemetry    Telemetry    `toml:"Telemetry" yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Archive      Archive      `toml:"Archive" yaml:"archive" envPrefix:"ARCHIVE_"`
	Logging      Logging      `toml:"Logging" yaml:"logging" envPrefix:"LOG_"`
	Pauses       Pauses       `toml:"Pauses" yaml:"pauses" envPrefix:"PAUSE_"`
}

// Default returns the configuration used for a fresh node. The organization
// addresses are left empty and must be supplied.
func Default() *Config {
	return &Config{
		Node: Node{
			ListenAddress:   ":8088",
			DataDir:         "./guild-data",
			Environment:     "local",
			ShutdownTimeout: 10 * time.Second,
		},
		Onboarding: Onboarding{
			Asset:         "native",
			UnitPrice:     "1000000000000000000",
			UnitsPerChunk: "1",
			MaxUnits:      "1000000",
			VotingPeriod:  24 * time.Hour,
			GracePeriod:   12 * time.Hour,
		},
		RateLimit: RateLimit{RequestsPerSecond: 10, Burst: 20},
		Telemetry: Telemetry{Endpoint: "localhost:4318", SampleRatio: 1},
		Archive:   Archive{DSN: "file:guild-events.db"},
		Logging:   Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load reads the configuration at path, YAML for .yaml/.yml files and TOML
// otherwise, then applies GUILD_* environment overrides and validates the
// result. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	return nil
}

// ApplyEnv overrides cfg with GUILD_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.Node.ListenAddress) == "" {
		c.Node.ListenAddress = def.Node.ListenAddress
	}
	if strings.TrimSpace(c.Node.DataDir) == "" {
		c.Node.DataDir = def.Node.DataDir
	}
	if c.Node.ShutdownTimeout <= 0 {
		c.Node.ShutdownTimeout = def.Node.ShutdownTimeout
	}
	if strings.TrimSpace(c.Onboarding.Asset) == "" {
		c.Onboarding.Asset = def.Onboarding.Asset
	}
	if strings.TrimSpace(c.Onboarding.UnitsPerChunk) == "" {
		c.Onboarding.UnitsPerChunk = def.Onboarding.UnitsPerChunk
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = def.Logging.Level
	}
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

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
