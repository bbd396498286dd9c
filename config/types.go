package config

import "time"

// Node holds the daemon process settings.
type Node struct {
	ListenAddress   string        `toml:"ListenAddress" yaml:"listen" env:"LISTEN"`
	DataDir         string        `toml:"DataDir" yaml:"data_dir" env:"DATA_DIR"`
	InMemory        bool          `toml:"InMemory" yaml:"in_memory" env:"IN_MEMORY"`
	Environment     string        `toml:"Environment" yaml:"environment" env:"ENVIRONMENT"`
	ShutdownTimeout time.Duration `toml:"ShutdownTimeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Organization identifies the DAO served by the daemon. Addresses use the
// guild bech32 form or 0x hex.
type Organization struct {
	Address string `toml:"Address" yaml:"address" env:"ADDRESS"`
	Founder string `toml:"Founder" yaml:"founder" env:"FOUNDER"`
}

// Onboarding holds the terms of the non-voting onboarding adapter. Amounts
// are decimal strings in base units.
type Onboarding struct {
	Asset         string        `toml:"Asset" yaml:"asset" env:"ASSET"`
	UnitPrice     string        `toml:"UnitPrice" yaml:"unit_price" env:"UNIT_PRICE"`
	UnitsPerChunk string        `toml:"UnitsPerChunk" yaml:"units_per_chunk" env:"UNITS_PER_CHUNK"`
	MaxUnits      string        `toml:"MaxUnits" yaml:"max_units" env:"MAX_UNITS"`
	VotingPeriod  time.Duration `toml:"VotingPeriod" yaml:"voting_period" env:"VOTING_PERIOD"`
	GracePeriod   time.Duration `toml:"GracePeriod" yaml:"grace_period" env:"GRACE_PERIOD"`
}

// Allocation credits a token balance when the token is first created.
type Allocation struct {
	Account string `toml:"Account" yaml:"account"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// Token describes the stake token when onboarding accepts a fungible token.
type Token struct {
	Name        string       `toml:"Name" yaml:"name" env:"NAME"`
	Symbol      string       `toml:"Symbol" yaml:"symbol" env:"SYMBOL"`
	Decimals    uint8        `toml:"Decimals" yaml:"decimals" env:"DECIMALS"`
	Allocations []Allocation `toml:"Allocations" yaml:"allocations"`
}

// Auth controls how callers are identified. With auth disabled the caller
// is taken from the X-Caller header.
type Auth struct {
	Enabled    bool   `toml:"Enabled" yaml:"enabled" env:"ENABLED"`
	HMACSecret string `toml:"HMACSecret" yaml:"hmac_secret" env:"HMAC_SECRET"`
	Issuer     string `toml:"Issuer" yaml:"issuer" env:"ISSUER"`
	Audience   string `toml:"Audience" yaml:"audience" env:"AUDIENCE"`
}

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second" env:"RPS"`
	Burst             int     `toml:"Burst" yaml:"burst" env:"BURST"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure" env:"INSECURE"`
	Headers     string  `toml:"Headers" yaml:"headers" env:"HEADERS"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics" env:"METRICS"`
	Traces      bool    `toml:"Traces" yaml:"traces" env:"TRACES"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Archive configures the SQLite event archive.
type Archive struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled" env:"ENABLED"`
	DSN     string `toml:"DSN" yaml:"dsn" env:"DSN"`
}

// Logging configures log verbosity and optional rotated file output.
type Logging struct {
	Level      string `toml:"Level" yaml:"level" env:"LEVEL"`
	File       string `toml:"File" yaml:"file" env:"FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// Pauses lists the modules paused at startup.
type Pauses struct {
	Onboarding bool `toml:"Onboarding" yaml:"onboarding" env:"ONBOARDING"`
	Voting     bool `toml:"Voting" yaml:"voting" env:"VOTING"`
	Processing bool `toml:"Processing" yaml:"processing" env:"PROCESSING"`
}
