package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"guildhall/crypto"
	nativecommon "guildhall/native/common"
	"guildhall/native/onboarding"
	"guildhall/native/treasury"
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node.ListenAddress) == "" {
		errs = append(errs, fmt.Errorf("node: listen address required"))
	}
	if !c.Node.InMemory && strings.TrimSpace(c.Node.DataDir) == "" {
		errs = append(errs, fmt.Errorf("node: data dir required"))
	}
	if _, _, err := c.Addresses(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.OnboardingConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.TokenAllocations(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.Enabled && len(c.Auth.HMACSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth: hmac secret must be at least 32 bytes"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit: values must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		errs = append(errs, fmt.Errorf("rate_limit: burst required when a rate is set"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample ratio must be within [0,1]"))
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.DSN) == "" {
		errs = append(errs, fmt.Errorf("archive: dsn required"))
	}
	return errors.Join(errs...)
}

// Addresses decodes the organization and founder addresses.
func (c *Config) Addresses() (org, founder crypto.Address, err error) {
	if strings.TrimSpace(c.Organization.Address) == "" {
		return org, founder, fmt.Errorf("organization: address required")
	}
	if org, err = crypto.DecodeAddress(c.Organization.Address); err != nil {
		return org, founder, fmt.Errorf("organization: address: %w", err)
	}
	if strings.TrimSpace(c.Organization.Founder) == "" {
		return org, founder, fmt.Errorf("organization: founder required")
	}
	if founder, err = crypto.DecodeAddress(c.Organization.Founder); err != nil {
		return org, founder, fmt.Errorf("organization: founder: %w", err)
	}
	return org, founder, nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}

// OnboardingConfig parses the onboarding terms into the adapter
// configuration.
func (c *Config) OnboardingConfig() (onboarding.Config, error) {
	var out onboarding.Config
	asset, err := treasury.ParseAssetKind(c.Onboarding.Asset)
	if err != nil {
		return out, fmt.Errorf("onboarding: %w", err)
	}
	price, err := parseAmount("onboarding.unit_price", c.Onboarding.UnitPrice)
	if err != nil {
		return out, err
	}
	perChunk, err := parseAmount("onboarding.units_per_chunk", c.Onboarding.UnitsPerChunk)
	if err != nil {
		return out, err
	}
	maxUnits, err := parseAmount("onboarding.max_units", c.Onboarding.MaxUnits)
	if err != nil {
		return out, err
	}
	out = onboarding.Config{
		UnitPrice:     price,
		UnitsPerChunk: perChunk,
		MaxUnits:      maxUnits,
		VotingPeriod:  c.Onboarding.VotingPeriod,
		GracePeriod:   c.Onboarding.GracePeriod,
		Asset:         asset,
	}
	if err := out.Validate(); err != nil {
		return onboarding.Config{}, err
	}
	return out, nil
}

// ParsedAllocation is a token allocation with decoded fields.
type ParsedAllocation struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// TokenAllocations decodes the initial token balances.
func (c *Config) TokenAllocations() ([]ParsedAllocation, error) {
	out := make([]ParsedAllocation, 0, len(c.Token.Allocations))
	for i, alloc := range c.Token.Allocations {
		account, err := crypto.DecodeAddress(alloc.Account)
		if err != nil {
			return nil, fmt.Errorf("token: allocation %d: %w", i, err)
		}
		amount, err := parseAmount(fmt.Sprintf("token.allocations[%d].amount", i), alloc.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, ParsedAllocation{Account: account, Amount: amount})
	}
	return out, nil
}

// PausedModules lists the modules to pause at startup.
func (p Pauses) PausedModules() []string {
	var modules []string
	if p.Onboarding {
		modules = append(modules, nativecommon.ModuleOnboarding)
	}
	if p.Voting {
		modules = append(modules, nativecommon.ModuleVoting)
	}
	if p.Processing {
		modules = append(modules, nativecommon.ModuleProcessing)
	}
	return modules
}
