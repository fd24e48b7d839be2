// Package config loads the x402pay configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/validation"
)

// Signer types.
const (
	SignerKeypair = "keypair"
	SignerRemote  = "remote"
)

// Config represents the CLI configuration.
type Config struct {
	Network  string `yaml:"network" validate:"required,x402_network"`
	RPCURL   string `yaml:"rpc_url" validate:"omitempty,url"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// ComputeUnitPrice is the priority fee in micro-lamports per compute unit.
	ComputeUnitPrice uint64 `yaml:"compute_unit_price"`

	// VerifySignatures checks each returned signature against the message before use.
	VerifySignatures bool `yaml:"verify_signatures"`

	// SkipProbe disables the connectivity check before building a transaction.
	SkipProbe bool `yaml:"skip_probe"`

	Signer      SignerConfig      `yaml:"signer"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type SignerConfig struct {
	Type          string `yaml:"type" validate:"required,oneof=keypair remote"`
	KeypairPath   string `yaml:"keypair_path"`
	PrivateKey    string `yaml:"private_key"`
	RemoteURL     string `yaml:"remote_url" validate:"required_if=Type remote,omitempty,url"`
	Account       string `yaml:"account" validate:"omitempty,solana_address"`
	Authorization string `yaml:"authorization"`
}

type FacilitatorConfig struct {
	URL           string `yaml:"url" validate:"omitempty,url"`
	Authorization string `yaml:"authorization"`
}

// TimeoutsConfig holds durations as strings, e.g. "10s".
type TimeoutsConfig struct {
	Connect string `yaml:"connect"`
	Read    string `yaml:"read"`
	Verify  string `yaml:"verify"`
	Settle  string `yaml:"settle"`
	Request string `yaml:"request"`
}

type MetricsConfig struct {
	// Listen is the address of the Prometheus /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Network:          x402.NetworkSolanaDev,
		LogLevel:         "info",
		ComputeUnitPrice: 1,
		Signer: SignerConfig{
			Type: SignerKeypair,
		},
		Facilitator: FacilitatorConfig{
			URL: "https://facilitator.payai.network",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from X402_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"X402_NETWORK", &c.Network},
		{"X402_RPC_URL", &c.RPCURL},
		{"X402_LOG_LEVEL", &c.LogLevel},
		{"X402_SIGNER", &c.Signer.Type},
		{"X402_KEYPAIR_PATH", &c.Signer.KeypairPath},
		{"X402_PRIVATE_KEY", &c.Signer.PrivateKey},
		{"X402_SIGNER_URL", &c.Signer.RemoteURL},
		{"X402_SIGNER_ACCOUNT", &c.Signer.Account},
		{"X402_SIGNER_AUTHORIZATION", &c.Signer.Authorization},
		{"X402_FACILITATOR_URL", &c.Facilitator.URL},
		{"X402_FACILITATOR_AUTHORIZATION", &c.Facilitator.Authorization},
		{"X402_METRICS_LISTEN", &c.Metrics.Listen},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup("X402_COMPUTE_UNIT_PRICE"); ok {
		price, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid X402_COMPUTE_UNIT_PRICE: %w", err)
		}
		c.ComputeUnitPrice = price
	}
	return nil
}

// Validate checks the struct tags and that every timeout parses.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Signer.Type == SignerKeypair && c.Signer.KeypairPath == "" && c.Signer.PrivateKey == "" {
		return errors.New("keypair signer needs keypair_path or private_key")
	}
	_, err := c.TimeoutConfig()
	return err
}

// TimeoutConfig returns the configured timeouts over x402.DefaultTimeouts.
func (c *Config) TimeoutConfig() (x402.TimeoutConfig, error) {
	tc := x402.DefaultTimeouts
	fields := []struct {
		name  string
		value string
		set   func(time.Duration) x402.TimeoutConfig
	}{
		{"connect", c.Timeouts.Connect, func(d time.Duration) x402.TimeoutConfig { return tc.WithConnectTimeout(d) }},
		{"read", c.Timeouts.Read, func(d time.Duration) x402.TimeoutConfig { return tc.WithReadTimeout(d) }},
		{"verify", c.Timeouts.Verify, func(d time.Duration) x402.TimeoutConfig { return tc.WithVerifyTimeout(d) }},
		{"settle", c.Timeouts.Settle, func(d time.Duration) x402.TimeoutConfig { return tc.WithSettleTimeout(d) }},
		{"request", c.Timeouts.Request, func(d time.Duration) x402.TimeoutConfig { return tc.WithRequestTimeout(d) }},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return x402.TimeoutConfig{}, fmt.Errorf("invalid %s timeout: %w", f.name, err)
		}
		tc = f.set(d)
	}
	if err := tc.Validate(); err != nil {
		return x402.TimeoutConfig{}, err
	}
	return tc, nil
}

// RPCEndpoint returns the configured RPC URL or the cluster's public endpoint.
func (c *Config) RPCEndpoint() (string, error) {
	if c.RPCURL != "" {
		return c.RPCURL, nil
	}
	chain, err := x402.GetChainConfig(c.Network)
	if err != nil {
		return "", err
	}
	return chain.RPCURL, nil
}
