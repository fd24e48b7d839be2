package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for payment operations.
type TimeoutConfig struct {
	// ConnectTimeout bounds establishing a connection to the ledger, signer or resource.
	ConnectTimeout time.Duration

	// ReadTimeout bounds a single ledger read or HTTP response.
	ReadTimeout time.Duration

	// VerifyTimeout is the maximum time to wait for facilitator verification.
	VerifyTimeout time.Duration

	// SettleTimeout is the maximum time to wait for facilitator settlement.
	SettleTimeout time.Duration

	// RequestTimeout is the overall timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults for payment operations.
var DefaultTimeouts = TimeoutConfig{
	ConnectTimeout: 10 * time.Second,
	ReadTimeout:    30 * time.Second,
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// WithConnectTimeout returns a new TimeoutConfig with updated connect timeout.
func (tc TimeoutConfig) WithConnectTimeout(d time.Duration) TimeoutConfig {
	tc.ConnectTimeout = d
	return tc
}

// WithReadTimeout returns a new TimeoutConfig with updated read timeout.
func (tc TimeoutConfig) WithReadTimeout(d time.Duration) TimeoutConfig {
	tc.ReadTimeout = d
	return tc
}

// WithVerifyTimeout returns a new TimeoutConfig with updated verify timeout.
func (tc TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	tc.VerifyTimeout = d
	return tc
}

// WithSettleTimeout returns a new TimeoutConfig with updated settle timeout.
func (tc TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	tc.SettleTimeout = d
	return tc
}

// WithRequestTimeout returns a new TimeoutConfig with updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	checks := []struct {
		name string
		d    time.Duration
	}{
		{"connect", tc.ConnectTimeout},
		{"read", tc.ReadTimeout},
		{"verify", tc.VerifyTimeout},
		{"settle", tc.SettleTimeout},
		{"request", tc.RequestTimeout},
	}
	for _, c := range checks {
		if c.d <= 0 {
			return fmt.Errorf("%s timeout must be positive, got %v", c.name, c.d)
		}
	}
	if tc.SettleTimeout < tc.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) should be >= verify timeout (%v)",
			tc.SettleTimeout, tc.VerifyTimeout)
	}
	return nil
}
