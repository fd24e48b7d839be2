package x402

import (
	"fmt"
	"strings"
)

// Network identifiers accepted in the "network" field of a requirement.
const (
	// Legacy x402 v1 names.
	NetworkSolana     = "solana"
	NetworkSolanaMain = "solana-mainnet"
	NetworkSolanaDev  = "solana-devnet"

	// CAIP-2 names (genesis hash as reference).
	NetworkSolanaMainnet = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	NetworkSolanaDevnet  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

// ChainConfig holds configuration for a specific Solana cluster.
type ChainConfig struct {
	// Network is the canonical v1 network name.
	Network string

	// CAIP2 is the CAIP-2 identifier of the cluster.
	CAIP2 string

	// RPCURL is the public JSON-RPC endpoint of the cluster.
	RPCURL string

	// USDCAddress is the official Circle USDC mint address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8
}

// Predefined chain configurations.
var (
	// SolanaMainnet is the configuration for Solana mainnet-beta.
	SolanaMainnet = ChainConfig{
		Network:     NetworkSolana,
		CAIP2:       NetworkSolanaMainnet,
		RPCURL:      "https://api.mainnet-beta.solana.com",
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
	}

	// SolanaDevnet is the configuration for Solana devnet.
	SolanaDevnet = ChainConfig{
		Network:     NetworkSolanaDev,
		CAIP2:       NetworkSolanaDevnet,
		RPCURL:      "https://api.devnet.solana.com",
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
	}
)

// chainConfigByNetwork maps every accepted network name to its cluster.
var chainConfigByNetwork = map[string]ChainConfig{
	NetworkSolana:        SolanaMainnet,
	NetworkSolanaMain:    SolanaMainnet,
	NetworkSolanaMainnet: SolanaMainnet,
	NetworkSolanaDev:     SolanaDevnet,
	NetworkSolanaDevnet:  SolanaDevnet,
}

// GetChainConfig returns the chain configuration for a network name.
// Returns an error if the network is not recognized.
func GetChainConfig(network string) (ChainConfig, error) {
	config, ok := chainConfigByNetwork[strings.TrimSpace(network)]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// IsSupportedNetwork reports whether network names a Solana cluster this package can pay on.
func IsSupportedNetwork(network string) bool {
	_, ok := chainConfigByNetwork[strings.TrimSpace(network)]
	return ok
}

// ValidateNetwork validates a network identifier. Legacy names must be known;
// CAIP-2 names must use the solana namespace with a plausible genesis hash.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	if IsSupportedNetwork(network) {
		return nil
	}

	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: unknown network: %s", ErrInvalidNetwork, network)
	}
	if parts[0] != "solana" {
		return fmt.Errorf("%w: unsupported namespace: %s", ErrInvalidNetwork, parts[0])
	}
	if len(parts[1]) < 32 || len(parts[1]) > 44 {
		return fmt.Errorf("%w: invalid Solana genesis hash length: %s", ErrInvalidNetwork, parts[1])
	}
	return nil
}
