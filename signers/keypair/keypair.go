// Package keypair provides a local-key wallet and detached signer.
//
// It stands in for an external custodial signer in development, tests and headless
// deployments. The engine treats it exactly like any other x402.DetachedSigner.
package keypair

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// Signer holds an ed25519 Solana key.
type Signer struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

var (
	_ x402.Wallet         = (*Signer)(nil)
	_ x402.DetachedSigner = (*Signer)(nil)
)

// New wraps an existing private key.
func New(key solana.PrivateKey) (*Signer, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: invalid key length %d (expected 64 bytes)", x402.ErrInvalidKey, len(key))
	}
	return &Signer{privateKey: key, publicKey: key.PublicKey()}, nil
}

// FromBase58 creates a signer from a base58-encoded private key.
func FromBase58(privateKeyBase58 string) (*Signer, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return New(key)
}

// FromKeygenFile creates a signer from a Solana keygen JSON file.
// The file should contain a JSON array of 64 bytes (the ed25519 private key).
func FromKeygenFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}

	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON format", x402.ErrInvalidKey)
	}
	return New(solana.PrivateKey(keyBytes))
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	return New(solana.NewWallet().PrivateKey)
}

// Address returns the signer's public key.
func (s *Signer) Address() solana.PublicKey {
	return s.publicKey
}

// ConnectedAccount implements x402.Wallet. A local key is always connected.
func (s *Signer) ConnectedAccount() (string, bool) {
	return s.publicKey.String(), true
}

// SignDetached implements x402.DetachedSigner.
func (s *Signer) SignDetached(ctx context.Context, message []byte, signerPubKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningCancelled, "signing cancelled", err)
	}
	if signerPubKey != s.publicKey.String() {
		return nil, x402.NewPaymentError(x402.ErrCodeNoSignerAvailable, "no key for requested signer", nil).
			WithDetails("requested", signerPubKey).
			WithDetails("available", s.publicKey.String())
	}
	sig, err := s.privateKey.Sign(message)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNoSignerAvailable, "local signing failed", err)
	}
	return sig[:], nil
}

// Session returns a session using this signer as both wallet and signer.
func (s *Signer) Session() *x402.Session {
	return x402.NewSession(s, s)
}
