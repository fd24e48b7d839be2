package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// Deriver derives associated token accounts, resolving the token program that owns
// each mint from the ledger.
type Deriver struct {
	ledger Ledger
}

// NewDeriver creates a Deriver reading mints from ledger.
func NewDeriver(ledger Ledger) *Deriver {
	return &Deriver{ledger: ledger}
}

// DeriveWithProgram derives the associated token account of owner for mint under
// tokenProgram. Seeds are [owner, tokenProgram, mint].
func DeriveWithProgram(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive ATA: %w", err)
	}
	return addr, bump, nil
}

// Mint is the parsed state of a mint account that the builder needs.
type Mint struct {
	Address      solana.PublicKey
	TokenProgram solana.PublicKey
	Decimals     uint8
}

// ReadMint loads mint from the ledger.
// A missing mint is ErrLedgerReadFailed; a mint not owned by a token program, or
// with unreadable data, is ErrMalformedRequirement.
func (d *Deriver) ReadMint(ctx context.Context, mint solana.PublicKey) (*Mint, error) {
	info, err := d.ledger.GetAccount(ctx, mint)
	if err != nil {
		return nil, ledgerUnavailable("mint read", err)
	}
	if info == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeLedgerReadFailed, "mint account not found", nil).
			WithDetails("mint", mint.String())
	}
	if !IsTokenProgram(info.Owner) {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "asset is not a token mint", nil).
			WithDetails("mint", mint.String()).
			WithDetails("owner", info.Owner.String())
	}
	decimals, err := MintDecimals(info.Data)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "unreadable mint account", err).
			WithDetails("mint", mint.String())
	}
	return &Mint{Address: mint, TokenProgram: info.Owner, Decimals: decimals}, nil
}

// TokenProgram returns the program that owns mint.
func (d *Deriver) TokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	m, err := d.ReadMint(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return m.TokenProgram, nil
}

// Derive derives the associated token account of owner for mint, using the mint's
// owning token program.
func (d *Deriver) Derive(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	program, err := d.TokenProgram(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return DeriveWithProgram(owner, mint, program)
}

// Exists reports whether an account currently exists at address.
func (d *Deriver) Exists(ctx context.Context, address solana.PublicKey) (bool, error) {
	info, err := d.ledger.GetAccount(ctx, address)
	if err != nil {
		return false, ledgerUnavailable("account read", err)
	}
	return info != nil, nil
}
