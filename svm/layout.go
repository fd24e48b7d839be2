package svm

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Program IDs the builder needs to recognise.
var (
	// ComputeBudgetProgramID is the Solana Compute Budget program ID.
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

	// TokenProgramID is the original SPL Token program.
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID derives and creates associated token accounts.
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
)

// Raw account layouts shared by both token programs. Token-2022 accounts may carry
// extensions after the base layout; the offsets below are unaffected.
const (
	mintDecimalsOffset = 44
	mintBaseSize       = 82

	tokenAmountOffset = 64
	tokenBaseSize     = 165
)

// IsTokenProgram reports whether id is one of the two SPL token programs.
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(TokenProgramID) || id.Equals(Token2022ProgramID)
}

// MintDecimals reads the decimals byte of a raw mint account.
func MintDecimals(data []byte) (uint8, error) {
	if len(data) < mintBaseSize {
		return 0, fmt.Errorf("mint data too short: %d bytes", len(data))
	}
	var decimals uint8
	if err := bin.NewBorshDecoder(data[mintDecimalsOffset : mintDecimalsOffset+1]).Decode(&decimals); err != nil {
		return 0, fmt.Errorf("decode mint decimals: %w", err)
	}
	return decimals, nil
}

// TokenAccountAmount reads the balance of a raw token account.
func TokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < tokenBaseSize {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	var amount uint64
	if err := bin.NewBorshDecoder(data[tokenAmountOffset : tokenAmountOffset+8]).Decode(&amount); err != nil {
		return 0, fmt.Errorf("decode token amount: %w", err)
	}
	return amount, nil
}
