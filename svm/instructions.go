package svm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Compute budget used for every payment. The facilitator rejects transactions priced
// above its cap, so the price stays at the minimum non-zero value.
const (
	// ComputeUnitsTransfer covers compute budget + transfer instructions.
	ComputeUnitsTransfer uint32 = 6_500

	// ComputeUnitsWithCreate also covers an associated token account creation.
	ComputeUnitsWithCreate uint32 = 40_000

	// DefaultComputeUnitPrice is the compute unit price in micro-lamports.
	DefaultComputeUnitPrice uint64 = 1
)

// AccountRef is one account reference of an instruction.
type AccountRef struct {
	Address    solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is an unsigned instruction: program, ordered accounts and opaque data.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountRef
	Data      []byte
}

// FromSolana converts an instruction produced by a solana-go program builder.
func FromSolana(ix solana.Instruction) (Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return Instruction{}, fmt.Errorf("encode instruction data: %w", err)
	}
	metas := ix.Accounts()
	accounts := make([]AccountRef, 0, len(metas))
	for _, m := range metas {
		accounts = append(accounts, AccountRef{Address: m.PublicKey, IsSigner: m.IsSigner, IsWritable: m.IsWritable})
	}
	return Instruction{ProgramID: ix.ProgramID(), Accounts: accounts, Data: data}, nil
}

// SetComputeUnitLimit builds a compute budget instruction: [2, units u32 LE].
func SetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 1, 5)
	data[0] = 2
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Data:      binary.LittleEndian.AppendUint32(data, units),
	}
}

// SetComputeUnitPrice builds a compute budget instruction: [3, microLamports u64 LE].
func SetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 1, 9)
	data[0] = 3
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Data:      binary.LittleEndian.AppendUint64(data, microLamports),
	}
}

// SystemTransfer moves lamports from one account to another. The sender signs.
func SystemTransfer(lamports uint64, from, to solana.PublicKey) (Instruction, error) {
	return FromSolana(system.NewTransferInstruction(lamports, from, to).Build())
}

// TransferChecked builds a decimal-checked token transfer addressed to tokenProgram.
// Both token programs share the TransferChecked layout.
func TransferChecked(tokenProgram, source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) (Instruction, error) {
	ix, err := FromSolana(token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(decimals).
		SetSourceAccount(source).
		SetMintAccount(mint).
		SetDestinationAccount(destination).
		SetOwnerAccount(owner).
		Build())
	if err != nil {
		return Instruction{}, err
	}
	ix.ProgramID = tokenProgram
	return ix, nil
}

// CreateAssociatedTokenAccountIdempotent creates ata for owner and mint, funded by
// payer. It succeeds even if the account already exists.
func CreateAssociatedTokenAccountIdempotent(payer, ata, owner, mint, tokenProgram solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountRef{
			{Address: payer, IsSigner: true, IsWritable: true},
			{Address: ata, IsWritable: true},
			{Address: owner},
			{Address: mint},
			{Address: solana.SystemProgramID},
			{Address: tokenProgram},
		},
		Data: []byte{1},
	}
}
