package svm

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/quantaliz/solaibot-sub000/encoding"
)

// TransactionSummary describes a partially signed payment transaction.
type TransactionSummary struct {
	Versioned       bool
	FeePayer        solana.PublicKey
	Signers         []solana.PublicKey
	SignedSlots     []bool
	RecentBlockhash solana.Hash
	Programs        []solana.PublicKey
}

// Inspect decodes a base64 transaction, as carried in the X-PAYMENT payload.
func Inspect(txBase64 string) (*TransactionSummary, error) {
	raw, err := encoding.DecodeBase64(txBase64)
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	keys := tx.Message.AccountKeys
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(keys) < n || len(tx.Signatures) != n {
		return nil, fmt.Errorf("decode transaction: %d signatures for %d signers", len(tx.Signatures), n)
	}

	summary := &TransactionSummary{
		Versioned:       tx.Message.IsVersioned(),
		RecentBlockhash: tx.Message.RecentBlockhash,
		Signers:         append([]solana.PublicKey(nil), keys[:n]...),
		SignedSlots:     make([]bool, n),
	}
	if n > 0 {
		summary.FeePayer = keys[0]
	}
	for i, sig := range tx.Signatures {
		summary.SignedSlots[i] = !sig.IsZero()
	}
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) < len(keys) {
			summary.Programs = append(summary.Programs, keys[ix.ProgramIDIndex])
		}
	}
	return summary, nil
}
