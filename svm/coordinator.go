package svm

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/logger"
)

// SignatureSize is the size of an ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// SignedTransaction is a message plus one signature slot per required signer.
// Unfilled slots are all zero.
type SignedTransaction struct {
	Signatures []solana.Signature
	Message    []byte
}

// Bytes serializes the transaction: signature count, slots, message.
func (t *SignedTransaction) Bytes() []byte {
	out := make([]byte, 0, 1+len(t.Signatures)*SignatureSize+len(t.Message))
	out = append(out, byte(len(t.Signatures)))
	for _, sig := range t.Signatures {
		out = append(out, sig[:]...)
	}
	return append(out, t.Message...)
}

// Base64 returns the standard base64 encoding of Bytes.
func (t *SignedTransaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Bytes())
}

// Coordinator obtains the paying user's detached signature and assembles the
// partially signed transaction.
type Coordinator struct {
	verify bool
	log    logger.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator) error

// WithSignatureVerification makes Sign reject signatures that do not verify against
// the payer's key.
func WithSignatureVerification() CoordinatorOption {
	return func(c *Coordinator) error {
		c.verify = true
		return nil
	}
}

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(l logger.Logger) CoordinatorOption {
	return func(c *Coordinator) error {
		c.log = logger.OrNoop(l)
		return nil
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{log: logger.NoopLogger{}}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Sign sends the serialized message, and nothing else, to signer and places the
// returned signature in slot 1. Slot 0 belongs to the fee payer and stays zero.
func (c *Coordinator) Sign(ctx context.Context, signer x402.DetachedSigner, msg *Message) (*SignedTransaction, error) {
	payerIndex := msg.IndexOf(msg.Payer)
	if payerIndex != 1 || msg.IndexOf(msg.FeePayer) != 0 {
		return nil, fmt.Errorf("svm: message does not place fee payer at 0 and payer at 1")
	}
	numSigners := msg.NumSigners()
	if numSigners < 2 || numSigners >= 0x80 {
		return nil, fmt.Errorf("svm: unsupported signer count %d", numSigners)
	}

	message := msg.Bytes()
	if err := ctx.Err(); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningCancelled, "cancelled before signing", err)
	}

	c.log.Debug("requesting detached signature", map[string]any{
		"payer":        msg.Payer.String(),
		"messageBytes": len(message),
	})
	raw, err := signer.SignDetached(ctx, message, msg.Payer.String())
	if err != nil {
		return nil, err
	}
	if len(raw) != SignatureSize {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedSignature,
			fmt.Sprintf("signature is %d bytes, want %d", len(raw), SignatureSize), nil)
	}

	var sig solana.Signature
	copy(sig[:], raw)
	if c.verify && !ed25519.Verify(ed25519.PublicKey(msg.Payer[:]), message, raw) {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedSignature, "signature does not verify against payer key", nil)
	}

	signatures := make([]solana.Signature, numSigners)
	signatures[payerIndex] = sig
	return &SignedTransaction{Signatures: signatures, Message: message}, nil
}
