package svm

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/logger"
)

// Builder turns a payment requirement into an unsigned transaction message.
type Builder struct {
	ledger           Ledger
	probe            Probe
	deriver          *Deriver
	computeUnitPrice uint64
	log              logger.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder) error

// WithProbe sets the connectivity probe checked before any ledger call.
func WithProbe(probe Probe) BuilderOption {
	return func(b *Builder) error {
		if probe == nil {
			return errors.New("svm: nil probe")
		}
		b.probe = probe
		return nil
	}
}

// WithComputeUnitPrice overrides the compute unit price in micro-lamports.
func WithComputeUnitPrice(microLamports uint64) BuilderOption {
	return func(b *Builder) error {
		b.computeUnitPrice = microLamports
		return nil
	}
}

// WithLogger sets the builder's logger.
func WithLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) error {
		b.log = logger.OrNoop(l)
		return nil
	}
}

// NewBuilder creates a builder reading chain state from ledger.
func NewBuilder(ledger Ledger, opts ...BuilderOption) (*Builder, error) {
	if ledger == nil {
		return nil, errors.New("svm: nil ledger")
	}
	b := &Builder{
		ledger:           ledger,
		probe:            AlwaysOnline,
		deriver:          NewDeriver(ledger),
		computeUnitPrice: DefaultComputeUnitPrice,
		log:              logger.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Deriver returns the address deriver sharing the builder's ledger.
func (b *Builder) Deriver() *Deriver {
	return b.deriver
}

// Build creates the message paying requirement from payer.
//
// Native SOL payments compile to [limit, price, transfer]. Token payments compile to
// [limit, price, transferChecked], with a create-idempotent instruction for the
// recipient's token account inserted before the transfer when that account does not
// exist yet.
func (b *Builder) Build(ctx context.Context, requirement *x402.PaymentRequirements, payer solana.PublicKey) (*Message, error) {
	if requirement == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "no payment requirement", nil)
	}

	feePayer, err := parseAddress(requirement.Extra["feePayer"], "feePayer")
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress(requirement.PayTo, "payTo")
	if err != nil {
		return nil, err
	}
	amount, err := x402.ParseAtomicAmount(requirement.MaxAmountRequired)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if !b.probe.Online(ctx) {
		return nil, orCancelled(ctx, x402.NewPaymentError(x402.ErrCodeNoNetwork, "no network connectivity", nil))
	}

	blockhash, err := b.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, orCancelled(ctx, ledgerUnavailable("blockhash fetch", err))
	}

	var instructions []Instruction
	if requirement.IsNativeAsset() {
		instructions, err = b.nativeTransfer(ctx, payer, recipient, amount)
	} else {
		instructions, err = b.tokenTransfer(ctx, requirement.Asset, feePayer, payer, recipient, amount)
	}
	if err != nil {
		return nil, orCancelled(ctx, err)
	}

	msg, err := NewMessage(feePayer, payer, blockhash, instructions)
	if err != nil {
		return nil, err
	}

	b.log.Debug("built payment message", map[string]any{
		"network":      requirement.Network,
		"asset":        requirement.Asset,
		"amount":       amount,
		"instructions": len(instructions),
		"accounts":     len(msg.Accounts),
	})
	return msg, nil
}

func (b *Builder) nativeTransfer(ctx context.Context, payer, recipient solana.PublicKey, amount uint64) ([]Instruction, error) {
	info, err := b.ledger.GetAccount(ctx, payer)
	if err != nil {
		return nil, ledgerUnavailable("payer read", err)
	}
	var balance uint64
	if info != nil {
		balance = info.Lamports
	}
	if balance < amount {
		return nil, insufficientFunds(balance, amount)
	}

	transfer, err := SystemTransfer(amount, payer, recipient)
	if err != nil {
		return nil, err
	}
	return []Instruction{
		SetComputeUnitLimit(ComputeUnitsTransfer),
		SetComputeUnitPrice(b.computeUnitPrice),
		transfer,
	}, nil
}

func (b *Builder) tokenTransfer(ctx context.Context, asset string, feePayer, payer, recipient solana.PublicKey, amount uint64) ([]Instruction, error) {
	mintKey, err := parseAddress(asset, "asset")
	if err != nil {
		return nil, err
	}
	mint, err := b.deriver.ReadMint(ctx, mintKey)
	if err != nil {
		return nil, err
	}

	source, _, err := DeriveWithProgram(payer, mint.Address, mint.TokenProgram)
	if err != nil {
		return nil, err
	}
	destination, _, err := DeriveWithProgram(recipient, mint.Address, mint.TokenProgram)
	if err != nil {
		return nil, err
	}

	sourceInfo, err := b.ledger.GetAccount(ctx, source)
	if err != nil {
		return nil, ledgerUnavailable("source account read", err)
	}
	var balance uint64
	if sourceInfo != nil {
		balance, err = TokenAccountAmount(sourceInfo.Data)
		if err != nil {
			return nil, x402.NewPaymentError(x402.ErrCodeLedgerReadFailed, "unreadable source token account", err).
				WithDetails("account", source.String())
		}
	}
	if balance < amount {
		return nil, insufficientFunds(balance, amount).WithDetails("account", source.String())
	}

	exists, err := b.deriver.Exists(ctx, destination)
	if err != nil {
		return nil, err
	}

	limit := ComputeUnitsTransfer
	if !exists {
		limit = ComputeUnitsWithCreate
	}
	instructions := []Instruction{
		SetComputeUnitLimit(limit),
		SetComputeUnitPrice(b.computeUnitPrice),
	}
	if !exists {
		instructions = append(instructions,
			CreateAssociatedTokenAccountIdempotent(feePayer, destination, recipient, mint.Address, mint.TokenProgram))
	}

	transfer, err := TransferChecked(mint.TokenProgram, source, mint.Address, destination, payer, amount, mint.Decimals)
	if err != nil {
		return nil, err
	}
	return append(instructions, transfer), nil
}

func parseAddress(v interface{}, field string) (solana.PublicKey, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return solana.PublicKey{}, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "missing "+field, nil)
	}
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "invalid "+field+" address", err).
			WithDetails(field, s)
	}
	return key, nil
}

func cancelled(err error) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodeSigningCancelled, "payment cancelled while building", err)
}

// orCancelled reports err as a cancellation when ctx ended, since a dead context
// also makes the probe and ledger reads fail.
func orCancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}
	return err
}

func insufficientFunds(balance, amount uint64) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodeInsufficientFunds, "balance below required amount", nil).
		WithDetails("balance", balance).
		WithDetails("required", amount)
}
