package svm

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// Payer creates x402 payment payloads for Solana requirements.
// It implements x402.PaymentBuilder.
type Payer struct {
	builder     *Builder
	coordinator *Coordinator
}

var _ x402.PaymentBuilder = (*Payer)(nil)

// NewPayer combines a builder and a coordinator.
func NewPayer(builder *Builder, coordinator *Coordinator) (*Payer, error) {
	if builder == nil {
		return nil, errors.New("svm: nil builder")
	}
	if coordinator == nil {
		coordinator = &Coordinator{log: builder.log}
	}
	return &Payer{builder: builder, coordinator: coordinator}, nil
}

// CreatePayment builds, signs and wraps a transaction for requirement.
// Nothing is retried: every failure is returned as-is.
func (p *Payer) CreatePayment(ctx context.Context, session *x402.Session, requirement *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	account, err := session.Account()
	if err != nil {
		return nil, err
	}
	payer, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNoSignerConnected, "connected account is not a Solana address", err).
			WithDetails("account", account)
	}

	msg, err := p.builder.Build(ctx, requirement, payer)
	if err != nil {
		return nil, err
	}
	tx, err := p.coordinator.Sign(ctx, session, msg)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      requirement.Scheme,
		Network:     requirement.Network,
		Payload: x402.SVMPayload{
			Transaction: tx.Base64(),
		},
	}, nil
}
