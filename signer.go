package x402

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// Wallet reports the account currently connected by the user.
type Wallet interface {
	// ConnectedAccount returns the base58 address of the connected account.
	// The second result is false when no account is connected.
	ConnectedAccount() (string, bool)
}

// DetachedSigner produces a detached ed25519 signature over raw message bytes.
//
// Implementations talk to a custodial or external wallet. They should return
// ErrNoSignerAvailable (or a PaymentError with that code) when the signer cannot be
// reached, and ErrSigningCancelled when the user declines.
type DetachedSigner interface {
	SignDetached(ctx context.Context, message []byte, signerPubKey string) ([]byte, error)
}

// PaymentBuilder creates a signed payment payload for a selected requirement.
type PaymentBuilder interface {
	CreatePayment(ctx context.Context, session *Session, requirement *PaymentRequirements) (*PaymentPayload, error)
}

// Session binds the connected wallet to its external signer and serializes signing
// interactions: at most one SignDetached call is in flight per Session.
type Session struct {
	wallet Wallet
	signer DetachedSigner
	gate   *semaphore.Weighted
}

// NewSession creates a session. A nil signer makes every signing attempt fail with
// ErrNoSignerAvailable.
func NewSession(wallet Wallet, signer DetachedSigner) *Session {
	return &Session{
		wallet: wallet,
		signer: signer,
		gate:   semaphore.NewWeighted(1),
	}
}

// Account returns the connected account address.
func (s *Session) Account() (string, error) {
	if s == nil || s.wallet == nil {
		return "", NewPaymentError(ErrCodeNoSignerConnected, "no wallet connected", nil)
	}
	account, ok := s.wallet.ConnectedAccount()
	if !ok || account == "" {
		return "", NewPaymentError(ErrCodeNoSignerConnected, "no wallet account connected", nil)
	}
	return account, nil
}

// SignDetached asks the external signer to sign message with signerPubKey.
//
// Callers queue behind any interaction already in flight. Context cancellation while
// queued or while the signer is working yields ErrCodeSigningCancelled.
func (s *Session) SignDetached(ctx context.Context, message []byte, signerPubKey string) ([]byte, error) {
	if s == nil || s.signer == nil {
		return nil, NewPaymentError(ErrCodeNoSignerAvailable, "no external signer configured", nil)
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, NewPaymentError(ErrCodeSigningCancelled, "cancelled while waiting for signer", err)
	}
	defer s.gate.Release(1)

	signature, err := s.signer.SignDetached(ctx, message, signerPubKey)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, NewPaymentError(ErrCodeSigningCancelled, "signing interaction cancelled", ctxErr)
	}
	if err != nil {
		return nil, classifySignerError(err)
	}
	return signature, nil
}

func classifySignerError(err error) error {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return err
	}
	switch {
	case errors.Is(err, ErrSigningCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewPaymentError(ErrCodeSigningCancelled, "signing cancelled", err)
	case errors.Is(err, ErrMalformedSignature):
		return NewPaymentError(ErrCodeMalformedSignature, "signer returned a malformed signature", err)
	default:
		return NewPaymentError(ErrCodeNoSignerAvailable, "external signer failed", err)
	}
}
