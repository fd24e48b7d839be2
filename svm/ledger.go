// Package svm builds, signs and serializes Solana payment transactions for the
// x402 "exact" scheme.
//
// The fee payer advertised by the facilitator always occupies account index 0 and the
// paying user index 1. Messages are serialized in the v0 (versioned) wire format and
// the user's detached signature is placed in signature slot 1; slot 0 is left zeroed
// for the facilitator.
package svm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// AccountInfo is the raw state of an on-chain account.
type AccountInfo struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Ledger is the read-only view of the chain the builder needs.
//
// GetAccount returns (nil, nil) when no account exists at address. Errors are reserved
// for transport failures.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
}

// RPCClient is the subset of the solana-go RPC client used by RPCLedger.
// This allows for dependency injection and easier testing.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// RPCLedger reads the chain through a JSON-RPC endpoint.
type RPCLedger struct {
	client         RPCClient
	commitment     rpc.CommitmentType
	connectTimeout time.Duration
	readTimeout    time.Duration
}

// LedgerOption configures an RPCLedger.
type LedgerOption func(*RPCLedger) error

// WithRPCClient sets a custom RPC client.
func WithRPCClient(client RPCClient) LedgerOption {
	return func(l *RPCLedger) error {
		if client == nil {
			return errors.New("svm: nil RPC client")
		}
		l.client = client
		return nil
	}
}

// WithCommitment sets the commitment level for reads (default finalized).
func WithCommitment(commitment rpc.CommitmentType) LedgerOption {
	return func(l *RPCLedger) error {
		l.commitment = commitment
		return nil
	}
}

// WithLedgerTimeouts applies connect and read timeouts to the default RPC client.
// It has no effect on a client supplied with WithRPCClient, except that each read is
// still bounded by ReadTimeout.
func WithLedgerTimeouts(timeouts x402.TimeoutConfig) LedgerOption {
	return func(l *RPCLedger) error {
		if err := timeouts.Validate(); err != nil {
			return err
		}
		l.connectTimeout = timeouts.ConnectTimeout
		l.readTimeout = timeouts.ReadTimeout
		return nil
	}
}

// NewRPCLedger creates a ledger for the given RPC endpoint.
func NewRPCLedger(endpoint string, opts ...LedgerOption) (*RPCLedger, error) {
	l := &RPCLedger{
		commitment:     rpc.CommitmentFinalized,
		connectTimeout: x402.DefaultTimeouts.ConnectTimeout,
		readTimeout:    x402.DefaultTimeouts.ReadTimeout,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.client == nil {
		if endpoint == "" {
			return nil, errors.New("svm: empty RPC endpoint")
		}
		l.client = newRPCClient(endpoint, l.connectTimeout, l.readTimeout)
	}
	return l, nil
}

// NewLedgerForNetwork creates a ledger pointing at the public RPC endpoint of network.
func NewLedgerForNetwork(network string, opts ...LedgerOption) (*RPCLedger, error) {
	chain, err := x402.GetChainConfig(network)
	if err != nil {
		return nil, err
	}
	return NewRPCLedger(chain.RPCURL, opts...)
}

func newRPCClient(endpoint string, connectTimeout, readTimeout time.Duration) *rpc.Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConnsPerHost:   4,
		},
	}
	return rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient: httpClient,
	}))
}

// LatestBlockhash fetches a recent blockhash.
func (l *RPCLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, l.readTimeout)
	defer cancel()

	res, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, errors.New("svm: empty blockhash response")
	}
	return res.Value.Blockhash, nil
}

// GetAccount fetches the raw account at address, or nil if there is none.
func (l *RPCLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, l.readTimeout)
	defer cancel()

	res, err := l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Owner:    res.Value.Owner,
		Lamports: res.Value.Lamports,
	}
	if res.Value.Data != nil {
		info.Data = res.Value.Data.GetBinary()
	}
	return info, nil
}

// ledgerUnavailable wraps a transport-level ledger failure.
func ledgerUnavailable(op string, err error) error {
	var pe *x402.PaymentError
	if errors.As(err, &pe) {
		return err
	}
	return x402.NewPaymentError(x402.ErrCodeLedgerUnavailable, "ledger "+op+" failed", err)
}
