// Package remote implements x402.DetachedSigner against an external signing service.
//
// The service exposes:
//
//	POST {base}/sign     {"message": "<base64>", "publicKey": "<base58>"} -> {"signature": "<base64>"}
//	GET  {base}/account  -> {"publicKey": "<base58>"}
//
// 404 and 503 mean no signer is available, 409 and 499 mean the user declined.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/encoding"
	"github.com/quantaliz/solaibot-sub000/logger"
)

// StatusClientClosedRequest is the non-standard status a signer uses when the user
// dismissed the prompt.
const StatusClientClosedRequest = 499

type signRequest struct {
	Message   string `json:"message"`
	PublicKey string `json:"publicKey"`
}

type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

type accountResponse struct {
	PublicKey string `json:"publicKey"`
}

// Client talks to a remote signer.
type Client struct {
	baseURL       string
	client        *http.Client
	authorization string
	log           logger.Logger

	mu      sync.RWMutex
	account string
}

var (
	_ x402.Wallet         = (*Client)(nil)
	_ x402.DetachedSigner = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for signer calls.
// No timeout is imposed by default: the signer prompts a human.
func WithHTTPClient(c *http.Client) Option {
	return func(rc *Client) error {
		if c == nil {
			return errors.New("remote: nil http client")
		}
		rc.client = c
		return nil
	}
}

// WithAuthorization sets a static Authorization header value.
func WithAuthorization(value string) Option {
	return func(rc *Client) error {
		rc.authorization = value
		return nil
	}
}

// WithAccount sets the connected account without asking the service.
func WithAccount(account string) Option {
	return func(rc *Client) error {
		rc.account = account
		return nil
	}
}

// WithLogger sets the client's logger.
func WithLogger(l logger.Logger) Option {
	return func(rc *Client) error {
		rc.log = logger.OrNoop(l)
		return nil
	}
}

// New creates a remote signer client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("remote: empty base URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{Transport: &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{Timeout: x402.DefaultTimeouts.ConnectTimeout}).DialContext,
		}},
		log: logger.NoopLogger{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ConnectedAccount implements x402.Wallet with the last known account.
func (c *Client) ConnectedAccount() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account, c.account != ""
}

// Refresh asks the service which account is connected and remembers it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/account", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeNoSignerAvailable, "signer unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		c.setAccount("")
		return "", x402.NewPaymentError(x402.ErrCodeNoSignerConnected, "no account connected", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode account response: %w", err)
	}
	c.setAccount(out.PublicKey)
	if out.PublicKey == "" {
		return "", x402.NewPaymentError(x402.ErrCodeNoSignerConnected, "no account connected", nil)
	}
	return out.PublicKey, nil
}

func (c *Client) setAccount(account string) {
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
}

// SignDetached implements x402.DetachedSigner.
func (c *Client) SignDetached(ctx context.Context, message []byte, signerPubKey string) ([]byte, error) {
	body, err := json.Marshal(signRequest{
		Message:   base64.StdEncoding.EncodeToString(message),
		PublicKey: signerPubKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthorizationHeader(req)

	c.log.Debug("requesting remote signature", map[string]any{"signer": signerPubKey, "bytes": len(message)})

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, x402.NewPaymentError(x402.ErrCodeSigningCancelled, "signing request cancelled", ctx.Err())
		}
		return nil, x402.NewPaymentError(x402.ErrCodeNoSignerAvailable, "signer unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedSignature, "undecodable signer response", err)
	}
	if out.Signature == "" {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedSignature, "signer response has no signature", nil)
	}
	sig, err := encoding.DecodeBase64(out.Signature)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedSignature, "signature is not base64", err)
	}
	return sig, nil
}

func (c *Client) setAuthorizationHeader(req *http.Request) {
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
}

// statusError maps a non-200 signer response to the payment error taxonomy.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	reason := strings.TrimSpace(string(raw))
	var body signResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		reason = body.Error
	}

	var code x402.ErrorCode
	switch resp.StatusCode {
	case http.StatusConflict, StatusClientClosedRequest:
		code = x402.ErrCodeSigningCancelled
	default:
		code = x402.ErrCodeNoSignerAvailable
	}
	return x402.NewPaymentError(code, fmt.Sprintf("signer returned status %d", resp.StatusCode), nil).
		WithDetails("status", resp.StatusCode).
		WithDetails("reason", reason)
}
