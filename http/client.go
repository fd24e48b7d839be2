package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/http/internal/helpers"
	"github.com/quantaliz/solaibot-sub000/logger"
	"github.com/quantaliz/solaibot-sub000/metrics"
)

// Outcome summarizes how a request was served.
type Outcome string

const (
	// OutcomeNotRequired means the server did not ask for payment.
	OutcomeNotRequired Outcome = "not_required"

	// OutcomeSettled means the server reported a successful settlement.
	OutcomeSettled Outcome = "settled"

	// OutcomeRejected means the server reported a failed settlement.
	OutcomeRejected Outcome = "rejected"

	// OutcomeUnconfirmed means a payment was sent but the response carried no settlement.
	OutcomeUnconfirmed Outcome = "unconfirmed"
)

// PaymentResult is the fully read response of Client.Pay.
type PaymentResult struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	Outcome     Outcome
	AttemptID   string
	Requirement *x402.PaymentRequirements
	Settlement  *x402.SettleResponse
}

// Client is an HTTP client that automatically handles x402 payment flows.
// It wraps a standard http.Client and adds payment handling via a custom RoundTripper.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a new x402-enabled HTTP client.
// The default transport applies x402.DefaultTimeouts.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		Client: &http.Client{
			Transport: newBaseTransport(x402.DefaultTimeouts),
			Timeout:   x402.DefaultTimeouts.RequestTimeout,
		},
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

func newBaseTransport(timeouts x402.TimeoutConfig) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeouts.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   timeouts.ConnectTimeout,
		ResponseHeaderTimeout: timeouts.ReadTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.Client = httpClient
		if c.Transport == nil {
			c.Transport = http.DefaultTransport
		}
		return nil
	}
}

// WithTimeouts replaces the connect, read and overall request timeouts.
// The timeouts are applied to the base transport when it is an *http.Transport.
func WithTimeouts(timeouts x402.TimeoutConfig) ClientOption {
	return func(c *Client) error {
		if err := timeouts.Validate(); err != nil {
			return err
		}
		c.Timeout = timeouts.RequestTimeout

		t := getOrCreateTransport(c)
		if _, ok := t.Base.(*http.Transport); ok || t.Base == nil {
			t.Base = newBaseTransport(timeouts)
		}
		return nil
	}
}

// WithPaymentBuilder sets the builder that turns a requirement into a signed payment.
func WithPaymentBuilder(builder x402.PaymentBuilder) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Builder = builder
		return nil
	}
}

// WithSession sets the wallet session used for signing.
func WithSession(session *x402.Session) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Session = session
		return nil
	}
}

// WithLogger sets the logger used by the payment transport.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Logger = l
		return nil
	}
}

// WithMetrics sets the metrics recorder used by the payment transport.
func WithMetrics(m metrics.Recorder) ClientOption {
	return func(c *Client) error {
		getOrCreateTransport(c).Metrics = m
		return nil
	}
}

// WithPaymentCallback sets a callback for a specific payment event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		transport := getOrCreateTransport(c)

		switch eventType {
		case x402.PaymentEventAttempt:
			transport.OnPaymentAttempt = callback
		case x402.PaymentEventSuccess:
			transport.OnPaymentSuccess = callback
		case x402.PaymentEventFailure:
			transport.OnPaymentFailure = callback
		default:
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}

		return nil
	}
}

// WithPaymentCallbacks sets all payment callbacks at once.
// Pass nil for any callback you don't want to set.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		transport := getOrCreateTransport(c)

		if onAttempt != nil {
			transport.OnPaymentAttempt = onAttempt
		}
		if onSuccess != nil {
			transport.OnPaymentSuccess = onSuccess
		}
		if onFailure != nil {
			transport.OnPaymentFailure = onFailure
		}

		return nil
	}
}

// getOrCreateTransport gets the X402Transport or creates one if it doesn't exist.
func getOrCreateTransport(c *Client) *X402Transport {
	transport, ok := c.Transport.(*X402Transport)
	if !ok {
		transport = &X402Transport{Base: c.Transport}
		c.Transport = transport
	}
	return transport
}

// Pay sends req, paying for it if the server asks, and reads the whole response.
//
// Errors follow the payment error taxonomy. In particular a transport failure after
// the paid request was sent is ErrOutcomeUnknown: the payment may have settled.
func (c *Client) Pay(ctx context.Context, req *http.Request) (*PaymentResult, error) {
	ctx, rec := recordAttempt(ctx)
	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return nil, unwrapURLError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		code := x402.ErrCodeHTTPFailure
		if rec.paid {
			code = x402.ErrCodeOutcomeUnknown
		}
		return nil, x402.NewPaymentError(code, "failed to read response body", err)
	}

	result := &PaymentResult{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		AttemptID:   rec.id,
		Requirement: rec.requirement,
		Settlement:  rec.settlement,
	}
	switch {
	case !rec.paid:
		result.Outcome = OutcomeNotRequired
	case rec.settlement == nil:
		result.Outcome = OutcomeUnconfirmed
	case rec.settlement.Success:
		result.Outcome = OutcomeSettled
	default:
		result.Outcome = OutcomeRejected
	}
	return result, nil
}

// unwrapURLError returns the payment error inside the *url.Error that http.Client adds.
func unwrapURLError(err error) error {
	var pe *x402.PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return x402.NewPaymentError(x402.ErrCodeHTTPFailure, "request failed", err)
}

// GetSettlement extracts settlement information from an HTTP response.
// Returns nil if no settlement header is present or if parsing fails.
func GetSettlement(resp *http.Response) *x402.SettleResponse {
	return helpers.ParseSettlement(resp.Header.Get(x402.HeaderPaymentResponse))
}
