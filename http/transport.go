package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/http/internal/helpers"
	"github.com/quantaliz/solaibot-sub000/logger"
	"github.com/quantaliz/solaibot-sub000/metrics"
)

// X402Transport is a custom RoundTripper that handles x402 payment flows.
// It wraps an existing http.RoundTripper and automatically handles 402 Payment Required responses.
//
// A request goes through at most two round trips: the original request and, when the
// server answers 402, one retry carrying the X-PAYMENT header. The retry response is
// returned whatever its status.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Builder creates the signed payment for the selected requirement.
	Builder x402.PaymentBuilder

	// Session supplies the connected account and the external signer.
	Session *x402.Session

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// attempt describes what happened while serving one request.
type attempt struct {
	id          string
	requirement *x402.PaymentRequirements
	settlement  *x402.SettleResponse
	paid        bool
}

type attemptKey struct{}

// recordAttempt asks the transport to describe the payment flow of requests made with ctx.
func recordAttempt(ctx context.Context) (context.Context, *attempt) {
	a := &attempt{}
	return context.WithValue(ctx, attemptKey{}, a), a
}

func attemptFrom(ctx context.Context) *attempt {
	if a, ok := ctx.Value(attemptKey{}).(*attempt); ok {
		return a
	}
	return &attempt{}
}

// RoundTrip implements http.RoundTripper.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	log := logger.OrNoop(t.Logger)
	ctx := req.Context()
	url := req.URL.String()

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeHTTPFailure, "failed to buffer request body", err)
	}

	first, err := cloneWithBody(req, getBody)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeHTTPFailure, "failed to prepare request", err)
	}
	resp, err := base.RoundTrip(first)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeHTTPFailure, "request failed", err).WithDetails("url", url)
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, err := helpers.ReadChallenge(resp)
	if err != nil {
		return nil, err
	}
	requirement, err := x402.Negotiate(body)
	if err != nil {
		log.Warn("payment negotiation failed", map[string]any{"url": url, "error": err})
		return nil, err
	}

	rec := attemptFrom(ctx)
	rec.id = x402.NewAttemptID()
	rec.requirement = requirement

	startTime := time.Now()
	t.emit(t.OnPaymentAttempt, x402.NewPaymentEvent(x402.PaymentEventAttempt, rec.id, url, requirement))
	t.count(metrics.PaymentAttempt, requirement.Network, "")
	log.Info("payment required", map[string]any{
		"attempt": rec.id,
		"url":     url,
		"network": requirement.Network,
		"amount":  requirement.MaxAmountRequired,
		"asset":   requirement.Asset,
		"payTo":   requirement.PayTo,
	})

	if t.Builder == nil {
		err := x402.NewPaymentError(x402.ErrCodeNoSignerAvailable, "no payment builder configured", nil)
		t.fail(rec, url, startTime, err)
		return nil, err
	}
	payment, err := t.Builder.CreatePayment(ctx, t.Session, requirement)
	if err != nil {
		t.fail(rec, url, startTime, err)
		return nil, err
	}

	paymentHeader, err := helpers.BuildPaymentHeader(payment)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodeMalformedSignature, "failed to build payment header", err)
		t.fail(rec, url, startTime, err)
		return nil, err
	}

	retry, err := cloneWithBody(req, getBody)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodeHTTPFailure, "failed to prepare paid request", err)
		t.fail(rec, url, startTime, err)
		return nil, err
	}
	retry.Header.Set(x402.HeaderPayment, paymentHeader)

	rec.paid = true
	respRetry, err := base.RoundTrip(retry)
	duration := time.Since(startTime)
	t.observe(requirement.Network, duration)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodeOutcomeUnknown, "paid request failed after payment was sent", err).
			WithDetails("url", url)
		t.fail(rec, url, startTime, err)
		return nil, err
	}

	rec.settlement = helpers.ParseSettlement(respRetry.Header.Get(x402.HeaderPaymentResponse))
	switch {
	case rec.settlement != nil && rec.settlement.Success:
		event := x402.NewPaymentEvent(x402.PaymentEventSuccess, rec.id, url, requirement)
		event.Transaction = rec.settlement.Transaction
		event.Payer = rec.settlement.Payer
		event.Duration = duration
		t.emit(t.OnPaymentSuccess, event)
		t.count(metrics.PaymentSuccess, requirement.Network, "")
		log.Info("payment settled", map[string]any{
			"attempt":     rec.id,
			"transaction": rec.settlement.Transaction,
			"status":      respRetry.StatusCode,
		})
	case rec.settlement != nil:
		reason := fmt.Errorf("settlement rejected: %s", rec.settlement.ErrorReason)
		event := x402.NewPaymentEvent(x402.PaymentEventFailure, rec.id, url, requirement)
		event.Error = reason
		event.Duration = duration
		t.emit(t.OnPaymentFailure, event)
		t.count(metrics.PaymentFailure, requirement.Network, rec.settlement.ErrorReason)
		log.Warn("payment not settled", map[string]any{
			"attempt": rec.id,
			"reason":  rec.settlement.ErrorReason,
			"status":  respRetry.StatusCode,
		})
	default:
		log.Info("paid request returned without settlement header", map[string]any{
			"attempt": rec.id,
			"status":  respRetry.StatusCode,
		})
	}

	return respRetry, nil
}

func (t *X402Transport) fail(rec *attempt, url string, startTime time.Time, err error) {
	event := x402.NewPaymentEvent(x402.PaymentEventFailure, rec.id, url, rec.requirement)
	event.Error = err
	event.Duration = time.Since(startTime)
	t.emit(t.OnPaymentFailure, event)

	network := ""
	if rec.requirement != nil {
		network = rec.requirement.Network
	}
	t.count(metrics.PaymentFailure, network, string(x402.CodeOf(err)))
	logger.OrNoop(t.Logger).Error("payment failed", map[string]any{"attempt": rec.id, "url": url, "error": err})
}

func (t *X402Transport) emit(cb x402.PaymentCallback, event x402.PaymentEvent) {
	if cb != nil {
		cb(event)
	}
}

func (t *X402Transport) count(name, network, code string) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.IncCounter(name, map[string]string{"network": network, "code": code})
}

func (t *X402Transport) observe(network string, d time.Duration) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.ObserveLatency(metrics.PaymentLatency, d, map[string]string{"network": network})
}

// replayableBody returns a function producing fresh copies of the request body.
// Bodies without GetBody are buffered once.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

func cloneWithBody(req *http.Request, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if getBody == nil {
		return clone, nil
	}
	body, err := getBody()
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	clone.Body = body
	clone.GetBody = getBody
	return clone, nil
}
