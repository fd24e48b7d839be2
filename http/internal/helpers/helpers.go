// Package helpers provides internal HTTP utilities shared by the x402 transport and middleware.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/encoding"
)

// MaxChallengeBodySize bounds how much of a 402 body is read during negotiation.
const MaxChallengeBodySize = 1 << 20

// ErrNilSettlement is returned when settlement is nil in AddPaymentResponseHeader.
var ErrNilSettlement = errors.New("settlement is nil")

// ErrNilPayment is returned when payment is nil in BuildPaymentHeader.
var ErrNilPayment = errors.New("payment is nil")

// ParsePaymentHeader extracts and decodes a PaymentPayload from the X-PAYMENT header.
func ParsePaymentHeader(r *http.Request) (*x402.PaymentPayload, error) {
	paymentHeader := r.Header.Get(x402.HeaderPayment)
	if paymentHeader == "" {
		return nil, x402.ErrMalformedHeader
	}

	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}

	if payment.X402Version != x402.X402Version {
		return nil, fmt.Errorf("%w: got %d", x402.ErrUnsupportedVersion, payment.X402Version)
	}
	if payment.Payload.Transaction == "" {
		return nil, fmt.Errorf("%w: missing transaction", x402.ErrMalformedHeader)
	}

	return &payment, nil
}

// SendPaymentRequired writes a 402 Payment Required response with the given requirements.
func SendPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirements, errMsg string) error {
	response := x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       errMsg,
		Accepts:     requirements,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("encoding PaymentRequired response: %w", err)
	}
	return nil
}

// AddPaymentResponseHeader adds the X-PAYMENT-RESPONSE header with settlement information.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettleResponse) error {
	if settlement == nil {
		return fmt.Errorf("AddPaymentResponseHeader: %w", ErrNilSettlement)
	}
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return fmt.Errorf("AddPaymentResponseHeader: encode settlement: %w", err)
	}
	w.Header().Set(x402.HeaderPaymentResponse, encoded)
	return nil
}

// ReadChallenge reads and closes the body of a 402 response.
func ReadChallenge(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, x402.NewPaymentError(x402.ErrCodePaymentNegotiationFailed, "missing response or body", nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxChallengeBodySize))
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodePaymentNegotiationFailed, "failed to read payment requirements", err)
	}
	return body, nil
}

// ParseSettlement decodes the X-PAYMENT-RESPONSE header value.
// Returns nil if the header is empty or cannot be parsed.
func ParseSettlement(headerValue string) *x402.SettleResponse {
	if headerValue == "" {
		return nil
	}

	settlement, err := encoding.DecodeSettlement(headerValue)
	if err != nil {
		return nil
	}

	return &settlement
}

// BuildPaymentHeader creates the X-PAYMENT header value from a PaymentPayload.
func BuildPaymentHeader(payment *x402.PaymentPayload) (string, error) {
	if payment == nil {
		return "", fmt.Errorf("BuildPaymentHeader: %w", ErrNilPayment)
	}
	encoded, err := encoding.EncodePayment(*payment)
	if err != nil {
		return "", fmt.Errorf("BuildPaymentHeader: encode payment: %w", err)
	}
	return encoded, nil
}

// BuildResourceURL constructs the full URL for the protected resource from the request.
// Absolute-form request targets, as sent to proxies, are returned as they are.
func BuildResourceURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
