// Package encoding provides utilities for encoding and decoding x402 payment data.
// It handles base64 and JSON marshaling for payment payloads, settlements, and requirements.
//
// Encoded values are compact JSON in the standard base64 alphabet. Decoding is lenient:
// surrounding or embedded whitespace is ignored, and URL-safe or unpadded base64 is accepted.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// ErrInvalidBase64 is returned when a value is not base64 in any accepted alphabet.
var ErrInvalidBase64 = errors.New("encoding: invalid base64")

var decoders = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// EncodePayment converts a PaymentPayload to base64-encoded JSON string.
// This is used for HTTP X-PAYMENT headers.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode("payment", payment)
}

// DecodePayment converts a base64-encoded JSON string to PaymentPayload.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	err := decode("payment", encoded, &payment)
	return payment, err
}

// EncodeSettlement converts a SettleResponse to base64-encoded JSON string.
// This is used for HTTP X-PAYMENT-RESPONSE headers.
func EncodeSettlement(settlement x402.SettleResponse) (string, error) {
	return encode("settlement", settlement)
}

// DecodeSettlement converts a base64-encoded JSON string to SettleResponse.
func DecodeSettlement(encoded string) (x402.SettleResponse, error) {
	var settlement x402.SettleResponse
	err := decode("settlement", encoded, &settlement)
	return settlement, err
}

// EncodeRequirements converts PaymentRequired to base64-encoded JSON.
func EncodeRequirements(requirements x402.PaymentRequired) (string, error) {
	return encode("requirements", requirements)
}

// DecodeRequirements converts base64-encoded JSON to PaymentRequired.
func DecodeRequirements(encoded string) (x402.PaymentRequired, error) {
	var requirements x402.PaymentRequired
	err := decode("requirements", encoded, &requirements)
	return requirements, err
}

// EncodeVerifyResponse converts a VerifyResponse to base64-encoded JSON string.
func EncodeVerifyResponse(response x402.VerifyResponse) (string, error) {
	return encode("verify response", response)
}

// DecodeVerifyResponse converts a base64-encoded JSON string to VerifyResponse.
func DecodeVerifyResponse(encoded string) (x402.VerifyResponse, error) {
	var response x402.VerifyResponse
	err := decode("verify response", encoded, &response)
	return response, err
}

// DecodeBase64 decodes s in any of the accepted base64 alphabets after removing whitespace.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidBase64)
	}
	var lastErr error
	for _, enc := range decoders {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, lastErr)
}

func encode(kind string, v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return base64.StdEncoding.EncodeToString(stripControl(raw)), nil
}

func decode(kind, encoded string, v interface{}) error {
	raw, err := DecodeBase64(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	if err := json.Unmarshal(stripControl(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return nil
}

// stripControl removes raw ASCII control characters. Header values must not carry them
// and encoding/json already escapes any that appear inside strings.
func stripControl(b []byte) []byte {
	if bytes.IndexFunc(b, isControl) < 0 {
		return b
	}
	return bytes.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, b)
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
