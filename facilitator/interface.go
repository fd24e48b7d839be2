// Package facilitator defines the contract for x402 payment facilitators.
//
// A facilitator verifies the partially signed transaction carried in an X-PAYMENT
// header, co-signs it as fee payer and submits it to the ledger.
package facilitator

import (
	"context"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// Interface defines the standard facilitator contract for payment verification and settlement.
type Interface interface {
	// Verify checks a payment without submitting it.
	Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)

	// Settle submits a verified payment. A settlement that the facilitator
	// rejected is reported through SettleResponse.Success, not as an error.
	Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)

	// Supported lists the scheme and network pairs the facilitator handles.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)
}

// Request is the body of POST /verify and POST /settle.
//
// PaymentHeader is the X-PAYMENT value exactly as the client sent it. PaymentPayload
// carries the same data decoded, for facilitators that read the structured form.
type Request struct {
	X402Version         int                      `json:"x402Version"`
	PaymentHeader       string                   `json:"paymentHeader"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// VerifyRequest is the request payload sent to POST /verify.
type VerifyRequest = Request

// SettleRequest is the request payload sent to POST /settle.
type SettleRequest = Request
