// Package x402 implements the payer side of the x402 payment protocol for Solana.
//
// A client that receives an HTTP 402 "Payment Required" challenge selects one of the
// advertised payment requirements, builds a Solana transfer whose fee is sponsored by
// the facilitator, has the connected wallet sign the message bytes, and retries the
// request with an X-PAYMENT header. The facilitator co-signs as fee payer, submits the
// transaction and reports the outcome in the X-PAYMENT-RESPONSE header.
//
// Import path: github.com/quantaliz/solaibot-sub000
package x402

// Protocol version constant
const X402Version = 1

// SchemeExact is the only payment scheme supported by this package.
const SchemeExact = "exact"

// Header names used by the protocol.
const (
	// HeaderPayment carries the base64 PaymentPayload on the retried request.
	HeaderPayment = "X-PAYMENT"

	// HeaderPaymentResponse carries the base64 SettleResponse on the paid response.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// PaymentRequirements defines a single acceptable payment option.
// This is an element in the "accepts" array of PaymentRequired.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network is the network identifier (e.g., "solana-devnet").
	Network string `json:"network" validate:"required"`

	// MaxAmountRequired is the amount in atomic units of the asset (lamports for SOL).
	// Represented as a decimal string.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,numeric"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// OutputSchema is the optional schema of the resource response.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo" validate:"required"`

	// MaxTimeoutSeconds is the validity period for the payment.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gte=0"`

	// Asset is the mint address, or empty for the native coin.
	Asset string `json:"asset"`

	// Extra contains scheme-specific additional data.
	// For exact on Solana it carries the facilitator's "feePayer" address.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// FeePayer returns the fee payer address advertised in Extra, if any.
func (r *PaymentRequirements) FeePayer() (string, bool) {
	if r == nil || r.Extra == nil {
		return "", false
	}
	feePayer, ok := r.Extra["feePayer"].(string)
	if !ok || feePayer == "" {
		return "", false
	}
	return feePayer, true
}

// IsNativeAsset reports whether the requirement asks for the native coin rather than a token.
func (r *PaymentRequirements) IsNativeAsset() bool {
	switch r.Asset {
	case "", "SOL", "sol", "native", NativeAssetSentinel:
		return true
	}
	return false
}

// NativeAssetSentinel is the system program address, used by some servers to denote SOL.
const NativeAssetSentinel = "11111111111111111111111111111111"

// PaymentRequired is the 402 response body sent by resource servers.
type PaymentRequired struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is sent by clients in the X-PAYMENT header.
type PaymentPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme of the selected requirement.
	Scheme string `json:"scheme"`

	// Network is the network of the selected requirement.
	Network string `json:"network"`

	// Payload contains the scheme-specific signed payment data.
	Payload SVMPayload `json:"payload"`
}

// SVMPayload contains a partially signed Solana transaction.
type SVMPayload struct {
	// Transaction is the base64-encoded partially signed transaction.
	// The payer's signature is present; the fee payer slot is left for the facilitator.
	Transaction string `json:"transaction"`
}

// VerifyResponse is returned by the facilitator /verify endpoint.
type VerifyResponse struct {
	// IsValid indicates whether the payment is valid.
	IsValid bool `json:"isValid"`

	// InvalidReason provides a short error code if the payment is invalid.
	InvalidReason string `json:"invalidReason,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator /settle endpoint and, base64 encoded,
// in the X-PAYMENT-RESPONSE header.
type SettleResponse struct {
	// Success indicates whether the payment was settled.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the on-chain transaction signature.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network where the payment was settled.
	Network string `json:"network,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SupportedKind describes a payment type supported by a facilitator.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is returned by the facilitator /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
