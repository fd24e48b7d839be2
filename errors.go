package x402

import "errors"

// Sentinel errors for payment attempts. Every *PaymentError matches the sentinel of its
// own Code through errors.Is, so callers can test either form.
var (
	// ErrNoNetwork indicates the device had no connectivity when the attempt started.
	ErrNoNetwork = errors.New("x402: no network connectivity")

	// ErrLedgerUnavailable indicates the ledger RPC timed out or could not be reached.
	ErrLedgerUnavailable = errors.New("x402: ledger unavailable")

	// ErrNoSignerConnected indicates no wallet account is connected.
	ErrNoSignerConnected = errors.New("x402: no wallet account connected")

	// ErrMalformedRequirement indicates the selected requirement cannot be paid as given.
	ErrMalformedRequirement = errors.New("x402: malformed payment requirement")

	// ErrInvalidAmount indicates an invalid amount string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInsufficientFunds indicates the payer's balance is below the required amount.
	ErrInsufficientFunds = errors.New("x402: insufficient funds")

	// ErrLedgerReadFailed indicates a required account was missing or unreadable.
	ErrLedgerReadFailed = errors.New("x402: ledger read failed")

	// ErrNoSignerAvailable indicates the external signer could not be reached.
	ErrNoSignerAvailable = errors.New("x402: external signer unavailable")

	// ErrSigningCancelled indicates the user declined or the interaction was cancelled.
	ErrSigningCancelled = errors.New("x402: signing cancelled")

	// ErrMalformedSignature indicates the signer returned a missing or mis-sized signature.
	ErrMalformedSignature = errors.New("x402: malformed signature")

	// ErrPaymentNegotiationFailed indicates the 402 response could not be negotiated.
	ErrPaymentNegotiationFailed = errors.New("x402: payment negotiation failed")

	// ErrNoCompatiblePaymentMethod indicates the 402 response listed no payment options.
	ErrNoCompatiblePaymentMethod = errors.New("x402: no compatible payment method")

	// ErrHTTPFailure indicates a transport error before any payment was sent.
	ErrHTTPFailure = errors.New("x402: http request failed")

	// ErrOutcomeUnknown indicates the paid request was sent but its result was lost.
	// The payment may or may not have been settled.
	ErrOutcomeUnknown = errors.New("x402: payment sent, outcome unknown")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrInvalidNetwork indicates an unsupported network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// Connectivity
	ErrCodeNoNetwork         ErrorCode = "NO_NETWORK"
	ErrCodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"

	// Preconditions
	ErrCodeNoSignerConnected    ErrorCode = "NO_SIGNER_CONNECTED"
	ErrCodeMalformedRequirement ErrorCode = "MALFORMED_REQUIREMENT"
	ErrCodeInvalidAmount        ErrorCode = "INVALID_AMOUNT"

	// Ledger state
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeLedgerReadFailed  ErrorCode = "LEDGER_READ_FAILED"

	// Signing
	ErrCodeNoSignerAvailable  ErrorCode = "NO_SIGNER_AVAILABLE"
	ErrCodeSigningCancelled   ErrorCode = "SIGNING_CANCELLED"
	ErrCodeMalformedSignature ErrorCode = "MALFORMED_SIGNATURE"

	// Protocol
	ErrCodePaymentNegotiationFailed  ErrorCode = "PAYMENT_NEGOTIATION_FAILED"
	ErrCodeNoCompatiblePaymentMethod ErrorCode = "NO_COMPATIBLE_PAYMENT_METHOD"

	// Transport
	ErrCodeHTTPFailure    ErrorCode = "HTTP_FAILURE"
	ErrCodeOutcomeUnknown ErrorCode = "OUTCOME_UNKNOWN"
)

var sentinelByCode = map[ErrorCode]error{
	ErrCodeNoNetwork:                 ErrNoNetwork,
	ErrCodeLedgerUnavailable:         ErrLedgerUnavailable,
	ErrCodeNoSignerConnected:         ErrNoSignerConnected,
	ErrCodeMalformedRequirement:      ErrMalformedRequirement,
	ErrCodeInvalidAmount:             ErrInvalidAmount,
	ErrCodeInsufficientFunds:         ErrInsufficientFunds,
	ErrCodeLedgerReadFailed:          ErrLedgerReadFailed,
	ErrCodeNoSignerAvailable:         ErrNoSignerAvailable,
	ErrCodeSigningCancelled:          ErrSigningCancelled,
	ErrCodeMalformedSignature:        ErrMalformedSignature,
	ErrCodePaymentNegotiationFailed:  ErrPaymentNegotiationFailed,
	ErrCodeNoCompatiblePaymentMethod: ErrNoCompatiblePaymentMethod,
	ErrCodeHTTPFailure:               ErrHTTPFailure,
	ErrCodeOutcomeUnknown:            ErrOutcomeUnknown,
}

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error for e.Code.
func (e *PaymentError) Is(target error) bool {
	sentinel, ok := sentinelByCode[e.Code]
	return ok && sentinel == target
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the outermost PaymentError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
