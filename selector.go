package x402

import (
	"encoding/json"
	"strings"
)

// ParsePaymentRequired decodes the body of a 402 response.
// Any decoding failure is reported as ErrCodePaymentNegotiationFailed.
func ParsePaymentRequired(body []byte) (*PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, NewPaymentError(ErrCodePaymentNegotiationFailed, "failed to parse payment requirements", err)
	}
	return &required, nil
}

// SelectRequirement picks the requirement to pay from the accepts list.
//
// The first entry using the exact scheme on a supported Solana network wins. If there
// is none, the first entry is returned as-is and the builder decides whether it can be
// paid. An empty list fails with ErrCodeNoCompatiblePaymentMethod.
//
// The returned pointer refers to a copy; the input is never modified.
func SelectRequirement(accepts []PaymentRequirements) (*PaymentRequirements, error) {
	if len(accepts) == 0 {
		return nil, NewPaymentError(ErrCodeNoCompatiblePaymentMethod, "server offered no payment options", nil)
	}

	for i := range accepts {
		if strings.EqualFold(accepts[i].Scheme, SchemeExact) && IsSupportedNetwork(accepts[i].Network) {
			selected := accepts[i]
			return &selected, nil
		}
	}

	selected := accepts[0]
	return &selected, nil
}

// Negotiate parses a 402 body and selects a requirement from it.
// Failures of either step are reported as ErrCodePaymentNegotiationFailed; the cause
// (for example ErrNoCompatiblePaymentMethod) stays reachable through errors.Is.
func Negotiate(body []byte) (*PaymentRequirements, error) {
	required, err := ParsePaymentRequired(body)
	if err != nil {
		return nil, err
	}
	selected, err := SelectRequirement(required.Accepts)
	if err != nil {
		return nil, NewPaymentError(ErrCodePaymentNegotiationFailed, "no payable requirement", err).
			WithDetails("error", required.Error)
	}
	return selected, nil
}

// FindMatchingRequirement finds a payment requirement that matches the given payment's scheme and network.
// Returns a pointer to the matching requirement, or an error if no match is found.
//
// Resource servers use it to check an incoming X-PAYMENT against what they advertised.
func FindMatchingRequirement(payment *PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, error) {
	for i := range requirements {
		req := &requirements[i]
		if req.Network == payment.Network && req.Scheme == payment.Scheme {
			return req, nil
		}
	}
	return nil, NewPaymentError(
		ErrCodeNoCompatiblePaymentMethod,
		"no matching requirement for network and scheme",
		nil,
	).WithDetails("network", payment.Network).WithDetails("scheme", payment.Scheme)
}
