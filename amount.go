package x402

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAtomicAmount parses a maxAmountRequired string as a non-negative u64.
func ParseAtomicAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewPaymentError(ErrCodeInvalidAmount, "amount is empty", nil)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, NewPaymentError(ErrCodeInvalidAmount, fmt.Sprintf("invalid amount %q", s), err)
	}
	return v, nil
}

// FormatAmount renders an atomic amount in whole units, e.g. "1500000" with 6 decimals
// becomes "1.5".
func FormatAmount(atomic string, decimals uint8) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(atomic))
	if err != nil {
		return "", NewPaymentError(ErrCodeInvalidAmount, fmt.Sprintf("invalid amount %q", atomic), err)
	}
	return d.Shift(-int32(decimals)).String(), nil
}

// ParseAmount converts a human-readable amount into atomic units.
// Amounts with more fractional digits than decimals are rejected.
func ParseAmount(amount string, decimals uint8) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", NewPaymentError(ErrCodeInvalidAmount, fmt.Sprintf("invalid amount %q", amount), err)
	}
	if d.IsNegative() {
		return "", NewPaymentError(ErrCodeInvalidAmount, "amount must be non-negative", nil)
	}
	atomic := d.Shift(int32(decimals))
	if !atomic.Equal(atomic.Truncate(0)) {
		return "", NewPaymentError(ErrCodeInvalidAmount,
			fmt.Sprintf("amount %s has more than %d decimal places", amount, decimals), nil)
	}
	return atomic.String(), nil
}
