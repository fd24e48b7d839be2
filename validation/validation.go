// Package validation checks x402 payment data before it is paid or advertised.
// Struct tags are enforced with go-playground/validator; the Solana-specific rules
// (base58 addresses, atomic amounts, cluster names) are registered as custom tags.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	x402 "github.com/quantaliz/solaibot-sub000"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("solana_address", func(fl validator.FieldLevel) bool {
		return ValidateAddress(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("x402_network", func(fl validator.FieldLevel) bool {
		return x402.ValidateNetwork(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("atomic_amount", func(fl validator.FieldLevel) bool {
		return ValidateAmount(fl.Field().String()) == nil
	})
	return v
}

// Struct validates any struct against its validate tags, including the custom tags
// solana_address, x402_network and atomic_amount.
func Struct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateAmount validates that an amount string is a valid non-negative u64.
func ValidateAmount(amount string) error {
	_, err := x402.ParseAtomicAmount(amount)
	return err
}

// ValidateAddress validates a base58 Solana address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid Solana address %q: %w", address, err)
	}
	return nil
}

// ValidatePaymentRequirements performs comprehensive validation of payment requirements.
//
// A failing amount is reported as ErrCodeInvalidAmount; anything else is
// ErrCodeMalformedRequirement with the offending field in Details.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	if err := validate.Struct(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			field := fieldErrs[0].Field()
			if field == "MaxAmountRequired" {
				return x402.NewPaymentError(x402.ErrCodeInvalidAmount, "invalid maxAmountRequired", err)
			}
			return malformed(field, err)
		}
		return malformed("", err)
	}

	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return err
	}

	if !strings.EqualFold(req.Scheme, x402.SchemeExact) {
		return malformed("scheme", fmt.Errorf("unsupported scheme %s", req.Scheme))
	}

	if err := x402.ValidateNetwork(req.Network); err != nil {
		return malformed("network", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return malformed("payTo", err)
	}

	if !req.IsNativeAsset() {
		if err := ValidateAddress(req.Asset); err != nil {
			return malformed("asset", err)
		}
	}

	feePayer, ok := req.FeePayer()
	if !ok {
		return malformed("extra.feePayer", errors.New("feePayer is required"))
	}
	if err := ValidateAddress(feePayer); err != nil {
		return malformed("extra.feePayer", err)
	}

	return nil
}

func malformed(field string, err error) error {
	pe := x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "invalid payment requirement", err)
	if field != "" {
		pe = pe.WithDetails("field", field)
	}
	return pe
}
