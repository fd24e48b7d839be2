package x402

import (
	"errors"
	"reflect"
	"testing"
)

const (
	testPayTo    = "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g"
	testFeePayer = "EwWqGE4ZFKLofuestmU4LDdK7XM1N4ALgdZccwYugwGd"
)

func TestParsePaymentRequired(t *testing.T) {
	body := []byte(`{
		"x402Version": 1,
		"error": "X-PAYMENT header is required",
		"accepts": [{
			"scheme": "exact",
			"network": "solana-devnet",
			"maxAmountRequired": "1000",
			"resource": "https://api.example.com/premium",
			"description": "Premium data",
			"mimeType": "application/json",
			"payTo": "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g",
			"maxTimeoutSeconds": 60,
			"asset": "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			"extra": {"feePayer": "EwWqGE4ZFKLofuestmU4LDdK7XM1N4ALgdZccwYugwGd"}
		}]
	}`)

	required, err := ParsePaymentRequired(body)
	if err != nil {
		t.Fatalf("ParsePaymentRequired() error = %v", err)
	}
	if required.X402Version != 1 {
		t.Errorf("X402Version = %d, want 1", required.X402Version)
	}
	if len(required.Accepts) != 1 {
		t.Fatalf("len(Accepts) = %d, want 1", len(required.Accepts))
	}
	feePayer, ok := required.Accepts[0].FeePayer()
	if !ok || feePayer != testFeePayer {
		t.Errorf("FeePayer() = %q, %v", feePayer, ok)
	}
}

func TestParsePaymentRequired_Malformed(t *testing.T) {
	_, err := ParsePaymentRequired([]byte(`{"accepts": [`))
	if !errors.Is(err, ErrPaymentNegotiationFailed) {
		t.Fatalf("error = %v, want ErrPaymentNegotiationFailed", err)
	}
	if CodeOf(err) != ErrCodePaymentNegotiationFailed {
		t.Errorf("CodeOf() = %s", CodeOf(err))
	}
}

func TestSelectRequirement(t *testing.T) {
	evm := PaymentRequirements{Scheme: "exact", Network: "base-sepolia", MaxAmountRequired: "1", PayTo: "0xabc"}
	upto := PaymentRequirements{Scheme: "upto", Network: "solana", MaxAmountRequired: "2", PayTo: testPayTo}
	sol := PaymentRequirements{Scheme: "exact", Network: "solana-devnet", MaxAmountRequired: "3", PayTo: testPayTo}
	caip := PaymentRequirements{Scheme: "exact", Network: NetworkSolanaMainnet, MaxAmountRequired: "4", PayTo: testPayTo}

	tests := []struct {
		name    string
		accepts []PaymentRequirements
		want    string
		wantErr error
	}{
		{name: "empty", accepts: nil, wantErr: ErrNoCompatiblePaymentMethod},
		{name: "first solana exact wins", accepts: []PaymentRequirements{evm, upto, sol, caip}, want: "3"},
		{name: "caip-2 network", accepts: []PaymentRequirements{evm, caip}, want: "4"},
		{name: "fallback to first", accepts: []PaymentRequirements{evm, upto}, want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectRequirement(tt.accepts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.MaxAmountRequired != tt.want {
				t.Errorf("selected amount %s, want %s", got.MaxAmountRequired, tt.want)
			}
		})
	}
}

func TestSelectRequirement_Idempotent(t *testing.T) {
	accepts := []PaymentRequirements{
		{Scheme: "exact", Network: "base", MaxAmountRequired: "1"},
		{Scheme: "exact", Network: "solana", MaxAmountRequired: "2", Extra: map[string]interface{}{"feePayer": testFeePayer}},
	}
	snapshot := make([]PaymentRequirements, len(accepts))
	copy(snapshot, accepts)

	first, err := SelectRequirement(accepts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := SelectRequirement(accepts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("selection differs between calls: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(accepts, snapshot) {
		t.Error("SelectRequirement modified its input")
	}
}

func TestNegotiate(t *testing.T) {
	t.Run("no accepts", func(t *testing.T) {
		_, err := Negotiate([]byte(`{"x402Version":1,"accepts":[]}`))
		if !errors.Is(err, ErrPaymentNegotiationFailed) {
			t.Errorf("error = %v, want ErrPaymentNegotiationFailed", err)
		}
		if !errors.Is(err, ErrNoCompatiblePaymentMethod) {
			t.Errorf("error = %v, want wrapped ErrNoCompatiblePaymentMethod", err)
		}
	})

	t.Run("selects solana", func(t *testing.T) {
		req, err := Negotiate([]byte(`{"x402Version":1,"accepts":[{"scheme":"exact","network":"solana","maxAmountRequired":"5","payTo":"` + testPayTo + `"}]}`))
		if err != nil {
			t.Fatal(err)
		}
		if req.Network != "solana" || req.MaxAmountRequired != "5" {
			t.Errorf("unexpected requirement %+v", req)
		}
	})
}

func TestFindMatchingRequirement(t *testing.T) {
	requirements := []PaymentRequirements{
		{Scheme: "exact", Network: "solana-devnet", PayTo: "a"},
		{Scheme: "exact", Network: "solana", PayTo: "b"},
	}

	got, err := FindMatchingRequirement(&PaymentPayload{Scheme: "exact", Network: "solana"}, requirements)
	if err != nil {
		t.Fatal(err)
	}
	if got.PayTo != "b" {
		t.Errorf("PayTo = %s, want b", got.PayTo)
	}

	_, err = FindMatchingRequirement(&PaymentPayload{Scheme: "exact", Network: "base"}, requirements)
	var pe *PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want PaymentError", err)
	}
	if pe.Details["network"] != "base" {
		t.Errorf("Details[network] = %v", pe.Details["network"])
	}
}

func TestIsNativeAsset(t *testing.T) {
	for _, asset := range []string{"", "SOL", "native", NativeAssetSentinel} {
		r := PaymentRequirements{Asset: asset}
		if !r.IsNativeAsset() {
			t.Errorf("IsNativeAsset(%q) = false", asset)
		}
	}
	r := PaymentRequirements{Asset: SolanaDevnet.USDCAddress}
	if r.IsNativeAsset() {
		t.Error("USDC mint reported as native")
	}
}
