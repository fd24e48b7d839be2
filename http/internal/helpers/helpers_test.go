package helpers

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/encoding"
)

func testPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "solana-devnet",
		Payload:     x402.SVMPayload{Transaction: "AQID"},
	}
}

func TestParsePaymentHeader(t *testing.T) {
	encoded, err := encoding.EncodePayment(testPayload())
	if err != nil {
		t.Fatalf("Failed to encode payment: %v", err)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-PAYMENT", encoded)

	parsed, err := ParsePaymentHeader(req)
	if err != nil {
		t.Fatalf("Failed to parse payment header: %v", err)
	}
	if parsed.Network != "solana-devnet" {
		t.Errorf("Expected network solana-devnet, got %s", parsed.Network)
	}
	if parsed.Payload.Transaction != "AQID" {
		t.Errorf("Expected transaction AQID, got %s", parsed.Payload.Transaction)
	}
}

func TestParsePaymentHeader_Errors(t *testing.T) {
	wrongVersion := testPayload()
	wrongVersion.X402Version = 2
	wrongVersionHeader, _ := encoding.EncodePayment(wrongVersion)

	noTx := testPayload()
	noTx.Payload.Transaction = ""
	noTxHeader, _ := encoding.EncodePayment(noTx)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", x402.ErrMalformedHeader},
		{"invalid base64", "not-valid-base64!!!", x402.ErrMalformedHeader},
		{"wrong version", wrongVersionHeader, x402.ErrUnsupportedVersion},
		{"no transaction", noTxHeader, x402.ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("X-PAYMENT", tt.header)
			}
			_, err := ParsePaymentHeader(req)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendPaymentRequired(t *testing.T) {
	w := httptest.NewRecorder()
	requirements := []x402.PaymentRequirements{{
		Scheme:            "exact",
		Network:           "solana-devnet",
		MaxAmountRequired: "10000",
		Asset:             "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		PayTo:             "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g",
		MaxTimeoutSeconds: 60,
	}}

	if err := SendPaymentRequired(w, requirements, "Payment required for access"); err != nil {
		t.Fatalf("SendPaymentRequired returned error: %v", err)
	}

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	var body x402.PaymentRequired
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.X402Version != 1 || body.Error != "Payment required for access" || len(body.Accepts) != 1 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestAddPaymentResponseHeader(t *testing.T) {
	w := httptest.NewRecorder()
	settlement := &x402.SettleResponse{Success: true, Transaction: "5sig", Network: "solana-devnet"}

	if err := AddPaymentResponseHeader(w, settlement); err != nil {
		t.Fatalf("AddPaymentResponseHeader returned error: %v", err)
	}

	parsed := ParseSettlement(w.Header().Get("X-PAYMENT-RESPONSE"))
	if parsed == nil || !parsed.Success || parsed.Transaction != "5sig" {
		t.Errorf("round trip = %+v", parsed)
	}

	if err := AddPaymentResponseHeader(w, nil); !errors.Is(err, ErrNilSettlement) {
		t.Errorf("Expected ErrNilSettlement, got %v", err)
	}
}

func TestReadChallenge(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(`{"x402Version":1}`))}
	body, err := ReadChallenge(resp)
	if err != nil || string(body) != `{"x402Version":1}` {
		t.Errorf("ReadChallenge() = %q, %v", body, err)
	}

	if _, err := ReadChallenge(&http.Response{}); !errors.Is(err, x402.ErrPaymentNegotiationFailed) {
		t.Errorf("Expected ErrPaymentNegotiationFailed, got %v", err)
	}
}

func TestParseSettlement_Invalid(t *testing.T) {
	if ParseSettlement("") != nil {
		t.Error("Expected nil for empty header")
	}
	if ParseSettlement("%%%") != nil {
		t.Error("Expected nil for undecodable header")
	}
}

func TestBuildPaymentHeader(t *testing.T) {
	payload := testPayload()
	header, err := BuildPaymentHeader(&payload)
	if err != nil {
		t.Fatalf("BuildPaymentHeader returned error: %v", err)
	}
	decoded, err := encoding.DecodePayment(header)
	if err != nil || decoded != payload {
		t.Errorf("decoded = %+v, %v", decoded, err)
	}

	if _, err := BuildPaymentHeader(nil); !errors.Is(err, ErrNilPayment) {
		t.Errorf("Expected ErrNilPayment, got %v", err)
	}
}

func TestBuildResourceURL(t *testing.T) {
	originForm := func(tlsState *tls.ConnectionState) *http.Request {
		req := httptest.NewRequest("GET", "/data?id=1", nil)
		req.Host = "api.example.com"
		req.TLS = tlsState
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{
			name: "absolute form",
			req:  httptest.NewRequest("GET", "http://api.example.com/data?id=1", nil),
			want: "http://api.example.com/data?id=1",
		},
		{
			name: "absolute form https",
			req:  httptest.NewRequest("GET", "https://api.example.com/data", nil),
			want: "https://api.example.com/data",
		},
		{
			name: "origin form",
			req:  originForm(nil),
			want: "http://api.example.com/data?id=1",
		},
		{
			name: "origin form over tls",
			req:  originForm(&tls.ConnectionState{}),
			want: "https://api.example.com/data?id=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildResourceURL(tt.req); got != tt.want {
				t.Errorf("BuildResourceURL() = %s, want %s", got, tt.want)
			}
		})
	}
}
