package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/encoding"
	x402http "github.com/quantaliz/solaibot-sub000/http"
	"github.com/quantaliz/solaibot-sub000/svm"
)

type inspection struct {
	Payment     *x402.PaymentPayload    `json:"payment,omitempty"`
	Transaction *svm.TransactionSummary `json:"transaction"`
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return exitError(2)
	}

	out, err := inspect(fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(out)
}

// inspect accepts either an X-PAYMENT header value or a bare base64 transaction.
func inspect(value string) (*inspection, error) {
	var out inspection
	txBase64 := value
	if payment, err := encoding.DecodePayment(value); err == nil && payment.Payload.Transaction != "" {
		out.Payment = &payment
		txBase64 = payment.Payload.Transaction
	}
	summary, err := svm.Inspect(txBase64)
	if err != nil {
		return nil, err
	}
	out.Transaction = summary
	return &out, nil
}

func runSupported(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("supported", flag.ExitOnError)
	url := fs.String("facilitator", "https://facilitator.payai.network", "Facilitator URL")
	auth := fs.String("authorization", os.Getenv("X402_FACILITATOR_AUTHORIZATION"), "Authorization header value")
	_ = fs.Parse(args)

	client := &x402http.FacilitatorClient{
		BaseURL:       *url,
		Client:        &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
		Timeouts:      x402.DefaultTimeouts,
		Authorization: *auth,
	}
	supported, err := client.Supported(ctx)
	if err != nil {
		return err
	}
	return printJSON(supported)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
