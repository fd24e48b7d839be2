package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/config"
	x402http "github.com/quantaliz/solaibot-sub000/http"
	"github.com/quantaliz/solaibot-sub000/logger"
)

type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }
func (h *headerFlags) Set(v string) error { *h = append(*h, v); return nil }

func runPay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration (environment variables X402_* override it)")
	method := fs.String("method", http.MethodGet, "HTTP method")
	data := fs.String("data", "", "Request body; prefix with @ to read a file")
	output := fs.String("o", "", "Write the response body to this file instead of stdout")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	var headers headerFlags
	fs.Var(&headers, "H", "Extra request header 'Name: value' (repeatable)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return exitError(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	zl, err := logger.NewZapLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	client, err := newClient(ctx, cfg, zl, printEvent)
	if err != nil {
		return err
	}

	body, err := requestBody(*data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(*method), fs.Arg(0), body)
	if err != nil {
		return err
	}
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	result, err := client.Pay(ctx, req)
	if err != nil {
		if code := x402.CodeOf(err); code != "" {
			fmt.Fprintf(os.Stderr, "payment error %s\n", code)
		}
		return err
	}

	printResult(result)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(result.Body); err != nil {
		return err
	}

	if result.StatusCode >= 400 {
		return exitError(3)
	}
	return nil
}

func requestBody(data string) (io.Reader, error) {
	switch {
	case data == "":
		return nil, nil
	case strings.HasPrefix(data, "@"):
		raw, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, err
		}
		return strings.NewReader(string(raw)), nil
	default:
		return strings.NewReader(data), nil
	}
}

func printEvent(e x402.PaymentEvent) {
	switch e.Type {
	case x402.PaymentEventAttempt:
		amount := e.Amount
		if e.Asset != "" {
			if chain, err := x402.GetChainConfig(e.Network); err == nil && chain.USDCAddress == e.Asset {
				if formatted, err := x402.FormatAmount(e.Amount, chain.Decimals); err == nil {
					amount = formatted + " USDC"
				}
			}
		} else if formatted, err := x402.FormatAmount(e.Amount, 9); err == nil {
			amount = formatted + " SOL"
		}
		fmt.Fprintf(os.Stderr, "paying %s to %s on %s\n", amount, e.Recipient, e.Network)
	case x402.PaymentEventSuccess:
		fmt.Fprintf(os.Stderr, "settled in %s (%s)\n", e.Transaction, e.Duration.Round(time.Millisecond))
	case x402.PaymentEventFailure:
		fmt.Fprintf(os.Stderr, "payment failed: %v\n", e.Error)
	}
}

func printResult(result *x402http.PaymentResult) {
	fmt.Fprintf(os.Stderr, "status %d, outcome %s\n", result.StatusCode, result.Outcome)
	if result.Settlement != nil {
		raw, _ := json.Marshal(result.Settlement)
		fmt.Fprintf(os.Stderr, "settlement %s\n", raw)
	}
}
