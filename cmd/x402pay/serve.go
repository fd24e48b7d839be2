package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	x402 "github.com/quantaliz/solaibot-sub000"
	x402http "github.com/quantaliz/solaibot-sub000/http"
	"github.com/quantaliz/solaibot-sub000/logger"
	"github.com/quantaliz/solaibot-sub000/validation"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8402", "Listen address")
	network := fs.String("network", x402.NetworkSolanaDev, "Network to accept payments on")
	payTo := fs.String("pay-to", "", "Address to receive payments (required)")
	asset := fs.String("asset", "", "Mint address (default: the network's USDC; 'SOL' for lamports)")
	amount := fs.String("amount", "1000", "Payment amount in atomic units")
	feePayer := fs.String("fee-payer", "", "Facilitator fee payer (default: fetched from /supported)")
	facilitatorURL := fs.String("facilitator", "https://facilitator.payai.network", "Facilitator URL")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	_ = fs.Parse(args)

	if *payTo == "" {
		fs.Usage()
		return errors.New("-pay-to is required")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	zl, err := logger.NewZapLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	chain, err := x402.GetChainConfig(*network)
	if err != nil {
		return err
	}
	if *asset == "" {
		*asset = chain.USDCAddress
	}

	requirement := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           *network,
		MaxAmountRequired: *amount,
		Asset:             *asset,
		PayTo:             *payTo,
		MimeType:          "application/json",
		MaxTimeoutSeconds: 60,
	}
	if *feePayer != "" {
		requirement.Extra = map[string]interface{}{"feePayer": *feePayer}
	}
	if err := validation.ValidateAmount(requirement.MaxAmountRequired); err != nil {
		return err
	}
	if err := validation.ValidateAddress(requirement.PayTo); err != nil {
		return err
	}

	paywall := x402http.NewX402Middleware(x402http.Config{
		FacilitatorURL:      *facilitatorURL,
		PaymentRequirements: []x402.PaymentRequirements{requirement},
		Logger:              zl,
	})

	mux := http.NewServeMux()
	mux.Handle("/report", paywall(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payer := ""
		if p := x402http.GetPaymentFromContext(r.Context()); p != nil {
			payer = p.Payer
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"report":"paid content","payer":%q}`+"\n", payer)
	})))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: *listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zl.Info("serving paywalled endpoint", map[string]any{"listen": *listen, "path": "/report", "network": *network})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
