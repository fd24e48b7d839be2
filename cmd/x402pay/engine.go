package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/config"
	x402http "github.com/quantaliz/solaibot-sub000/http"
	"github.com/quantaliz/solaibot-sub000/logger"
	"github.com/quantaliz/solaibot-sub000/metrics"
	"github.com/quantaliz/solaibot-sub000/signers/keypair"
	"github.com/quantaliz/solaibot-sub000/signers/remote"
	"github.com/quantaliz/solaibot-sub000/svm"
	"github.com/quantaliz/solaibot-sub000/validation"
)

// validatingBuilder rejects requirements that fail validation before any ledger read.
type validatingBuilder struct {
	next x402.PaymentBuilder
}

func (b validatingBuilder) CreatePayment(ctx context.Context, session *x402.Session, req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	if err := validation.ValidatePaymentRequirements(*req); err != nil {
		return nil, err
	}
	return b.next.CreatePayment(ctx, session, req)
}

// newSession builds the wallet and external signer described by cfg.
func newSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*x402.Session, error) {
	switch cfg.Signer.Type {
	case config.SignerKeypair:
		var (
			signer *keypair.Signer
			err    error
		)
		if cfg.Signer.PrivateKey != "" {
			signer, err = keypair.FromBase58(cfg.Signer.PrivateKey)
		} else {
			signer, err = keypair.FromKeygenFile(cfg.Signer.KeypairPath)
		}
		if err != nil {
			return nil, err
		}
		log.Info("using local keypair", map[string]any{"account": signer.Address().String()})
		return signer.Session(), nil

	case config.SignerRemote:
		opts := []remote.Option{remote.WithLogger(log)}
		if cfg.Signer.Authorization != "" {
			opts = append(opts, remote.WithAuthorization(cfg.Signer.Authorization))
		}
		if cfg.Signer.Account != "" {
			opts = append(opts, remote.WithAccount(cfg.Signer.Account))
		}
		client, err := remote.New(cfg.Signer.RemoteURL, opts...)
		if err != nil {
			return nil, err
		}
		if cfg.Signer.Account == "" {
			if _, err := client.Refresh(ctx); err != nil {
				return nil, err
			}
		}
		account, _ := client.ConnectedAccount()
		log.Info("using remote signer", map[string]any{"account": account, "url": cfg.Signer.RemoteURL})
		return x402.NewSession(client, client), nil
	}
	return nil, fmt.Errorf("unknown signer type %q", cfg.Signer.Type)
}

// newPaymentBuilder wires ledger, probe, builder and coordinator for cfg.
func newPaymentBuilder(cfg *config.Config, timeouts x402.TimeoutConfig, log logger.Logger) (x402.PaymentBuilder, error) {
	endpoint, err := cfg.RPCEndpoint()
	if err != nil {
		return nil, err
	}
	ledger, err := svm.NewRPCLedger(endpoint, svm.WithLedgerTimeouts(timeouts))
	if err != nil {
		return nil, err
	}

	builderOpts := []svm.BuilderOption{
		svm.WithComputeUnitPrice(cfg.ComputeUnitPrice),
		svm.WithLogger(log),
	}
	if !cfg.SkipProbe {
		probe, err := svm.NewDialProbe(endpoint, timeouts.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid rpc url: %w", err)
		}
		builderOpts = append(builderOpts, svm.WithProbe(probe))
	}
	builder, err := svm.NewBuilder(ledger, builderOpts...)
	if err != nil {
		return nil, err
	}

	coordOpts := []svm.CoordinatorOption{svm.WithCoordinatorLogger(log)}
	if cfg.VerifySignatures {
		coordOpts = append(coordOpts, svm.WithSignatureVerification())
	}
	coordinator, err := svm.NewCoordinator(coordOpts...)
	if err != nil {
		return nil, err
	}

	payer, err := svm.NewPayer(builder, coordinator)
	if err != nil {
		return nil, err
	}
	return validatingBuilder{next: payer}, nil
}

// newRecorder returns a Prometheus recorder served on listen, or a no-op recorder.
func newRecorder(ctx context.Context, listen string, log logger.Logger) (metrics.Recorder, error) {
	if listen == "" {
		return metrics.NoopRecorder{}, nil
	}
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", map[string]any{"error": err})
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Info("serving metrics", map[string]any{"listen": listen})
	return recorder, nil
}

// newClient assembles the paying HTTP client for cfg.
func newClient(ctx context.Context, cfg *config.Config, log logger.Logger, events func(x402.PaymentEvent)) (*x402http.Client, error) {
	timeouts, err := cfg.TimeoutConfig()
	if err != nil {
		return nil, err
	}
	session, err := newSession(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	builder, err := newPaymentBuilder(cfg, timeouts, log)
	if err != nil {
		return nil, err
	}
	recorder, err := newRecorder(ctx, cfg.Metrics.Listen, log)
	if err != nil {
		return nil, err
	}

	return x402http.NewClient(
		x402http.WithTimeouts(timeouts),
		x402http.WithPaymentBuilder(builder),
		x402http.WithSession(session),
		x402http.WithLogger(log),
		x402http.WithMetrics(recorder),
		x402http.WithPaymentCallbacks(events, events, events),
	)
}
