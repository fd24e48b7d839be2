package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"

	x402 "github.com/quantaliz/solaibot-sub000"
	"github.com/quantaliz/solaibot-sub000/facilitator"
	"github.com/quantaliz/solaibot-sub000/http/internal/helpers"
	"github.com/quantaliz/solaibot-sub000/logger"
)

// Config holds the configuration for the x402 middleware.
type Config struct {
	// FacilitatorURL is the primary facilitator endpoint.
	FacilitatorURL string

	// FallbackFacilitatorURL is the optional backup facilitator. It is only used to
	// verify payments when the primary is unreachable.
	FallbackFacilitatorURL string

	// Facilitator overrides the HTTP facilitator built from FacilitatorURL.
	Facilitator facilitator.Interface

	// PaymentRequirements defines the accepted payment methods.
	PaymentRequirements []x402.PaymentRequirements

	// VerifyOnly skips settlement if true (only verifies payments).
	VerifyOnly bool

	// FacilitatorAuthorization is a static Authorization header value for the facilitators.
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider returns the Authorization header value per request.
	// If set, this takes precedence over FacilitatorAuthorization.
	FacilitatorAuthorizationProvider AuthorizationProvider

	// Logger receives request-level logs. Defaults to a no-op logger.
	Logger logger.Logger
}

type contextKey string

// PaymentContextKey is the context key for storing verified payment information.
const PaymentContextKey = contextKey("x402_payment")

// NewX402Middleware creates a payment-gating middleware.
//
// Requests without X-PAYMENT get a 402 listing the requirements. Paid requests are
// verified with the facilitator, the handler runs, and the payment is settled just
// before the handler's first successful write. A rejected settlement is answered with
// 402 and an X-PAYMENT-RESPONSE header carrying success=false and the reason.
func NewX402Middleware(config Config) func(http.Handler) http.Handler {
	log := logger.OrNoop(config.Logger)

	primary := config.Facilitator
	var enricher *FacilitatorClient
	if primary == nil {
		client := newFacilitatorClient(config.FacilitatorURL, config)
		primary, enricher = client, client
	}

	var fallback facilitator.Interface
	if config.FallbackFacilitatorURL != "" {
		fallback = newFacilitatorClient(config.FallbackFacilitatorURL, config)
	}

	requirements := config.PaymentRequirements
	if enricher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), x402.DefaultTimeouts.VerifyTimeout)
		enriched, err := enricher.EnrichRequirements(ctx, requirements)
		cancel()
		if err != nil {
			log.Warn("failed to enrich payment requirements from facilitator", map[string]any{"error": err})
		} else {
			requirements = enriched
			log.Info("payment requirements enriched from facilitator", map[string]any{"count": len(requirements)})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accepts := withResource(requirements, helpers.BuildResourceURL(r), r.URL.Path)

			if r.Header.Get(x402.HeaderPayment) == "" {
				log.Info("no payment header provided", map[string]any{"path": r.URL.Path})
				if err := helpers.SendPaymentRequired(w, accepts, "X-PAYMENT header is required"); err != nil {
					log.Error("failed to send payment required response", map[string]any{"error": err})
				}
				return
			}

			payment, err := helpers.ParsePaymentHeader(r)
			if err != nil {
				log.Warn("invalid payment header", map[string]any{"error": err})
				http.Error(w, "Invalid payment header", http.StatusBadRequest)
				return
			}

			requirement, err := x402.FindMatchingRequirement(payment, accepts)
			if err != nil {
				log.Warn("no matching requirement", map[string]any{"error": err})
				if err := helpers.SendPaymentRequired(w, accepts, "No matching payment requirement"); err != nil {
					log.Error("failed to send payment required response", map[string]any{"error": err})
				}
				return
			}

			log.Info("verifying payment", map[string]any{"scheme": payment.Scheme, "network": payment.Network})
			verifyResp, err := primary.Verify(r.Context(), *payment, *requirement)
			if err != nil && fallback != nil {
				log.Warn("primary facilitator failed, trying fallback", map[string]any{"error": err})
				verifyResp, err = fallback.Verify(r.Context(), *payment, *requirement)
			}
			if err != nil {
				log.Error("facilitator verification failed", map[string]any{"error": err})
				http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
				return
			}

			if !verifyResp.IsValid {
				log.Warn("payment verification failed", map[string]any{"reason": verifyResp.InvalidReason})
				if err := helpers.SendPaymentRequired(w, accepts, verifyResp.InvalidReason); err != nil {
					log.Error("failed to send payment required response", map[string]any{"error": err})
				}
				return
			}

			log.Info("payment verified", map[string]any{"payer": verifyResp.Payer})
			r = r.WithContext(context.WithValue(r.Context(), PaymentContextKey, verifyResp))

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					if config.VerifyOnly {
						return true
					}

					// The primary may have broadcast the transaction before failing, so
					// settlement never moves to the fallback.
					settlement, err := primary.Settle(r.Context(), *payment, *requirement)
					if err != nil {
						log.Error("settlement failed", map[string]any{"error": err})
						http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
						return false
					}

					if err := helpers.AddPaymentResponseHeader(w, settlement); err != nil {
						log.Warn("failed to add payment response header", map[string]any{"error": err})
					}

					if !settlement.Success {
						log.Warn("settlement unsuccessful", map[string]any{"reason": settlement.ErrorReason})
						if err := helpers.SendPaymentRequired(w, accepts, settlement.ErrorReason); err != nil {
							log.Error("failed to send payment required response", map[string]any{"error": err})
						}
						return false
					}

					log.Info("payment settled", map[string]any{"transaction": settlement.Transaction})
					return true
				},
				onFailure: func(statusCode int) {
					log.Warn("handler returned non-success, skipping payment settlement", map[string]any{"status": statusCode})
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}
}

func newFacilitatorClient(url string, config Config) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:               url,
		Client:                &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
		Timeouts:              x402.DefaultTimeouts,
		Authorization:         config.FacilitatorAuthorization,
		AuthorizationProvider: config.FacilitatorAuthorizationProvider,
	}
}

// withResource fills in Resource and Description for requirements that leave them empty.
func withResource(requirements []x402.PaymentRequirements, resourceURL, path string) []x402.PaymentRequirements {
	out := make([]x402.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		if req.Resource == "" {
			req.Resource = resourceURL
		}
		if req.Description == "" {
			req.Description = "Payment required for " + path
		}
		out[i] = req
	}
	return out
}

// settlementInterceptor wraps the ResponseWriter to intercept the moment of commitment.
type settlementInterceptor struct {
	w          http.ResponseWriter
	settleFunc func() bool
	onFailure  func(statusCode int)
	committed  bool
	hijacked   bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	// Settlement failed and the error response is already written.
	if i.hijacked {
		return len(b), nil
	}
	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		i.hijacked = true
		return
	}
	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher to support streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker. Settlement happens before the connection is handed over.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := i.w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	if !i.committed {
		i.committed = true
		if !i.settleFunc() {
			i.hijacked = true
			return nil, nil, errors.New("payment settlement failed")
		}
	}
	return hijacker.Hijack()
}

// GetPaymentFromContext extracts the verified payment information from the request context.
func GetPaymentFromContext(ctx context.Context) *x402.VerifyResponse {
	resp, _ := ctx.Value(PaymentContextKey).(*x402.VerifyResponse)
	return resp
}
