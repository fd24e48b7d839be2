// Package metrics records payment counters and latencies.
package metrics

import "time"

// Metric names recorded by the HTTP transport.
const (
	PaymentAttempt = "payment_attempt"
	PaymentSuccess = "payment_success"
	PaymentFailure = "payment_failure"
	PaymentLatency = "payment"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
