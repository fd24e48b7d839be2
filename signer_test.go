package x402

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type staticWallet struct{ account string }

func (w staticWallet) ConnectedAccount() (string, bool) { return w.account, w.account != "" }

type funcSigner func(ctx context.Context, message []byte, pubKey string) ([]byte, error)

func (f funcSigner) SignDetached(ctx context.Context, message []byte, pubKey string) ([]byte, error) {
	return f(ctx, message, pubKey)
}

func TestSession_Account(t *testing.T) {
	if _, err := NewSession(staticWallet{}, nil).Account(); !errors.Is(err, ErrNoSignerConnected) {
		t.Errorf("error = %v, want ErrNoSignerConnected", err)
	}
	if _, err := NewSession(nil, nil).Account(); !errors.Is(err, ErrNoSignerConnected) {
		t.Errorf("nil wallet: error = %v, want ErrNoSignerConnected", err)
	}
	got, err := NewSession(staticWallet{account: testPayTo}, nil).Account()
	if err != nil || got != testPayTo {
		t.Errorf("Account() = %q, %v", got, err)
	}
}

func TestSession_SignDetached_Errors(t *testing.T) {
	tests := []struct {
		name   string
		signer DetachedSigner
		want   error
	}{
		{name: "no signer", signer: nil, want: ErrNoSignerAvailable},
		{name: "plain failure", signer: funcSigner(func(context.Context, []byte, string) ([]byte, error) {
			return nil, errors.New("connection refused")
		}), want: ErrNoSignerAvailable},
		{name: "declined", signer: funcSigner(func(context.Context, []byte, string) ([]byte, error) {
			return nil, ErrSigningCancelled
		}), want: ErrSigningCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(staticWallet{account: testPayTo}, tt.signer).SignDetached(context.Background(), []byte{1}, testPayTo)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSession_SignDetached_Serialized(t *testing.T) {
	var inFlight, maxInFlight int32
	signer := funcSigner(func(ctx context.Context, message []byte, pubKey string) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return make([]byte, 64), nil
	})
	session := NewSession(staticWallet{account: testPayTo}, signer)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := session.SignDetached(context.Background(), []byte{1}, testPayTo)
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("SignDetached() error = %v", err)
		}
	}
	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent signing interactions = %d, want 1", got)
	}
}

func TestSession_SignDetached_CancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	signer := funcSigner(func(ctx context.Context, message []byte, pubKey string) ([]byte, error) {
		close(started)
		<-release
		return make([]byte, 64), nil
	})
	session := NewSession(staticWallet{account: testPayTo}, signer)

	go func() { _, _ = session.SignDetached(context.Background(), []byte{1}, testPayTo) }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.SignDetached(ctx, []byte{2}, testPayTo)
	close(release)

	if !errors.Is(err, ErrSigningCancelled) {
		t.Errorf("error = %v, want ErrSigningCancelled", err)
	}
}
