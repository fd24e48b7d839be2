package svm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
)

var (
	feePayerKey = solana.MustPublicKeyFromBase58(testFeePayer)
	payToKey    = solana.MustPublicKeyFromBase58(testPayTo)
	payerKey    = solana.MustPublicKeyFromBase58(testPayer)
	mintKey     = solana.MustPublicKeyFromBase58(testMint)
)

func tokenRequirement(amount string) *x402.PaymentRequirements {
	return &x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "solana-devnet",
		MaxAmountRequired: amount,
		Asset:             testMint,
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 60,
		Extra:             map[string]interface{}{"feePayer": testFeePayer},
	}
}

func nativeRequirement(amount string) *x402.PaymentRequirements {
	r := tokenRequirement(amount)
	r.Asset = ""
	return r
}

// tokenLedger returns a ledger holding the mint, a funded source account and,
// optionally, the recipient's token account.
func tokenLedger(program solana.PublicKey, balance uint64, destinationExists bool) *fakeLedger {
	ledger := newFakeLedger()
	ledger.putMint(mintKey, program, 6)
	source, _, _ := DeriveWithProgram(payerKey, mintKey, program)
	ledger.putTokenAccount(source, program, balance)
	if destinationExists {
		destination, _, _ := DeriveWithProgram(payToKey, mintKey, program)
		ledger.putTokenAccount(destination, program, 0)
	}
	return ledger
}

func mustBuilder(t *testing.T, ledger Ledger, opts ...BuilderOption) *Builder {
	t.Helper()
	b, err := NewBuilder(ledger, opts...)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func assertLayout(t *testing.T, msg *Message) {
	t.Helper()
	if !msg.Accounts[0].Address.Equals(feePayerKey) || !msg.Accounts[0].IsSigner || !msg.Accounts[0].IsWritable {
		t.Errorf("account 0 = %+v, want writable signer fee payer", msg.Accounts[0])
	}
	if !msg.Accounts[1].Address.Equals(payerKey) || !msg.Accounts[1].IsSigner {
		t.Errorf("account 1 = %+v, want signer payer", msg.Accounts[1])
	}
	raw := msg.Bytes()
	if raw[0] != VersionedMessagePrefix {
		t.Errorf("first byte = 0x%02x, want 0x80", raw[0])
	}
}

func TestBuilder_TokenTransfer(t *testing.T) {
	tests := []struct {
		name              string
		program           solana.PublicKey
		destinationExists bool
		wantInstructions  int
		wantLimit         uint32
	}{
		{name: "destination exists", program: TokenProgramID, destinationExists: true, wantInstructions: 3, wantLimit: ComputeUnitsTransfer},
		{name: "destination absent", program: TokenProgramID, destinationExists: false, wantInstructions: 4, wantLimit: ComputeUnitsWithCreate},
		{name: "token-2022", program: Token2022ProgramID, destinationExists: true, wantInstructions: 3, wantLimit: ComputeUnitsTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := tokenLedger(tt.program, 5_000_000, tt.destinationExists)
			msg, err := mustBuilder(t, ledger).Build(context.Background(), tokenRequirement("1000000"), payerKey)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			assertLayout(t, msg)

			if len(msg.Instructions) != tt.wantInstructions {
				t.Fatalf("got %d instructions, want %d", len(msg.Instructions), tt.wantInstructions)
			}
			limit := msg.Instructions[0]
			if !limit.ProgramID.Equals(ComputeBudgetProgramID) || limit.Data[0] != 2 {
				t.Errorf("instruction 0 is not SetComputeUnitLimit: %+v", limit)
			}
			if got := binary.LittleEndian.Uint32(limit.Data[1:]); got != tt.wantLimit {
				t.Errorf("compute unit limit = %d, want %d", got, tt.wantLimit)
			}
			price := msg.Instructions[1]
			if price.Data[0] != 3 || binary.LittleEndian.Uint64(price.Data[1:]) != DefaultComputeUnitPrice {
				t.Errorf("instruction 1 is not SetComputeUnitPrice(1): %x", price.Data)
			}

			if !tt.destinationExists {
				create := msg.Instructions[2]
				if !create.ProgramID.Equals(AssociatedTokenProgramID) || !bytes.Equal(create.Data, []byte{1}) {
					t.Errorf("instruction 2 is not CreateIdempotent: %+v", create)
				}
				if !create.Accounts[0].Address.Equals(feePayerKey) {
					t.Errorf("ATA creation funded by %s, want fee payer", create.Accounts[0].Address)
				}
			}

			transfer := msg.Instructions[len(msg.Instructions)-1]
			if !transfer.ProgramID.Equals(tt.program) {
				t.Errorf("transfer program = %s, want %s", transfer.ProgramID, tt.program)
			}
			if transfer.Data[0] != 12 {
				t.Errorf("transfer discriminator = %d, want 12 (TransferChecked)", transfer.Data[0])
			}
			if got := binary.LittleEndian.Uint64(transfer.Data[1:9]); got != 1_000_000 {
				t.Errorf("transfer amount = %d", got)
			}
			if transfer.Data[9] != 6 {
				t.Errorf("transfer decimals = %d, want 6", transfer.Data[9])
			}
		})
	}
}

func TestBuilder_TokenAccountTable(t *testing.T) {
	ledger := tokenLedger(TokenProgramID, 5_000_000, true)
	msg, err := mustBuilder(t, ledger).Build(context.Background(), tokenRequirement("1000"), payerKey)
	if err != nil {
		t.Fatal(err)
	}

	source, _, _ := DeriveWithProgram(payerKey, mintKey, TokenProgramID)
	destination, _, _ := DeriveWithProgram(payToKey, mintKey, TokenProgramID)
	want := []solana.PublicKey{feePayerKey, payerKey, source, destination, mintKey, ComputeBudgetProgramID, TokenProgramID}
	if len(msg.Accounts) != len(want) {
		t.Fatalf("got %d accounts, want %d", len(msg.Accounts), len(want))
	}
	for i, k := range want {
		if !msg.Accounts[i].Address.Equals(k) {
			t.Errorf("account %d = %s, want %s", i, msg.Accounts[i].Address, k)
		}
	}
	if msg.Header.NumRequiredSignatures != 2 || msg.Header.NumReadonlySignedAccounts != 1 || msg.Header.NumReadonlyUnsignedAccounts != 3 {
		t.Errorf("header = %+v, want 2/1/3", msg.Header)
	}
}

func TestBuilder_NativeTransfer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.put(payerKey, &AccountInfo{Owner: solana.SystemProgramID, Lamports: 10_000_000})

	for _, asset := range []string{"", "SOL", "native", x402.NativeAssetSentinel} {
		req := nativeRequirement("1000000")
		req.Asset = asset
		msg, err := mustBuilder(t, ledger).Build(context.Background(), req, payerKey)
		if err != nil {
			t.Fatalf("Build(asset=%q) error = %v", asset, err)
		}
		assertLayout(t, msg)
		if len(msg.Instructions) != 3 {
			t.Fatalf("got %d instructions, want 3", len(msg.Instructions))
		}
		transfer := msg.Instructions[2]
		if !transfer.ProgramID.Equals(solana.SystemProgramID) {
			t.Errorf("transfer program = %s", transfer.ProgramID)
		}
		if !msg.Accounts[1].IsWritable {
			t.Error("payer is not writable in a native transfer")
		}
		if msg.Accounts[2].Address != payToKey {
			t.Errorf("account 2 = %s, want recipient", msg.Accounts[2].Address)
		}
	}
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		req    func() *x402.PaymentRequirements
		ledger func() *fakeLedger
		want   error
	}{
		{
			name:   "missing fee payer",
			req:    func() *x402.PaymentRequirements { r := tokenRequirement("1"); r.Extra = nil; return r },
			ledger: newFakeLedger,
			want:   x402.ErrMalformedRequirement,
		},
		{
			name:   "invalid fee payer",
			req:    func() *x402.PaymentRequirements { r := tokenRequirement("1"); r.Extra["feePayer"] = "0xnotbase58"; return r },
			ledger: newFakeLedger,
			want:   x402.ErrMalformedRequirement,
		},
		{
			name:   "fee payer is payer",
			req:    func() *x402.PaymentRequirements { r := nativeRequirement("1"); r.Extra["feePayer"] = testPayer; return r },
			ledger: func() *fakeLedger {
				l := newFakeLedger()
				l.put(payerKey, &AccountInfo{Lamports: 10})
				return l
			},
			want: x402.ErrMalformedRequirement,
		},
		{
			name:   "invalid amount",
			req:    func() *x402.PaymentRequirements { return tokenRequirement("-5") },
			ledger: func() *fakeLedger { return tokenLedger(TokenProgramID, 10, true) },
			want:   x402.ErrInvalidAmount,
		},
		{
			name:   "blockhash unavailable",
			req:    func() *x402.PaymentRequirements { return tokenRequirement("1") },
			ledger: func() *fakeLedger { l := newFakeLedger(); l.blockhashErr = context.DeadlineExceeded; return l },
			want:   x402.ErrLedgerUnavailable,
		},
		{
			name:   "missing mint",
			req:    func() *x402.PaymentRequirements { return tokenRequirement("1") },
			ledger: newFakeLedger,
			want:   x402.ErrLedgerReadFailed,
		},
		{
			name:   "token balance too low",
			req:    func() *x402.PaymentRequirements { return tokenRequirement("1000001") },
			ledger: func() *fakeLedger { return tokenLedger(TokenProgramID, 1_000_000, true) },
			want:   x402.ErrInsufficientFunds,
		},
		{
			name: "no source account",
			req:  func() *x402.PaymentRequirements { return tokenRequirement("1") },
			ledger: func() *fakeLedger {
				l := newFakeLedger()
				l.putMint(mintKey, TokenProgramID, 6)
				return l
			},
			want: x402.ErrInsufficientFunds,
		},
		{
			name:   "lamports too low",
			req:    func() *x402.PaymentRequirements { return nativeRequirement("100") },
			ledger: func() *fakeLedger { l := newFakeLedger(); l.put(payerKey, &AccountInfo{Lamports: 99}); return l },
			want:   x402.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustBuilder(t, tt.ledger()).Build(context.Background(), tt.req(), payerKey)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuilder_OfflineFailsBeforeLedger(t *testing.T) {
	ledger := tokenLedger(TokenProgramID, 5_000_000, true)

	offline := ProbeFunc(func(context.Context) bool { return false })
	_, err := mustBuilder(t, ledger, WithProbe(offline)).Build(context.Background(), tokenRequirement("1"), payerKey)
	if !errors.Is(err, x402.ErrNoNetwork) {
		t.Fatalf("Build() error = %v, want ErrNoNetwork", err)
	}
	if n := ledger.Reads(); n != 0 {
		t.Errorf("ledger reads = %d, want 0", n)
	}
}

// cancellingLedger cancels the caller's context on the chosen read and then fails it.
type cancellingLedger struct {
	*fakeLedger
	cancel      context.CancelFunc
	onBlockhash bool
}

func (l *cancellingLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if l.onBlockhash {
		l.cancel()
		return solana.Hash{}, ctx.Err()
	}
	return l.fakeLedger.LatestBlockhash(ctx)
}

func (l *cancellingLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	if !l.onBlockhash {
		l.cancel()
		return nil, ctx.Err()
	}
	return l.fakeLedger.GetAccount(ctx, address)
}

func TestBuilder_CancelledContext(t *testing.T) {
	t.Run("before build", func(t *testing.T) {
		ledger := tokenLedger(TokenProgramID, 5_000_000, true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := mustBuilder(t, ledger).Build(ctx, tokenRequirement("1"), payerKey)
		if !errors.Is(err, x402.ErrSigningCancelled) {
			t.Fatalf("Build() error = %v, want ErrSigningCancelled", err)
		}
		if n := ledger.Reads(); n != 0 {
			t.Errorf("ledger reads = %d, want 0", n)
		}
	})

	t.Run("during probe", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		probe := ProbeFunc(func(context.Context) bool { cancel(); return false })

		_, err := mustBuilder(t, newFakeLedger(), WithProbe(probe)).Build(ctx, tokenRequirement("1"), payerKey)
		if !errors.Is(err, x402.ErrSigningCancelled) {
			t.Fatalf("Build() error = %v, want ErrSigningCancelled", err)
		}
		if errors.Is(err, x402.ErrNoNetwork) {
			t.Error("cancellation reported as no network")
		}
	})

	for _, onBlockhash := range []bool{true, false} {
		name := "during account read"
		if onBlockhash {
			name = "during blockhash fetch"
		}
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ledger := &cancellingLedger{
				fakeLedger:  tokenLedger(TokenProgramID, 5_000_000, true),
				cancel:      cancel,
				onBlockhash: onBlockhash,
			}

			_, err := mustBuilder(t, ledger).Build(ctx, tokenRequirement("1"), payerKey)
			if got := x402.CodeOf(err); got != x402.ErrCodeSigningCancelled {
				t.Fatalf("code = %q, want %q (err %v)", got, x402.ErrCodeSigningCancelled, err)
			}
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Build() error = %v, want wrapped context.Canceled", err)
			}
		})
	}
}

func TestBuilder_InvalidAmountFailsBeforeNetwork(t *testing.T) {
	ledger := tokenLedger(TokenProgramID, 5_000_000, true)
	probed := false
	probe := ProbeFunc(func(context.Context) bool { probed = true; return true })

	_, err := mustBuilder(t, ledger, WithProbe(probe)).Build(context.Background(), tokenRequirement("1.5"), payerKey)
	if !errors.Is(err, x402.ErrInvalidAmount) {
		t.Fatalf("Build() error = %v, want ErrInvalidAmount", err)
	}
	if probed {
		t.Error("probe ran for a malformed amount")
	}
	if n := ledger.Reads(); n != 0 {
		t.Errorf("ledger reads = %d, want 0", n)
	}
}

func TestBuilder_ComputeUnitPriceOption(t *testing.T) {
	ledger := newFakeLedger()
	ledger.put(payerKey, &AccountInfo{Lamports: 10})
	msg, err := mustBuilder(t, ledger, WithComputeUnitPrice(5)).Build(context.Background(), nativeRequirement("1"), payerKey)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint64(msg.Instructions[1].Data[1:]); got != 5 {
		t.Errorf("price = %d, want 5", got)
	}
}

func TestNewBuilder_NilLedger(t *testing.T) {
	if _, err := NewBuilder(nil); err == nil {
		t.Error("NewBuilder(nil) succeeded")
	}
}
