package svm

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

const (
	testFeePayer  = "EwWqGE4ZFKLofuestmU4LDdK7XM1N4ALgdZccwYugwGd"
	testPayTo     = "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g"
	testPayer     = "8Yn4nS7XyZkzFm6WGzFmSu3tGmpkNPfzT8rDHb2Uny4n"
	testMint      = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	testBlockhash = "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn"
)

// fakeLedger is an in-memory Ledger that counts every read.
type fakeLedger struct {
	mu           sync.Mutex
	blockhash    solana.Hash
	blockhashErr error
	accountErr   error
	accounts     map[solana.PublicKey]*AccountInfo
	reads        int32
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		blockhash: solana.MustHashFromBase58(testBlockhash),
		accounts:  make(map[solana.PublicKey]*AccountInfo),
	}
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	atomic.AddInt32(&f.reads, 1)
	if f.blockhashErr != nil {
		return solana.Hash{}, f.blockhashErr
	}
	return f.blockhash, nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	atomic.AddInt32(&f.reads, 1)
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[address], nil
}

func (f *fakeLedger) Reads() int32 {
	return atomic.LoadInt32(&f.reads)
}

func (f *fakeLedger) put(address solana.PublicKey, info *AccountInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = info
}

func (f *fakeLedger) putMint(mint, program solana.PublicKey, decimals uint8) {
	data := make([]byte, mintBaseSize)
	data[mintDecimalsOffset] = decimals
	data[45] = 1 // is_initialized
	f.put(mint, &AccountInfo{Owner: program, Lamports: 1_461_600, Data: data})
}

func (f *fakeLedger) putTokenAccount(address, program solana.PublicKey, amount uint64) {
	data := make([]byte, tokenBaseSize)
	binary.LittleEndian.PutUint64(data[tokenAmountOffset:], amount)
	f.put(address, &AccountInfo{Owner: program, Lamports: 2_039_280, Data: data})
}
