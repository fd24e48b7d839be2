package svm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/quantaliz/solaibot-sub000"
)

// VersionedMessagePrefix is the first byte of a serialized v0 message.
const VersionedMessagePrefix = 0x80

// Message is a compiled, unsigned transaction message.
//
// Accounts is the account table: the fee payer at index 0, the paying user at index 1,
// then every other account in first-referenced order. The table is grouped only as
// the header requires (writable signers, readonly signers, writable non-signers,
// readonly non-signers) and is never sorted by address.
type Message struct {
	FeePayer        solana.PublicKey
	Payer           solana.PublicKey
	RecentBlockhash solana.Hash
	Instructions    []Instruction
	Accounts        []AccountRef
	Header          solana.MessageHeader

	serialized []byte
}

// NewMessage compiles instructions into a message paid for by feePayer and signed by payer.
func NewMessage(feePayer, payer solana.PublicKey, blockhash solana.Hash, instructions []Instruction) (*Message, error) {
	if feePayer.Equals(payer) {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedRequirement, "fee payer must differ from the paying account", nil).
			WithDetails("feePayer", feePayer.String())
	}

	accounts, header := compileAccounts(feePayer, payer, instructions)
	if len(accounts) < 2 || !accounts[0].Address.Equals(feePayer) || !accounts[1].Address.Equals(payer) {
		return nil, fmt.Errorf("svm: account table does not start with fee payer and payer")
	}

	m := &Message{
		FeePayer:        feePayer,
		Payer:           payer,
		RecentBlockhash: blockhash,
		Instructions:    instructions,
		Accounts:        accounts,
		Header:          header,
	}
	raw, err := m.marshal()
	if err != nil {
		return nil, err
	}
	m.serialized = raw
	return m, nil
}

// Bytes returns the serialized v0 message. The leading 0x80 version marker is part of
// the signed payload.
func (m *Message) Bytes() []byte {
	out := make([]byte, len(m.serialized))
	copy(out, m.serialized)
	return out
}

// NumSigners returns the number of signature slots the message requires.
func (m *Message) NumSigners() int {
	return int(m.Header.NumRequiredSignatures)
}

// IndexOf returns the account table index of address, or -1.
func (m *Message) IndexOf(address solana.PublicKey) int {
	for i, a := range m.Accounts {
		if a.Address.Equals(address) {
			return i
		}
	}
	return -1
}

func compileAccounts(feePayer, payer solana.PublicKey, instructions []Instruction) ([]AccountRef, solana.MessageHeader) {
	var ordered []AccountRef
	index := make(map[solana.PublicKey]int)
	add := func(ref AccountRef) {
		if i, ok := index[ref.Address]; ok {
			ordered[i].IsSigner = ordered[i].IsSigner || ref.IsSigner
			ordered[i].IsWritable = ordered[i].IsWritable || ref.IsWritable
			return
		}
		index[ref.Address] = len(ordered)
		ordered = append(ordered, ref)
	}

	add(AccountRef{Address: feePayer, IsSigner: true, IsWritable: true})
	add(AccountRef{Address: payer, IsSigner: true})
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc)
		}
	}
	for _, ix := range instructions {
		add(AccountRef{Address: ix.ProgramID})
	}

	// Stable partition into the four header groups.
	groups := make([][]AccountRef, 4)
	for _, a := range ordered {
		var g int
		switch {
		case a.IsSigner && a.IsWritable:
			g = 0
		case a.IsSigner:
			g = 1
		case a.IsWritable:
			g = 2
		default:
			g = 3
		}
		groups[g] = append(groups[g], a)
	}

	accounts := make([]AccountRef, 0, len(ordered))
	for _, g := range groups {
		accounts = append(accounts, g...)
	}
	header := solana.MessageHeader{
		NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
		NumReadonlySignedAccounts:   uint8(len(groups[1])),
		NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
	}
	return accounts, header
}

// marshal serializes the message in the v0 format with an empty address lookup table list.
func (m *Message) marshal() ([]byte, error) {
	keys := make(solana.PublicKeySlice, len(m.Accounts))
	position := make(map[solana.PublicKey]uint16, len(m.Accounts))
	for i, a := range m.Accounts {
		keys[i] = a.Address
		position[a.Address] = uint16(i)
	}

	compiled := make([]solana.CompiledInstruction, 0, len(m.Instructions))
	for _, ix := range m.Instructions {
		accounts := make([]uint16, len(ix.Accounts))
		for i, acc := range ix.Accounts {
			accounts[i] = position[acc.Address]
		}
		compiled = append(compiled, solana.CompiledInstruction{
			ProgramIDIndex: position[ix.ProgramID],
			Accounts:       accounts,
			Data:           ix.Data,
		})
	}

	msg := solana.Message{
		AccountKeys:     keys,
		Header:          m.Header,
		RecentBlockhash: m.RecentBlockhash,
		Instructions:    compiled,
	}
	msg.SetVersion(solana.MessageVersionV0)

	raw, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("svm: serialize message: %w", err)
	}
	if len(raw) == 0 || raw[0] != VersionedMessagePrefix {
		return nil, fmt.Errorf("svm: serialized message lacks v0 prefix")
	}
	return raw, nil
}
