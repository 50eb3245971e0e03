package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Program addresses on the ledger. The system program owns plain transfers;
// the token program owns token-account instructions.
var (
	SystemProgramID = [32]byte{}
	TokenProgramID  = mustDecodeAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

// Instruction discriminators for the token program
const (
	tokenInstructionBurn         = 8
	tokenInstructionCloseAccount = 9
)

// System program instruction index for transfers
const systemInstructionTransfer = 2

// AccountMeta describes how one account participates in an instruction
type AccountMeta struct {
	PubKey     [32]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation inside a transaction
type Instruction struct {
	ProgramID [32]byte
	Accounts  []AccountMeta
	Data      []byte
}

// NewTransferInstruction moves lamports between two system accounts
func NewTransferInstruction(from, to [32]byte, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemInstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{PubKey: from, IsSigner: true, IsWritable: true},
			{PubKey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// NewCloseAccountInstruction closes a token account, refunding its rent
// balance to destination. The owner must sign.
func NewCloseAccountInstruction(tokenAccount, destination, owner [32]byte) Instruction {
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{PubKey: tokenAccount, IsSigner: false, IsWritable: true},
			{PubKey: destination, IsSigner: false, IsWritable: true},
			{PubKey: owner, IsSigner: true, IsWritable: false},
		},
		Data: []byte{tokenInstructionCloseAccount},
	}
}

// NewBurnInstruction destroys amount raw token units held by tokenAccount
func NewBurnInstruction(tokenAccount, mint, owner [32]byte, amount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionBurn
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{PubKey: tokenAccount, IsSigner: false, IsWritable: true},
			{PubKey: mint, IsSigner: false, IsWritable: true},
			{PubKey: owner, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
}

// Transaction is a signed, serialized-on-demand legacy transaction
type Transaction struct {
	signatures [][]byte
	message    []byte
}

// compiledAccount tracks merged signer/writable flags during compilation
type compiledAccount struct {
	key      [32]byte
	signer   bool
	writable bool
}

// NewTransaction compiles instructions into a legacy message with feePayer
// as the first account, then signs it with every required signer.
// All signers listed in the instructions must appear in signers.
func NewTransaction(instructions []Instruction, feePayer *Keypair, signers []*Keypair, recentBlockhash Blockhash) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("no instructions provided")
	}
	if feePayer == nil {
		return nil, fmt.Errorf("fee payer is required")
	}

	accounts := compileAccounts(instructions, feePayer.PublicKey())
	message := serializeMessage(accounts, instructions, recentBlockhash)

	// Sign in account-table order; every signer account needs a signature
	keyring := map[[32]byte]*Keypair{feePayer.PublicKey(): feePayer}
	for _, s := range signers {
		keyring[s.PublicKey()] = s
	}

	var sigs [][]byte
	for _, acc := range accounts {
		if !acc.signer {
			break // signers are always first in the table
		}
		kp, ok := keyring[acc.key]
		if !ok {
			return nil, fmt.Errorf("missing signer for account %s", base58.Encode(acc.key[:]))
		}
		sigs = append(sigs, kp.Sign(message))
	}

	return &Transaction{signatures: sigs, message: message}, nil
}

// Base64 returns the wire encoding expected by sendTransaction
func (t *Transaction) Base64() string {
	var buf bytes.Buffer
	buf.Write(encodeCompactU16(len(t.signatures)))
	for _, sig := range t.signatures {
		buf.Write(sig)
	}
	buf.Write(t.message)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// compileAccounts builds the ordered account table: fee payer first, then
// remaining signer-writable, signer-readonly, writable, readonly accounts.
// Program ids land in the readonly non-signer group.
func compileAccounts(instructions []Instruction, feePayer [32]byte) []compiledAccount {
	merged := map[[32]byte]*compiledAccount{}
	var order [][32]byte

	upsert := func(key [32]byte, signer, writable bool) {
		if acc, ok := merged[key]; ok {
			acc.signer = acc.signer || signer
			acc.writable = acc.writable || writable
			return
		}
		merged[key] = &compiledAccount{key: key, signer: signer, writable: writable}
		order = append(order, key)
	}

	upsert(feePayer, true, true)
	for _, ins := range instructions {
		for _, meta := range ins.Accounts {
			upsert(meta.PubKey, meta.IsSigner, meta.IsWritable)
		}
		upsert(ins.ProgramID, false, false)
	}

	var out []compiledAccount
	appendClass := func(signer, writable bool) {
		for _, key := range order {
			acc := merged[key]
			if acc.signer == signer && acc.writable == writable {
				out = append(out, *acc)
			}
		}
	}
	appendClass(true, true)
	appendClass(true, false)
	appendClass(false, true)
	appendClass(false, false)
	return out
}

// serializeMessage produces the legacy message bytes: header, account
// table, recent blockhash, compiled instructions
func serializeMessage(accounts []compiledAccount, instructions []Instruction, recentBlockhash Blockhash) []byte {
	index := map[[32]byte]int{}
	for i, acc := range accounts {
		index[acc.key] = i
	}

	var numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned int
	for _, acc := range accounts {
		if acc.signer {
			numRequiredSignatures++
			if !acc.writable {
				numReadonlySigned++
			}
		} else if !acc.writable {
			numReadonlyUnsigned++
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(numRequiredSignatures))
	buf.WriteByte(byte(numReadonlySigned))
	buf.WriteByte(byte(numReadonlyUnsigned))

	buf.Write(encodeCompactU16(len(accounts)))
	for _, acc := range accounts {
		buf.Write(acc.key[:])
	}

	buf.Write(recentBlockhash.Hash[:])

	buf.Write(encodeCompactU16(len(instructions)))
	for _, ins := range instructions {
		buf.WriteByte(byte(index[ins.ProgramID]))
		buf.Write(encodeCompactU16(len(ins.Accounts)))
		for _, meta := range ins.Accounts {
			buf.WriteByte(byte(index[meta.PubKey]))
		}
		buf.Write(encodeCompactU16(len(ins.Data)))
		buf.Write(ins.Data)
	}

	return buf.Bytes()
}

// encodeCompactU16 implements the ledger's variable-length length prefix
func encodeCompactU16(n int) []byte {
	var out []byte
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

func mustDecodeAddress(address string) [32]byte {
	key, err := DecodeAddress(address)
	if err != nil {
		panic(fmt.Sprintf("bad builtin address %q: %v", address, err))
	}
	return key
}
