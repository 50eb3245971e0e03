package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeypair(t *testing.T) *Keypair {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := ParseKeypair(base58.Encode(priv))
	require.NoError(t, err)
	return kp
}

func TestParseKeypair(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "invalid base58", key: "not-base58!!", wantErr: true},
		{name: "wrong length", key: base58.Encode([]byte{1, 2, 3}), wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeypair(tt.key)
			assert.Error(t, err)
		})
	}

	t.Run("valid key round trips", func(t *testing.T) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		kp, err := ParseKeypair(base58.Encode(priv))
		require.NoError(t, err)
		assert.Equal(t, base58.Encode(pub), kp.Address())
	})
}

func TestParseKeypairsFailsOnFirstBadEntry(t *testing.T) {
	good := generateKeypair(t)
	_, err := ParseKeypairs([]string{base58.Encode(good.priv), "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keypair 1")

	_, err = ParseKeypairs(nil)
	assert.Error(t, err)
}

func TestEncodeCompactU16(t *testing.T) {
	tests := []struct {
		value int
		want  []byte
	}{
		{value: 0, want: []byte{0x00}},
		{value: 1, want: []byte{0x01}},
		{value: 127, want: []byte{0x7f}},
		{value: 128, want: []byte{0x80, 0x01}},
		{value: 255, want: []byte{0xff, 0x01}},
		{value: 16384, want: []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeCompactU16(tt.value), "value %d", tt.value)
	}
}

func TestTransferInstructionData(t *testing.T) {
	from := generateKeypair(t)
	var to [32]byte
	to[0] = 1

	ins := NewTransferInstruction(from.PublicKey(), to, 987_654)

	require.Len(t, ins.Data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ins.Data[0:4]))
	assert.Equal(t, uint64(987_654), binary.LittleEndian.Uint64(ins.Data[4:12]))
	assert.Equal(t, SystemProgramID, ins.ProgramID)

	require.Len(t, ins.Accounts, 2)
	assert.True(t, ins.Accounts[0].IsSigner)
	assert.True(t, ins.Accounts[0].IsWritable)
	assert.False(t, ins.Accounts[1].IsSigner)
}

func TestCloseAndBurnInstructionData(t *testing.T) {
	owner := generateKeypair(t)
	var account, mint, dest [32]byte
	account[0], mint[0], dest[0] = 1, 2, 3

	closeIns := NewCloseAccountInstruction(account, dest, owner.PublicKey())
	assert.Equal(t, []byte{9}, closeIns.Data)
	assert.Equal(t, TokenProgramID, closeIns.ProgramID)

	burnIns := NewBurnInstruction(account, mint, owner.PublicKey(), 123_456)
	require.Len(t, burnIns.Data, 9)
	assert.Equal(t, byte(8), burnIns.Data[0])
	assert.Equal(t, uint64(123_456), binary.LittleEndian.Uint64(burnIns.Data[1:9]))
}

func TestNewTransactionSerialization(t *testing.T) {
	payer := generateKeypair(t)
	var to [32]byte
	to[5] = 7
	blockhash := Blockhash{}
	for i := range blockhash.Hash {
		blockhash.Hash[i] = byte(i)
	}

	tx, err := NewTransaction(
		[]Instruction{NewTransferInstruction(payer.PublicKey(), to, 42)},
		payer, []*Keypair{payer}, blockhash)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(tx.Base64())
	require.NoError(t, err)

	// One signature, prefixed by its compact-u16 count
	assert.Equal(t, byte(1), raw[0])
	signature := raw[1:65]
	message := raw[65:]

	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	// (the system program)
	assert.Equal(t, byte(1), message[0])
	assert.Equal(t, byte(0), message[1])
	assert.Equal(t, byte(1), message[2])

	// Account table: payer, destination, system program
	assert.Equal(t, byte(3), message[3])
	payerKey := payer.PublicKey()
	assert.Equal(t, payerKey[:], message[4:36])
	assert.Equal(t, to[:], message[36:68])
	assert.Equal(t, SystemProgramID[:], message[68:100])

	// Blockhash follows the account table
	assert.Equal(t, blockhash.Hash[:], message[100:132])

	// The signature verifies over the message bytes
	pub := payer.PublicKey()
	assert.True(t, ed25519.Verify(pub[:], message, signature))
}

func TestNewTransactionMultipleSigners(t *testing.T) {
	payer := generateKeypair(t)
	second := generateKeypair(t)
	var dest [32]byte
	dest[0] = 9

	tx, err := NewTransaction(
		[]Instruction{
			NewTransferInstruction(payer.PublicKey(), dest, 10),
			NewTransferInstruction(second.PublicKey(), dest, 20),
		},
		payer, []*Keypair{payer, second}, Blockhash{})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(tx.Base64())
	require.NoError(t, err)
	assert.Equal(t, byte(2), raw[0], "both wallets must sign")

	// Both signatures verify over the shared message
	message := raw[1+2*64:]
	payerPub, secondPub := payer.PublicKey(), second.PublicKey()
	assert.True(t, ed25519.Verify(payerPub[:], message, raw[1:65]))
	assert.True(t, ed25519.Verify(secondPub[:], message, raw[65:129]))
}

func TestNewTransactionMissingSigner(t *testing.T) {
	payer := generateKeypair(t)
	other := generateKeypair(t)
	var dest [32]byte

	_, err := NewTransaction(
		[]Instruction{NewTransferInstruction(other.PublicKey(), dest, 10)},
		payer, []*Keypair{payer}, Blockhash{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing signer")
}

func TestNewTransactionValidation(t *testing.T) {
	payer := generateKeypair(t)

	_, err := NewTransaction(nil, payer, nil, Blockhash{})
	assert.Error(t, err)

	_, err = NewTransaction([]Instruction{NewTransferInstruction(payer.PublicKey(), [32]byte{}, 1)}, nil, nil, Blockhash{})
	assert.Error(t, err)
}

func TestDecodeAddress(t *testing.T) {
	kp := generateKeypair(t)

	key, err := DecodeAddress(kp.Address())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), key)

	_, err = DecodeAddress("too-short")
	assert.Error(t, err)
}
