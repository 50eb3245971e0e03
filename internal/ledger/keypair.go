package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Keypair holds ephemeral in-memory signing material for one wallet.
// Secrets are never persisted; they live only for the duration of a job.
type Keypair struct {
	priv ed25519.PrivateKey
}

// ParseKeypair decodes a base58-encoded 64-byte ed25519 secret key
func ParseKeypair(privateKey string) (*Keypair, error) {
	raw, err := base58.Decode(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("unexpected key length: %d bytes", len(raw))
	}
	return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
}

// ParseKeypairs decodes a list of base58 secret keys, failing on the first
// invalid entry
func ParseKeypairs(privateKeys []string) ([]*Keypair, error) {
	if len(privateKeys) == 0 {
		return nil, fmt.Errorf("no keypairs provided")
	}
	keypairs := make([]*Keypair, 0, len(privateKeys))
	for i, pk := range privateKeys {
		kp, err := ParseKeypair(pk)
		if err != nil {
			return nil, fmt.Errorf("keypair %d: %w", i, err)
		}
		keypairs = append(keypairs, kp)
	}
	return keypairs, nil
}

// PublicKey returns the wallet address as raw bytes
func (k *Keypair) PublicKey() [32]byte {
	var out [32]byte
	copy(out[:], k.priv.Public().(ed25519.PublicKey))
	return out
}

// Address returns the base58-encoded wallet address
func (k *Keypair) Address() string {
	pub := k.PublicKey()
	return base58.Encode(pub[:])
}

// Sign produces an ed25519 signature over the serialized message
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// DecodeAddress parses a base58 account address into raw bytes
func DecodeAddress(address string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return out, fmt.Errorf("invalid base58 address %q: %w", address, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("invalid address length: %d bytes", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
