// Package ledger implements the client adapter for the remote ledger
// network: read calls (balances, token accounts), blockhash fetch, and
// signed-transaction submission with confirmation wait.
package ledger

const (
	// LamportsPerSol is the number of base units in one SOL
	LamportsPerSol = 1_000_000_000

	// BaseTransactionFee is the flat per-signature fee in lamports
	BaseTransactionFee = 5_000
)

// Blockhash is the transaction-ordering token fetched immediately before
// submission. Hashes expire quickly and must not be reused across chunks.
type Blockhash struct {
	Hash                 [32]byte
	LastValidBlockHeight uint64
}

// TokenAmount describes the balance held by one token account
type TokenAmount struct {
	RawAmount uint64
	UIAmount  float64
	Decimals  uint8
}

// TokenAccount is one ledger-side record holding the balance of a single
// mint for a single owner
type TokenAccount struct {
	Address string
	Mint    string
	Amount  TokenAmount
}

// SignatureStatus reports the confirmation state of a submitted transaction
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	ConfirmationStatus *string     `json:"confirmationStatus"`
	Err                interface{} `json:"err"`
}
