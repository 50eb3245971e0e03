package ops

import (
	"context"
	"fmt"

	"github.com/mgaillard/solbatch/internal/ledger"
)

// WalletBalance reads one wallet's SOL balance in both lamports and
// human units
func (s *Service) WalletBalance(ctx context.Context, address string) (uint64, float64, error) {
	if _, err := ledger.DecodeAddress(address); err != nil {
		return 0, 0, fmt.Errorf("invalid address: %w", err)
	}
	lamports, err := s.ledger.GetBalance(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	return lamports, lamportsToSol(lamports), nil
}

// WalletTokens lists every token account owned by a wallet
func (s *Service) WalletTokens(ctx context.Context, address string) ([]ledger.TokenAccount, error) {
	if _, err := ledger.DecodeAddress(address); err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	return s.ledger.GetTokenAccountsByOwner(ctx, address)
}
