package ops

import (
	"fmt"

	"github.com/mgaillard/solbatch/internal/ledger"
)

// Request validators used by the HTTP layer before a job is created. They
// check everything that can be checked without touching the network;
// per-operand key decoding is deliberately left to the strategies, where a
// bad key becomes a per-operand outcome instead of rejecting the run.

// ValidateRefund checks a RefundRequest
func (s *Service) ValidateRefund(req RefundRequest) error {
	if err := s.validateOperandCount(len(req.WalletKeys), "wallets"); err != nil {
		return err
	}
	if _, err := ledger.DecodeAddress(req.Destination); err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	return nil
}

// ValidateRefundAmount checks a RefundAmountRequest
func (s *Service) ValidateRefundAmount(req RefundAmountRequest) error {
	if req.AmountSol <= 0 {
		return fmt.Errorf("amount must be positive: %f", req.AmountSol)
	}
	return s.ValidateRefund(RefundRequest{WalletKeys: req.WalletKeys, Destination: req.Destination})
}

// ValidateDistribute checks a DistributeRequest. Destination parse errors
// are request-level here: a distribution with any bad destination never
// starts.
func (s *Service) ValidateDistribute(req DistributeRequest) error {
	if err := s.validateOperandCount(len(req.Destinations), "destinations"); err != nil {
		return err
	}
	if req.TotalSol <= 0 {
		return fmt.Errorf("total amount must be positive: %f", req.TotalSol)
	}
	if _, err := ledger.ParseKeypair(req.SourceKey); err != nil {
		return fmt.Errorf("invalid source key: %w", err)
	}
	for i, addr := range req.Destinations {
		if _, err := ledger.DecodeAddress(addr); err != nil {
			return fmt.Errorf("destination %d: %w", i, err)
		}
	}
	return nil
}

// ValidateCloseAccounts checks a CloseAccountsRequest
func (s *Service) ValidateCloseAccounts(req CloseAccountsRequest) error {
	if _, err := ledger.ParseKeypair(req.WalletKey); err != nil {
		return fmt.Errorf("invalid wallet key: %w", err)
	}
	return nil
}

// ValidateCloseTokenAccount checks a CloseTokenAccountRequest
func (s *Service) ValidateCloseTokenAccount(req CloseTokenAccountRequest) error {
	if _, err := ledger.ParseKeypair(req.WalletKey); err != nil {
		return fmt.Errorf("invalid wallet key: %w", err)
	}
	if _, err := ledger.DecodeAddress(req.Mint); err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}
	return nil
}

// ValidateCloseTokenAccountsBatch checks a CloseTokenAccountsBatchRequest
func (s *Service) ValidateCloseTokenAccountsBatch(req CloseTokenAccountsBatchRequest) error {
	if err := s.validateOperandCount(len(req.Mints), "mints"); err != nil {
		return err
	}
	if _, err := ledger.ParseKeypair(req.WalletKey); err != nil {
		return fmt.Errorf("invalid wallet key: %w", err)
	}
	return nil
}

// ValidateBurn checks a BurnRequest
func (s *Service) ValidateBurn(req BurnRequest) error {
	if req.Percentage <= 0 || req.Percentage > 100 {
		return fmt.Errorf("percentage must be in (0, 100]: %f", req.Percentage)
	}
	return s.ValidateCloseTokenAccount(CloseTokenAccountRequest{WalletKey: req.WalletKey, Mint: req.Mint})
}

// ValidateBurnBatch checks a BurnBatchRequest
func (s *Service) ValidateBurnBatch(req BurnBatchRequest) error {
	if req.Percentage <= 0 || req.Percentage > 100 {
		return fmt.Errorf("percentage must be in (0, 100]: %f", req.Percentage)
	}
	return s.ValidateCloseTokenAccountsBatch(CloseTokenAccountsBatchRequest{WalletKey: req.WalletKey, Mints: req.Mints})
}
