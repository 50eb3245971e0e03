package ops

import (
	"context"
	"fmt"

	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/pipeline"
)

// CloseAccountsRequest closes every empty token account owned by a wallet,
// reclaiming their rent balances back to the wallet itself
type CloseAccountsRequest struct {
	WalletKey string `json:"wallet_key" binding:"required"`
}

// CloseTokenAccountRequest closes the wallet's token account for one
// specific mint, regardless of whether the account is empty
type CloseTokenAccountRequest struct {
	WalletKey string `json:"wallet_key" binding:"required"`
	Mint      string `json:"mint" binding:"required"`
}

// CloseTokenAccountsBatchRequest closes the wallet's token accounts for a
// list of mints
type CloseTokenAccountsBatchRequest struct {
	WalletKey string   `json:"wallet_key" binding:"required"`
	Mints     []string `json:"mints" binding:"required"`
}

// closeItem is one token account scheduled for closing
type closeItem struct {
	account [32]byte
	address string
}

// CloseEmptyAccounts enumerates the wallet's token accounts and closes the
// ones with a zero balance. Accounts still holding tokens are left alone;
// a wallet with nothing to close succeeds with an empty outcome list.
func (s *Service) CloseEmptyAccounts(ctx context.Context, jobID string, req CloseAccountsRequest) (*BulkResult, error) {
	wallet, err := ledger.ParseKeypair(req.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}

	s.progress(jobID, 0, 0, "Enumerating token accounts")
	accounts, err := s.ledger.GetTokenAccountsByOwner(ctx, wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("token account lookup failed: %w", err)
	}

	var items []closeItem
	for _, acc := range accounts {
		if acc.Amount.UIAmount != 0 {
			continue
		}
		key, err := ledger.DecodeAddress(acc.Address)
		if err != nil {
			s.logger.Warn("skipping token account with unparseable address",
				"account", acc.Address, "error", err)
			continue
		}
		items = append(items, closeItem{account: key, address: acc.Address})
	}

	result := &BulkResult{Kind: "close_accounts", Total: len(items), Outcomes: []Outcome{}}
	if len(items) == 0 {
		result.Summary = "No empty token accounts to close"
		s.logger.Info("nothing to close", "wallet", wallet.Address(), "token_accounts", len(accounts))
		return result, s.finalize(jobID, result)
	}

	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(len(items)))
	}
	s.logger.Info("closing empty token accounts",
		"wallet", wallet.Address(), "empty", len(items), "total_accounts", len(accounts))

	if _, runErr := s.runCloses(ctx, jobID, wallet, items, result); runErr != nil {
		s.finalize(jobID, result)
		return result, cancelErr(runErr)
	}

	result.Summary = fmt.Sprintf("Closed %d of %d empty token account(s) in %s; %d failed",
		result.Succeeded, result.Total, countSignatures(result.Signatures), result.Failed)
	return result, s.finalize(jobID, result)
}

// CloseTokenAccount closes the wallet's account for a single mint. A
// wallet holding no account for the mint fails the eligibility check,
// not the operation: the outcome is skipped and the run still succeeds.
func (s *Service) CloseTokenAccount(ctx context.Context, jobID string, req CloseTokenAccountRequest) (*BulkResult, error) {
	wallet, err := ledger.ParseKeypair(req.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	if _, err := ledger.DecodeAddress(req.Mint); err != nil {
		return nil, fmt.Errorf("invalid mint: %w", err)
	}

	result := &BulkResult{Kind: "close_token_account", Total: 1, Outcomes: []Outcome{}}
	if jobID != "" {
		s.registry.SetTotalItems(jobID, 1)
	}

	s.progress(jobID, 0, 1, "Locating token account")
	accounts, err := s.ledger.GetTokenAccountsByOwner(ctx, wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("token account lookup failed: %w", err)
	}

	var items []closeItem
	for _, acc := range accounts {
		if acc.Mint != req.Mint {
			continue
		}
		key, err := ledger.DecodeAddress(acc.Address)
		if err != nil {
			return nil, fmt.Errorf("token account %s: %w", acc.Address, err)
		}
		items = append(items, closeItem{account: key, address: acc.Address})
	}

	if len(items) == 0 {
		result.Skipped = 1
		result.Outcomes = append(result.Outcomes, Outcome{
			Operand: req.Mint,
			Skipped: true,
			Error:   "no token account found for mint",
		})
		result.Summary = fmt.Sprintf("No token account found for mint %s", req.Mint)
		return result, s.finalize(jobID, result)
	}

	if _, runErr := s.runCloses(ctx, jobID, wallet, items, result); runErr != nil {
		s.finalize(jobID, result)
		return result, cancelErr(runErr)
	}

	result.Summary = fmt.Sprintf("Closed token account for mint %s in %s",
		req.Mint, countSignatures(result.Signatures))
	return result, s.finalize(jobID, result)
}

// CloseTokenAccountsBatch closes accounts for several mints on one wallet,
// one mint at a time, continuing past failures
func (s *Service) CloseTokenAccountsBatch(ctx context.Context, jobID string, req CloseTokenAccountsBatchRequest) (*BulkResult, error) {
	if err := s.validateOperandCount(len(req.Mints), "mints"); err != nil {
		return nil, err
	}
	if _, err := ledger.ParseKeypair(req.WalletKey); err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}

	total := len(req.Mints)
	result := &BulkResult{Kind: "close_token_accounts", Total: total, Outcomes: make([]Outcome, 0, total)}
	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(total))
	}

	for i, mint := range req.Mints {
		if err := ctx.Err(); err != nil {
			s.finalize(jobID, result)
			return result, cancelErr(err)
		}

		single, err := s.CloseTokenAccount(ctx, "", CloseTokenAccountRequest{
			WalletKey: req.WalletKey,
			Mint:      mint,
		})
		switch {
		case single == nil:
			result.Failed++
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Error: err.Error()})
		case single.Succeeded > 0:
			result.Succeeded++
			sig := ""
			if len(single.Signatures) > 0 {
				sig = single.Signatures[0]
			}
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Success: true, Signature: sig})
			result.Signatures = append(result.Signatures, single.Signatures...)
		case single.Skipped > 0 && single.Failed == 0:
			result.Skipped++
			reason := ""
			if len(single.Outcomes) > 0 {
				reason = single.Outcomes[0].Error
			}
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Skipped: true, Error: reason})
		default:
			result.Failed++
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Error: firstError(single.Outcomes)})
		}
		s.progress(jobID, i+1, total, fmt.Sprintf("Processed mint %d of %d", i+1, total))
	}

	result.Summary = fmt.Sprintf("Closed token accounts for %d of %d mint(s); %d skipped, %d failed",
		result.Succeeded, total, result.Skipped, result.Failed)
	return result, s.finalize(jobID, result)
}

// runCloses feeds close instructions through the pipeline, sending each
// reclaimed rent balance back to the owning wallet. Outcomes and counters
// accumulate directly into result.
func (s *Service) runCloses(ctx context.Context, jobID string, wallet *ledger.Keypair, items []closeItem, result *BulkResult) (*pipeline.Result[closeItem], error) {
	owner := wallet.PublicKey()

	submit := func(ctx context.Context, chunk []closeItem) (string, error) {
		blockhash, err := s.ledger.GetLatestBlockhash(ctx)
		if err != nil {
			return "", fmt.Errorf("blockhash fetch failed: %w", err)
		}
		instructions := make([]ledger.Instruction, 0, len(chunk))
		for _, item := range chunk {
			instructions = append(instructions,
				ledger.NewCloseAccountInstruction(item.account, owner, owner))
		}
		tx, err := ledger.NewTransaction(instructions, wallet, []*ledger.Keypair{wallet}, blockhash)
		if err != nil {
			return "", fmt.Errorf("transaction build failed: %w", err)
		}
		return s.ledger.SendAndConfirmTransaction(ctx, tx)
	}

	run, runErr := pipeline.Run(ctx, items, submit, pipeline.Options{
		ChunkSize: s.cfg.CloseChunkSize,
		Delay:     s.cfg.CloseDelay,
		Collector: s.collect,
		Logger:    s.logger,
		OnProgress: func(completed, total int, step string) {
			s.progress(jobID, completed, total, step)
		},
	})
	for _, o := range run.Outcomes {
		result.Outcomes = append(result.Outcomes, Outcome{
			Operand:   o.Operand.address,
			Success:   o.Success,
			Signature: o.Signature,
			Error:     o.Error,
		})
	}
	result.Succeeded += run.Succeeded
	result.Failed += run.Failed
	result.Signatures = append(result.Signatures, run.Signatures()...)
	return run, runErr
}
