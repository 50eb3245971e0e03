package ops

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/pipeline"
)

// BurnRequest destroys a percentage of the wallet's holding of one mint
type BurnRequest struct {
	WalletKey  string  `json:"wallet_key" binding:"required"`
	Mint       string  `json:"mint" binding:"required"`
	Percentage float64 `json:"percentage" binding:"required"`
}

// BurnBatchRequest destroys a percentage of the wallet's holdings across
// several mints
type BurnBatchRequest struct {
	WalletKey  string   `json:"wallet_key" binding:"required"`
	Mints      []string `json:"mints" binding:"required"`
	Percentage float64  `json:"percentage" binding:"required"`
}

// burnItem is one token account with its resolved burn amount
type burnItem struct {
	account [32]byte
	address string
	mint    [32]byte
	amount  uint64
}

// BurnTokens destroys a percentage of the wallet's balance of the given
// mint. The percentage must be in (0, 100]; amounts are floored in raw
// units so 100% always burns the entire holding.
func (s *Service) BurnTokens(ctx context.Context, jobID string, req BurnRequest) (*BulkResult, error) {
	if req.Percentage <= 0 || req.Percentage > 100 {
		return nil, fmt.Errorf("percentage must be in (0, 100]: %f", req.Percentage)
	}
	wallet, err := ledger.ParseKeypair(req.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	mintKey, err := ledger.DecodeAddress(req.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint: %w", err)
	}

	s.progress(jobID, 0, 0, "Locating token accounts")
	accounts, err := s.ledger.GetTokenAccountsByOwner(ctx, wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("token account lookup failed: %w", err)
	}

	var items []burnItem
	var totalBurn uint64
	for _, acc := range accounts {
		if acc.Mint != req.Mint || acc.Amount.RawAmount == 0 {
			continue
		}
		key, err := ledger.DecodeAddress(acc.Address)
		if err != nil {
			return nil, fmt.Errorf("token account %s: %w", acc.Address, err)
		}
		amount := burnAmount(acc.Amount.RawAmount, req.Percentage)
		if amount == 0 {
			continue
		}
		items = append(items, burnItem{account: key, address: acc.Address, mint: mintKey, amount: amount})
		totalBurn += amount
	}

	result := &BulkResult{Kind: "burn_tokens", Total: len(items), Outcomes: []Outcome{}}
	if len(items) == 0 {
		result.Summary = fmt.Sprintf("No balance to burn for mint %s", req.Mint)
		s.logger.Info("nothing to burn", "wallet", wallet.Address(), "mint", req.Mint)
		return result, s.finalize(jobID, result)
	}

	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(len(items)))
	}
	s.logger.Info("burn starting",
		"wallet", wallet.Address(), "mint", req.Mint,
		"percentage", req.Percentage, "accounts", len(items), "raw_amount", totalBurn)

	submit := func(ctx context.Context, chunk []burnItem) (string, error) {
		return s.submitBurnChunk(ctx, wallet, chunk)
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
	var burned uint64
	for _, o := range run.Outcomes {
		result.Outcomes = append(result.Outcomes, Outcome{
			Operand:   o.Operand.address,
			Success:   o.Success,
			Signature: o.Signature,
			Error:     o.Error,
		})
		if o.Success {
			burned += o.Operand.amount
		}
	}
	result.Succeeded = run.Succeeded
	result.Failed = run.Failed
	result.Signatures = run.Signatures()
	if runErr != nil {
		s.finalize(jobID, result)
		return result, cancelErr(runErr)
	}

	result.Summary = fmt.Sprintf("Burned %s raw unit(s) of mint %s across %d account(s) in %s; %d failed",
		humanize.Comma(int64(burned)), req.Mint, result.Succeeded,
		countSignatures(result.Signatures), result.Failed)

	s.logger.Info("burn finished",
		"mint", req.Mint, "burned_raw", burned, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, s.finalize(jobID, result)
}

// BurnEachTokens burns the same percentage across several mints, one mint
// at a time, continuing past failures
func (s *Service) BurnEachTokens(ctx context.Context, jobID string, req BurnBatchRequest) (*BulkResult, error) {
	if err := s.validateOperandCount(len(req.Mints), "mints"); err != nil {
		return nil, err
	}
	if req.Percentage <= 0 || req.Percentage > 100 {
		return nil, fmt.Errorf("percentage must be in (0, 100]: %f", req.Percentage)
	}
	if _, err := ledger.ParseKeypair(req.WalletKey); err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}

	total := len(req.Mints)
	result := &BulkResult{Kind: "burn_each", Total: total, Outcomes: make([]Outcome, 0, total)}
	if jobID != "" {
		s.registry.SetTotalItems(jobID, uint32(total))
	}

	for i, mint := range req.Mints {
		if err := ctx.Err(); err != nil {
			s.finalize(jobID, result)
			return result, cancelErr(err)
		}

		single, err := s.BurnTokens(ctx, "", BurnRequest{
			WalletKey:  req.WalletKey,
			Mint:       mint,
			Percentage: req.Percentage,
		})
		switch {
		case single == nil:
			result.Failed++
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Error: err.Error()})
		case single.Failed > 0 && single.Succeeded == 0:
			result.Failed++
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Error: firstError(single.Outcomes)})
		default:
			result.Succeeded++
			sig := ""
			if len(single.Signatures) > 0 {
				sig = single.Signatures[0]
			}
			result.Outcomes = append(result.Outcomes, Outcome{Operand: mint, Success: true, Signature: sig})
			result.Signatures = append(result.Signatures, single.Signatures...)
		}
		s.progress(jobID, i+1, total, fmt.Sprintf("Processed mint %d of %d", i+1, total))
	}

	result.Summary = fmt.Sprintf("Burned holdings for %d of %d mint(s); %d failed",
		result.Succeeded, total, result.Failed)
	return result, s.finalize(jobID, result)
}

// submitBurnChunk packs one burn instruction per token account into a
// single transaction signed by the owning wallet
func (s *Service) submitBurnChunk(ctx context.Context, wallet *ledger.Keypair, chunk []burnItem) (string, error) {
	blockhash, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("blockhash fetch failed: %w", err)
	}

	owner := wallet.PublicKey()
	instructions := make([]ledger.Instruction, 0, len(chunk))
	for _, item := range chunk {
		instructions = append(instructions,
			ledger.NewBurnInstruction(item.account, item.mint, owner, item.amount))
	}

	tx, err := ledger.NewTransaction(instructions, wallet, []*ledger.Keypair{wallet}, blockhash)
	if err != nil {
		return "", fmt.Errorf("transaction build failed: %w", err)
	}
	return s.ledger.SendAndConfirmTransaction(ctx, tx)
}
